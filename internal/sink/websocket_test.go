package sink

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/alohacam/internal/h264"
	"github.com/lanikai/alohacam/internal/media"
	"github.com/lanikai/alohacam/internal/packet"
)

func dialViewer(t *testing.T, b *Broadcaster) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	before := b.Clients()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return b.Clients() == before+1 }, 2*time.Second, 5*time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) packet.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	typ, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, typ)
	m, err := packet.ParseMessage(data)
	require.NoError(t, err)
	return m
}

func TestBroadcasterJoinsAtKeyFrame(t *testing.T) {
	b := NewBroadcaster(media.VideoFormat(media.H264, cif, 30, ""))
	defer b.Close()
	conn := dialViewer(t, b)

	s := &stream{t: t}
	b.Consume(s.buffer(media.FlagCodecConfig, 0, s.parameterSets()...))
	b.Consume(s.buffer(0, 10, slice))
	b.Consume(s.buffer(media.FlagKeyFrame, 20, idr))
	b.Consume(s.buffer(0, 30, slice))
	assert.Equal(t, int32(4), s.released)

	hello := readMessage(t, conn)
	assert.Equal(t, packet.TypeHello, hello.Type)
	assert.Equal(t, "H264", string(hello.Payload))

	config := readMessage(t, conn)
	assert.Equal(t, packet.TypeConfig, config.Type)
	assert.Len(t, h264.SplitAnnexB(config.Payload), 2)

	key := readMessage(t, conn)
	assert.Equal(t, packet.TypeFrame, key.Type)
	assert.Equal(t, media.FlagKeyFrame, key.Flags)
	assert.Equal(t, int64(20), key.Timestamp)
	assert.Equal(t, h264.AppendAnnexB(nil, idr), key.Payload)

	next := readMessage(t, conn)
	assert.Equal(t, int64(30), next.Timestamp)
	assert.Zero(t, next.Flags)
}

func TestBroadcasterClose(t *testing.T) {
	b := NewBroadcaster(media.VideoFormat(media.H264, cif, 30, ""))
	conn := dialViewer(t, b)
	readMessage(t, conn)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	assert.Zero(t, b.Clients())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	s := &stream{t: t}
	b.Consume(s.buffer(media.FlagKeyFrame, 0, idr))
	assert.Equal(t, int32(1), s.released)
}

func TestClientSkipsToKeyFrameAfterDrop(t *testing.T) {
	c := &client{send: make(chan []byte, 2)}
	config := []byte("config")

	c.offer([]byte("delta"), packet.TypeFrame, false, config)
	assert.Empty(t, c.send)

	c.offer([]byte("key"), packet.TypeFrame, true, config)
	assert.True(t, c.synced)
	assert.Equal(t, "config", string(<-c.send))
	assert.Equal(t, "key", string(<-c.send))

	c.offer([]byte("d1"), packet.TypeFrame, false, config)
	c.offer([]byte("d2"), packet.TypeFrame, false, config)
	c.offer([]byte("d3"), packet.TypeFrame, false, config)
	assert.False(t, c.synced)
	assert.Equal(t, 1, c.dropped)

	<-c.send
	<-c.send
	c.offer([]byte("d4"), packet.TypeFrame, false, config)
	assert.Empty(t, c.send)
	c.offer([]byte("key2"), packet.TypeFrame, true, nil)
	assert.Equal(t, "key2", string(<-c.send))
}
