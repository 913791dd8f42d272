package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/alohacam/internal/media"
)

func TestMessageLayout(t *testing.T) {
	m := Message{
		Type:      TypeFrame,
		Flags:     media.FlagKeyFrame,
		Timestamp: 0x0102030405060708,
		Payload:   []byte{0xaa, 0xbb},
	}
	b := m.Bytes()
	assert.Equal(t, []byte{
		3, 1, 0, 0,
		1, 2, 3, 4, 5, 6, 7, 8,
		0, 0, 0, 2,
		0xaa, 0xbb,
	}, b)

	parsed, err := ParseMessage(b)
	require.NoError(t, err)
	assert.Equal(t, m, parsed)
}

func TestParseMessageErrors(t *testing.T) {
	_, err := ParseMessage([]byte{3, 0, 0})
	assert.Error(t, err)

	b := (&Message{Type: TypeConfig, Payload: []byte{1, 2, 3}}).Bytes()
	_, err = ParseMessage(b[:len(b)-1])
	assert.Error(t, err)

	_, err = ParseMessage(append(b, 0))
	assert.Error(t, err)
}

func TestWriterCapacity(t *testing.T) {
	w := NewWriterSize(HeaderSize)
	m := Message{Type: TypeHello, Payload: []byte("H264")}
	assert.Error(t, m.Marshal(w))
	assert.Zero(t, w.Length())

	w = NewWriterSize(64)
	require.NoError(t, m.Marshal(w))
	assert.Equal(t, m.Size(), w.Length())
	assert.Equal(t, 64-m.Size(), w.Available())
	w.Reset()
	assert.Zero(t, w.Length())
}

func TestReader(t *testing.T) {
	r := NewReader([]byte{1, 0, 2, 0, 0, 0, 3})
	b, err := r.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(1), b)
	assert.Equal(t, uint16(2), r.ReadUint16())
	assert.Equal(t, 4, r.Remaining())
	_, err = r.ReadSlice(5)
	assert.Error(t, err)
	assert.Equal(t, uint32(3), r.ReadUint32())
	_, err = r.ReadByte()
	assert.Error(t, err)
}
