package sink

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/lanikai/alohacam/internal/media"
	"github.com/lanikai/alohacam/internal/packet"
)

const (
	// Messages queued per viewer before it starts losing frames.
	DefaultClientQueue = 32

	writeTimeout = 5 * time.Second
)

// Broadcaster serves encoded frames to websocket viewers at /ws. A viewer
// joins at the next key frame, preceded by the latest codec configuration,
// and a viewer that falls behind skips ahead to the following key frame.
type Broadcaster struct {
	format   media.Format
	queue    int
	router   *http.ServeMux
	upgrader websocket.Upgrader

	// Latest codec configuration message.
	config []byte

	server  *http.Server
	clients map[*client]struct{}
	closed  bool
	mu      sync.Mutex
}

type client struct {
	conn *websocket.Conn
	send chan []byte

	// Received a key frame since joining or since the last drop.
	synced  bool
	dropped int
}

func NewBroadcaster(format media.Format) *Broadcaster {
	b := &Broadcaster{
		format:  format,
		queue:   DefaultClientQueue,
		router:  http.NewServeMux(),
		clients: make(map[*client]struct{}),
	}
	b.router.HandleFunc("/ws", b.handleWebsocket)
	b.router.HandleFunc("/status", b.handleStatus)
	return b
}

func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.router.ServeHTTP(w, r)
}

// ListenAndServe serves viewers on addr until Close.
func (b *Broadcaster) ListenAndServe(addr string) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.New("broadcaster closed")
	}
	b.server = &http.Server{Addr: addr, Handler: b}
	server := b.server
	b.mu.Unlock()

	log.Info("serving live video on %s/ws", addr)
	err := server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Clients returns the number of connected viewers.
func (b *Broadcaster) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

func (b *Broadcaster) Consume(buf *media.SharedBuffer) {
	msg := packet.Message{
		Type:      packet.TypeFrame,
		Flags:     buf.Flags,
		Timestamp: buf.Timestamp,
		Payload:   buf.Bytes(),
	}
	if buf.Flags&media.FlagCodecConfig != 0 {
		msg.Type = packet.TypeConfig
	}
	data := msg.Bytes()
	key := buf.IsKeyFrame()
	buf.Release()

	b.mu.Lock()
	defer b.mu.Unlock()

	if msg.Type == packet.TypeConfig {
		b.config = data
	}
	for c := range b.clients {
		c.offer(data, msg.Type, key, b.config)
	}
}

// offer queues a message for one viewer without blocking.
func (c *client) offer(data []byte, typ packet.MessageType, key bool, config []byte) {
	if !c.synced {
		if typ != packet.TypeFrame || !key {
			return
		}
		if config != nil && !c.push(config) {
			return
		}
		c.synced = true
	}
	if !c.push(data) {
		c.synced = false
		c.dropped++
	}
}

func (c *client) push(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (b *Broadcaster) register(conn *websocket.Conn) *client {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	c := &client{conn: conn, send: make(chan []byte, b.queue)}
	hello := packet.Message{Type: packet.TypeHello, Payload: []byte(b.format.Encoding)}
	c.push(hello.Bytes())
	b.clients[c] = struct{}{}
	log.Info("viewer %v connected (%d total)", conn.RemoteAddr(), len(b.clients))
	return c
}

func (b *Broadcaster) unregister(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
		log.Info("viewer %v left (%d dropped)", c.conn.RemoteAddr(), c.dropped)
	}
}

func (b *Broadcaster) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	ws, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("upgrade: %v", err)
		return
	}
	c := b.register(ws)
	if c == nil {
		ws.Close()
		return
	}
	go b.writeLoop(c)

	// Viewers send nothing; reading surfaces the close.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			log.Debug("viewer %v: %v", ws.RemoteAddr(), err)
			break
		}
	}
	b.unregister(c)
}

func (b *Broadcaster) writeLoop(c *client) {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
			log.Warn("write to viewer %v: %v", c.conn.RemoteAddr(), err)
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout))
}

func (b *Broadcaster) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"format":  b.format.String(),
		"viewers": b.Clients(),
	})
}

// Close disconnects every viewer and stops the server. Later calls do
// nothing.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for c := range b.clients {
		delete(b.clients, c)
		close(c.send)
	}
	server := b.server
	b.mu.Unlock()

	if server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return server.Shutdown(ctx)
}
