package rtp

import (
	"context"
	"io"
	"math/rand"
	"net"
	"sync"

	pion "github.com/pion/rtp"
	"github.com/pkg/errors"

	"github.com/lanikai/alohacam/internal/h264"
	"github.com/lanikai/alohacam/internal/media"
)

const (
	// First dynamic payload type.
	DefaultPayloadType = 96

	// It's hard to find authoritative information, but according to a popular
	// StackOverflow answer, a 512-byte UDP payload is generally considered safe
	// (https://stackoverflow.com/a/1099359/11194515). Local networks do fine
	// with an Ethernet MTU less IP and UDP headers.
	DefaultMaxPacketSize = 1200

	// Frames waiting for the sender goroutine.
	DefaultQueue = 32
)

type Options struct {
	PayloadType   byte
	SSRC          uint32
	MaxPacketSize int
	Queue         int
}

func (o *Options) setDefaults() {
	if o.PayloadType == 0 {
		o.PayloadType = DefaultPayloadType
	}
	if o.SSRC == 0 {
		o.SSRC = rand.Uint32()
	}
	if o.MaxPacketSize == 0 {
		o.MaxPacketSize = DefaultMaxPacketSize
	}
	if o.Queue == 0 {
		o.Queue = DefaultQueue
	}
}

// Sender streams encoded H.264 frames as RTP packets. A frame that does not
// fit in the queue is dropped, and sending resumes at the next key frame.
type Sender struct {
	opts   Options
	format media.Format
	conn   io.WriteCloser
	writer *h264Writer

	// Remote host:port, when sending over a network connection.
	dest string

	frames chan *media.SharedBuffer
	done   chan struct{}

	// Owned by the send goroutine.
	base   int64
	offset uint32
	err    error

	// Latest parameter sets seen in the stream.
	sps, pps h264.NALU

	resync  bool
	dropped int
	closed  bool
	mu      sync.Mutex
}

// Dial connects a UDP socket to addr and sends to it.
func Dial(ctx context.Context, addr string, format media.Format, opts Options) (*Sender, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}
	s, err := NewSender(conn, format, opts)
	if err != nil {
		conn.Close()
		return nil, err
	}
	s.dest = conn.RemoteAddr().String()
	log.Info("sending %v to rtp://%s (ssrc %08x, pt %d)", format, addr, s.opts.SSRC, s.opts.PayloadType)
	return s, nil
}

// NewSender writes one RTP packet per Write call on conn.
func NewSender(conn io.WriteCloser, format media.Format, opts Options) (*Sender, error) {
	if format.Encoding != media.H264 {
		return nil, errors.Wrapf(media.ErrUnsupportedFormat, "cannot packetize %v", format)
	}
	opts.setDefaults()
	if opts.MaxPacketSize < rtpHeaderSize+3 {
		return nil, errors.Wrapf(media.ErrConfiguration, "max packet size %d", opts.MaxPacketSize)
	}
	if opts.PayloadType > 127 {
		return nil, errors.Wrapf(media.ErrConfiguration, "payload type %d", opts.PayloadType)
	}

	rw := newRTPWriter(conn, opts.SSRC, pion.NewRandomSequencer(), opts.MaxPacketSize)
	s := &Sender{
		opts:   opts,
		format: format,
		conn:   conn,
		writer: newH264Writer(rw, opts.PayloadType),
		frames: make(chan *media.SharedBuffer, opts.Queue),
		done:   make(chan struct{}),
		base:   -1,
		offset: rand.Uint32(),
	}
	go s.sendLoop()
	return s, nil
}

func (s *Sender) SSRC() uint32 {
	return s.opts.SSRC
}

func (s *Sender) Consume(buf *media.SharedBuffer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		buf.Release()
		return
	}
	select {
	case s.frames <- buf:
	default:
		s.dropped++
		s.resync = true
		buf.Release()
		log.Debug("rtp queue full, dropped frame at %d", buf.Timestamp)
	}
}

// Dropped returns the number of frames that arrived while the queue was full.
func (s *Sender) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Sender) takeResync() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	resync := s.resync
	s.resync = false
	return resync
}

func (s *Sender) sendLoop() {
	defer close(s.done)
	skipping := false
	for buf := range s.frames {
		if s.takeResync() {
			skipping = true
		}
		if skipping && buf.IsKeyFrame() {
			skipping = false
		}
		if s.err == nil && (!skipping || buf.Flags&media.FlagCodecConfig != 0) {
			s.err = s.send(buf)
			if s.err != nil {
				log.Error("rtp stopped: %v", s.err)
			}
		}
		buf.Release()
	}
}

func (s *Sender) send(buf *media.SharedBuffer) error {
	if s.base < 0 {
		s.base = buf.Timestamp
	}
	ts := buf.Timestamp - s.base
	if ts < 0 {
		ts = 0
	}
	nalus := h264.SplitAnnexB(buf.Bytes())
	s.remember(nalus)
	return s.writer.writeAccessUnit(nalus, s.offset+toClock(ts, videoClockRate))
}

func (s *Sender) remember(nalus []h264.NALU) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, nalu := range nalus {
		switch {
		case len(nalu) == 0:
		case nalu.Type() == h264.TypeSPS:
			s.sps = append(s.sps[:0], nalu...)
		case nalu.Type() == h264.TypePPS:
			s.pps = append(s.pps[:0], nalu...)
		}
	}
}

// Close flushes queued frames and closes the connection. Later calls do
// nothing.
func (s *Sender) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.frames)
	s.mu.Unlock()

	<-s.done
	err := s.err
	if cerr := s.conn.Close(); cerr != nil && err == nil {
		err = cerr
	}
	packets, bytes := s.writer.stats()
	log.Info("rtp closed after %d packets, %d payload bytes (%d frames dropped)", packets, bytes, s.Dropped())
	return err
}
