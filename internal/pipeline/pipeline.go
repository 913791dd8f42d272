// Package pipeline drives encoded video from a capture stream through a codec
// adapter into sinks.
package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/lanikai/alohacam/internal/capture"
	"github.com/lanikai/alohacam/internal/codec"
	"github.com/lanikai/alohacam/internal/logging"
	"github.com/lanikai/alohacam/internal/media"
	"github.com/lanikai/alohacam/internal/sink"
)

var log = logging.DefaultLogger.WithTag("pipeline")

const (
	DefaultEventQueue    = 4
	DefaultOutputBuffers = 8
	DefaultInputRetries  = 10
	DefaultRetryDelay    = 2 * time.Millisecond

	// Bound on output buffers drained after one input frame.
	maxDrain = 16
)

type Options struct {
	// Transfer events buffered between capture and the encode loop.
	EventQueue int

	// Encoded buffers kept for reuse once every sink released them.
	OutputBuffers int

	// How often to retry a frame the codec had no input buffer for, and how
	// long to wait between tries. The frame is skipped afterwards.
	InputRetries int
	RetryDelay   time.Duration
}

func (o *Options) setDefaults() {
	if o.EventQueue <= 0 {
		o.EventQueue = DefaultEventQueue
	}
	if o.OutputBuffers <= 0 {
		o.OutputBuffers = DefaultOutputBuffers
	}
	if o.InputRetries <= 0 {
		o.InputRetries = DefaultInputRetries
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
}

// Stats counts frames at each stage.
type Stats struct {
	// Frames read from the capture stream.
	Read int64

	// Frames the codec accepted.
	Encoded int64

	// Frames lost to read glitches or a busy codec.
	Skipped int64

	// Output buffers handed to the sinks.
	Emitted int64
}

// EncoderOpener opens the codec adapter a pipeline encodes with.
type EncoderOpener func() (*codec.Adapter, error)

// OpenEncoder selects the codec for cfg from r.
func OpenEncoder(r *codec.Registry, cfg codec.Config) EncoderOpener {
	return func() (*codec.Adapter, error) {
		return codec.Open(r, cfg)
	}
}

type Pipeline struct {
	stream capture.Stream
	open   EncoderOpener
	sinks  []sink.Sink
	opts   Options

	// Opened and configured when the stream first needs it: on the first
	// surface probe, or the first frame in buffer mode.
	enc *codec.Adapter

	attached bool
	free     chan []byte

	read, encoded, skipped, emitted atomic.Int64
}

// New builds a pipeline from a stream that has not been started. The caller
// keeps ownership of the stream and sinks; the encoder is opened by Run and
// closed before Run returns.
func New(stream capture.Stream, open EncoderOpener, sinks []sink.Sink, opts Options) *Pipeline {
	opts.setDefaults()
	return &Pipeline{
		stream: stream,
		open:   open,
		sinks:  sinks,
		opts:   opts,
		free:   make(chan []byte, opts.OutputBuffers),
	}
}

func (p *Pipeline) Stats() Stats {
	return Stats{
		Read:    p.read.Load(),
		Encoded: p.encoded.Load(),
		Skipped: p.skipped.Load(),
		Emitted: p.emitted.Load(),
	}
}

// Run starts the stream and encodes until ctx is done or a stage fails. The
// stream is stopped before Run returns. An orderly stop returns nil.
func (p *Pipeline) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := p.stream.Start(); err != nil {
		return errors.Wrap(err, "start capture")
	}
	transfer := p.stream.Transfer()
	events := transfer.Subscribe(p.opts.EventQueue)
	defer transfer.Unsubscribe(events)

	log.Info("running %v", p.stream.Format())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return p.encodeLoop(gctx, events)
	})
	g.Go(func() error {
		<-gctx.Done()
		return errors.Wrap(p.stream.Stop(), "stop capture")
	})
	err := g.Wait()

	if p.enc != nil {
		if cerr := p.enc.Close(); cerr != nil {
			log.Warn("close encoder: %v", cerr)
		}
		p.enc = nil
	}
	st := p.Stats()
	log.Info("stopped (read=%d encoded=%d skipped=%d emitted=%d)", st.Read, st.Encoded, st.Skipped, st.Emitted)
	return err
}

func (p *Pipeline) encodeLoop(ctx context.Context, events <-chan media.TransferEvent) error {
	var in media.FrameBuffer
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				if err := p.stream.Transfer().Err(); err != nil {
					return errors.Wrap(err, "capture failed")
				}
				return nil
			}
			var err error
			switch ev.Kind {
			case media.ProbeTransfer:
				err = p.attach(ctx)
			case media.FrameTransfer:
				err = p.encodeFrame(ctx, &in)
			}
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

// encoder opens and configures the adapter on first use.
func (p *Pipeline) encoder(ctx context.Context) (*codec.Adapter, error) {
	if p.enc != nil {
		return p.enc, nil
	}
	enc, err := p.open()
	if err != nil {
		return nil, errors.Wrap(err, "open encoder")
	}
	if err := enc.Configure(ctx); err != nil {
		enc.Close()
		return nil, errors.Wrap(err, "configure encoder")
	}
	p.enc = enc
	log.Info("encoding %v -> %v with %s", p.stream.Format(), enc.OutputFormat(), enc.Info().Name)
	return enc, nil
}

// attach answers the first surface probe with the encoder's input surface.
// The encoder is only brought up once the stream asks for it.
func (p *Pipeline) attach(ctx context.Context) error {
	if p.attached {
		return nil
	}
	enc, err := p.encoder(ctx)
	if err != nil {
		return err
	}
	surface := enc.InputSurface()
	if surface == nil {
		return errors.Wrap(media.ErrConfiguration, "encoder has no input surface")
	}
	buf := media.FrameBuffer{Surface: surface}
	if err := p.stream.Read(ctx, &buf); err != nil {
		return errors.Wrap(err, "attach encoder surface")
	}
	p.attached = true
	log.Debug("encoder surface attached")
	return nil
}

func (p *Pipeline) encodeFrame(ctx context.Context, in *media.FrameBuffer) error {
	if _, err := p.encoder(ctx); err != nil {
		return err
	}
	if err := p.stream.Read(ctx, in); err != nil {
		if errors.Is(err, media.ErrPipelineStall) || errors.Is(err, media.ErrConfiguration) {
			return err
		}
		p.skipped.Add(1)
		log.Warn("read frame: %v", err)
		return nil
	}
	p.read.Add(1)

	for attempt := 0; ; attempt++ {
		consumed, err := p.step(in)
		if err != nil {
			return err
		}
		if consumed {
			p.encoded.Add(1)
			break
		}
		if attempt >= p.opts.InputRetries {
			p.skipped.Add(1)
			log.Debug("codec busy, skipped frame at %d", in.Timestamp)
			break
		}
		select {
		case <-time.After(p.opts.RetryDelay):
		case <-ctx.Done():
			return nil
		}
	}

	for i := 0; i < maxDrain; i++ {
		if _, err := p.step(nil); err != nil {
			return err
		}
	}
	return nil
}

// step runs the codec until it wants input, emitting everything it produces.
func (p *Pipeline) step(in *media.FrameBuffer) (consumed bool, err error) {
	for i := 0; i < maxDrain; i++ {
		out := media.FrameBuffer{Data: p.buffer()}
		consumed, produced, err := p.enc.Step(in, &out)
		if err != nil {
			return false, err
		}
		if !produced {
			p.recycle(out.Data)
			return consumed, nil
		}
		p.emit(&out)
	}
	return false, nil
}

func (p *Pipeline) buffer() []byte {
	select {
	case b := <-p.free:
		return b[:0]
	default:
		return nil
	}
}

func (p *Pipeline) recycle(b []byte) {
	if b == nil {
		return
	}
	select {
	case p.free <- b:
	default:
	}
}

func (p *Pipeline) emit(out *media.FrameBuffer) {
	data := out.Data
	if len(data) == 0 || len(p.sinks) == 0 {
		p.recycle(data)
		return
	}
	buf := media.NewSharedBuffer(data, len(p.sinks), func() { p.recycle(data) })
	buf.Format = out.Format
	buf.Timestamp = out.Timestamp
	buf.Flags = out.Flags
	p.emitted.Add(1)
	if log.Enabled(4) {
		log.Trace(4, "emit %d bytes at %d flags=%d", len(data), out.Timestamp, out.Flags)
	}
	for _, s := range p.sinks {
		s.Consume(buf)
	}
}
