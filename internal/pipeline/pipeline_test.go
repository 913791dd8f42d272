package pipeline_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/alohacam/internal/capture"
	"github.com/lanikai/alohacam/internal/codec"
	"github.com/lanikai/alohacam/internal/h264"
	"github.com/lanikai/alohacam/internal/media"
	"github.com/lanikai/alohacam/internal/pipeline"
	"github.com/lanikai/alohacam/internal/simhw"
	"github.com/lanikai/alohacam/internal/sink"
)

var qcif = media.Size{Width: 176, Height: 144}

// collector keeps a copy of every buffer it consumes.
type collector struct {
	frames []media.SharedBuffer
	data   [][]byte
	closed bool
	mu     sync.Mutex
}

func (c *collector) Consume(buf *media.SharedBuffer) {
	c.mu.Lock()
	c.frames = append(c.frames, media.SharedBuffer{Format: buf.Format, Timestamp: buf.Timestamp, Flags: buf.Flags})
	c.data = append(c.data, append([]byte(nil), buf.Bytes()...))
	c.mu.Unlock()
	buf.Release()
}

func (c *collector) Close() error {
	c.closed = true
	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *collector) flags() []media.FrameFlags {
	c.mu.Lock()
	defer c.mu.Unlock()
	var flags []media.FrameFlags
	for _, f := range c.frames {
		flags = append(flags, f.Flags)
	}
	return flags
}

func encoderFor(sys *simhw.System, in media.Format, surface bool) pipeline.EncoderOpener {
	return pipeline.OpenEncoder(codec.NewRegistry(sys.Codecs), codec.Config{
		Encoder:    true,
		Surface:    surface,
		Input:      in,
		Output:     media.VideoFormat(media.H264, qcif, 30, codec.PacketizationMode1),
		BitRateKiB: 256,
	})
}

func openStream(t *testing.T, sys *simhw.System, opts capture.Options, format media.Format) capture.Stream {
	t.Helper()
	s, err := capture.Open(sys.Cameras, 0, opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	_, err = s.NegotiateFormat([]media.Format{format})
	require.NoError(t, err)
	st, err := s.NewStream()
	require.NoError(t, err)
	return st
}

// run starts p and returns a function that stops it and reports its result.
func run(p *pipeline.Pipeline) func() error {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	return func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			return errors.New("pipeline did not stop")
		}
	}
}

func assertH264Start(t *testing.T, c *collector) {
	t.Helper()
	flags := c.flags()
	require.GreaterOrEqual(t, len(flags), 2)
	assert.Equal(t, media.FlagCodecConfig, flags[0])
	assert.Equal(t, media.FlagKeyFrame, flags[1])

	c.mu.Lock()
	defer c.mu.Unlock()
	config := h264.SplitAnnexB(c.data[0])
	require.Len(t, config, 2)
	assert.Equal(t, byte(h264.TypeSPS), config[0].Type())
	assert.Equal(t, byte(h264.TypePPS), config[1].Type())
	assert.True(t, c.frames[1].Format.Matches(media.VideoFormat(media.H264, qcif, 0, "")))
}

func TestPipelineBufferMode(t *testing.T) {
	sys := simhw.NewSystem()
	sys.Cameras.FrameRate = 100
	st := openStream(t, sys, capture.Options{}, media.RawFormat(media.I420, qcif, 0))
	enc := encoderFor(sys, st.Format(), false)

	c := &collector{}
	p := pipeline.New(st, enc, []sink.Sink{c}, pipeline.Options{})
	stop := run(p)
	require.Eventually(t, func() bool { return c.count() >= 4 }, 3*time.Second, 5*time.Millisecond)
	require.NoError(t, stop())

	assertH264Start(t, c)
	stats := p.Stats()
	assert.NotZero(t, stats.Read)
	assert.NotZero(t, stats.Encoded)
	assert.GreaterOrEqual(t, stats.Emitted, int64(4))
	assert.False(t, c.closed)

	// The stream was stopped on the way out.
	var buf media.FrameBuffer
	assert.Error(t, st.Read(context.Background(), &buf))
}

func TestPipelineSurfaceMode(t *testing.T) {
	sys := simhw.NewSystem()
	sys.Cameras.FrameRate = 100
	opts := capture.Options{
		EGL:           sys.EGL,
		Renderer:      sys.Renderer,
		ProbeInterval: 5 * time.Millisecond,
		FrameInterval: time.Millisecond,
	}
	st := openStream(t, sys, opts, media.SurfaceFormat(qcif, 30))
	enc := encoderFor(sys, st.Format(), true)

	c := &collector{}
	p := pipeline.New(st, enc, []sink.Sink{c}, pipeline.Options{})
	stop := run(p)
	require.Eventually(t, func() bool { return c.count() >= 4 }, 3*time.Second, 5*time.Millisecond)
	require.NoError(t, stop())

	assertH264Start(t, c)
	assert.NotZero(t, p.Stats().Encoded)
	instances := sys.Codecs.Instances()
	require.Len(t, instances, 1)
	assert.True(t, instances[0].Released())
	contexts, surfaces := sys.EGL.Live()
	assert.Zero(t, contexts)
	assert.Zero(t, surfaces)
}

func TestPipelineFansOutToEverySink(t *testing.T) {
	sys := simhw.NewSystem()
	sys.Cameras.FrameRate = 100
	st := openStream(t, sys, capture.Options{}, media.RawFormat(media.I420, qcif, 0))
	enc := encoderFor(sys, st.Format(), false)

	a, b := &collector{}, &collector{}
	p := pipeline.New(st, enc, []sink.Sink{a, b}, pipeline.Options{OutputBuffers: 2})
	stop := run(p)
	require.Eventually(t, func() bool { return a.count() >= 3 }, 3*time.Second, 5*time.Millisecond)
	require.NoError(t, stop())

	assert.Equal(t, a.count(), b.count())
	assert.Equal(t, a.data, b.data)
}

// failingStream shuts its transfer down with an error right after Start.
type failingStream struct {
	transfer media.Transfer
	stopped  bool
}

func (s *failingStream) Format() media.Format { return media.RawFormat(media.I420, qcif, 30) }
func (s *failingStream) Transfer() *media.Transfer { return &s.transfer }

func (s *failingStream) Start() error {
	go func() {
		time.Sleep(10 * time.Millisecond)
		s.transfer.Shutdown(errors.Wrap(media.ErrPipelineStall, "no camera frame"))
	}()
	return nil
}

func (s *failingStream) Read(ctx context.Context, buf *media.FrameBuffer) error {
	return errors.New("not readable")
}

func (s *failingStream) Stop() error {
	s.stopped = true
	return nil
}

func TestPipelineReportsCaptureFailure(t *testing.T) {
	sys := simhw.NewSystem()
	st := &failingStream{}
	enc := encoderFor(sys, st.Format(), false)

	p := pipeline.New(st, enc, nil, pipeline.Options{})
	err := p.Run(context.Background())
	assert.True(t, errors.Is(err, media.ErrPipelineStall), "got %v", err)
	assert.True(t, st.stopped)
}

// probingStream asks once for a surface and shuts down when it gets one.
type probingStream struct {
	transfer media.Transfer
	probed   atomic.Bool
	surface  media.Surface
}

func (s *probingStream) Format() media.Format     { return media.SurfaceFormat(qcif, 30) }
func (s *probingStream) Transfer() *media.Transfer { return &s.transfer }
func (s *probingStream) Stop() error               { return nil }

func (s *probingStream) Start() error {
	go func() {
		time.Sleep(10 * time.Millisecond)
		s.probed.Store(true)
		s.transfer.Signal(media.TransferEvent{Kind: media.ProbeTransfer})
	}()
	return nil
}

func (s *probingStream) Read(ctx context.Context, buf *media.FrameBuffer) error {
	if buf.Surface == nil {
		return errors.New("no surface")
	}
	s.surface = buf.Surface
	s.transfer.Shutdown(nil)
	return nil
}

func TestPipelineOpensEncoderOnProbe(t *testing.T) {
	sys := simhw.NewSystem()
	st := &probingStream{}
	open := encoderFor(sys, st.Format(), true)

	var probedFirst bool
	p := pipeline.New(st, func() (*codec.Adapter, error) {
		probedFirst = st.probed.Load()
		return open()
	}, nil, pipeline.Options{})
	assert.Empty(t, sys.Codecs.Instances())

	require.NoError(t, p.Run(context.Background()))
	assert.True(t, probedFirst, "encoder opened before the stream asked for it")
	assert.NotNil(t, st.surface)
	instances := sys.Codecs.Instances()
	require.Len(t, instances, 1)
	assert.True(t, instances[0].Released())
}

func TestPipelineReportsEncoderFailure(t *testing.T) {
	sys := simhw.NewSystem()
	sys.Cameras.FrameRate = 100
	st := openStream(t, sys, capture.Options{}, media.RawFormat(media.I420, qcif, 0))

	p := pipeline.New(st, pipeline.OpenEncoder(codec.NewRegistry(sys.Codecs), codec.Config{
		Encoder:  true,
		Disabled: true,
		Input:    st.Format(),
		Output:   media.VideoFormat(media.H264, qcif, 30, codec.PacketizationMode1),
	}), nil, pipeline.Options{})
	err := p.Run(context.Background())
	assert.True(t, errors.Is(err, media.ErrResourceUnavailable), "got %v", err)
	assert.Zero(t, p.Stats().Read)
}
