package capture_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/alohacam/internal/capture"
	"github.com/lanikai/alohacam/internal/codec"
	"github.com/lanikai/alohacam/internal/h264"
	"github.com/lanikai/alohacam/internal/media"
	"github.com/lanikai/alohacam/internal/provider"
	"github.com/lanikai/alohacam/internal/simhw"
)

type surfaceRig struct {
	sys     *simhw.System
	session *capture.Session
	stream  *capture.SurfaceStream
	events  <-chan media.TransferEvent
}

func newSurfaceRig(t *testing.T, tune func(*capture.Options)) *surfaceRig {
	t.Helper()
	sys := simhw.NewSystem()
	sys.Cameras.FrameRate = 100
	opts := capture.Options{
		EGL:           sys.EGL,
		Renderer:      sys.Renderer,
		ProbeInterval: 5 * time.Millisecond,
		FrameInterval: time.Millisecond,
	}
	if tune != nil {
		tune(&opts)
	}

	s, err := capture.Open(sys.Cameras, 0, opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = s.NegotiateFormat([]media.Format{media.SurfaceFormat(qcif, 30)})
	require.NoError(t, err)
	st, err := s.NewStream()
	require.NoError(t, err)

	rig := &surfaceRig{sys: sys, session: s, stream: st.(*capture.SurfaceStream)}
	rig.events = rig.stream.Transfer().Subscribe(4)
	return rig
}

func (rig *surfaceRig) awaitEvent(t *testing.T, kind media.TransferKind) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-rig.events:
			require.True(t, ok, "transfer shut down: %v", rig.stream.Err())
			if ev.Kind == kind {
				return
			}
		case <-timeout:
			t.Fatalf("no %v event", kind)
		}
	}
}

func (rig *surfaceRig) openEncoder(t *testing.T) *codec.Adapter {
	t.Helper()
	enc, err := codec.Open(codec.NewRegistry(rig.sys.Codecs), codec.Config{
		Encoder:    true,
		Surface:    true,
		Input:      rig.stream.Format(),
		Output:     media.VideoFormat(media.H264, qcif, 30, codec.PacketizationMode1),
		BitRateKiB: 256,
	})
	require.NoError(t, err)
	require.NoError(t, enc.Configure(context.Background()))
	t.Cleanup(func() { enc.Close() })
	return enc
}

func (rig *surfaceRig) attach(t *testing.T, surface media.Surface) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	buf := media.FrameBuffer{Surface: surface}
	return rig.stream.Read(ctx, &buf)
}

func TestSurfaceStreamEncodes(t *testing.T) {
	rig := newSurfaceRig(t, nil)
	require.NoError(t, rig.stream.Start())
	rig.awaitEvent(t, media.ProbeTransfer)

	enc := rig.openEncoder(t)
	require.NoError(t, rig.attach(t, enc.InputSurface()))
	rig.awaitEvent(t, media.FrameTransfer)

	window := enc.InputSurface().(*simhw.Window)
	require.True(t, window.WaitFrames(3, 2*time.Second))
	frames := window.Frames()
	assert.Greater(t, frames[2], frames[1])

	var buf media.FrameBuffer
	require.NoError(t, rig.stream.Read(context.Background(), &buf))
	assert.Nil(t, buf.Data)
	assert.True(t, buf.Format.IsSurface())
	assert.NotZero(t, buf.Timestamp)

	// Drain the encoder: parameter sets first, then an IDR frame.
	var out media.FrameBuffer
	var flags []media.FrameFlags
	deadline := time.Now().Add(2 * time.Second)
	for len(flags) < 2 && time.Now().Before(deadline) {
		_, produced, err := enc.Step(nil, &out)
		require.NoError(t, err)
		if produced {
			flags = append(flags, out.Flags)
			if len(flags) == 2 {
				nalus := h264.SplitAnnexB(out.Data)
				require.NotEmpty(t, nalus)
				assert.True(t, nalus[0].IsKeyFrame())
			}
		} else {
			time.Sleep(time.Millisecond)
		}
	}
	require.Len(t, flags, 2)
	assert.Equal(t, media.FlagCodecConfig, flags[0])
	assert.Equal(t, media.FlagKeyFrame, flags[1])
	assert.Equal(t, qcif, enc.OutputFormat().Size)

	require.NoError(t, rig.stream.Stop())
	require.NoError(t, rig.stream.Stop())
	assert.NoError(t, rig.stream.Err())
}

func TestSurfaceStreamStopJoinsBeforeRelease(t *testing.T) {
	rig := newSurfaceRig(t, nil)
	capture.SetAfterLoop(rig.stream, func() {
		rig.sys.EGL.Note("capture loop exited")
	})
	require.NoError(t, rig.stream.Start())
	enc := rig.openEncoder(t)
	require.NoError(t, rig.attach(t, enc.InputSurface()))
	rig.awaitEvent(t, media.FrameTransfer)

	require.NoError(t, rig.stream.Stop())

	egl := rig.sys.EGL
	exited := egl.IndexOf("capture loop exited")
	destroyed := egl.IndexOf("DestroyContext")
	require.True(t, exited >= 0)
	require.True(t, destroyed >= 0)
	assert.Less(t, exited, destroyed)
	for _, ev := range egl.Events() {
		assert.False(t, strings.Contains(ev, "while current"), ev)
		assert.False(t, strings.HasPrefix(ev, "error"), ev)
	}

	contexts, surfaces := egl.Live()
	assert.Zero(t, contexts)
	assert.Zero(t, surfaces)
	assert.False(t, egl.Initialized())
}

func TestSurfaceStreamDrawsPreview(t *testing.T) {
	preview := provider.New[media.Surface]("preview window")
	window := simhw.NewWindow("preview")
	defer window.Release()
	preview.Created(window)

	rig := newSurfaceRig(t, func(o *capture.Options) { o.Preview = preview })
	require.NoError(t, rig.stream.Start())
	enc := rig.openEncoder(t)
	require.NoError(t, rig.attach(t, enc.InputSurface()))

	assert.True(t, window.WaitFrames(3, 2*time.Second))
	assert.True(t, preview.InUse())
	assert.True(t, enc.InputSurface().(*simhw.Window).WaitFrames(3, 2*time.Second))

	require.NoError(t, rig.stream.Stop())
	assert.False(t, preview.InUse())
}

func TestSurfaceStreamNeedsSurface(t *testing.T) {
	rig := newSurfaceRig(t, nil)
	require.NoError(t, rig.stream.Start())
	defer rig.stream.Stop()

	err := rig.attach(t, nil)
	assert.True(t, errors.Is(err, media.ErrConfiguration))
}

func TestSurfaceStreamSurfaceTimeout(t *testing.T) {
	rig := newSurfaceRig(t, func(o *capture.Options) { o.SurfaceTimeout = 30 * time.Millisecond })
	require.NoError(t, rig.stream.Start())

	timeout := time.After(2 * time.Second)
	for open := true; open; {
		select {
		case _, open = <-rig.events:
		case <-timeout:
			t.Fatal("transfer not shut down")
		}
	}
	assert.True(t, errors.Is(rig.stream.Transfer().Err(), media.ErrPipelineStall))
	assert.True(t, errors.Is(rig.stream.Err(), media.ErrPipelineStall))
	assert.True(t, errors.Is(rig.attach(t, simhw.NewWindow("late")), media.ErrPipelineStall))
	assert.NoError(t, rig.stream.Stop())
}

func TestSurfaceStreamFrameStall(t *testing.T) {
	rig := newSurfaceRig(t, func(o *capture.Options) { o.FrameTimeout = 30 * time.Millisecond })
	rig.sys.Cameras.FrameRate = 0.5
	require.NoError(t, rig.stream.Start())
	enc := rig.openEncoder(t)
	require.NoError(t, rig.attach(t, enc.InputSurface()))

	timeout := time.After(2 * time.Second)
	for open := true; open; {
		select {
		case _, open = <-rig.events:
		case <-timeout:
			t.Fatal("transfer not shut down")
		}
	}
	assert.True(t, errors.Is(rig.stream.Err(), media.ErrPipelineStall))
	assert.NoError(t, rig.stream.Stop())
}

func TestSurfaceStreamWithoutRecordableConfig(t *testing.T) {
	rig := newSurfaceRig(t, nil)
	rig.sys.EGL.NoRecordable = true
	require.NoError(t, rig.stream.Start())
	enc := rig.openEncoder(t)

	err := rig.attach(t, enc.InputSurface())
	assert.True(t, errors.Is(err, media.ErrConfiguration))
	assert.NoError(t, rig.stream.Stop())
}

func TestSurfaceStreamNeedsEGL(t *testing.T) {
	sys := simhw.NewSystem()
	s, err := capture.Open(sys.Cameras, 0, capture.Options{})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.NegotiateFormat([]media.Format{media.SurfaceFormat(qcif, 30)})
	require.NoError(t, err)
	_, err = s.NewStream()
	assert.True(t, errors.Is(err, media.ErrConfiguration))
}
