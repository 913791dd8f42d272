package simhw

import (
	"testing"
	"time"

	"github.com/nareix/joy4/codec/h264parser"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/alohacam/internal/codec"
	"github.com/lanikai/alohacam/internal/gl"
	"github.com/lanikai/alohacam/internal/h264"
	"github.com/lanikai/alohacam/internal/media"
)

var qcif = media.Size{Width: 176, Height: 144}

func TestFillFrameYV12(t *testing.T) {
	f := media.RawFormat(media.YV12, qcif, 0)
	buf := make([]byte, f.FrameSize())
	FillFrame(buf, f, 7)

	assert.Equal(t, byte(7), buf[0])
	// 176 is 16-aligned, but 88 is not: chroma rows carry padding.
	yStride, uvStride := 176, 96
	vPlane := buf[yStride*144:]
	assert.Equal(t, byte(FrameV), vPlane[0])
	assert.Equal(t, byte(Padding), vPlane[88])
	uPlane := vPlane[uvStride*72:]
	assert.Equal(t, byte(FrameU), uPlane[87])
}

func TestDriverBusy(t *testing.T) {
	d := NewDriver("sim")
	dev, err := d.Open(0)
	require.NoError(t, err)

	_, err = d.Open(0)
	assert.True(t, errors.Is(err, media.ErrDeviceUnavailable))

	_, err = d.Open(9)
	assert.True(t, errors.Is(err, media.ErrDeviceUnavailable))

	require.NoError(t, dev.Release())
	assert.Nil(t, d.Opened(0))
	dev, err = d.Open(0)
	require.NoError(t, err)
	dev.Release()
}

func TestDeviceDeliversIntoCallbackBuffers(t *testing.T) {
	d := NewDriver("sim")
	d.FrameRate = 200
	dev, err := d.Open(0)
	require.NoError(t, err)
	defer dev.Release()

	f := media.RawFormat(media.NV21, qcif, 0)
	require.NoError(t, dev.Configure(qcif, media.NV21))
	assert.Error(t, dev.Configure(media.Size{Width: 10, Height: 10}, media.NV21))

	frames := make(chan []byte, 4)
	dev.SetPreviewCallback(func(data []byte) { frames <- data })
	dev.AddCallbackBuffer(make([]byte, f.FrameSize()))
	require.NoError(t, dev.StartPreview())

	select {
	case data := <-frames:
		assert.Len(t, data, f.FrameSize())
		assert.Equal(t, byte(FrameV), data[176*144])
		assert.Equal(t, byte(FrameU), data[176*144+1])
	case <-time.After(2 * time.Second):
		t.Fatal("no frame")
	}
	require.NoError(t, dev.StopPreview())

	delivered, _ := dev.(*Device).Delivered()
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 0, dev.(*Device).Queued())
}

func TestEGLRecordableWindow(t *testing.T) {
	egl := NewEGL()
	w := newWindow("codec", true, nil)
	defer w.Release()

	_, _, ok := egl.Initialize(simDisplay)
	require.True(t, ok)

	s := egl.CreateWindowSurface(simDisplay, configDefault, w.NativeWindow(), nil)
	assert.Equal(t, gl.NoSurface, s)
	assert.EqualValues(t, eglBadMatch, egl.GetError())
	assert.EqualValues(t, gl.EGL_SUCCESS, egl.GetError())

	s = egl.CreateWindowSurface(simDisplay, configRecordable, w.NativeWindow(), nil)
	assert.NotEqual(t, gl.NoSurface, s)

	egl.NoRecordable = true
	assert.Empty(t, egl.ChooseConfig(simDisplay, []int32{gl.EGL_RECORDABLE_ANDROID, gl.EGL_TRUE, gl.EGL_NONE}))
}

func TestEGLSwapPostsToWindow(t *testing.T) {
	egl := NewEGL()
	w := NewWindow("preview")
	defer w.Release()

	ctx, err := gl.NewContext(egl, gl.Options{Window: w})
	require.NoError(t, err)
	require.NoError(t, ctx.EnsureCurrent())
	require.NoError(t, ctx.SetPresentationTime(1234))
	require.NoError(t, ctx.SwapBuffers())
	assert.Equal(t, []int64{1234}, w.Frames())

	ctx.Release()
	contexts, surfaces := egl.Live()
	assert.Zero(t, contexts)
	assert.Zero(t, surfaces)
	assert.False(t, egl.Initialized())
}

func startCodec(t *testing.T, name string, f codec.MediaFormat, encoder bool) *Codec {
	p := NewPlatform()
	hw, err := p.CreateByName(name)
	require.NoError(t, err)
	require.NoError(t, hw.Configure(f, nil, encoder))
	require.NoError(t, hw.Start())
	return hw.(*Codec)
}

func dequeue(t *testing.T, c *Codec) ([]byte, codec.BufferInfo) {
	var info codec.BufferInfo
	idx := c.DequeueOutputBuffer(&info, 0)
	require.True(t, idx >= 0, "dequeue returned %d", idx)
	data := append([]byte(nil), c.OutputBuffers()[idx][:info.Size]...)
	require.NoError(t, c.ReleaseOutputBuffer(idx, false))
	return data, info
}

func TestH264EncoderBitstream(t *testing.T) {
	f := codec.MediaFormat{Mime: codec.MimeH264, Width: 640, Height: 480, FrameRate: 2, IFrameInterval: 1, ColorFormat: codec.ColorYUV420Planar}
	c := startCodec(t, "OMX.sim.avc.encoder", f, true)

	var info codec.BufferInfo
	assert.Equal(t, codec.InfoOutputFormatChanged, c.DequeueOutputBuffer(&info, 0))
	assert.Equal(t, codec.InfoTryAgainLater, c.DequeueOutputBuffer(&info, 0))

	for i := 0; i < 3; i++ {
		idx := c.DequeueInputBuffer(0)
		require.True(t, idx >= 0)
		require.NoError(t, c.QueueInputBuffer(idx, 0, 100, int64(i*33000), 0))
	}

	config, info := dequeue(t, c)
	assert.Equal(t, codec.BufferFlagCodecConfig, info.Flags)
	nalus := h264.SplitAnnexB(config)
	require.Len(t, nalus, 2)
	sps, err := h264parser.ParseSPS(h264.Unescape(nalus[0]))
	require.NoError(t, err)
	assert.EqualValues(t, 640, sps.Width)
	assert.EqualValues(t, 480, sps.Height)

	// Key frame every FrameRate*IFrameInterval frames.
	var keys []bool
	for i := 0; i < 3; i++ {
		data, info := dequeue(t, c)
		nalus := h264.SplitAnnexB(data)
		require.Len(t, nalus, 1)
		keys = append(keys, nalus[0].IsKeyFrame())
		assert.Equal(t, nalus[0].IsKeyFrame(), info.Flags&codec.BufferFlagSyncFrame != 0)
		assert.EqualValues(t, i*33000, info.PresentationTimeUs)
	}
	assert.Equal(t, []bool{true, false, true}, keys)
}

func TestVP8EncoderFrameTag(t *testing.T) {
	f := codec.MediaFormat{Mime: codec.MimeVP8, Width: 352, Height: 288, ColorFormat: codec.ColorYUV420Planar}
	c := startCodec(t, "OMX.sim.vp8.encoder", f, true)
	var info codec.BufferInfo
	c.DequeueOutputBuffer(&info, 0)

	idx := c.DequeueInputBuffer(0)
	require.NoError(t, c.QueueInputBuffer(idx, 0, 10, 0, 0))
	data, info := dequeue(t, c)
	assert.Equal(t, byte(0), data[0]&0x01)
	assert.Equal(t, []byte{0x9d, 0x01, 0x2a}, data[3:6])
	assert.Equal(t, codec.BufferFlagSyncFrame, info.Flags)
}

func TestDecoderDiscoversSize(t *testing.T) {
	f := codec.MediaFormat{Mime: codec.MimeH264, Width: 176, Height: 144, ColorFormat: codec.ColorYUV420Planar}
	c := startCodec(t, "OMX.sim.avc.decoder", f, false)

	sps, err := h264.BuildSPS(h264.SPSParams{Width: 320, Height: 240})
	require.NoError(t, err)
	au := h264.AppendAnnexB(nil, sps, h264.BuildPPS(), h264.NALU{0x65, 0x88, 1})

	idx := c.DequeueInputBuffer(0)
	copy(c.InputBuffers()[idx], au)
	require.NoError(t, c.QueueInputBuffer(idx, 0, len(au), 5, 0))

	var info codec.BufferInfo
	assert.Equal(t, codec.InfoOutputBuffersChanged, c.DequeueOutputBuffer(&info, 0))
	assert.Equal(t, codec.InfoOutputFormatChanged, c.DequeueOutputBuffer(&info, 0))
	out := c.OutputFormat()
	assert.Equal(t, 320, out.Width)
	assert.Equal(t, 240, out.Height)

	data, info := dequeue(t, c)
	assert.Len(t, data, 320*240*3/2)
	assert.EqualValues(t, 5, info.PresentationTimeUs)
}

func TestSurfaceTextureLatchesNewest(t *testing.T) {
	egl := NewEGL()
	r := NewRenderer(egl)
	_, err := r.NewSurfaceTexture()
	assert.Error(t, err, "no current context")

	w := NewWindow("w")
	defer w.Release()
	ctx, err := gl.NewContext(egl, gl.Options{Window: w})
	require.NoError(t, err)
	defer ctx.Release()
	require.NoError(t, ctx.EnsureCurrent())

	st, err := r.NewSurfaceTexture()
	require.NoError(t, err)
	calls := 0
	st.SetOnFrameAvailable(func() { calls++ })
	st.(*SurfaceTexture).QueueFrame(10)
	st.(*SurfaceTexture).QueueFrame(20)
	require.NoError(t, st.UpdateTexImage())
	assert.EqualValues(t, 20, st.Timestamp())
	assert.Equal(t, 2, calls)
	require.NoError(t, r.DrawTexture(st))
	assert.Equal(t, 1, r.Draws())
}
