package capture_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/alohacam/internal/capture"
	"github.com/lanikai/alohacam/internal/media"
	"github.com/lanikai/alohacam/internal/simhw"
)

var (
	qcif = media.Size{Width: 176, Height: 144}
	vga  = media.Size{Width: 640, Height: 480}
	hd   = media.Size{Width: 1280, Height: 720}
)

// countingDriver records how often the driver is asked to open a camera.
type countingDriver struct {
	*simhw.Driver
	opens int
}

func (d *countingDriver) Open(id int) (capture.Device, error) {
	d.opens++
	return d.Driver.Open(id)
}

func openSim(t *testing.T, id int, opts capture.Options) (*capture.Session, *simhw.Driver) {
	t.Helper()
	d := simhw.NewDriver("sim")
	d.FrameRate = 100
	s, err := capture.Open(d, id, opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, d
}

func TestOpenHeldCamera(t *testing.T) {
	d := &countingDriver{Driver: simhw.NewDriver("held", capture.DeviceInfo{
		ID:      7,
		Sizes:   capture.PreferredSizes,
		Layouts: []media.PixelLayout{media.YV12},
	})}

	s, err := capture.Open(d, 7, capture.Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, d.opens)

	_, err = capture.Open(d, 7, capture.Options{})
	assert.True(t, errors.Is(err, media.ErrDeviceUnavailable))
	assert.Equal(t, 1, d.opens, "held camera must not reach the driver")

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	s, err = capture.Open(d, 7, capture.Options{})
	require.NoError(t, err)
	s.Close()
}

func TestOpenMissingCamera(t *testing.T) {
	before := capture.HeldCameras()
	_, err := capture.Open(simhw.NewDriver("missing"), 5, capture.Options{})
	assert.True(t, errors.Is(err, media.ErrDeviceUnavailable))
	assert.Equal(t, before, capture.HeldCameras())
}

func TestOpenLocator(t *testing.T) {
	capture.RegisterDriver(simhw.NewDriver("loc"))
	s, err := capture.OpenLocator("loc:1/front", capture.Options{})
	require.NoError(t, err)
	assert.Equal(t, capture.FacingFront, s.Info().Facing)
	s.Close()

	_, err = capture.OpenLocator("nodriver:0", capture.Options{})
	assert.Error(t, err)
}

func TestNegotiateFormat(t *testing.T) {
	candidates := []media.Format{
		media.SurfaceFormat(hd, 30),
		media.RawFormat(media.LayoutUnspecified, vga, 30),
	}

	back, _ := openSim(t, 0, capture.Options{})
	f, err := back.NegotiateFormat(candidates)
	require.NoError(t, err)
	assert.Equal(t, media.SurfaceFormat(hd, 30), f)
	assert.Equal(t, f, back.Format())

	// The front camera cannot render to a texture.
	front, _ := openSim(t, 1, capture.Options{})
	f, err = front.NegotiateFormat(candidates)
	require.NoError(t, err)
	assert.Equal(t, media.RawFormat(media.I420, vga, 30), f)

	_, err = front.NegotiateFormat([]media.Format{
		media.SurfaceFormat(vga, 30),
		media.RawFormat(media.I420, media.Size{Width: 1920, Height: 1080}, 30),
		media.RawFormat(media.NV21, vga, 30),
		media.VideoFormat(media.H264, vga, 30, ""),
	})
	assert.True(t, errors.Is(err, media.ErrUnsupportedFormat))

	f, err = front.NegotiateFormat([]media.Format{{Encoding: media.YUV}})
	require.NoError(t, err)
	assert.Equal(t, capture.PreferredSizes[0], f.Size)
}

func TestNewStreamNeedsFormat(t *testing.T) {
	s, _ := openSim(t, 1, capture.Options{})
	_, err := s.NewStream()
	assert.True(t, errors.Is(err, media.ErrConfiguration), "%v", err)

	_, err = s.NegotiateFormat([]media.Format{media.RawFormat(media.I420, vga, 30)})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	_, err = s.NewStream()
	assert.True(t, errors.Is(err, media.ErrConfiguration), "%v", err)
}

func TestEnumerate(t *testing.T) {
	d := simhw.NewDriver("enum",
		simhw.DefaultCameras()[0],
		simhw.DefaultCameras()[1],
		capture.DeviceInfo{ID: 2, Sizes: capture.PreferredSizes, Layouts: []media.PixelLayout{media.Opaque}},
	)

	entries, err := capture.Enumerate(d, true)
	require.NoError(t, err)
	require.Len(t, entries, 2, "camera without usable layouts is skipped")

	back := entries[0]
	assert.Equal(t, capture.Locator{Driver: "enum", ID: 0, Facing: capture.FacingBack}, back.Locator)
	require.Len(t, back.Formats, 8)
	assert.True(t, back.Formats[0].IsSurface())
	assert.True(t, back.Formats[4].IsRaw())
	assert.Equal(t, media.I420, back.Formats[4].Layout)

	assert.Len(t, entries[1].Formats, 4)

	entries, err = capture.Enumerate(d, false)
	require.NoError(t, err)
	assert.Len(t, entries[0].Formats, 4)
}

func TestSessionAppliesDisplayRotation(t *testing.T) {
	s, d := openSim(t, 0, capture.Options{DisplayDegrees: 180})
	_, err := s.NegotiateFormat([]media.Format{media.RawFormat(media.I420, qcif, 0)})
	require.NoError(t, err)
	st, err := s.NewStream()
	require.NoError(t, err)
	require.NoError(t, st.Start())
	defer st.Stop()

	assert.Equal(t, 270, d.Opened(0).Orientation())
}

func TestCloseStopsStream(t *testing.T) {
	s, d := openSim(t, 1, capture.Options{})
	_, err := s.NegotiateFormat([]media.Format{media.RawFormat(media.I420, qcif, 0)})
	require.NoError(t, err)
	st, err := s.NewStream()
	require.NoError(t, err)
	require.NoError(t, st.Start())

	require.NoError(t, s.Close())
	assert.Nil(t, d.Opened(1))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, st.Read(ctx, &media.FrameBuffer{}))

	_, err = s.NewStream()
	assert.Error(t, err)
}
