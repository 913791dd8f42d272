// Package v4l2 is a capture.Driver for Video4Linux cameras. Camera id N is the
// device node /dev/videoN.
package v4l2

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/lanikai/alohacam/internal/logging"
	"github.com/lanikai/alohacam/internal/media"
)

var log = logging.DefaultLogger.WithTag("v4l2")

// Kernel buffers requested for streaming.
const DefaultBuffers = 4

func fourcc(a, b, c, d byte) uint32 {
	return uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24
}

// Pixel formats with tight strides that layout correction understands. YVU420
// is left out: V4L2 packs its chroma rows without the 16-byte alignment YV12
// implies.
var (
	pixFmtYUV420 = fourcc('Y', 'U', '1', '2')
	pixFmtNV12   = fourcc('N', 'V', '1', '2')
	pixFmtNV21   = fourcc('N', 'V', '2', '1')
	pixFmtYUYV   = fourcc('Y', 'U', 'Y', 'V')
)

func layoutForPixelFormat(pf uint32) (media.PixelLayout, bool) {
	switch pf {
	case pixFmtYUV420:
		return media.I420, true
	case pixFmtNV12:
		return media.NV12, true
	case pixFmtNV21:
		return media.NV21, true
	case pixFmtYUYV:
		return media.YUYV, true
	}
	return media.LayoutUnspecified, false
}

func pixelFormatForLayout(layout media.PixelLayout) (uint32, bool) {
	switch layout {
	case media.I420:
		return pixFmtYUV420, true
	case media.NV12:
		return pixFmtNV12, true
	case media.NV21:
		return pixFmtNV21, true
	case media.YUYV:
		return pixFmtYUYV, true
	}
	return 0, false
}

func fourccString(pf uint32) string {
	return string([]byte{byte(pf), byte(pf >> 8), byte(pf >> 16), byte(pf >> 24)})
}

type Driver struct {
	// Device node for camera id N is fmt.Sprintf(Pattern, N).
	Pattern string

	// Kernel buffers per open camera.
	Buffers int

	// Mirror the image of every camera opened afterwards.
	HFlip bool
	VFlip bool

	open map[int]bool
	mu   sync.Mutex
}

func NewDriver() *Driver {
	return &Driver{
		Pattern: "/dev/video%d",
		Buffers: DefaultBuffers,
		open:    make(map[int]bool),
	}
}

func (d *Driver) Name() string {
	return "v4l2"
}

func (d *Driver) path(id int) string {
	return fmt.Sprintf(d.Pattern, id)
}

// claim marks camera id as open. A camera can only be opened once.
func (d *Driver) claim(id int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open[id] {
		return errors.Wrapf(media.ErrDeviceUnavailable, "%s is busy", d.path(id))
	}
	d.open[id] = true
	return nil
}

func (d *Driver) closed(id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.open, id)
}
