// Package capture opens cameras and turns their preview output into frames
// for a codec, either as corrected byte buffers or through a GPU surface.
package capture

import (
	"github.com/lanikai/alohacam/internal/gl"
	"github.com/lanikai/alohacam/internal/logging"
	"github.com/lanikai/alohacam/internal/media"
)

var log = logging.DefaultLogger.WithTag("capture")

type Facing int

const (
	FacingBack Facing = iota
	FacingFront
)

func (f Facing) String() string {
	if f == FacingFront {
		return "front"
	}
	return "back"
}

// DeviceInfo describes a camera as reported by its driver.
type DeviceInfo struct {
	ID     int
	Name   string
	Facing Facing

	// Clockwise rotation of the sensor image, in degrees.
	Orientation int

	// Whether the camera can render its preview into a GL texture.
	SurfaceCapable bool

	// Supported preview sizes and memory layouts.
	Sizes   []media.Size
	Layouts []media.PixelLayout
}

func (info DeviceInfo) SupportsSize(size media.Size) bool {
	for _, s := range info.Sizes {
		if s == size {
			return true
		}
	}
	return false
}

func (info DeviceInfo) SupportsLayout(layout media.PixelLayout) bool {
	for _, l := range info.Layouts {
		if l == layout {
			return true
		}
	}
	return false
}

// A Driver enumerates and opens cameras of one kind.
type Driver interface {
	// Tag used in locators, e.g. "v4l2".
	Name() string

	Devices() ([]DeviceInfo, error)

	// Open claims the camera. A busy or missing camera yields an error.
	Open(id int) (Device, error)
}

// Device is an open camera. Preview callbacks run on a driver goroutine; all
// other methods are called by one goroutine at a time.
type Device interface {
	Info() DeviceInfo

	// Configure selects the preview size and memory layout.
	Configure(size media.Size, layout media.PixelLayout) error

	SetDisplayOrientation(degrees int) error

	// AddCallbackBuffer hands the driver a buffer to fill. Safe to call from
	// any goroutine, including the preview callback.
	AddCallbackBuffer(buf []byte)

	// SetPreviewCallback registers the function receiving filled buffers.
	// data is one of the buffers passed to AddCallbackBuffer, resliced to the
	// frame length, or nil if the driver had no buffer to fill. nil
	// unregisters; buffers the driver still holds are forgotten.
	SetPreviewCallback(cb func(data []byte))

	// SetPreviewTexture routes the preview into a GL texture instead. nil
	// detaches.
	SetPreviewTexture(st gl.SurfaceTexture) error

	StartPreview() error
	StopPreview() error

	// Release gives the camera back to the system.
	Release() error
}
