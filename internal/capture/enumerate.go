package capture

import (
	"github.com/pkg/errors"

	"github.com/lanikai/alohacam/internal/media"
)

// Preview sizes offered to the pipeline, smallest first.
var PreferredSizes = []media.Size{
	{Width: 176, Height: 144},
	{Width: 352, Height: 288},
	{Width: 640, Height: 480},
	{Width: 1280, Height: 720},
}

// An Entry is one camera with the formats it can deliver.
type Entry struct {
	Locator Locator
	Info    DeviceInfo
	Formats []media.Format
}

// Enumerate lists the driver's cameras. Surface formats come first when
// directSurface is set and the camera supports it, followed by I420 formats
// for every preferred size the camera can produce in a convertible layout.
// Cameras without any usable format are left out.
func Enumerate(d Driver, directSurface bool) ([]Entry, error) {
	infos, err := d.Devices()
	if err != nil {
		return nil, errors.Wrapf(err, "enumerate %s cameras", d.Name())
	}

	var entries []Entry
	for _, info := range infos {
		var formats []media.Format
		if directSurface && info.SurfaceCapable {
			for _, size := range PreferredSizes {
				if info.SupportsSize(size) {
					formats = append(formats, media.SurfaceFormat(size, 0))
				}
			}
		}
		if _, ok := previewLayout(info); ok {
			for _, size := range PreferredSizes {
				if info.SupportsSize(size) {
					formats = append(formats, media.RawFormat(media.I420, size, 0))
				}
			}
		}
		if len(formats) == 0 {
			log.Warn("no usable formats on %s camera %d", d.Name(), info.ID)
			continue
		}

		entry := Entry{
			Locator: Locator{Driver: d.Name(), ID: info.ID, Facing: info.Facing},
			Info:    info,
			Formats: formats,
		}
		log.Info("camera %v: %v", entry.Locator, formats)
		entries = append(entries, entry)
	}
	return entries, nil
}

// Layouts the byte path can correct into I420, in order of preference.
var convertibleLayouts = []media.PixelLayout{media.YV12, media.NV21, media.NV12, media.I420, media.YUYV}

// previewLayout picks the preview layout to request from a camera.
func previewLayout(info DeviceInfo) (media.PixelLayout, bool) {
	for _, l := range convertibleLayouts {
		if info.SupportsLayout(l) {
			return l, true
		}
	}
	return media.LayoutUnspecified, false
}
