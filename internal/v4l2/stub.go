//go:build !linux || !(amd64 || arm64 || riscv64)

package v4l2

import (
	"github.com/pkg/errors"

	"github.com/lanikai/alohacam/internal/capture"
	"github.com/lanikai/alohacam/internal/media"
)

func (d *Driver) Devices() ([]capture.DeviceInfo, error) {
	return nil, nil
}

func (d *Driver) Open(id int) (capture.Device, error) {
	return nil, errors.Wrap(media.ErrDeviceUnavailable, "v4l2 is not supported on this platform")
}
