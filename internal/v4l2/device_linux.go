//go:build linux && (amd64 || arm64 || riscv64)

package v4l2

import (
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/lanikai/alohacam/internal/capture"
	"github.com/lanikai/alohacam/internal/gl"
	"github.com/lanikai/alohacam/internal/media"
)

// Milliseconds the read loop waits for a frame before checking for quit.
const pollTimeout = 100

func ioctl(fd int, request uintptr, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), request, uintptr(arg))
		switch errno {
		case 0:
			return nil
		case unix.EINTR:
			continue
		default:
			return errno
		}
	}
}

func cstring(b []byte) string {
	if i := strings.IndexByte(string(b), 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// Devices lists the capture devices matching the driver's pattern.
func (d *Driver) Devices() ([]capture.DeviceInfo, error) {
	prefix := strings.SplitN(d.Pattern, "%d", 2)[0]
	paths, err := filepath.Glob(prefix + "*")
	if err != nil {
		return nil, errors.Wrap(err, "list video devices")
	}

	var infos []capture.DeviceInfo
	for _, path := range paths {
		id, err := strconv.Atoi(strings.TrimPrefix(path, prefix))
		if err != nil || path != d.path(id) {
			continue
		}
		fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
		if err != nil {
			log.Debug("skipping %s: %v", path, err)
			continue
		}
		info, ok := probe(fd, id)
		unix.Close(fd)
		if ok {
			infos = append(infos, info)
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos, nil
}

// probe describes an open device node, if it is a usable camera.
func probe(fd, id int) (capture.DeviceInfo, bool) {
	var vc v4l2_capability
	if err := ioctl(fd, VIDIOC_QUERYCAP, unsafe.Pointer(&vc)); err != nil {
		return capture.DeviceInfo{}, false
	}
	caps := vc.capabilities
	if caps&V4L2_CAP_DEVICE_CAPS != 0 {
		caps = vc.device_caps
	}
	if caps&V4L2_CAP_VIDEO_CAPTURE == 0 || caps&V4L2_CAP_STREAMING == 0 {
		return capture.DeviceInfo{}, false
	}

	info := capture.DeviceInfo{
		ID:   id,
		Name: cstring(vc.card[:]),
	}
	var formats []uint32
	for i := uint32(0); ; i++ {
		desc := v4l2_fmtdesc{index: i, typ: V4L2_BUF_TYPE_VIDEO_CAPTURE}
		if err := ioctl(fd, VIDIOC_ENUM_FMT, unsafe.Pointer(&desc)); err != nil {
			break
		}
		if layout, ok := layoutForPixelFormat(desc.pixelformat); ok {
			info.Layouts = append(info.Layouts, layout)
			formats = append(formats, desc.pixelformat)
		} else {
			log.Trace(2, "%s: ignoring pixel format %s", info.Name, fourccString(desc.pixelformat))
		}
	}
	if len(formats) == 0 {
		log.Debug("%s has no usable pixel format", info.Name)
		return capture.DeviceInfo{}, false
	}
	info.Sizes = frameSizes(fd, formats[0])
	log.Debug("found %s (id %d): %v %v", info.Name, id, info.Layouts, info.Sizes)
	return info, true
}

// frameSizes lists the preferred sizes the device can produce in pf.
func frameSizes(fd int, pf uint32) []media.Size {
	var sizes []media.Size
	for i := uint32(0); ; i++ {
		e := v4l2_frmsizeenum{index: i, pixel_format: pf}
		if err := ioctl(fd, VIDIOC_ENUM_FRAMESIZES, unsafe.Pointer(&e)); err != nil {
			break
		}
		if e.typ == V4L2_FRMSIZE_TYPE_DISCRETE {
			d := e.discrete()
			sizes = append(sizes, media.Size{Width: int(d.width), Height: int(d.height)})
			continue
		}
		s := e.stepwise()
		for _, p := range capture.PreferredSizes {
			if stepFits(p.Width, s.min_width, s.max_width, s.step_width) &&
				stepFits(p.Height, s.min_height, s.max_height, s.step_height) {
				sizes = append(sizes, p)
			}
		}
		break
	}
	return sizes
}

func stepFits(v int, min, max, step uint32) bool {
	if v < int(min) || v > int(max) {
		return false
	}
	return step <= 1 || (uint32(v)-min)%step == 0
}

func (d *Driver) Open(id int) (capture.Device, error) {
	if err := d.claim(id); err != nil {
		return nil, err
	}
	path := d.path(id)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		d.closed(id)
		return nil, errors.Wrapf(media.ErrDeviceUnavailable, "open %s: %v", path, err)
	}
	info, ok := probe(fd, id)
	if !ok {
		unix.Close(fd)
		d.closed(id)
		return nil, errors.Wrapf(media.ErrDeviceUnavailable, "%s is not a usable camera", path)
	}
	dev := &device{driver: d, info: info, path: path, fd: fd}
	if d.HFlip || d.VFlip {
		if err := dev.SetFlip(d.HFlip, d.VFlip); err != nil {
			log.Warn("%s: flip: %v", path, err)
		}
	}
	log.Info("opened %s (%s)", path, info.Name)
	return dev, nil
}

// An open V4L2 camera streaming into memory-mapped kernel buffers.
type device struct {
	driver *Driver
	info   capture.DeviceInfo
	path   string
	fd     int

	size      media.Size
	layout    media.PixelLayout
	frameSize int

	mmaps [][]byte
	loop  *media.Loop

	callback func([]byte)
	buffers  [][]byte
	mu       sync.Mutex
}

func (dev *device) Info() capture.DeviceInfo {
	return dev.info
}

func (dev *device) Configure(size media.Size, layout media.PixelLayout) error {
	pf, ok := pixelFormatForLayout(layout)
	if !ok {
		return errors.Wrapf(media.ErrUnsupportedFormat, "%s cannot produce %v", dev.path, layout)
	}
	f := v4l2_format{typ: V4L2_BUF_TYPE_VIDEO_CAPTURE}
	pix := f.pix()
	pix.width = uint32(size.Width)
	pix.height = uint32(size.Height)
	pix.pixelformat = pf
	pix.field = V4L2_FIELD_NONE
	if err := ioctl(dev.fd, VIDIOC_S_FMT, unsafe.Pointer(&f)); err != nil {
		return errors.Wrapf(err, "set format %v %v", size, layout)
	}

	// The driver adjusts what it cannot do.
	got := media.Size{Width: int(pix.width), Height: int(pix.height)}
	if got != size || pix.pixelformat != pf {
		return errors.Wrapf(media.ErrUnsupportedFormat, "%s chose %v %s instead of %v %v",
			dev.path, got, fourccString(pix.pixelformat), size, layout)
	}
	stride := size.Width
	if layout == media.YUYV {
		stride *= 2
	}
	if pix.bytesperline != 0 && int(pix.bytesperline) != stride {
		return errors.Wrapf(media.ErrUnsupportedFormat, "%s pads rows to %d bytes", dev.path, pix.bytesperline)
	}

	dev.size = size
	dev.layout = layout
	dev.frameSize = media.RawFormat(layout, size, 0).FrameSize()
	return nil
}

// SetDisplayOrientation rotates the image where the driver supports it.
func (dev *device) SetDisplayOrientation(degrees int) error {
	return dev.setControl(V4L2_CID_ROTATE, int32(degrees))
}

// SetFlip mirrors the image horizontally and/or vertically.
func (dev *device) SetFlip(horizontal, vertical bool) error {
	if err := dev.setControl(V4L2_CID_HFLIP, boolValue(horizontal)); err != nil {
		return err
	}
	return dev.setControl(V4L2_CID_VFLIP, boolValue(vertical))
}

func boolValue(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

func (dev *device) setControl(id uint32, value int32) error {
	ctrl := v4l2_control{id: id, value: value}
	if err := ioctl(dev.fd, VIDIOC_S_CTRL, unsafe.Pointer(&ctrl)); err != nil {
		return errors.Wrapf(err, "set control 0x%x", id)
	}
	return nil
}

func (dev *device) AddCallbackBuffer(buf []byte) {
	dev.mu.Lock()
	dev.buffers = append(dev.buffers, buf)
	dev.mu.Unlock()
}

func (dev *device) SetPreviewCallback(cb func(data []byte)) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	dev.callback = cb
	if cb == nil {
		dev.buffers = nil
	}
}

func (dev *device) SetPreviewTexture(st gl.SurfaceTexture) error {
	if st == nil {
		return nil
	}
	return errors.Wrapf(media.ErrConfiguration, "%s cannot render into a texture", dev.path)
}

func (dev *device) StartPreview() error {
	if dev.loop != nil {
		return nil
	}
	if dev.frameSize == 0 {
		return errors.Wrap(media.ErrConfiguration, "preview started before Configure")
	}
	if err := dev.mapBuffers(); err != nil {
		dev.unmapBuffers()
		return err
	}
	typ := int32(V4L2_BUF_TYPE_VIDEO_CAPTURE)
	if err := ioctl(dev.fd, VIDIOC_STREAMON, unsafe.Pointer(&typ)); err != nil {
		dev.unmapBuffers()
		return errors.Wrap(err, "stream on")
	}
	dev.loop = media.NewLoop(dev.readLoop)
	dev.loop.Start()
	log.Debug("%s streaming %v %v with %d buffers", dev.path, dev.size, dev.layout, len(dev.mmaps))
	return nil
}

func (dev *device) mapBuffers() error {
	rb := v4l2_requestbuffers{
		count:  uint32(dev.driver.Buffers),
		typ:    V4L2_BUF_TYPE_VIDEO_CAPTURE,
		memory: V4L2_MEMORY_MMAP,
	}
	if err := ioctl(dev.fd, VIDIOC_REQBUFS, unsafe.Pointer(&rb)); err != nil {
		return errors.Wrap(err, "request buffers")
	}
	if rb.count == 0 {
		return errors.Wrap(media.ErrResourceUnavailable, "driver granted no buffers")
	}

	for i := uint32(0); i < rb.count; i++ {
		qb := v4l2_buffer{index: i, typ: V4L2_BUF_TYPE_VIDEO_CAPTURE, memory: V4L2_MEMORY_MMAP}
		if err := ioctl(dev.fd, VIDIOC_QUERYBUF, unsafe.Pointer(&qb)); err != nil {
			return errors.Wrapf(err, "query buffer %d", i)
		}
		mem, err := unix.Mmap(dev.fd, int64(qb.offset()), int(qb.length),
			unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			return errors.Wrapf(err, "map buffer %d", i)
		}
		dev.mmaps = append(dev.mmaps, mem)
		if err := dev.enqueue(i); err != nil {
			return err
		}
	}
	return nil
}

func (dev *device) unmapBuffers() {
	for _, mem := range dev.mmaps {
		if err := unix.Munmap(mem); err != nil {
			log.Warn("unmap: %v", err)
		}
	}
	dev.mmaps = nil
	rb := v4l2_requestbuffers{typ: V4L2_BUF_TYPE_VIDEO_CAPTURE, memory: V4L2_MEMORY_MMAP}
	ioctl(dev.fd, VIDIOC_REQBUFS, unsafe.Pointer(&rb))
}

func (dev *device) enqueue(index uint32) error {
	qb := v4l2_buffer{index: index, typ: V4L2_BUF_TYPE_VIDEO_CAPTURE, memory: V4L2_MEMORY_MMAP}
	if err := ioctl(dev.fd, VIDIOC_QBUF, unsafe.Pointer(&qb)); err != nil {
		return errors.Wrapf(err, "queue buffer %d", index)
	}
	return nil
}

func (dev *device) readLoop(quit <-chan struct{}) {
	fds := []unix.PollFd{{Fd: int32(dev.fd), Events: unix.POLLIN}}
	for {
		select {
		case <-quit:
			return
		default:
		}

		n, err := unix.Poll(fds, pollTimeout)
		if err == unix.EINTR || n == 0 {
			continue
		}
		if err != nil {
			log.Error("%s: poll: %v", dev.path, err)
			return
		}

		qb := v4l2_buffer{typ: V4L2_BUF_TYPE_VIDEO_CAPTURE, memory: V4L2_MEMORY_MMAP}
		if err := ioctl(dev.fd, VIDIOC_DQBUF, unsafe.Pointer(&qb)); err != nil {
			if err == unix.EAGAIN {
				continue
			}
			log.Error("%s: dequeue: %v", dev.path, err)
			return
		}
		dev.deliver(dev.mmaps[qb.index][:qb.bytesused])
		if err := dev.enqueue(qb.index); err != nil {
			log.Error("%s: %v", dev.path, err)
			return
		}
	}
}

// deliver copies one kernel frame into the next callback buffer.
func (dev *device) deliver(frame []byte) {
	dev.mu.Lock()
	cb := dev.callback
	var data []byte
	if cb != nil && len(dev.buffers) > 0 {
		data = dev.buffers[0]
		dev.buffers = dev.buffers[1:]
	}
	dev.mu.Unlock()

	if cb == nil {
		return
	}
	if data != nil {
		if cap(data) < dev.frameSize || len(frame) < dev.frameSize {
			log.Warn("%s: short frame (%d bytes, buffer %d, want %d)", dev.path, len(frame), cap(data), dev.frameSize)
			dev.AddCallbackBuffer(data)
			return
		}
		data = data[:dev.frameSize]
		copy(data, frame)
	}
	cb(data)
}

func (dev *device) StopPreview() error {
	if dev.loop == nil {
		return nil
	}
	dev.loop.Stop()
	dev.loop = nil

	typ := int32(V4L2_BUF_TYPE_VIDEO_CAPTURE)
	err := ioctl(dev.fd, VIDIOC_STREAMOFF, unsafe.Pointer(&typ))
	dev.unmapBuffers()
	return errors.Wrap(err, "stream off")
}

func (dev *device) Release() error {
	if dev.fd < 0 {
		return nil
	}
	err := dev.StopPreview()
	if cerr := unix.Close(dev.fd); cerr != nil && err == nil {
		err = cerr
	}
	dev.fd = -1
	dev.driver.closed(dev.info.ID)
	log.Info("released %s", dev.path)
	return err
}
