package simhw

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/alohacam/internal/capture"
	"github.com/lanikai/alohacam/internal/gl"
	"github.com/lanikai/alohacam/internal/media"
)

// Chroma values of every simulated frame, and the filler written into row
// padding.
const (
	FrameU   = 0x40
	FrameV   = 0xc0
	Padding  = 0xee
	lumaBase = 0x10
)

// DefaultFrameRate of simulated cameras.
const DefaultFrameRate = 30

// DefaultCameras returns a surface-capable back camera offering YV12 and NV21,
// and a front camera offering YV12 only.
func DefaultCameras() []capture.DeviceInfo {
	return []capture.DeviceInfo{
		{
			ID:             0,
			Name:           "sim back",
			Facing:         capture.FacingBack,
			Orientation:    90,
			SurfaceCapable: true,
			Sizes:          capture.PreferredSizes,
			Layouts:        []media.PixelLayout{media.YV12, media.NV21},
		},
		{
			ID:          1,
			Name:        "sim front",
			Facing:      capture.FacingFront,
			Orientation: 270,
			Sizes:       capture.PreferredSizes,
			Layouts:     []media.PixelLayout{media.YV12},
		},
	}
}

// Driver is a capture.Driver with synthetic cameras.
type Driver struct {
	name    string
	cameras []capture.DeviceInfo

	// Frames per second the cameras produce.
	FrameRate float64

	mu     sync.Mutex
	opened map[int]*Device
}

// NewDriver returns a driver for the given cameras, or DefaultCameras if
// none are given.
func NewDriver(name string, cameras ...capture.DeviceInfo) *Driver {
	if len(cameras) == 0 {
		cameras = DefaultCameras()
	}
	return &Driver{
		name:      name,
		cameras:   cameras,
		FrameRate: DefaultFrameRate,
		opened:    make(map[int]*Device),
	}
}

func (d *Driver) Name() string {
	return d.name
}

func (d *Driver) Devices() ([]capture.DeviceInfo, error) {
	return append([]capture.DeviceInfo(nil), d.cameras...), nil
}

func (d *Driver) Open(id int) (capture.Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, busy := d.opened[id]; busy {
		return nil, errors.Wrapf(media.ErrDeviceUnavailable, "sim camera %d busy", id)
	}
	for _, info := range d.cameras {
		if info.ID == id {
			dev := newDevice(d, info)
			d.opened[id] = dev
			return dev, nil
		}
	}
	return nil, errors.Wrapf(media.ErrDeviceUnavailable, "no sim camera %d", id)
}

// Opened returns the open device for id, or nil.
func (d *Driver) Opened(id int) *Device {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened[id]
}

func (d *Driver) closed(id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.opened, id)
}

func (d *Driver) interval() time.Duration {
	fps := d.FrameRate
	if fps <= 0 {
		fps = DefaultFrameRate
	}
	return time.Duration(float64(time.Second) / fps)
}

// frameQueuer is a texture a camera can post images to.
type frameQueuer interface {
	QueueFrame(timestamp int64)
}

// Device is an open simulated camera. While previewing it produces one frame
// per interval, either into a queued callback buffer or into the preview
// texture. Luma sample (0,0) holds the frame counter.
type Device struct {
	driver *Driver
	info   capture.DeviceInfo
	start  time.Time

	loop *media.Loop

	mu          sync.Mutex
	size        media.Size
	layout      media.PixelLayout
	orientation int
	buffers     [][]byte
	callback    func([]byte)
	texture     frameQueuer
	previewing  bool
	released    bool
	counter     int
	delivered   int
	starved     int
}

func newDevice(d *Driver, info capture.DeviceInfo) *Device {
	dev := &Device{driver: d, info: info, start: time.Now()}
	dev.loop = media.NewLoop(dev.produce)
	return dev
}

func (dev *Device) Info() capture.DeviceInfo {
	return dev.info
}

func (dev *Device) Configure(size media.Size, layout media.PixelLayout) error {
	if !dev.info.SupportsSize(size) {
		return errors.Errorf("sim camera %d: unsupported size %v", dev.info.ID, size)
	}
	if !dev.info.SupportsLayout(layout) {
		return errors.Errorf("sim camera %d: unsupported layout %v", dev.info.ID, layout)
	}
	dev.mu.Lock()
	defer dev.mu.Unlock()
	dev.size = size
	dev.layout = layout
	return nil
}

func (dev *Device) SetDisplayOrientation(degrees int) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	dev.orientation = degrees
	return nil
}

// Orientation returns the last display orientation set.
func (dev *Device) Orientation() int {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.orientation
}

func (dev *Device) AddCallbackBuffer(buf []byte) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	dev.buffers = append(dev.buffers, buf)
}

func (dev *Device) SetPreviewCallback(cb func([]byte)) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	dev.callback = cb
	if cb == nil {
		dev.buffers = nil
	}
}

func (dev *Device) SetPreviewTexture(st gl.SurfaceTexture) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if st == nil {
		dev.texture = nil
		return nil
	}
	q, ok := st.(frameQueuer)
	if !ok {
		return errors.Errorf("sim camera %d: cannot render into %T", dev.info.ID, st)
	}
	dev.texture = q
	return nil
}

func (dev *Device) StartPreview() error {
	dev.mu.Lock()
	if dev.released {
		dev.mu.Unlock()
		return errors.Errorf("sim camera %d released", dev.info.ID)
	}
	if dev.size.IsZero() {
		dev.mu.Unlock()
		return errors.Errorf("sim camera %d not configured", dev.info.ID)
	}
	if dev.previewing {
		dev.mu.Unlock()
		return nil
	}
	dev.previewing = true
	dev.mu.Unlock()

	dev.loop.Start()
	return nil
}

func (dev *Device) StopPreview() error {
	dev.mu.Lock()
	if !dev.previewing {
		dev.mu.Unlock()
		return nil
	}
	dev.previewing = false
	dev.mu.Unlock()

	dev.loop.Stop()
	return nil
}

func (dev *Device) Release() error {
	dev.StopPreview()
	dev.mu.Lock()
	dev.released = true
	dev.buffers = nil
	dev.callback = nil
	dev.texture = nil
	dev.mu.Unlock()
	dev.driver.closed(dev.info.ID)
	return nil
}

// Step produces one frame immediately, outside the preview schedule.
func (dev *Device) Step() {
	dev.frame()
}

// Queued returns the number of callback buffers the camera holds.
func (dev *Device) Queued() int {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return len(dev.buffers)
}

// Delivered returns the number of frames handed out, and the number of
// frames skipped for lack of a buffer.
func (dev *Device) Delivered() (delivered, starved int) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.delivered, dev.starved
}

// DeliverNil invokes the preview callback without data, as a camera does
// when it runs out of buffers.
func (dev *Device) DeliverNil() {
	dev.mu.Lock()
	cb := dev.callback
	dev.mu.Unlock()
	if cb != nil {
		cb(nil)
	}
}

// Deliver invokes the preview callback with arbitrary data.
func (dev *Device) Deliver(data []byte) {
	dev.mu.Lock()
	cb := dev.callback
	dev.mu.Unlock()
	if cb != nil {
		cb(data)
	}
}

func (dev *Device) produce(quit <-chan struct{}) {
	ticker := time.NewTicker(dev.driver.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			dev.frame()
		case <-quit:
			return
		}
	}
}

// frame produces one image. Callbacks run without the device lock, so they
// may queue buffers again.
func (dev *Device) frame() {
	dev.mu.Lock()
	ts := time.Since(dev.start).Nanoseconds()
	dev.counter++
	counter := dev.counter

	if tex := dev.texture; tex != nil {
		dev.delivered++
		dev.mu.Unlock()
		tex.QueueFrame(ts)
		return
	}

	cb := dev.callback
	if cb == nil {
		dev.mu.Unlock()
		return
	}
	if len(dev.buffers) == 0 {
		dev.starved++
		dev.mu.Unlock()
		return
	}
	buf := dev.buffers[0]
	dev.buffers = dev.buffers[1:]
	format := media.RawFormat(dev.layout, dev.size, 0)
	dev.delivered++
	dev.mu.Unlock()

	n := format.FrameSize()
	if len(buf) < n {
		log.Warn("sim camera %d: buffer of %d bytes too small for %v", dev.info.ID, len(buf), format)
		cb(buf[:0])
		return
	}
	buf = buf[:n]
	FillFrame(buf, format, byte(counter))
	cb(buf)
}

// FillFrame draws a test image into buf: luma sample (0,0) is marker, the
// rest of the luma ramps, chroma is FrameU/FrameV, and YV12 row padding is
// filled with Padding.
func FillFrame(buf []byte, f media.Format, marker byte) {
	w, h := f.Size.Width, f.Size.Height
	yStride, uvStride := w, w/2
	if f.Layout == media.YV12 {
		yStride = (w + 15) &^ 15
		uvStride = (yStride/2 + 15) &^ 15
	}
	for i := range buf {
		buf[i] = Padding
	}
	if f.Layout == media.YUYV {
		fillYUYV(buf, w, h, marker)
		return
	}
	for r := 0; r < h; r++ {
		row := buf[r*yStride : r*yStride+w]
		for c := range row {
			row[c] = byte(lumaBase + (r+c)%200)
		}
	}
	buf[0] = marker

	chroma := buf[yStride*h:]
	cw, ch := w/2, h/2
	switch f.Layout {
	case media.YV12, media.I420:
		first, second := byte(FrameV), byte(FrameU)
		if f.Layout == media.I420 {
			first, second = second, first
		}
		for r := 0; r < ch; r++ {
			for c := 0; c < cw; c++ {
				chroma[r*uvStride+c] = first
				chroma[uvStride*ch+r*uvStride+c] = second
			}
		}
	case media.NV21, media.NV12:
		first, second := byte(FrameV), byte(FrameU)
		if f.Layout == media.NV12 {
			first, second = second, first
		}
		for i := 0; i < cw*ch; i++ {
			chroma[2*i] = first
			chroma[2*i+1] = second
		}
	}
}

func fillYUYV(buf []byte, w, h int, marker byte) {
	for r := 0; r < h; r++ {
		line := buf[2*r*w : 2*(r+1)*w]
		for c := 0; c < w; c++ {
			line[2*c] = byte(lumaBase + (r+c)%200)
		}
		for c := 0; c < w/2; c++ {
			line[4*c+1] = FrameU
			line[4*c+3] = FrameV
		}
	}
	buf[0] = marker
}
