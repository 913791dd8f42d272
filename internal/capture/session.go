package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/alohacam/internal/gl"
	"github.com/lanikai/alohacam/internal/media"
	"github.com/lanikai/alohacam/internal/provider"
	"github.com/lanikai/alohacam/internal/yuv"
)

const (
	DefaultDepth          = 2
	DefaultSpares         = 2
	DefaultFrameTimeout   = 2500 * time.Millisecond
	DefaultProbeInterval  = 20 * time.Millisecond
	DefaultSurfaceTimeout = 10 * time.Second
)

// Options tune a capture session. Zero values select the defaults.
type Options struct {
	// Buffers kept queued with the driver in byte mode.
	Depth int

	// Extra pool buffers for frames waiting to be read or lent out.
	Spares int

	// Chroma plane order of each source layout. Missing layouts use their
	// nominal order.
	ChromaOrder map[media.PixelLayout]yuv.ChromaOrder

	// Rotation of the display, in degrees.
	DisplayDegrees int

	// Longest wait for a camera frame before the pipeline is considered
	// stalled.
	FrameTimeout time.Duration

	// Surface mode: how often to probe the consumer for a surface, and how
	// long to keep probing.
	ProbeInterval  time.Duration
	SurfaceTimeout time.Duration

	// Surface mode: pacing target. Derived from the format frame rate when
	// zero.
	FrameInterval time.Duration

	// Surface mode: GL platform and the local preview window, if any.
	EGL      gl.EGL
	Renderer gl.Renderer
	Preview  *provider.Provider[media.Surface]
}

func (o *Options) setDefaults() {
	if o.Depth <= 0 {
		o.Depth = DefaultDepth
	}
	if o.Spares <= 0 {
		o.Spares = DefaultSpares
	}
	if o.FrameTimeout <= 0 {
		o.FrameTimeout = DefaultFrameTimeout
	}
	if o.ProbeInterval <= 0 {
		o.ProbeInterval = DefaultProbeInterval
	}
	if o.SurfaceTimeout <= 0 {
		o.SurfaceTimeout = DefaultSurfaceTimeout
	}
}

func (o *Options) chromaOrder(layout media.PixelLayout) yuv.ChromaOrder {
	if order, ok := o.ChromaOrder[layout]; ok {
		return order
	}
	if layout == media.NV12 {
		return yuv.UFirst
	}
	return yuv.VFirst
}

// A Stream delivers frames of one negotiated format.
type Stream interface {
	Format() media.Format

	// Transfer signals the consumer when a frame (or, in surface mode, a
	// surface probe) is ready.
	Transfer() *media.Transfer

	Start() error

	// Read fills buf with the next frame.
	Read(ctx context.Context, buf *media.FrameBuffer) error

	// Stop halts capture and reclaims its resources. Safe to call more
	// than once.
	Stop() error
}

// Camera ids held by open sessions, keyed by "<driver>:<id>".
var held = struct {
	sync.Mutex
	ids map[string]bool
}{ids: map[string]bool{}}

// Session is an open camera. At most one session per camera exists in the
// process.
type Session struct {
	key    string
	driver Driver
	device Device
	opts   Options

	format media.Format
	stream Stream

	closed bool
	mu     sync.Mutex
}

// Open claims camera id of driver d. It fails with media.ErrDeviceUnavailable
// if another session holds the camera, before the driver is touched, or if
// the driver cannot open it.
func Open(d Driver, id int, opts Options) (*Session, error) {
	key := fmt.Sprintf("%s:%d", d.Name(), id)

	held.Lock()
	if held.ids[key] {
		held.Unlock()
		return nil, errors.Wrapf(media.ErrDeviceUnavailable, "camera %s already in use", key)
	}
	held.ids[key] = true
	held.Unlock()

	dev, err := d.Open(id)
	if err != nil {
		held.Lock()
		delete(held.ids, key)
		held.Unlock()
		if errors.Is(err, media.ErrDeviceUnavailable) {
			return nil, err
		}
		return nil, errors.Wrapf(media.ErrDeviceUnavailable, "open camera %s: %v", key, err)
	}

	opts.setDefaults()
	log.Info("opened camera %s", key)
	return &Session{
		key:    key,
		driver: d,
		device: dev,
		opts:   opts,
	}, nil
}

func (s *Session) Info() DeviceInfo {
	return s.device.Info()
}

// Format returns the negotiated format.
func (s *Session) Format() media.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}

// NegotiateFormat picks the first candidate the camera can deliver. Surface
// candidates need a surface-capable camera; raw candidates need a layout the
// byte path can correct into I420. A candidate without a size takes the
// camera's first preferred size.
func (s *Session) NegotiateFormat(candidates []media.Format) (media.Format, error) {
	info := s.device.Info()
	for _, c := range candidates {
		f, ok := s.supported(info, c)
		if !ok {
			log.Debug("camera %s cannot deliver %v", s.key, c)
			continue
		}
		s.mu.Lock()
		s.format = f
		s.mu.Unlock()
		log.Info("camera %s format: %v", s.key, f)
		return f, nil
	}
	return media.Format{}, errors.Wrapf(media.ErrUnsupportedFormat,
		"camera %s supports none of %v", s.key, candidates)
}

func (s *Session) supported(info DeviceInfo, c media.Format) (media.Format, bool) {
	size := c.Size
	if size.IsZero() {
		for _, p := range PreferredSizes {
			if info.SupportsSize(p) {
				size = p
				break
			}
		}
	}
	if !info.SupportsSize(size) {
		return media.Format{}, false
	}

	switch {
	case c.IsSurface():
		if !info.SurfaceCapable {
			return media.Format{}, false
		}
		return media.SurfaceFormat(size, c.FrameRate), true
	case c.IsRaw():
		if c.Layout != media.LayoutUnspecified && c.Layout != media.I420 {
			return media.Format{}, false
		}
		if _, ok := previewLayout(info); !ok {
			return media.Format{}, false
		}
		return media.RawFormat(media.I420, size, c.FrameRate), true
	}
	return media.Format{}, false
}

// NewStream creates the stream for the negotiated format. A session runs one
// stream at a time; a new stream replaces (and stops) the previous one.
func (s *Session) NewStream() (Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.Wrap(media.ErrConfiguration, "capture session closed")
	}
	if s.format.Encoding == "" {
		return nil, errors.Wrap(media.ErrConfiguration, "capture format not negotiated")
	}
	if s.stream != nil {
		s.stream.Stop()
		s.stream = nil
	}

	var (
		st  Stream
		err error
	)
	if s.format.IsSurface() {
		st, err = newSurfaceStream(s, s.format)
	} else {
		st, err = newPreviewStream(s, s.format)
	}
	if err != nil {
		return nil, err
	}
	s.stream = st
	return st, nil
}

// Close stops any stream and gives the camera back. Safe to call more than
// once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.stream != nil {
		if err := s.stream.Stop(); err != nil {
			log.Warn("stop stream: %v", err)
		}
		s.stream = nil
	}
	err := s.device.Release()

	held.Lock()
	delete(held.ids, s.key)
	held.Unlock()

	log.Info("closed camera %s", s.key)
	return err
}

// configure applies preview size, layout and orientation.
func (s *Session) configure(size media.Size, layout media.PixelLayout) error {
	if err := s.device.Configure(size, layout); err != nil {
		return errors.Wrapf(media.ErrConfiguration, "configure camera %s: %v", s.key, err)
	}
	rotation := DisplayRotation(s.device.Info(), s.opts.DisplayDegrees)
	if err := s.device.SetDisplayOrientation(rotation); err != nil {
		log.Warn("set display orientation %d: %v", rotation, err)
	}
	return nil
}
