package capture

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/alohacam/internal/gl"
	"github.com/lanikai/alohacam/internal/media"
)

type surfaceState int32

const (
	stateIdle surfaceState = iota
	stateAwaitingSurface
	stateCapturing
	stateStopped
)

func (s surfaceState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateAwaitingSurface:
		return "awaiting-surface"
	case stateCapturing:
		return "capturing"
	default:
		return "stopped"
	}
}

type attachRequest struct {
	surface media.Surface
	done    chan error
}

// SurfaceStream renders camera frames straight into a codec input surface.
//
// The codec only creates its input surface once it is configured, and it is
// configured only after capture starts. Start therefore enters
// AwaitingSurface and probes the consumer through the transfer handler until
// a Read supplies the surface. The capture loop then builds its GL contexts,
// starts the camera and enters Capturing, where every camera image is drawn
// to the local preview (if any) and to the codec surface.
type SurfaceStream struct {
	transfer media.Transfer

	session *Session
	format  media.Format
	opts    Options

	state atomic.Int32
	loop  *media.Loop

	attach chan attachRequest

	// Fatal error that ended the capture loop.
	failure   error
	failureMu sync.Mutex

	lastTimestamp atomic.Int64

	// Owned by the capture loop goroutine while it runs; released by Stop
	// after the loop has been joined.
	previewWindow media.Surface
	previewCtx    *gl.Context
	codecCtx      *gl.Context
	textures      *gl.TextureManager
	stats         frameStats

	// Called after the capture loop returns, before its resources are
	// released.
	afterLoop func()

	// Serializes Start and Stop.
	mu sync.Mutex
}

func newSurfaceStream(s *Session, format media.Format) (*SurfaceStream, error) {
	if s.opts.EGL == nil || s.opts.Renderer == nil {
		return nil, errors.Wrap(media.ErrConfiguration, "surface capture needs an EGL platform")
	}
	if !s.device.Info().SurfaceCapable {
		return nil, errors.Wrapf(media.ErrUnsupportedFormat, "camera %s cannot render to a texture", s.key)
	}
	st := &SurfaceStream{
		session: s,
		format:  format,
		opts:    s.opts,
		attach:  make(chan attachRequest),
	}
	if st.opts.FrameInterval <= 0 {
		st.opts.FrameInterval = frameInterval(format.FrameRate)
	}
	st.loop = media.NewLoop(st.captureLoop)
	return st, nil
}

func (st *SurfaceStream) Format() media.Format {
	return st.format
}

func (st *SurfaceStream) Transfer() *media.Transfer {
	return &st.transfer
}

func (st *SurfaceStream) currentState() surfaceState {
	return surfaceState(st.state.Load())
}

// Err returns the error that ended the capture loop, if any.
func (st *SurfaceStream) Err() error {
	st.failureMu.Lock()
	defer st.failureMu.Unlock()
	return st.failure
}

// Start launches the capture loop, which begins probing for a surface.
func (st *SurfaceStream) Start() error {
	st.mu.Lock()
	defer st.mu.Unlock()

	switch st.currentState() {
	case stateAwaitingSurface, stateCapturing:
		return nil
	}

	st.transfer.Reset()
	st.failureMu.Lock()
	st.failure = nil
	st.failureMu.Unlock()
	st.stats = frameStats{}
	st.state.Store(int32(stateAwaitingSurface))
	st.loop.Start()
	log.Info("surface stream started, awaiting surface")
	return nil
}

func (st *SurfaceStream) captureLoop(quit <-chan struct{}) {
	// EGL contexts are bound to OS threads.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	err := st.awaitSurface(quit)
	if err == nil && st.currentState() == stateCapturing {
		err = st.capture(quit)
	}

	if st.codecCtx != nil {
		if err := st.codecCtx.EnsureNotCurrent(); err != nil {
			log.Warn("%v", err)
		}
	}

	if err != nil && err != gl.ErrQuit {
		log.Error("capture loop failed: %v", err)
		st.failureMu.Lock()
		st.failure = err
		st.failureMu.Unlock()
		st.transfer.Shutdown(err)
	}
	if st.afterLoop != nil {
		st.afterLoop()
	}
}

// awaitSurface posts probe transfers until Read attaches a surface.
func (st *SurfaceStream) awaitSurface(quit <-chan struct{}) error {
	ticker := time.NewTicker(st.opts.ProbeInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(st.opts.SurfaceTimeout)
	defer deadline.Stop()

	for {
		st.transfer.Signal(media.TransferEvent{Kind: media.ProbeTransfer, Timestamp: monotonicNow()})

		select {
		case req := <-st.attach:
			err := st.initCapture(req.surface)
			if err == nil {
				st.state.Store(int32(stateCapturing))
			}
			req.done <- err
			return err
		case <-ticker.C:
		case <-deadline.C:
			return errors.Wrapf(media.ErrPipelineStall, "no surface within %v", st.opts.SurfaceTimeout)
		case <-quit:
			return nil
		}
	}
}

// initCapture runs on the capture loop thread. It creates the GL contexts
// and camera texture, then starts the camera preview into the texture.
func (st *SurfaceStream) initCapture(surface media.Surface) error {
	if st.opts.Preview != nil {
		ctx, cancel := context.WithTimeout(context.Background(), st.opts.Preview.CreateTimeout)
		window, err := st.opts.Preview.Obtain(ctx)
		cancel()
		if err != nil {
			log.Warn("no local preview: %v", err)
		} else {
			st.previewWindow = window
			st.previewCtx, err = gl.NewContext(st.opts.EGL, gl.Options{Window: window})
			if err != nil {
				return err
			}
		}
	}

	var err error
	st.codecCtx, err = gl.NewContext(st.opts.EGL, gl.Options{
		Recordable: true,
		Window:     surface,
		Share:      st.previewCtx,
	})
	if err != nil {
		return err
	}
	if err := st.codecCtx.EnsureCurrent(); err != nil {
		return err
	}

	st.textures, err = gl.NewTextureManager(st.opts.Renderer)
	if err != nil {
		return err
	}

	if err := st.session.configure(st.format.Size, media.YV12); err != nil {
		return err
	}
	dev := st.session.device
	if err := dev.SetPreviewTexture(st.textures.Texture()); err != nil {
		return errors.Wrapf(media.ErrConfiguration, "set preview texture: %v", err)
	}
	if err := dev.StartPreview(); err != nil {
		return errors.Wrapf(media.ErrDeviceUnavailable, "start preview: %v", err)
	}
	log.Info("surface capture running: %v", st.format)
	return nil
}

func (st *SurfaceStream) capture(quit <-chan struct{}) error {
	for {
		if err := st.textures.AwaitNewImage(st.opts.FrameTimeout, quit); err != nil {
			if err == gl.ErrQuit {
				return nil
			}
			return err
		}

		st.drawPreview()

		if !st.pace(quit) {
			return nil
		}

		ts := st.textures.Timestamp()
		if err := st.codecCtx.EnsureCurrent(); err != nil {
			return err
		}
		if err := st.textures.DrawImage(); err != nil {
			return errors.Wrap(err, "draw to codec surface")
		}
		if err := st.codecCtx.SetPresentationTime(ts); err != nil {
			return err
		}
		if err := st.codecCtx.SwapBuffers(); err != nil {
			return err
		}

		st.lastTimestamp.Store(ts)
		st.transfer.Signal(media.TransferEvent{Kind: media.FrameTransfer, Timestamp: ts})
	}
}

// drawPreview shows the latched image in the local preview window. Preview
// trouble never stops capture.
func (st *SurfaceStream) drawPreview() {
	if st.previewCtx == nil {
		if log.Enabled(5) {
			log.Trace(5, "skipped preview frame, no preview window")
		}
		return
	}
	if err := st.previewCtx.EnsureCurrent(); err != nil {
		log.Warn("skipped preview frame: %v", err)
		return
	}
	if err := st.textures.DrawImage(); err != nil {
		log.Warn("skipped preview frame: %v", err)
		return
	}
	if err := st.previewCtx.SwapBuffers(); err != nil {
		log.Warn("preview swap: %v", err)
	}
}

// pace delays the frame so frames are at least FrameInterval apart. It
// returns false if quit was closed while waiting.
func (st *SurfaceStream) pace(quit <-chan struct{}) bool {
	delay := st.stats.tick(time.Now())
	if delay == 0 || delay >= st.opts.FrameInterval {
		return true
	}
	wait := st.opts.FrameInterval - delay
	if log.Enabled(5) {
		log.Trace(5, "delaying frame %v", wait)
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-quit:
		return false
	}
}

// Read hands the codec surface to the capture loop on the first call that
// carries one, and afterwards stamps buf with the latest frame time.
func (st *SurfaceStream) Read(ctx context.Context, buf *media.FrameBuffer) error {
	if err := st.Err(); err != nil {
		return err
	}

	switch st.currentState() {
	case stateIdle, stateStopped:
		return errors.New("surface stream not running")

	case stateAwaitingSurface:
		if buf.Surface == nil {
			return errors.Wrap(media.ErrConfiguration, "surface stream needs a surface to start")
		}
		req := attachRequest{surface: buf.Surface, done: make(chan error, 1)}
		done := st.loop.Done()
		select {
		case st.attach <- req:
		case <-done:
			if err := st.Err(); err != nil {
				return err
			}
			return errors.New("surface stream stopped")
		case <-ctx.Done():
			return ctx.Err()
		}
		if err := <-req.done; err != nil {
			return err
		}
	}

	buf.Data = nil
	buf.Format = st.format
	buf.Timestamp = st.lastTimestamp.Load()
	buf.Flags = 0
	return nil
}

// Stop ends the capture loop, waits for it to exit, and only then releases
// the GL resources and the camera preview.
func (st *SurfaceStream) Stop() error {
	st.mu.Lock()
	defer st.mu.Unlock()

	switch st.currentState() {
	case stateIdle, stateStopped:
		return nil
	}
	wasCapturing := st.currentState() == stateCapturing

	st.loop.Stop()
	st.state.Store(int32(stateStopped))

	if st.textures != nil {
		st.textures.Release()
		st.textures = nil
	}
	if st.codecCtx != nil {
		st.codecCtx.Release()
		st.codecCtx = nil
	}
	if st.previewCtx != nil {
		st.previewCtx.Release()
		st.previewCtx = nil
	}

	var err error
	dev := st.session.device
	if wasCapturing {
		err = dev.StopPreview()
		if terr := dev.SetPreviewTexture(nil); terr != nil {
			log.Warn("detach preview texture: %v", terr)
		}
	}
	if st.previewWindow != nil {
		st.opts.Preview.Release(st.previewWindow)
		st.previewWindow = nil
	}

	st.transfer.Shutdown(nil)
	log.Info("surface stream stopped")
	return err
}
