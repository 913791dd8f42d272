package gl

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/xerrors"

	"github.com/lanikai/alohacam/internal/media"
)

// ErrQuit is returned by AwaitNewImage when the caller asked to stop waiting.
var ErrQuit = xerrors.New("gl: wait abandoned")

// TextureManager owns the SurfaceTexture the camera renders into and turns
// its frame-available callbacks into a bounded wait.
type TextureManager struct {
	renderer Renderer
	texture  SurfaceTexture

	// Holds at most one pending frame notification.
	available chan struct{}

	// Notifications that arrived before the previous one was consumed.
	dropped int64

	releaseOnce sync.Once
}

// NewTextureManager creates the camera texture. The context it will be drawn
// with must be current.
func NewTextureManager(r Renderer) (*TextureManager, error) {
	st, err := r.NewSurfaceTexture()
	if err != nil {
		return nil, xerrors.Errorf("gl: create surface texture: %v: %w", err, media.ErrConfiguration)
	}
	m := &TextureManager{
		renderer:  r,
		texture:   st,
		available: make(chan struct{}, 1),
	}
	st.SetOnFrameAvailable(m.frameAvailable)
	return m, nil
}

// Texture is what the camera should render its preview into.
func (m *TextureManager) Texture() SurfaceTexture {
	return m.texture
}

func (m *TextureManager) frameAvailable() {
	select {
	case m.available <- struct{}{}:
	default:
		// The previous image was never latched. UpdateTexImage only ever
		// latches the newest one, so this is a dropped frame, not an error.
		n := atomic.AddInt64(&m.dropped, 1)
		log.Trace(4, "frame available before previous one was consumed (%d dropped)", n)
	}
}

// Dropped returns the number of camera images that were overwritten before
// being latched.
func (m *TextureManager) Dropped() int64 {
	return atomic.LoadInt64(&m.dropped)
}

// AwaitNewImage blocks until the camera delivers an image, then latches it.
// It fails with ErrPipelineStall if nothing arrives within timeout, and with
// ErrQuit once quit is closed.
func (m *TextureManager) AwaitNewImage(timeout time.Duration, quit <-chan struct{}) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-m.available:
	case <-timer.C:
		return xerrors.Errorf("gl: no camera image within %v: %w", timeout, media.ErrPipelineStall)
	case <-quit:
		return ErrQuit
	}

	if err := m.texture.UpdateTexImage(); err != nil {
		return xerrors.Errorf("gl: updateTexImage: %w", err)
	}
	return nil
}

// DrawImage renders the latched image onto the current surface.
func (m *TextureManager) DrawImage() error {
	return m.renderer.DrawTexture(m.texture)
}

// Timestamp of the latched image in nanoseconds.
func (m *TextureManager) Timestamp() int64 {
	return m.texture.Timestamp()
}

// Release frees the texture. Safe to call more than once.
func (m *TextureManager) Release() {
	m.releaseOnce.Do(func() {
		m.texture.SetOnFrameAvailable(nil)
		if err := m.texture.Release(); err != nil {
			log.Warn("release surface texture: %v", err)
		}
	})
}
