package simhw

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/lanikai/alohacam/internal/gl"
)

// Renderer draws SurfaceTextures with the EGL simulation.
type Renderer struct {
	egl *EGL

	mu    sync.Mutex
	draws int
}

func NewRenderer(egl *EGL) *Renderer {
	return &Renderer{egl: egl}
}

func (r *Renderer) NewSurfaceTexture() (gl.SurfaceTexture, error) {
	if !r.egl.hasCurrent() {
		return nil, errors.New("simhw: no current context for texture")
	}
	return &SurfaceTexture{egl: r.egl}, nil
}

func (r *Renderer) DrawTexture(st gl.SurfaceTexture) error {
	t, ok := st.(*SurfaceTexture)
	if !ok {
		return errors.Errorf("simhw: foreign texture %T", st)
	}
	if !r.egl.hasCurrent() {
		return errors.New("simhw: draw without a current context")
	}
	if t.isReleased() {
		return errors.New("simhw: draw of a released texture")
	}
	r.mu.Lock()
	r.draws++
	r.mu.Unlock()
	return nil
}

// Draws returns the number of successful DrawTexture calls.
func (r *Renderer) Draws() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.draws
}

// SurfaceTexture is a camera texture. A camera queues images with
// QueueFrame; UpdateTexImage latches the newest one.
type SurfaceTexture struct {
	egl *EGL

	mu       sync.Mutex
	onFrame  func()
	pending  bool
	latest   int64
	latched  int64
	released bool
}

func (t *SurfaceTexture) SetOnFrameAvailable(f func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onFrame = f
}

// QueueFrame posts a camera image taken at timestamp ns.
func (t *SurfaceTexture) QueueFrame(timestamp int64) {
	t.mu.Lock()
	if t.released {
		t.mu.Unlock()
		return
	}
	t.pending = true
	t.latest = timestamp
	cb := t.onFrame
	t.mu.Unlock()

	if cb != nil {
		cb()
	}
}

func (t *SurfaceTexture) UpdateTexImage() error {
	if !t.egl.hasCurrent() {
		return errors.New("simhw: UpdateTexImage without a current context")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.released {
		return errors.New("simhw: texture released")
	}
	if t.pending {
		t.latched = t.latest
		t.pending = false
	}
	return nil
}

func (t *SurfaceTexture) Timestamp() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latched
}

func (t *SurfaceTexture) Release() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.released = true
	t.onFrame = nil
	return nil
}

func (t *SurfaceTexture) isReleased() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.released
}
