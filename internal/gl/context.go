package gl

import (
	"sync"

	"golang.org/x/xerrors"

	"github.com/lanikai/alohacam/internal/media"
)

// Options select the kind of context NewContext creates.
type Options struct {
	// Require a config whose surfaces can feed a video encoder.
	Recordable bool

	// Native window the context draws to.
	Window media.Surface

	// Share textures with this context. May be nil.
	Share *Context
}

// Context is an EGL display, context and window surface used together. A
// context is bound to one goroutine at a time; callers on a capture loop lock
// their OS thread before making it current.
type Context struct {
	egl EGL

	display Display
	config  Config
	context Handle
	surface Surface

	releaseOnce sync.Once
}

func NewContext(egl EGL, opts Options) (*Context, error) {
	if opts.Window == nil {
		return nil, xerrors.Errorf("gl: no window to draw to: %w", media.ErrConfiguration)
	}

	c := &Context{egl: egl}
	if err := c.init(opts); err != nil {
		c.Release()
		return nil, err
	}
	return c, nil
}

func (c *Context) init(opts Options) error {
	c.display = c.egl.GetDisplay(EGL_DEFAULT_DISPLAY)
	if c.display == NoDisplay {
		return xerrors.Errorf("gl: unable to get EGL display: %w", media.ErrConfiguration)
	}
	major, minor, ok := c.egl.Initialize(c.display)
	if !ok {
		c.display = NoDisplay
		return xerrors.Errorf("gl: unable to initialize EGL: %w", media.ErrConfiguration)
	}
	log.Debug("EGL %d.%d initialized", major, minor)

	attribs := []int32{
		EGL_RED_SIZE, 8,
		EGL_GREEN_SIZE, 8,
		EGL_BLUE_SIZE, 8,
		EGL_RENDERABLE_TYPE, EGL_OPENGL_ES2_BIT,
	}
	if opts.Recordable {
		attribs = append(attribs, EGL_RECORDABLE_ANDROID, EGL_TRUE)
	}
	attribs = append(attribs, EGL_NONE)

	configs := c.egl.ChooseConfig(c.display, attribs)
	if len(configs) == 0 {
		return xerrors.Errorf("gl: no RGB888 ES2 config (recordable=%v): %w", opts.Recordable, media.ErrConfiguration)
	}
	c.config = configs[0]

	share := NoContext
	if opts.Share != nil {
		share = opts.Share.context
	}
	c.context = c.egl.CreateContext(c.display, c.config, share,
		[]int32{EGL_CONTEXT_CLIENT_VER, 2, EGL_NONE})
	if err := c.check("eglCreateContext"); err != nil {
		return err
	}
	if c.context == NoContext {
		return xerrors.Errorf("gl: eglCreateContext returned no context: %w", media.ErrConfiguration)
	}

	c.surface = c.egl.CreateWindowSurface(c.display, c.config, opts.Window.NativeWindow(),
		[]int32{EGL_NONE})
	if err := c.check("eglCreateWindowSurface"); err != nil {
		return err
	}
	if c.surface == NoSurface {
		return xerrors.Errorf("gl: eglCreateWindowSurface returned no surface: %w", media.ErrConfiguration)
	}
	return nil
}

// check converts a pending EGL error into a configuration error.
func (c *Context) check(op string) error {
	if code := c.egl.GetError(); code != EGL_SUCCESS {
		return xerrors.Errorf("gl: %s: EGL error 0x%x: %w", op, code, media.ErrConfiguration)
	}
	return nil
}

// IsCurrent reports whether this context and its surface are bound to the
// calling thread.
func (c *Context) IsCurrent() bool {
	return c.context != NoContext &&
		c.egl.GetCurrentContext() == c.context &&
		c.egl.GetCurrentSurface(EGL_DRAW) == c.surface
}

// EnsureCurrent binds the context to the calling thread unless it already is.
func (c *Context) EnsureCurrent() error {
	if c.IsCurrent() {
		return nil
	}
	if !c.egl.MakeCurrent(c.display, c.surface, c.surface, c.context) {
		return xerrors.Errorf("gl: eglMakeCurrent failed (0x%x): %w", c.egl.GetError(), media.ErrConfiguration)
	}
	return nil
}

// EnsureNotCurrent unbinds whatever context the calling thread holds.
func (c *Context) EnsureNotCurrent() error {
	if c.egl.GetCurrentContext() == NoContext {
		return nil
	}
	if !c.egl.MakeCurrent(c.display, NoSurface, NoSurface, NoContext) {
		return xerrors.Errorf("gl: eglMakeCurrent(none) failed (0x%x): %w", c.egl.GetError(), media.ErrConfiguration)
	}
	return nil
}

// SwapBuffers posts the drawn frame to the window's consumer.
func (c *Context) SwapBuffers() error {
	if !c.egl.SwapBuffers(c.display, c.surface) {
		return xerrors.Errorf("gl: eglSwapBuffers failed (0x%x): %w", c.egl.GetError(), media.ErrConfiguration)
	}
	return nil
}

// SetPresentationTime stamps the next swapped frame.
func (c *Context) SetPresentationTime(nsecs int64) error {
	if !c.egl.PresentationTimeANDROID(c.display, c.surface, nsecs) {
		return xerrors.Errorf("gl: eglPresentationTimeANDROID failed (0x%x): %w", c.egl.GetError(), media.ErrConfiguration)
	}
	return nil
}

// Release destroys the surface and context and terminates the display. Only
// the first call does anything.
func (c *Context) Release() {
	c.releaseOnce.Do(func() {
		if c.display == NoDisplay {
			return
		}
		if c.IsCurrent() {
			c.egl.MakeCurrent(c.display, NoSurface, NoSurface, NoContext)
		}
		if c.surface != NoSurface {
			c.egl.DestroySurface(c.display, c.surface)
		}
		if c.context != NoContext {
			c.egl.DestroyContext(c.display, c.context)
		}
		c.egl.ReleaseThread()
		c.egl.Terminate(c.display)

		c.surface = NoSurface
		c.context = NoContext
		c.display = NoDisplay
		log.Debug("context released")
	})
}
