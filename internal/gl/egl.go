// Package gl manages EGL rendering contexts and camera textures for the
// surface capture path. The EGL implementation is supplied by the platform
// through the EGL and Renderer interfaces.
package gl

import (
	"github.com/lanikai/alohacam/internal/logging"
)

var log = logging.DefaultLogger.WithTag("gl")

// Opaque EGL handles. Zero is the EGL_NO_* value of each type.
type (
	Display uintptr
	Config  uintptr
	Handle  uintptr
	Surface uintptr
)

const (
	NoDisplay Display = 0
	NoContext Handle  = 0
	NoSurface Surface = 0
)

// EGL enums used by this package.
const (
	EGL_SUCCESS             = 0x3000
	EGL_BAD_ACCESS          = 0x3002
	EGL_BAD_ALLOC           = 0x3003
	EGL_BAD_CONFIG          = 0x3005
	EGL_BAD_CONTEXT         = 0x3006
	EGL_BAD_SURFACE         = 0x300D
	EGL_BLUE_SIZE           = 0x3022
	EGL_GREEN_SIZE          = 0x3023
	EGL_RED_SIZE            = 0x3024
	EGL_NONE                = 0x3038
	EGL_RENDERABLE_TYPE     = 0x3040
	EGL_DRAW                = 0x3059
	EGL_READ                = 0x305A
	EGL_CONTEXT_CLIENT_VER  = 0x3098
	EGL_OPENGL_ES2_BIT      = 0x0004
	EGL_RECORDABLE_ANDROID  = 0x3142
	EGL_DEFAULT_DISPLAY     = 0
	EGL_TRUE                = 1
)

// EGL is the subset of the EGL 1.4 API (plus the Android presentation time
// extension) the context manager needs. Calls follow C EGL semantics: failures
// are reported through return values and GetError.
type EGL interface {
	GetDisplay(native uintptr) Display
	Initialize(dpy Display) (major, minor int32, ok bool)
	ChooseConfig(dpy Display, attribs []int32) []Config
	CreateContext(dpy Display, cfg Config, share Handle, attribs []int32) Handle
	CreateWindowSurface(dpy Display, cfg Config, window uintptr, attribs []int32) Surface
	MakeCurrent(dpy Display, draw, read Surface, ctx Handle) bool
	GetCurrentContext() Handle
	GetCurrentSurface(readdraw int32) Surface
	SwapBuffers(dpy Display, s Surface) bool
	PresentationTimeANDROID(dpy Display, s Surface, nsecs int64) bool
	DestroySurface(dpy Display, s Surface) bool
	DestroyContext(dpy Display, ctx Handle) bool
	ReleaseThread() bool
	Terminate(dpy Display) bool
	GetError() int32
}

// A SurfaceTexture receives camera images as an external GL texture.
type SurfaceTexture interface {
	// The callback runs on an arbitrary platform goroutine whenever the
	// producer queues a new image.
	SetOnFrameAvailable(func())

	// Latch the most recent image into the texture. Requires a current
	// context.
	UpdateTexImage() error

	// Timestamp of the latched image in nanoseconds.
	Timestamp() int64

	Release() error
}

// Renderer creates camera textures and draws them onto the current surface.
type Renderer interface {
	NewSurfaceTexture() (SurfaceTexture, error)
	DrawTexture(st SurfaceTexture) error
}
