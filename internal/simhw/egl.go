package simhw

import (
	"fmt"
	"strings"
	"sync"

	"github.com/lanikai/alohacam/internal/gl"
)

const (
	eglBadMatch        = 0x3009
	eglBadNativeWindow = 0x300B

	configDefault    gl.Config = 1
	configRecordable gl.Config = 2

	simDisplay gl.Display = 1
)

type simSurface struct {
	window uintptr
	config gl.Config
	pts    int64
}

// EGL simulates one EGL display. There is a single binding shared by all
// threads, which matches a pipeline driving GL from one locked capture
// thread. Every state change is appended to an event log for inspection.
type EGL struct {
	// Refuse recordable configs, as some devices do.
	NoRecordable bool

	mu sync.Mutex

	initCount int
	next      uintptr

	contexts map[gl.Handle]gl.Handle // context -> share
	surfaces map[gl.Surface]*simSurface

	curContext gl.Handle
	curDraw    gl.Surface
	curRead    gl.Surface

	err    int32
	events []string
}

func NewEGL() *EGL {
	return &EGL{
		contexts: make(map[gl.Handle]gl.Handle),
		surfaces: make(map[gl.Surface]*simSurface),
	}
}

// Must hold e.mu.
func (e *EGL) logf(format string, args ...interface{}) {
	ev := fmt.Sprintf(format, args...)
	e.events = append(e.events, ev)
	log.Trace(4, "egl: %s", ev)
}

// Must hold e.mu.
func (e *EGL) fail(code int32) {
	e.err = code
	e.logf("error 0x%x", code)
}

// Note appends an external marker to the event log.
func (e *EGL) Note(event string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logf("%s", event)
}

// Events returns the event log.
func (e *EGL) Events() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

// IndexOf returns the position of the first event starting with prefix, or
// -1.
func (e *EGL) IndexOf(prefix string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, ev := range e.events {
		if strings.HasPrefix(ev, prefix) {
			return i
		}
	}
	return -1
}

// Live returns the number of contexts and surfaces not yet destroyed.
func (e *EGL) Live() (contexts, surfaces int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.contexts), len(e.surfaces)
}

// Initialized reports whether any Initialize is still unmatched by
// Terminate.
func (e *EGL) Initialized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initCount > 0
}

// hasCurrent reports whether any context is bound.
func (e *EGL) hasCurrent() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.curContext != gl.NoContext
}

func (e *EGL) GetDisplay(native uintptr) gl.Display {
	return simDisplay
}

func (e *EGL) Initialize(dpy gl.Display) (int32, int32, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if dpy != simDisplay {
		e.fail(gl.EGL_BAD_ACCESS)
		return 0, 0, false
	}
	e.initCount++
	e.logf("Initialize")
	return 1, 4, true
}

func (e *EGL) ChooseConfig(dpy gl.Display, attribs []int32) []gl.Config {
	recordable := false
	for i := 0; i+1 < len(attribs); i += 2 {
		if attribs[i] == gl.EGL_RECORDABLE_ANDROID && attribs[i+1] == gl.EGL_TRUE {
			recordable = true
		}
	}
	if !recordable {
		return []gl.Config{configDefault}
	}
	if e.NoRecordable {
		return nil
	}
	return []gl.Config{configRecordable}
}

func (e *EGL) CreateContext(dpy gl.Display, cfg gl.Config, share gl.Handle, attribs []int32) gl.Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initCount == 0 {
		e.fail(gl.EGL_BAD_ACCESS)
		return gl.NoContext
	}
	if share != gl.NoContext {
		if _, ok := e.contexts[share]; !ok {
			e.fail(gl.EGL_BAD_CONTEXT)
			return gl.NoContext
		}
	}
	e.next++
	ctx := gl.Handle(e.next)
	e.contexts[ctx] = share
	e.logf("CreateContext %d share=%d config=%d", ctx, share, cfg)
	return ctx
}

func (e *EGL) CreateWindowSurface(dpy gl.Display, cfg gl.Config, window uintptr, attribs []int32) gl.Surface {
	w := lookupWindow(window)

	e.mu.Lock()
	defer e.mu.Unlock()
	if w == nil {
		e.fail(eglBadNativeWindow)
		return gl.NoSurface
	}
	if w.recordable && cfg != configRecordable {
		e.fail(eglBadMatch)
		return gl.NoSurface
	}
	e.next++
	s := gl.Surface(e.next)
	e.surfaces[s] = &simSurface{window: window, config: cfg}
	e.logf("CreateWindowSurface %d window=%s", s, w.name)
	return s
}

func (e *EGL) MakeCurrent(dpy gl.Display, draw, read gl.Surface, ctx gl.Handle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ctx == gl.NoContext {
		e.curContext, e.curDraw, e.curRead = gl.NoContext, gl.NoSurface, gl.NoSurface
		e.logf("MakeCurrent none")
		return true
	}
	if _, ok := e.contexts[ctx]; !ok {
		e.fail(gl.EGL_BAD_CONTEXT)
		return false
	}
	if _, ok := e.surfaces[draw]; !ok {
		e.fail(gl.EGL_BAD_SURFACE)
		return false
	}
	e.curContext, e.curDraw, e.curRead = ctx, draw, read
	e.logf("MakeCurrent %d surface=%d", ctx, draw)
	return true
}

func (e *EGL) GetCurrentContext() gl.Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.curContext
}

func (e *EGL) GetCurrentSurface(readdraw int32) gl.Surface {
	e.mu.Lock()
	defer e.mu.Unlock()
	if readdraw == gl.EGL_READ {
		return e.curRead
	}
	return e.curDraw
}

func (e *EGL) SwapBuffers(dpy gl.Display, s gl.Surface) bool {
	e.mu.Lock()
	surf, ok := e.surfaces[s]
	if !ok {
		e.fail(gl.EGL_BAD_SURFACE)
		e.mu.Unlock()
		return false
	}
	pts := surf.pts
	surf.pts = 0
	window := surf.window
	e.mu.Unlock()

	// Posting may run the consumer, e.g. a codec, so do it unlocked.
	if w := lookupWindow(window); w != nil {
		w.post(pts)
	}
	return true
}

func (e *EGL) PresentationTimeANDROID(dpy gl.Display, s gl.Surface, nsecs int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	surf, ok := e.surfaces[s]
	if !ok {
		e.fail(gl.EGL_BAD_SURFACE)
		return false
	}
	surf.pts = nsecs
	return true
}

func (e *EGL) DestroySurface(dpy gl.Display, s gl.Surface) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.surfaces[s]; !ok {
		e.fail(gl.EGL_BAD_SURFACE)
		return false
	}
	delete(e.surfaces, s)
	e.logf("DestroySurface %d", s)
	return true
}

func (e *EGL) DestroyContext(dpy gl.Display, ctx gl.Handle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.contexts[ctx]; !ok {
		e.fail(gl.EGL_BAD_CONTEXT)
		return false
	}
	if ctx == e.curContext {
		// Destroying a bound context defers the destruction on real
		// drivers; flag it so tests catch the ordering bug.
		e.logf("DestroyContext %d while current", ctx)
	}
	delete(e.contexts, ctx)
	e.logf("DestroyContext %d", ctx)
	return true
}

func (e *EGL) ReleaseThread() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.curContext, e.curDraw, e.curRead = gl.NoContext, gl.NoSurface, gl.NoSurface
	e.logf("ReleaseThread")
	return true
}

func (e *EGL) Terminate(dpy gl.Display) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initCount > 0 {
		e.initCount--
	}
	e.logf("Terminate")
	return true
}

func (e *EGL) GetError() int32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	code := e.err
	e.err = 0
	if code == 0 {
		return gl.EGL_SUCCESS
	}
	return code
}
