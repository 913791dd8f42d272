// Package simhw simulates the platform pieces the pipeline drives: cameras,
// an EGL implementation with native windows, and hardware video codecs. It
// backs the "sim" camera driver and the test suites.
package simhw

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/lanikai/alohacam/internal/logging"
)

var log = logging.DefaultLogger.WithTag("simhw")

var nextWindowID atomic.Uintptr

// Native windows by handle, so EGL can find the consumer a surface posts to.
var windows = struct {
	sync.Mutex
	m map[uintptr]*Window
}{m: map[uintptr]*Window{}}

func lookupWindow(id uintptr) *Window {
	windows.Lock()
	defer windows.Unlock()
	return windows.m[id]
}

// Window is a native window: a preview display or a codec input surface.
// Frames swapped onto it are recorded by presentation time.
type Window struct {
	id   uintptr
	name string

	// Only recordable EGL configs may draw into it.
	recordable bool

	// Called for each posted frame, outside the window lock.
	onPost func(pts int64)

	mu       sync.Mutex
	frames   []int64
	released bool
	posted   chan struct{}
}

func NewWindow(name string) *Window {
	return newWindow(name, false, nil)
}

func newWindow(name string, recordable bool, onPost func(int64)) *Window {
	w := &Window{
		id:         nextWindowID.Add(1),
		name:       name,
		recordable: recordable,
		onPost:     onPost,
		posted:     make(chan struct{}, 1),
	}
	windows.Lock()
	windows.m[w.id] = w
	windows.Unlock()
	return w
}

func (w *Window) NativeWindow() uintptr {
	return w.id
}

func (w *Window) Name() string {
	return w.name
}

// Release removes the window. Surfaces still pointing at it stop receiving
// frames.
func (w *Window) Release() error {
	w.mu.Lock()
	w.released = true
	w.mu.Unlock()

	windows.Lock()
	delete(windows.m, w.id)
	windows.Unlock()
	return nil
}

func (w *Window) Released() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.released
}

func (w *Window) post(pts int64) {
	w.mu.Lock()
	if w.released {
		w.mu.Unlock()
		return
	}
	w.frames = append(w.frames, pts)
	w.mu.Unlock()

	select {
	case w.posted <- struct{}{}:
	default:
	}
	if w.onPost != nil {
		w.onPost(pts)
	}
}

// Frames returns the presentation times of every frame posted so far.
func (w *Window) Frames() []int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]int64(nil), w.frames...)
}

// WaitFrames waits until at least n frames were posted.
func (w *Window) WaitFrames(n int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		w.mu.Lock()
		have := len(w.frames)
		w.mu.Unlock()
		if have >= n {
			return true
		}
		select {
		case <-w.posted:
		case <-deadline.C:
			return false
		}
	}
}
