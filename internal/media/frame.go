package media

import "sync/atomic"

type FrameFlags uint32

const (
	FlagKeyFrame FrameFlags = 1 << iota
	FlagCodecConfig
	FlagEndOfStream
)

// A FrameBuffer carries one frame between pipeline stages. Exactly one of Data
// and Surface is set.
type FrameBuffer struct {
	Data    []byte
	Surface Surface

	Format Format

	// Monotonic capture time in nanoseconds.
	Timestamp int64

	Flags FrameFlags

	onRelease func(*FrameBuffer)
	released  atomic.Bool
}

// NewPooledFrame wraps data owned by a pool. The pool gets the buffer back
// through onRelease, at most once per Rearm.
func NewPooledFrame(data []byte, onRelease func(*FrameBuffer)) *FrameBuffer {
	b := &FrameBuffer{Data: data, onRelease: onRelease}
	b.released.Store(true)
	return b
}

// Rearm marks a pooled buffer as handed out again.
func (b *FrameBuffer) Rearm() {
	b.released.Store(false)
}

// Released reports whether the buffer has been returned to its owner.
func (b *FrameBuffer) Released() bool {
	return b.released.Load()
}

// Release returns a pooled buffer to its owner. Only the first call after a
// hand-out has any effect.
func (b *FrameBuffer) Release() {
	if b == nil || b.onRelease == nil {
		return
	}
	if b.released.CompareAndSwap(false, true) {
		b.onRelease(b)
	}
}

// IsKeyFrame reports whether the buffer holds a sync frame.
func (b *FrameBuffer) IsKeyFrame() bool {
	return b.Flags&FlagKeyFrame != 0
}
