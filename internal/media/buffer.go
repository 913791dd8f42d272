package media

import "sync/atomic"

/*
A SharedBuffer is an encoded frame that may be consumed concurrently by several
sinks. Each sink processes the bytes and calls Release() as quickly as possible.
A sink that cannot keep up makes a copy, calls Release(), and continues with its
local copy.

Sharing is managed by reference counting. Hold() increments the count by 1,
Release() decrements it by 1. The done function is called when the count
reaches 0, at which point the producer may reuse the bytes.

	buf := NewSharedBuffer(data, len(sinks), func() { pool.Put(data) })
	for _, sink := range sinks {
		sink.Consume(buf)
	}
*/
type SharedBuffer struct {
	data []byte

	Format    Format
	Timestamp int64
	Flags     FrameFlags

	count int32
	done  func()
}

func NewSharedBuffer(data []byte, count int, done func()) *SharedBuffer {
	return &SharedBuffer{data: data, count: int32(count), done: done}
}

// Bytes returns the underlying byte buffer.
func (buf *SharedBuffer) Bytes() []byte {
	return buf.data
}

func (buf *SharedBuffer) IsKeyFrame() bool {
	return buf.Flags&FlagKeyFrame != 0
}

// Increments the hold count.
func (buf *SharedBuffer) Hold() {
	atomic.AddInt32(&buf.count, 1)
}

// Decrements the hold count. When the hold count reaches zero, the underlying
// byte buffer is handed back to the producer.
func (buf *SharedBuffer) Release() {
	if buf == nil {
		return
	}
	newCount := atomic.AddInt32(&buf.count, -1)
	if newCount == 0 {
		if buf.done != nil {
			buf.done()
		}
		buf.data = nil
	} else if newCount < 0 {
		panic("media.SharedBuffer: released more times than held")
	}
}
