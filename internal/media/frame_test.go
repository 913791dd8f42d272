package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPooledFrameReleasedOnce(t *testing.T) {
	returned := 0
	b := NewPooledFrame(make([]byte, 4), func(*FrameBuffer) { returned++ })

	// Not handed out yet.
	b.Release()
	assert.Equal(t, 0, returned)

	b.Rearm()
	assert.False(t, b.Released())
	b.Release()
	b.Release()
	assert.Equal(t, 1, returned)
	assert.True(t, b.Released())

	b.Rearm()
	b.Release()
	assert.Equal(t, 2, returned)
}

func TestUnpooledFrameRelease(t *testing.T) {
	b := &FrameBuffer{Data: []byte{1}}
	b.Release()

	var nilFrame *FrameBuffer
	nilFrame.Release()
}
