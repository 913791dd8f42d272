package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSharedBufferDone(t *testing.T) {
	done := 0
	buf := NewSharedBuffer([]byte{1, 2, 3}, 2, func() { done++ })

	buf.Release()
	assert.Equal(t, 0, done)
	assert.Equal(t, []byte{1, 2, 3}, buf.Bytes())

	buf.Hold()
	buf.Release()
	buf.Release()
	assert.Equal(t, 1, done)
	assert.Nil(t, buf.Bytes())

	assert.Panics(t, buf.Release)
}
