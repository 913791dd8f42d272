package media

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoopStopJoins(t *testing.T) {
	var exited int32
	loop := NewLoop(func(quit <-chan struct{}) {
		<-quit
		atomic.StoreInt32(&exited, 1)
	})

	loop.Start()
	loop.Start()
	assert.True(t, loop.Running())

	loop.Stop()
	assert.Equal(t, int32(0), atomic.LoadInt32(&exited), "loop stopped with votes remaining")

	loop.Stop()
	assert.Equal(t, int32(1), atomic.LoadInt32(&exited))
	assert.False(t, loop.Running())
	assert.Nil(t, loop.Done())
}

func TestLoopRestart(t *testing.T) {
	runs := 0
	loop := NewLoop(func(quit <-chan struct{}) {
		runs++
		<-quit
	})
	for i := 0; i < 3; i++ {
		loop.Start()
		loop.Stop()
	}
	assert.Equal(t, 3, runs)
}

func TestLoopUnbalancedStopPanics(t *testing.T) {
	loop := NewLoop(func(quit <-chan struct{}) { <-quit })
	assert.Panics(t, loop.Stop)
}
