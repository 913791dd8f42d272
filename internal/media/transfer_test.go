package media

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignalReachesAllSubscribers(t *testing.T) {
	var tr Transfer

	var wg sync.WaitGroup
	var ready sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		ready.Add(1)
		go func() {
			defer wg.Done()
			s := tr.Subscribe(1)
			ready.Done()
			ev, ok := <-s
			if !ok || ev.Kind != FrameTransfer || ev.Timestamp != 42 {
				t.Errorf("unexpected event %+v (ok=%v)", ev, ok)
			}
		}()
	}
	ready.Wait()

	tr.Signal(TransferEvent{Kind: FrameTransfer, Timestamp: 42})
	wg.Wait()
}

func TestSignalDropsOldest(t *testing.T) {
	var tr Transfer
	s := tr.Subscribe(1)

	tr.Signal(TransferEvent{Timestamp: 1})
	tr.Signal(TransferEvent{Timestamp: 2})

	ev := <-s
	assert.Equal(t, int64(2), ev.Timestamp)
	assert.Equal(t, 1, tr.Dropped())
}

func TestStartStopHooks(t *testing.T) {
	var tr Transfer
	started := 0
	stopped := make(chan struct{})
	tr.Start = func() { started++ }
	tr.Stop = func() { close(stopped) }

	a := tr.Subscribe(1)
	b := tr.Subscribe(1)
	assert.Equal(t, 1, started)

	tr.Unsubscribe(a)
	tr.Unsubscribe(b)
	<-stopped
}

func TestShutdown(t *testing.T) {
	var tr Transfer
	s := tr.Subscribe(2)

	failure := errors.New("camera unplugged")
	tr.Shutdown(failure)
	tr.Shutdown(nil)

	_, ok := <-s
	assert.False(t, ok)
	assert.Equal(t, failure, tr.Err())

	// Late subscribers see a closed channel.
	_, ok = <-tr.Subscribe(1)
	assert.False(t, ok)

	tr.Reset()
	assert.NoError(t, tr.Err())
}
