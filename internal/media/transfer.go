package media

import (
	"sync"

	"github.com/lanikai/alohacam/internal/logging"
)

var log = logging.DefaultLogger.WithTag("media")

type TransferKind int

const (
	// A frame is ready to be read.
	FrameTransfer TransferKind = iota

	// The producer is waiting for the consumer to supply a surface. The
	// consumer answers by calling Read with a surface-bearing buffer.
	ProbeTransfer
)

func (k TransferKind) String() string {
	if k == ProbeTransfer {
		return "probe"
	}
	return "frame"
}

// A TransferEvent tells the consumer that the producer has something for it.
type TransferEvent struct {
	Kind      TransferKind
	Timestamp int64
}

// Transfer is the hand-off signal from a capture producer to its consumers.
// It can be embedded into a struct. Slow subscribers lose their oldest
// pending event rather than blocking the producer.
type Transfer struct {
	// Start is called when the first subscriber is added.
	Start func()

	// Stop is called when the last subscriber is removed.
	Stop func()

	subscribers []chan TransferEvent

	// Events dropped because a subscriber was full.
	dropped int

	// Set by Shutdown.
	err    error
	closed bool

	sync.Mutex
}

func (t *Transfer) Subscribe(capacity int) <-chan TransferEvent {
	t.Lock()
	defer t.Unlock()

	if capacity == 0 {
		panic("media.Transfer: subscriber capacity must be nonzero")
	}

	s := make(chan TransferEvent, capacity)
	if t.closed {
		close(s)
		return s
	}
	t.subscribers = append(t.subscribers, s)
	if t.Start != nil && len(t.subscribers) == 1 {
		t.Start()
	}
	return s
}

func (t *Transfer) Unsubscribe(s <-chan TransferEvent) {
	t.Lock()
	defer t.Unlock()

	// See https://github.com/golang/go/wiki/SliceTricks
	found := false
	for i, subscriber := range t.subscribers {
		if s == subscriber {
			subs := t.subscribers
			close(subs[i])
			subs[len(subs)-1], subs[i] = subs[i], subs[len(subs)-1]
			t.subscribers = subs[:len(subs)-1]
			found = true
			break
		}
	}

	if found && t.Stop != nil && len(t.subscribers) == 0 {
		go t.Stop()
	}
}

// Signal delivers ev to every subscriber.
func (t *Transfer) Signal(ev TransferEvent) {
	t.Lock()
	defer t.Unlock()

	for _, subscriber := range t.subscribers {
		select {
		case subscriber <- ev:
			continue
		default:
		}

		// Drop oldest event, add newest. The consumer may have drained the
		// channel in the meantime, so neither step may block.
		select {
		case <-subscriber:
			t.dropped++
			log.Trace(4, "transfer: subscriber missed a %v event", ev.Kind)
		default:
		}
		select {
		case subscriber <- ev:
		default:
		}
	}
}

// Dropped returns the number of events subscribers never saw.
func (t *Transfer) Dropped() int {
	t.Lock()
	defer t.Unlock()
	return t.dropped
}

// Shutdown closes all subscriber channels. A non-nil err is reported by Err,
// so consumers can tell a failure from an orderly stop.
func (t *Transfer) Shutdown(err error) {
	t.Lock()
	defer t.Unlock()

	if t.closed {
		return
	}
	t.closed = true
	t.err = err
	for _, subscriber := range t.subscribers {
		close(subscriber)
	}
	t.subscribers = nil
}

// Err returns the error passed to Shutdown.
func (t *Transfer) Err() error {
	t.Lock()
	defer t.Unlock()
	return t.err
}

// Reset reopens a transfer after Shutdown, so the producer can be restarted.
func (t *Transfer) Reset() {
	t.Lock()
	defer t.Unlock()
	t.closed = false
	t.err = nil
}
