package capture

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/lanikai/alohacam/internal/media"
)

type slotState int

const (
	slotFree   slotState = iota
	slotDevice           // handed to the camera driver
	slotReady            // filled, waiting to be read
	slotUser             // lent out by Acquire
)

// BufferPool is a fixed set of raw frame buffers, allocated once. Every buffer
// is in exactly one place: free, with the driver, queued as ready, or lent to
// a caller. A single mutex guards all transitions, so the preview callback
// and the reading goroutine never race.
type BufferPool struct {
	mu sync.Mutex

	frames []*media.FrameBuffer
	state  []slotState
	stamps []int64

	// Maps a buffer's first byte to its slot.
	index map[*byte]int

	free  []int
	ready []int // FIFO

	// Receives a value whenever the ready queue becomes non-empty.
	readyCh chan struct{}
}

func NewBufferPool(count, size int) *BufferPool {
	p := &BufferPool{
		frames:  make([]*media.FrameBuffer, count),
		state:   make([]slotState, count),
		stamps:  make([]int64, count),
		index:   make(map[*byte]int, count),
		free:    make([]int, 0, count),
		ready:   make([]int, 0, count),
		readyCh: make(chan struct{}, 1),
	}
	for i := range p.frames {
		data := make([]byte, size)
		slot := i
		p.frames[i] = media.NewPooledFrame(data, func(*media.FrameBuffer) {
			if err := p.Return(slot); err != nil {
				log.Error("%v", err)
			}
		})
		p.index[&data[0]] = i
		p.free = append(p.free, i)
	}
	return p
}

// Len returns the number of buffers in the pool.
func (p *BufferPool) Len() int {
	return len(p.frames)
}

// BufferSize returns the capacity of each buffer.
func (p *BufferPool) BufferSize() int {
	return len(p.frames[0].Data)
}

// Count returns the number of buffers in each state: free, with the driver,
// ready and lent.
func (p *BufferPool) Count() (free, device, ready, user int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.state {
		switch s {
		case slotFree:
			free++
		case slotDevice:
			device++
		case slotReady:
			ready++
		case slotUser:
			user++
		}
	}
	return
}

// lookup finds the slot owning data. Must hold p.mu.
func (p *BufferPool) lookup(data []byte) (int, bool) {
	if cap(data) == 0 {
		return 0, false
	}
	slot, ok := p.index[&data[:1][0]]
	return slot, ok
}

// Fill moves free buffers to the driver until it holds depth of them, calling
// give for each. It returns the number handed over.
func (p *BufferPool) Fill(depth int, give func([]byte)) int {
	// Depth is small, so the slots handed over fit on the stack.
	var slots [8]int
	given := slots[:0]

	p.mu.Lock()
	inDevice := 0
	for _, s := range p.state {
		if s == slotDevice {
			inDevice++
		}
	}
	for inDevice < depth && len(p.free) > 0 {
		slot := p.free[len(p.free)-1]
		p.free = p.free[:len(p.free)-1]
		p.state[slot] = slotDevice
		given = append(given, slot)
		inDevice++
	}
	p.mu.Unlock()

	for _, slot := range given {
		give(p.frames[slot].Data)
	}
	return len(given)
}

// Filled records that the driver delivered data with the given timestamp and
// queues it as ready.
func (p *BufferPool) Filled(data []byte, timestamp int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	slot, ok := p.lookup(data)
	if !ok {
		return errors.New("buffer pool: foreign buffer delivered")
	}
	if p.state[slot] != slotDevice {
		return errors.Errorf("buffer pool: buffer %d delivered but not queued to the device", slot)
	}
	p.state[slot] = slotReady
	p.stamps[slot] = timestamp
	p.ready = append(p.ready, slot)

	select {
	case p.readyCh <- struct{}{}:
	default:
	}
	return nil
}

// Ready is signalled when a frame becomes ready. A signal may be stale;
// always check Next.
func (p *BufferPool) Ready() <-chan struct{} {
	return p.readyCh
}

// Next takes the oldest ready buffer.
func (p *BufferPool) Next() (slot int, data []byte, timestamp int64, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.ready) == 0 {
		return 0, nil, 0, false
	}
	slot = p.ready[0]
	copy(p.ready, p.ready[1:])
	p.ready = p.ready[:len(p.ready)-1]
	p.state[slot] = slotUser
	return slot, p.frames[slot].Data, p.stamps[slot], true
}

// Lend returns the FrameBuffer of a slot taken with Next, armed so that its
// Release returns it to the pool.
func (p *BufferPool) Lend(slot int) *media.FrameBuffer {
	f := p.frames[slot]
	f.Rearm()
	return f
}

// Return puts a buffer back on the free list. Returning a buffer that is
// already free is an error.
func (p *BufferPool) Return(slot int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if slot < 0 || slot >= len(p.state) {
		return errors.Errorf("buffer pool: no buffer %d", slot)
	}
	if p.state[slot] == slotFree {
		return errors.Errorf("buffer pool: buffer %d returned twice", slot)
	}
	p.returnLocked(slot)
	return nil
}

// ReturnData is Return for a buffer identified by its bytes.
func (p *BufferPool) ReturnData(data []byte) error {
	p.mu.Lock()
	slot, ok := p.lookup(data)
	p.mu.Unlock()
	if !ok {
		return errors.New("buffer pool: foreign buffer returned")
	}
	return p.Return(slot)
}

// Must hold p.mu.
func (p *BufferPool) returnLocked(slot int) {
	if p.state[slot] == slotReady {
		for i, r := range p.ready {
			if r == slot {
				p.ready = append(p.ready[:i], p.ready[i+1:]...)
				break
			}
		}
	}
	p.state[slot] = slotFree
	p.free = append(p.free, slot)
}

// Reclaim returns every buffer held by the driver or queued as ready. Lent
// buffers come back when their holder releases them.
func (p *BufferPool) Reclaim() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for slot, s := range p.state {
		if s == slotDevice || s == slotReady {
			p.returnLocked(slot)
		}
	}
	p.ready = p.ready[:0]

	select {
	case <-p.readyCh:
	default:
	}
}

// Discard returns a buffer the driver handed back unfilled, so it can be
// queued again.
func (p *BufferPool) Discard(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if slot, ok := p.lookup(data); ok && p.state[slot] == slotDevice {
		p.returnLocked(slot)
	}
}
