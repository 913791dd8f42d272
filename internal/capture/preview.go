package capture

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/alohacam/internal/media"
	"github.com/lanikai/alohacam/internal/yuv"
)

// PreviewStream delivers camera frames through byte buffers. The camera fills
// pooled buffers from its preview callback; Read corrects their layout into
// I420 and recycles them. The driver always holds Depth buffers while the
// stream runs, and no buffer is allocated after the pool is built.
type PreviewStream struct {
	transfer media.Transfer

	session *Session
	format  media.Format

	// Layout the camera is asked to produce.
	source media.Format
	order  yuv.ChromaOrder

	pool  *BufferPool
	depth int

	// The driver's AddCallbackBuffer, bound once.
	give func([]byte)

	// Frame timeout timer, reused by every wait. readMu serializes readers
	// so only one of them waits on it.
	timer  *time.Timer
	readMu sync.Mutex

	running atomic.Bool

	// Frames the callback had to drop.
	dropped atomic.Int64

	stats frameStats

	// Serializes Start and Stop.
	mu sync.Mutex
}

func newPreviewStream(s *Session, format media.Format) (*PreviewStream, error) {
	layout, ok := previewLayout(s.device.Info())
	if !ok {
		return nil, errors.Wrapf(media.ErrUnsupportedFormat, "camera %s has no convertible preview layout", s.key)
	}
	source := media.RawFormat(layout, format.Size, format.FrameRate)
	size := source.FrameSize()
	if size <= 0 {
		return nil, errors.Wrapf(media.ErrUnsupportedFormat, "cannot size %v frames", source)
	}

	st := &PreviewStream{
		session: s,
		format:  format,
		source:  source,
		order:   s.opts.chromaOrder(layout),
		pool:    NewBufferPool(s.opts.Depth+s.opts.Spares, size),
		depth:   s.opts.Depth,
		give:    s.device.AddCallbackBuffer,
		timer:   time.NewTimer(time.Hour),
	}
	st.timer.Stop()
	log.Debug("preview stream %v from %v (%v), %d x %d byte buffers",
		format, layout, st.order, st.pool.Len(), size)
	return st, nil
}

func (st *PreviewStream) Format() media.Format {
	return st.format
}

// SourceFormat is the layout of the raw buffers lent by Acquire.
func (st *PreviewStream) SourceFormat() media.Format {
	return st.source
}

func (st *PreviewStream) Transfer() *media.Transfer {
	return &st.transfer
}

// Pool exposes the raw buffer pool, for inspection.
func (st *PreviewStream) Pool() *BufferPool {
	return st.pool
}

// Dropped returns the number of frames the callback discarded.
func (st *PreviewStream) Dropped() int64 {
	return st.dropped.Load()
}

func (st *PreviewStream) Start() error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.running.Load() {
		return nil
	}

	dev := st.session.device
	if err := st.session.configure(st.source.Size, st.source.Layout); err != nil {
		return err
	}

	st.transfer.Reset()
	st.stats = frameStats{}
	st.running.Store(true)
	dev.SetPreviewCallback(st.onFrame)
	st.refill()

	if err := dev.StartPreview(); err != nil {
		st.running.Store(false)
		dev.SetPreviewCallback(nil)
		st.pool.Reclaim()
		return errors.Wrapf(media.ErrDeviceUnavailable, "start preview: %v", err)
	}
	log.Info("preview started: %v", st.format)
	return nil
}

// refill tops the driver back up to depth buffers.
func (st *PreviewStream) refill() {
	if !st.running.Load() {
		return
	}
	st.pool.Fill(st.depth, st.give)
}

// onFrame runs on the driver's callback goroutine.
func (st *PreviewStream) onFrame(data []byte) {
	if !st.running.Load() {
		return
	}
	if data == nil {
		st.dropped.Add(1)
		log.Error("preview callback without data, frame dropped")
		return
	}
	if len(data) < st.pool.BufferSize() {
		st.dropped.Add(1)
		log.Error("short preview frame (%d of %d bytes), dropped", len(data), st.pool.BufferSize())
		// Give the buffer straight back to the driver.
		st.pool.Discard(data)
		st.refill()
		return
	}

	ts := monotonicNow()
	if err := st.pool.Filled(data, ts); err != nil {
		st.dropped.Add(1)
		log.Warn("%v", err)
		return
	}
	st.stats.tick(time.Now())
	st.refill()
	st.transfer.Signal(media.TransferEvent{Kind: media.FrameTransfer, Timestamp: ts})
}

// next waits for a ready buffer, up to the frame timeout.
func (st *PreviewStream) next(ctx context.Context) (int, []byte, int64, error) {
	st.readMu.Lock()
	defer st.readMu.Unlock()

	timer := st.timer
	timer.Reset(st.session.opts.FrameTimeout)
	defer timer.Stop()
	for {
		if !st.running.Load() {
			return 0, nil, 0, errors.New("preview stream not running")
		}
		if slot, data, ts, ok := st.pool.Next(); ok {
			return slot, data, ts, nil
		}
		select {
		case <-st.pool.Ready():
		case <-timer.C:
			return 0, nil, 0, errors.Wrapf(media.ErrPipelineStall,
				"no camera frame within %v", st.session.opts.FrameTimeout)
		case <-ctx.Done():
			return 0, nil, 0, ctx.Err()
		}
	}
}

// Read waits for the next frame and writes it into buf as I420. buf.Data is
// grown once if too small and reused afterwards.
func (st *PreviewStream) Read(ctx context.Context, buf *media.FrameBuffer) error {
	slot, data, ts, err := st.next(ctx)
	if err != nil {
		return err
	}

	w, h := st.format.Size.Width, st.format.Size.Height
	n := yuv.I420Size(w, h)
	if cap(buf.Data) < n {
		buf.Data = make([]byte, n)
	}
	buf.Data = buf.Data[:n]

	switch st.source.Layout {
	case media.YV12:
		_, err = yuv.YV12ToI420(buf.Data, data, w, h, st.order)
	case media.NV21, media.NV12:
		_, err = yuv.SemiplanarToI420(buf.Data, data, w, h, st.order)
	case media.YUYV:
		_, err = yuv.YUYVToI420(buf.Data, data, w, h)
	default:
		copy(buf.Data, data[:n])
	}
	st.recycle(slot)
	if err != nil {
		return errors.Wrap(err, "layout correction")
	}

	buf.Surface = nil
	buf.Format = st.format
	buf.Timestamp = ts
	buf.Flags = 0
	return nil
}

// recycle returns a buffer taken by next and tops the driver back up.
func (st *PreviewStream) recycle(slot int) {
	if err := st.pool.Return(slot); err != nil {
		log.Error("%v", err)
	}
	st.refill()
}

// Acquire lends the next raw frame, in the camera's own layout, without
// copying. The frame returns to the pool when the caller releases it.
func (st *PreviewStream) Acquire(ctx context.Context) (*media.FrameBuffer, error) {
	slot, _, ts, err := st.next(ctx)
	if err != nil {
		return nil, err
	}
	f := st.pool.Lend(slot)
	f.Format = st.source
	f.Timestamp = ts
	return f, nil
}

// Stop halts the preview and reclaims every buffer from the driver and the
// ready queue.
func (st *PreviewStream) Stop() error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.running.Swap(false) {
		return nil
	}

	dev := st.session.device
	dev.SetPreviewCallback(nil)
	err := dev.StopPreview()
	st.pool.Reclaim()
	st.transfer.Shutdown(nil)

	free, device, ready, user := st.pool.Count()
	log.Info("preview stopped (free=%d device=%d ready=%d lent=%d dropped=%d)",
		free, device, ready, user, st.dropped.Load())
	return err
}
