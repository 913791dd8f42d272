package sink

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/nareix/joy4/av"
	"github.com/nareix/joy4/codec/h264parser"
	"github.com/nareix/joy4/format/mp4"
	"github.com/pkg/errors"

	"github.com/lanikai/alohacam/internal/h264"
	"github.com/lanikai/alohacam/internal/media"
)

// Frames waiting for the recorder's writer goroutine.
const DefaultRecorderQueue = 64

// Recorder writes an H.264 stream into an MP4 file. Recording starts at the
// first key frame after the parameter sets have been seen.
type Recorder struct {
	muxer  *mp4.Muxer
	closer io.Closer
	format media.Format

	frames chan *media.SharedBuffer
	done   chan struct{}

	// Owned by the writer goroutine.
	sps, pps []byte
	started  bool
	first    int64
	written  int
	err      error

	// Set when a frame was dropped; the writer skips ahead to the next key
	// frame.
	resync bool

	dropped int
	closed  bool
	mu      sync.Mutex
}

// NewRecorder records into w. Only H.264 can be recorded.
func NewRecorder(w io.WriteSeeker, format media.Format) (*Recorder, error) {
	if format.Encoding != media.H264 {
		return nil, errors.Wrapf(media.ErrUnsupportedFormat, "cannot record %v", format)
	}
	r := &Recorder{
		muxer:  mp4.NewMuxer(w),
		format: format,
		frames: make(chan *media.SharedBuffer, DefaultRecorderQueue),
		done:   make(chan struct{}),
	}
	if c, ok := w.(io.Closer); ok {
		r.closer = c
	}
	go r.writeLoop()
	return r, nil
}

// CreateRecorder creates (or truncates) the file at path and records into it.
func CreateRecorder(path string, format media.Format) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "create recording")
	}
	r, err := NewRecorder(f, format)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	log.Info("recording %v to %s", format, path)
	return r, nil
}

func (r *Recorder) Consume(buf *media.SharedBuffer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		buf.Release()
		return
	}
	select {
	case r.frames <- buf:
	default:
		r.dropped++
		r.resync = true
		buf.Release()
		log.Debug("recorder queue full, dropped frame at %d", buf.Timestamp)
	}
}

// Dropped returns the number of frames that arrived while the queue was full.
func (r *Recorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

func (r *Recorder) takeResync() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	resync := r.resync
	r.resync = false
	return resync
}

func (r *Recorder) writeLoop() {
	defer close(r.done)
	skipping := false
	for buf := range r.frames {
		if r.takeResync() {
			skipping = true
		}
		if skipping && buf.IsKeyFrame() {
			skipping = false
		}
		if r.err == nil && (!skipping || buf.Flags&media.FlagCodecConfig != 0) {
			r.err = r.write(buf)
			if r.err != nil {
				log.Error("recording stopped: %v", r.err)
			}
		}
		buf.Release()
	}
}

func (r *Recorder) write(buf *media.SharedBuffer) error {
	var frame []h264.NALU
	for _, nalu := range h264.SplitAnnexB(buf.Bytes()) {
		switch nalu.Type() {
		case h264.TypeSPS:
			r.sps = append(r.sps[:0], nalu...)
		case h264.TypePPS:
			r.pps = append(r.pps[:0], nalu...)
		case h264.TypeAUD:
		default:
			frame = append(frame, nalu)
		}
	}
	if len(frame) == 0 {
		return nil
	}

	if !r.started {
		if !buf.IsKeyFrame() {
			log.Trace(4, "waiting for a key frame to start recording")
			return nil
		}
		if r.sps == nil || r.pps == nil {
			log.Warn("key frame before parameter sets, not recording yet")
			return nil
		}
		cd, err := h264parser.NewCodecDataFromSPSAndPPS(r.sps, r.pps)
		if err != nil {
			return errors.Wrap(err, "parameter sets")
		}
		if err := r.muxer.WriteHeader([]av.CodecData{cd}); err != nil {
			return errors.Wrap(err, "write mp4 header")
		}
		log.Debug("recording %dx%d", cd.Width(), cd.Height())
		r.started = true
		r.first = buf.Timestamp
	}

	ts := buf.Timestamp - r.first
	if ts < 0 {
		ts = 0
	}
	pkt := av.Packet{
		IsKeyFrame: buf.IsKeyFrame(),
		Idx:        0,
		Time:       time.Duration(ts),
		Data:       h264.AppendAVCC(nil, frame...),
	}
	if err := r.muxer.WritePacket(pkt); err != nil {
		return errors.Wrap(err, "write mp4 packet")
	}
	r.written++
	return nil
}

// Close flushes queued frames and finishes the file. Later calls do nothing.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.frames)
	r.mu.Unlock()

	<-r.done
	err := r.err
	if r.started && err == nil {
		err = errors.Wrap(r.muxer.WriteTrailer(), "write mp4 trailer")
	}
	if r.closer != nil {
		if cerr := r.closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	log.Info("recorder closed after %d frames (%d dropped)", r.written, r.Dropped())
	return err
}
