package capture

import (
	"time"

	"github.com/lanikai/alohacam/internal/logging"
)

var epoch = time.Now()

// monotonicNow returns nanoseconds on the process monotonic clock.
func monotonicNow() int64 {
	return int64(time.Since(epoch))
}

const statsWindow = 10

// frameStats measures frame intervals and keeps a moving average over the
// last statsWindow frames.
type frameStats struct {
	last    time.Time
	samples [statsWindow]time.Duration
	idx     int
	count   int
}

// tick records a frame at now and returns the time since the previous one.
func (s *frameStats) tick(now time.Time) time.Duration {
	if s.last.IsZero() {
		s.last = now
		return 0
	}
	delay := now.Sub(s.last)
	s.last = now

	s.samples[s.idx] = delay
	s.idx = (s.idx + 1) % statsWindow
	if s.count < statsWindow {
		s.count++
	}
	if log.Enabled(logging.Debug) {
		if avg := s.average(); avg > 0 {
			log.Debug("Avg frame rate: %.1f", float64(time.Second)/float64(avg))
		}
	}
	return delay
}

func (s *frameStats) average() time.Duration {
	if s.count == 0 {
		return 0
	}
	var sum time.Duration
	for i := 0; i < s.count; i++ {
		sum += s.samples[i]
	}
	return sum / time.Duration(s.count)
}

// frameInterval is the pacing target for a frame rate. Without a rate the
// loop runs at 12.5 fps.
func frameInterval(fps float64) time.Duration {
	if fps <= 0 {
		return 80 * time.Millisecond
	}
	return time.Duration(float64(time.Second) / fps)
}
