// Package sink delivers encoded video to its consumers: an MP4 recorder and a
// live websocket fan-out.
package sink

import (
	"github.com/lanikai/alohacam/internal/logging"
	"github.com/lanikai/alohacam/internal/media"
)

var log = logging.DefaultLogger.WithTag("sink")

// A Sink consumes encoded frames. Consume must return quickly and release buf
// exactly once, possibly later from another goroutine.
type Sink interface {
	Consume(buf *media.SharedBuffer)

	Close() error
}
