// Package rtp sends an encoded H.264 stream as plain RTP over UDP, using
// packetization mode 1 (single NAL unit, STAP-A and FU-A packets).
package rtp

import (
	"github.com/lanikai/alohacam/internal/logging"
)

var log = logging.DefaultLogger.WithTag("rtp")

const (
	// RFC 3550 defines RTP version 2.
	rtpVersion = 2

	// RTP clock rate for video payloads.
	videoClockRate = 90000
)

// Convert a capture timestamp in nanoseconds to RTP clock ticks.
func toClock(ns int64, clockRate int) uint32 {
	const second = int64(1e9)
	rate := int64(clockRate)
	return uint32(ns/second*rate + ns%second*rate/second)
}
