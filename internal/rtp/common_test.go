package rtp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestToClock(t *testing.T) {
	assert.EqualValues(t, 90000, toClock(int64(time.Second), videoClockRate))
	assert.EqualValues(t, 9000, toClock(int64(100*time.Millisecond), videoClockRate))
	assert.EqualValues(t, 2999, toClock(int64(time.Second/30), videoClockRate))
	assert.EqualValues(t, 0, toClock(0, videoClockRate))
}
