package logging

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Logging level. Higher values indicate more verbosity.
type Level int

const (
	Error Level = iota - 2
	Warn
	Info
	Debug

	// Numeric trace levels go up to 9.
	MaxLevel Level = 9
)

var levelNames = []struct {
	short, long string
	level       Level
}{
	{"E", "ERROR", Error},
	{"W", "WARN", Warn},
	{"I", "INFO", Info},
	{"D", "DEBUG", Debug},
	{"T", "TRACE", MaxLevel},
}

// ParseLevel accepts a level name ("warn"), its first letter ("W"), or a
// number from -2 to 9.
func ParseLevel(s string) (Level, error) {
	s = strings.TrimSpace(s)
	for _, n := range levelNames {
		if strings.EqualFold(s, n.short) || strings.EqualFold(s, n.long) {
			return n.level, nil
		}
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Errorf("unknown log level '%s'", s)
	}
	if l := Level(n); l >= Error && l <= MaxLevel {
		return l, nil
	}
	return 0, errors.Errorf("log level %d out of range", n)
}

func (l Level) String() string {
	if l >= Error && l <= Debug {
		return levelNames[l-Error].long
	}
	return strconv.Itoa(int(l))
}

func (l Level) letter() byte {
	if l <= Debug {
		return "EWID"[l-Error]
	}
	return byte('0' + l)
}
