package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Environment variable read at startup, e.g. LOGLEVEL=warn,codec=debug.
const envVar = "LOGLEVEL"

// Directives is a parsed level setting: a default level plus per-tag
// overrides.
type Directives struct {
	Default Level
	Tags    map[string]Level
}

// ParseDirectives parses comma-separated "level" and "tag=level" entries. The
// last bare level wins as the default.
func ParseDirectives(s string) (Directives, error) {
	d := Directives{Default: Info, Tags: make(map[string]Level)}
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		tag, value := "", entry
		if i := strings.IndexByte(entry, '='); i >= 0 {
			tag, value = strings.TrimSpace(entry[:i]), entry[i+1:]
			if tag == "" {
				return d, errors.Errorf("empty tag in log directive '%s'", entry)
			}
		}
		level, err := ParseLevel(value)
		if err != nil {
			return d, errors.Wrapf(err, "log directive '%s'", entry)
		}
		if tag == "" {
			d.Default = level
		} else {
			d.Tags[tag] = level
		}
	}
	return d, nil
}

func (d Directives) levelFor(tag string) Level {
	if l, ok := d.Tags[tag]; ok {
		return l
	}
	return d.Default
}

var (
	active = Directives{Default: Info}

	// Every tagged logger, so later directives reach loggers created during
	// package initialization.
	registry   []*Logger
	registryMu sync.Mutex
)

func init() {
	d, err := ParseDirectives(os.Getenv(envVar))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ignoring %s: %v\n", envVar, err)
		return
	}
	active = d
	DefaultLogger.Level = d.Default
}

func register(l *Logger) *Logger {
	registryMu.Lock()
	defer registryMu.Unlock()
	l.Level = active.levelFor(l.Tag)
	registry = append(registry, l)
	return l
}

// SetLevels replaces the active directives and updates every existing logger.
// Call it before logging starts on other goroutines.
func SetLevels(s string) error {
	d, err := ParseDirectives(s)
	if err != nil {
		return err
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	active = d
	DefaultLogger.Level = d.Default
	for _, l := range registry {
		l.Level = d.levelFor(l.Tag)
	}
	return nil
}
