// Package logging writes leveled, tagged log lines. Each package derives its
// own logger with DefaultLogger.WithTag, and levels are set per tag through
// LOGLEVEL or SetLevels.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

const timestampFormat = "2006-01-02 15:04:05.000"

type Logger struct {
	// Messages more verbose than this are dropped.
	Level

	// Tag used to filter and classify log messages.
	Tag string

	out     io.Writer
	colored bool

	// Shared by all derived loggers, so lines from different goroutines do
	// not interleave.
	mu *sync.Mutex
}

// Write to stderr by default.
var DefaultLogger = &Logger{
	Level:   Info,
	out:     os.Stderr,
	colored: isTerminal(os.Stderr),
	mu:      new(sync.Mutex),
}

// NewLogger creates an independent logger writing to out.
func NewLogger(tag string, out io.Writer) *Logger {
	return register(&Logger{Tag: tag, out: out, colored: isTerminal(out), mu: new(sync.Mutex)})
}

// SetDestination redirects this logger. Loggers derived earlier keep writing
// to the old destination.
func (log *Logger) SetDestination(out io.Writer) {
	log.mu.Lock()
	defer log.mu.Unlock()
	log.out = out
	log.colored = isTerminal(out)
}

// WithTag derives a logger sharing this one's destination. Its level comes
// from the active directives for tag.
func (log *Logger) WithTag(tag string) *Logger {
	return register(&Logger{Tag: tag, out: log.out, colored: log.colored, mu: log.mu})
}

// Enabled reports whether messages at the given level would be written. Use it
// to skip formatting work on hot paths.
func (log *Logger) Enabled(level Level) bool {
	return level <= log.Level
}

// Wrapper for []byte that implements io.Writer. Simpler and cheaper than
// bytes.Buffer.
type buffer []byte

func (b *buffer) Write(p []byte) (int, error) {
	*b = append(*b, p...)
	return len(p), nil
}

// Initial capacity fits most log lines.
var bufPool = sync.Pool{
	New: func() interface{} {
		return make(buffer, 0, 256)
	},
}

// Log a message at the given level. Include the file and line number from
// 'calldepth' steps up the call stack.
func (log *Logger) Log(level Level, calldepth int, format string, a ...interface{}) {
	if level > log.Level {
		return
	}

	buf := bufPool.Get().(buffer)

	if log.colored {
		buf.Write(ansiWhite)
	}
	buf = time.Now().AppendFormat(buf, timestampFormat)
	buf = append(buf, ' ')
	if log.colored {
		buf.Write(level.color())
	}
	buf = append(buf, level.letter(), '/')
	buf = append(buf, log.Tag...)

	_, file, line, ok := runtime.Caller(calldepth + 1)
	if !ok {
		file = "?"
	}
	fmt.Fprintf(&buf, "[%s:%d] ", filepath.Base(file), line)
	if log.colored {
		buf.Write(ansiReset)
	}

	fmt.Fprintf(&buf, format, a...)
	if n := len(format); n == 0 || format[n-1] != '\n' {
		buf = append(buf, '\n')
	}

	log.mu.Lock()
	_, err := log.out.Write(buf)
	log.mu.Unlock()
	if err != nil {
		// Nowhere else to report it.
		fmt.Fprintf(os.Stderr, "log write to %v failed: %v\n", log.out, err)
	}

	bufPool.Put(buf[:0])
}

func (log *Logger) Error(format string, a ...interface{}) {
	log.Log(Error, 1, format, a...)
}

func (log *Logger) Warn(format string, a ...interface{}) {
	log.Log(Warn, 1, format, a...)
}

func (log *Logger) Info(format string, a ...interface{}) {
	log.Log(Info, 1, format, a...)
}

func (log *Logger) Debug(format string, a ...interface{}) {
	log.Log(Debug, 1, format, a...)
}

// Trace logs at a numeric level above Debug.
func (log *Logger) Trace(n int, format string, a ...interface{}) {
	log.Log(Level(n), 1, format, a...)
}
