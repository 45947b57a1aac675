// Package txlog is the gateway transaction log. It is written only when
// transaction logging or sandbox mode is enabled.
package txlog

import (
	"io"
	"log"
)

// Logger writes gateway transaction entries.
// A nil *Logger is valid and discards everything.
type Logger struct {
	enabled bool
	out     *log.Logger
}

// New creates a Logger writing to w.
func New(w io.Writer, enabled bool) *Logger {
	return &Logger{
		enabled: enabled,
		out:     log.New(w, "irandargah: ", log.LstdFlags|log.Lmicroseconds),
	}
}

// Discard returns a disabled Logger.
func Discard() *Logger {
	return New(io.Discard, false)
}

// Enabled reports whether entries are written.
func (l *Logger) Enabled() bool {
	return l != nil && l.enabled
}

// When returns l if enabled is true and a discarding Logger otherwise.
func (l *Logger) When(enabled bool) *Logger {
	if !enabled {
		return nil
	}
	return l
}

// Printf writes an entry when logging is enabled.
func (l *Logger) Printf(format string, args ...any) {
	if !l.Enabled() {
		return
	}
	l.out.Printf(format, args...)
}
