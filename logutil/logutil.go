// Package logutil provides a small leveled logger that can write to the
// console, to an append-mode log file, or both. A nil *Logger discards
// everything, so callers never need to guard log statements.
package logutil

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level selects the minimum severity that gets emitted.
type Level int32

// Log levels, lowest to highest severity.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
	LevelCritical
	LevelNone
)

// DefaultLogFile is a conventional log file name. EnableFile always takes an
// explicit path; nothing in this package opens DefaultLogFile by itself.
const DefaultLogFile = "blockcopier.log"

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	case LevelCritical:
		return "CRITICAL"
	default:
		return "NONE"
	}
}

// ParseLevel maps a user-supplied name to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warning", "warn":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	case "critical":
		return LevelCritical, nil
	case "none":
		return LevelNone, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Logger writes timestamped, leveled lines. It is safe for concurrent use.
type Logger struct {
	level   atomic.Int32
	console atomic.Bool

	mu     sync.Mutex
	conOut io.Writer
	file   *os.File
}

// New returns a Logger emitting at the given level. Console output goes to
// stderr when console is true.
func New(level Level, console bool) *Logger {
	l := &Logger{conOut: os.Stderr}
	l.level.Store(int32(level))
	l.console.Store(console)
	return l
}

// SetLevel changes the minimum emitted severity.
func (l *Logger) SetLevel(level Level) {
	if l == nil {
		return
	}
	l.level.Store(int32(level))
}

// EnableConsole toggles console output.
func (l *Logger) EnableConsole(enable bool) {
	if l == nil {
		return
	}
	l.console.Store(enable)
}

// EnableFile opens path for logging, appending when appendMode is set. Any
// previously opened log file is closed first.
func (l *Logger) EnableFile(path string, appendMode bool) error {
	if l == nil {
		return nil
	}
	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	l.mu.Lock()
	if l.file != nil {
		l.file.Close()
	}
	l.file = f
	l.mu.Unlock()
	return nil
}

// Close flushes and closes the log file, if one is open.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *Logger) logf(level Level, format string, args ...any) {
	if l == nil || level < Level(l.level.Load()) {
		return
	}
	line := fmt.Sprintf("%s [%s] %s\n",
		time.Now().Format("2006-01-02 15:04:05.000"), level, fmt.Sprintf(format, args...))
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.console.Load() {
		io.WriteString(l.conOut, line)
	}
	if l.file != nil {
		io.WriteString(l.file, line)
	}
}

// Debugf logs at DEBUG level.
func (l *Logger) Debugf(format string, args ...any) { l.logf(LevelDebug, format, args...) }

// Infof logs at INFO level.
func (l *Logger) Infof(format string, args ...any) { l.logf(LevelInfo, format, args...) }

// Warningf logs at WARNING level.
func (l *Logger) Warningf(format string, args ...any) { l.logf(LevelWarning, format, args...) }

// Errorf logs at ERROR level.
func (l *Logger) Errorf(format string, args ...any) { l.logf(LevelError, format, args...) }

// Criticalf logs at CRITICAL level.
func (l *Logger) Criticalf(format string, args ...any) { l.logf(LevelCritical, format, args...) }
