// Package logger is the process-wide leveled logger.
//
// Output goes through a jwalterweatherman notepad so the threshold, flags and
// destination can be changed at runtime without touching call sites.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	jww "github.com/spf13/jwalterweatherman"
)

// Level is the verbosity threshold used by the logger.
//
// Lower values are more verbose.
type Level int

const (
	// LevelTrace enables extremely verbose logs (events, reducer inputs, etc).
	LevelTrace Level = iota
	// LevelDebug enables verbose logs intended for debugging.
	LevelDebug
	// LevelInfo enables informational logs (default).
	LevelInfo
	// LevelWarn enables only warnings and errors.
	LevelWarn
	// LevelError enables only error logs.
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "trace"
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

func (l Level) threshold() jww.Threshold {
	switch l {
	case LevelTrace:
		return jww.LevelTrace
	case LevelDebug:
		return jww.LevelDebug
	case LevelWarn:
		return jww.LevelWarn
	case LevelError:
		return jww.LevelError
	default:
		return jww.LevelInfo
	}
}

var (
	mu      sync.RWMutex
	level   = LevelInfo
	flags   = log.LstdFlags
	out     io.Writer = os.Stderr
	notepad = newNotepad()
)

func newNotepad() *jww.Notepad {
	return jww.NewNotepad(level.threshold(), jww.LevelFatal, out, io.Discard, "", flags)
}

// ParseLevel parses a log level string into a Level.
func ParseLevel(raw string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", raw)
	}
}

// SetOutput replaces the writer used by the global logger.
func SetOutput(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	mu.Lock()
	defer mu.Unlock()
	out = w
	notepad = newNotepad()
}

// SetFlags sets the underlying log flags used for all output.
func SetFlags(f int) {
	mu.Lock()
	defer mu.Unlock()
	flags = f
	notepad.SetFlags(f)
}

// SetLevel sets the global log level threshold.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
	notepad.SetStdoutThreshold(l.threshold())
}

// Enabled reports whether a level would be emitted by the current configuration.
func Enabled(l Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return l >= level
}

func logf(l Level, format string, args ...any) {
	mu.RLock()
	n := notepad
	enabled := l >= level
	mu.RUnlock()
	if !enabled {
		return
	}
	var dst *log.Logger
	switch l {
	case LevelTrace:
		dst = n.TRACE
	case LevelDebug:
		dst = n.DEBUG
	case LevelInfo:
		dst = n.INFO
	case LevelWarn:
		dst = n.WARN
	default:
		dst = n.ERROR
	}
	dst.Printf(format, args...)
}

// Tracef logs at TRACE level.
func Tracef(format string, args ...any) { logf(LevelTrace, format, args...) }

// Debugf logs at DEBUG level.
func Debugf(format string, args ...any) { logf(LevelDebug, format, args...) }

// Infof logs at INFO level.
func Infof(format string, args ...any) { logf(LevelInfo, format, args...) }

// Warnf logs at WARN level.
func Warnf(format string, args ...any) { logf(LevelWarn, format, args...) }

// Errorf logs at ERROR level.
func Errorf(format string, args ...any) { logf(LevelError, format, args...) }
