// Package logging provides the process-wide structured logger and the
// rotating run log file.
package logging

import (
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

// Level aliases for slog levels.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

var global atomic.Pointer[slog.Logger]

func init() {
	global.Store(New(LevelWarn, os.Stderr, false))
}

// New creates a text or JSON lines logger writing records at or above level.
// A nil w discards everything.
func New(level slog.Level, w io.Writer, json bool) *slog.Logger {
	if w == nil {
		w = io.Discard
	}
	opts := &slog.HandlerOptions{Level: level}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Init replaces the global logger with a text logger.
func Init(level slog.Level, w io.Writer) {
	SetLogger(New(level, w, false))
}

// SetLogger replaces the global logger.
func SetLogger(l *slog.Logger) {
	if l != nil {
		global.Store(l)
	}
}

// Logger returns the global logger.
func Logger() *slog.Logger {
	return global.Load()
}

func Debug(msg string, args ...any) { Logger().Debug(msg, args...) }
func Info(msg string, args ...any)  { Logger().Info(msg, args...) }
func Warn(msg string, args ...any)  { Logger().Warn(msg, args...) }
func Error(msg string, args ...any) { Logger().Error(msg, args...) }
