// Package logging holds the process-wide slog logger. Packages that
// have no logger wired in reach for L(); main builds the real one from
// config and installs it with Set.
package logging

import (
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

var logger atomic.Pointer[slog.Logger]

func init() {
	logger.Store(New("text", slog.LevelInfo, nil))
}

// L returns the installed logger.
func L() *slog.Logger { return logger.Load() }

// Set installs l as the process logger. Nil is ignored so a broken
// config path cannot take logging down with it.
func Set(l *slog.Logger) {
	if l != nil {
		logger.Store(l)
	}
}

// New builds a logger. format is "json" or "text" (anything else falls
// back to text); w defaults to stderr.
func New(format string, level slog.Leveler, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// NewRotating is New writing to a size-rotated file at path. The
// returned closer releases the file on shutdown.
func NewRotating(format string, level slog.Leveler, path string) (*slog.Logger, io.Closer) {
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}
	return New(format, level, lj), lj
}
