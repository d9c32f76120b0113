package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/cartlab/go-dbw-bridge/internal/logging"
)

// logLevels maps the validated -log-level values. The slog zero value
// is Info, so an unknown key degrades to Info rather than Debug.
var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// setupLogger builds the process logger and installs it as the package
// default. The returned closer is non-nil when logging to a rotating
// file.
func setupLogger(cfg *appConfig) (*slog.Logger, io.Closer) {
	lvl := logLevels[cfg.logLevel]
	var (
		l      *slog.Logger
		closer io.Closer
	)
	if cfg.logFile != "" {
		l, closer = logging.NewRotating(cfg.logFormat, lvl, cfg.logFile)
	} else {
		l = logging.New(cfg.logFormat, lvl, os.Stderr)
	}
	l = l.With("app", "dbw-bridge")
	logging.Set(l)
	return l, closer
}
