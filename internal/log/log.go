// Package log provides the structured logger shared by all paperbeat
// packages. It wraps slog; output is JSON when PAPERBEAT_ENV=production and
// text otherwise.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	logger *slog.Logger
	level  = new(slog.LevelVar)
	once   sync.Once
)

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels.
// Anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init sets up the global logger on stderr. Only the first call builds the
// handler; later calls only change the level.
func Init(lvl string) {
	InitWriter(lvl, os.Stderr)
}

// InitWriter is Init with an explicit destination.
func InitWriter(lvl string, w io.Writer) {
	level.Set(ParseLevel(lvl))
	once.Do(func() {
		opts := &slog.HandlerOptions{Level: level}
		if os.Getenv("PAPERBEAT_ENV") == "production" {
			logger = slog.New(slog.NewJSONHandler(w, opts))
		} else {
			logger = slog.New(slog.NewTextHandler(w, opts))
		}
		slog.SetDefault(logger)
	})
}

// L returns the global logger, initializing it at info level if needed.
func L() *slog.Logger {
	once.Do(func() {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	})
	return logger
}

// For returns a logger tagged with a component name.
func For(component string) *slog.Logger {
	return L().With("component", component)
}

func Debug(msg string, args ...any) { L().Debug(msg, args...) }
func Info(msg string, args ...any)  { L().Info(msg, args...) }
func Warn(msg string, args ...any)  { L().Warn(msg, args...) }
func Error(msg string, args ...any) { L().Error(msg, args...) }
