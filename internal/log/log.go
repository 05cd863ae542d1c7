// Package log is gazed's structured logger: one process-wide slog.Logger,
// text output in development and JSON when GO_ENV=production.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

var (
	logger *slog.Logger
	once   sync.Once
)

// Init configures the global logger at level ("debug", "info", "warn",
// "error"). Only the first call takes effect.
func Init(level string) {
	once.Do(func() {
		production := os.Getenv("GO_ENV") == "production"
		logger = slog.New(NewHandler(os.Stdout, ParseLevel(level), production))
		slog.SetDefault(logger)
	})
}

// NewHandler returns a JSON or text handler writing to w. Durations are
// written as fractional milliseconds.
func NewHandler(w io.Writer, level slog.Leveler, json bool) slog.Handler {
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: millis}
	if json {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func millis(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindDuration {
		return slog.Float64(a.Key, float64(a.Value.Duration())/float64(time.Millisecond))
	}
	return a
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// L returns the global logger, initializing it at info level if needed.
func L() *slog.Logger {
	Init("info")
	return logger
}

// Component returns the global logger tagged with a component name.
func Component(name string) *slog.Logger {
	return L().With("component", name)
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func Debug(msg string, args ...any) { L().Debug(msg, args...) }
func Info(msg string, args ...any)  { L().Info(msg, args...) }
func Warn(msg string, args ...any)  { L().Warn(msg, args...) }
func Error(msg string, args ...any) { L().Error(msg, args...) }

// With returns the global logger with the given attributes.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}
