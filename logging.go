package auth

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger creates a slog logger writing to stderr.
//
// format is "text" or "json".
func NewLogger(level slog.Level, format string) *slog.Logger {
	return NewLoggerWithWriter(level, format, os.Stderr)
}

// NewLoggerWithWriter creates a logger writing to w.
func NewLoggerWithWriter(level slog.Level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler).With("component", "auth")
}

// ParseLogLevel converts a level name to slog.Level, defaulting to info.
func ParseLogLevel(s string) slog.Level {
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

func defaultLogger() Logger {
	return NewLogger(slog.LevelInfo, "text")
}

// discardLogger drops everything, used by tests.
func discardLogger() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// maskID keeps the first characters of a session id for log correlation.
func maskID(id string) string {
	if len(id) <= 8 {
		return "****"
	}
	return id[:8] + "…"
}
