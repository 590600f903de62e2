package logging

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds a structured JSON logger. slog keeps the standard
// library feel while the JSON output ships cleanly to any log backend.
// Component loggers are derived with With("component", ...) so every line
// identifies its subsystem.
func NewLogger(level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: levelFromString(level),
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func levelFromString(level string) slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
