package util

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// InitLogger installs a JSON slog logger at the given level as the process
// default. Unknown levels fall back to info.
func InitLogger(level string) *slog.Logger {
	return initLogger(os.Stdout, level)
}

func initLogger(w io.Writer, level string) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     ParseLevel(level),
		AddSource: true,
	}))
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps debug, info, warn/warning and error to slog levels.
func ParseLevel(level string) slog.Level {
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

// SecurityEvent logs an authentication-relevant event in a fixed shape so
// that it can be filtered downstream.
func SecurityEvent(logger *slog.Logger, level slog.Level, event string, attrs ...any) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Log(context.Background(), level, "security_event", append([]any{"event", event}, attrs...)...)
}
