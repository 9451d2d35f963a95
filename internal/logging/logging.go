// Package logging configures the process-wide slog logger. Hook responses go
// to stdout in one-shot mode, so all logging stays on stderr.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// EnvLevel names the environment variable selecting the log level.
const EnvLevel = "CONDUCTOR_LOG_LEVEL"

// Setup installs the default logger at the level named by CONDUCTOR_LOG_LEVEL
// (debug, info, warn, error; default info) and returns it.
func Setup() *slog.Logger {
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: levelFromEnv(os.Getenv(EnvLevel)),
	}))
	slog.SetDefault(log)
	return log
}

func levelFromEnv(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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
