// Package log configures the process-wide structured logger.
package log

import (
	"log/slog"
	"os"
)

// Setup installs the default logger at the requested level. Level names are
// case-insensitive; anything unrecognized falls back to info.
func Setup(logLevel string) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		level = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler).With("app", "leadmill"))
}

// WithModule returns the default logger scoped to an engine module.
func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
