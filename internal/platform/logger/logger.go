package logger

import (
	"log/slog"
	"os"
)

// New returns the structured logger used by long-running services. JSON output
// keeps log aggregation simple.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

// NewCLI returns a text logger for batch jobs where humans read the output
// directly.
func NewCLI(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
