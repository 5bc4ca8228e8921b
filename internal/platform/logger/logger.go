package logger

import (
	"log/slog"
	"os"
)

// New returns the process-wide structured logger. JSON output so the CRITICAL
// reconciliation markers stay machine-greppable.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}
