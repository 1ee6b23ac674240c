package entitydb

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with entitydb-specific context.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

// WithStore adds the store id to every record.
func (l *Logger) WithStore(id string) *Logger {
	return &Logger{Logger: l.Logger.With("store", id)}
}

// LogRepair logs the outcome of a repair run.
func (l *Logger) LogRepair(ctx context.Context, reports []Report, err error) {
	var changes int64
	skipped := 0
	for _, r := range reports {
		changes += r.Changes()
		if r.Skipped {
			skipped++
		}
	}
	if err != nil {
		l.ErrorContext(ctx, "repair failed",
			"reports", len(reports),
			"changes", changes,
			"error", err,
		)
		return
	}
	if skipped > 0 {
		l.WarnContext(ctx, "repair completed with skipped types",
			"changes", changes,
			"skipped", skipped,
		)
		return
	}
	l.InfoContext(ctx, "repair completed",
		"reports", len(reports),
		"changes", changes,
	)
}

// LogBackup logs the outcome of a backup.
func (l *Logger) LogBackup(ctx context.Context, stats BackupStats, err error) {
	if err != nil {
		l.ErrorContext(ctx, "backup failed",
			"files", stats.Files,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "backup completed",
		"files", stats.Files,
		"excluded", stats.Excluded,
		"bytes", stats.Bytes,
	)
}
