package tiercache

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with cache-specific context. This provides
// structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler. If handler is nil,
// uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// WithSlot adds a slot field to the logger.
func (l *Logger) WithSlot(slot int) *Logger {
	return &Logger{Logger: l.Logger.With("slot", slot)}
}

// LogBuildPass logs the completion of a write pass.
func (l *Logger) LogBuildPass(ctx context.Context, slots int, bytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "build pass failed",
			"slots", slots,
			"bytes", bytes,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "build pass completed",
			"slots", slots,
			"bytes", bytes,
		)
	}
}

// LogReplayPass logs the completion of a read pass.
func (l *Logger) LogReplayPass(ctx context.Context, slots int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "replay pass failed",
			"slots", slots,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "replay pass completed",
			"slots", slots,
		)
	}
}
