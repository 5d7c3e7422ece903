package catidx

import (
	"context"
	"log/slog"
	"os"

	"github.com/davidvella/catidx/loader"
)

// Logger wraps slog.Logger with build specific helpers.
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
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger creates a Logger that writes JSON to stderr.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger that writes human-readable text to stderr.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

// WithIndex tags the logger with the index being built or served.
func (l *Logger) WithIndex(dest string) *Logger {
	return &Logger{Logger: l.Logger.With("index", dest)}
}

// LogTransition logs a lifecycle state change.
func (l *Logger) LogTransition(ctx context.Context, from, to State) {
	if to == Failed {
		l.WarnContext(ctx, "build state changed", "from", from.String(), "to", to.String())
		return
	}
	l.InfoContext(ctx, "build state changed", "from", from.String(), "to", to.String())
}

// LogProgress logs one committed load batch.
func (l *Logger) LogProgress(ctx context.Context, p loader.Progress) {
	l.DebugContext(ctx, "batch committed",
		"loaded", p.Loaded,
		"avg_bytes_per_entry", p.AvgBytesPerEntry,
		"bytes_read", p.BytesRead,
		"heap_bytes", p.HeapBytes,
	)
}

// LogSummary logs the outcome of a build.
func (l *Logger) LogSummary(ctx context.Context, s Summary, err error) {
	if err != nil {
		l.ErrorContext(ctx, "build failed",
			"scanned", s.Scanned,
			"skipped", s.Skipped,
			"loaded", s.Loaded,
			"elapsed", s.Elapsed,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "build completed",
		"scanned", s.Scanned,
		"skipped", s.Skipped,
		"published", s.Published,
		"key_type", s.KeyType.String(),
		"max_key_width", s.MaxKeyWidth,
		"elapsed", s.Elapsed,
	)
}
