package vecsim

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with vecsim-specific context.
// This provides structured logging with consistent field names.
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
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	}))
}

// With returns a Logger that adds args to every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// WithDimension tags records with the vector dimension.
func (l *Logger) WithDimension(dim int) *Logger {
	return l.With("dimension", dim)
}

// outcome logs "<op> completed" at ok, or "<op> failed" at fail with the
// error attached.
func (l *Logger) outcome(ctx context.Context, op string, ok, fail slog.Level, err error, attrs ...any) {
	if err != nil {
		l.Log(ctx, fail, op+" failed", append(attrs, "error", err)...)
		return
	}
	l.Log(ctx, ok, op+" completed", attrs...)
}

// LogInsert logs a single insert or overwrite.
func (l *Logger) LogInsert(ctx context.Context, key string, overwrite bool, err error) {
	l.outcome(ctx, "insert", slog.LevelDebug, slog.LevelError, err, "key", key, "overwrite", overwrite)
}

// LogBatchInsert logs a batch insert. Partial failure is a warning.
func (l *Logger) LogBatchInsert(ctx context.Context, count, failed int) {
	level := slog.LevelInfo
	if failed > 0 {
		level = slog.LevelWarn
	}
	l.Log(ctx, level, "batch insert completed", "count", count, "failed", failed)
}

// LogSearch logs a k-nearest-neighbor query.
func (l *Logger) LogSearch(ctx context.Context, k, found int, cached bool, err error) {
	l.outcome(ctx, "search", slog.LevelDebug, slog.LevelError, err, "k", k, "results", found, "cached", cached)
}

// LogDelete logs a delete.
func (l *Logger) LogDelete(ctx context.Context, key string, err error) {
	l.outcome(ctx, "delete", slog.LevelDebug, slog.LevelError, err, "key", key)
}

// LogSnapshot logs a snapshot write.
func (l *Logger) LogSnapshot(ctx context.Context, name string, records int, err error) {
	l.outcome(ctx, "snapshot", slog.LevelInfo, slog.LevelError, err, "name", name, "records", records)
}

// LogRecovery logs snapshot loading and journal replay on open.
func (l *Logger) LogRecovery(ctx context.Context, snapshot string, records, replayed int, err error) {
	l.outcome(ctx, "recovery", slog.LevelInfo, slog.LevelError, err,
		"snapshot", snapshot, "records", records, "entries_replayed", replayed)
}

// LogAlgorithmSwitch logs an index algorithm or metric change. A rejected
// switch is logged as a warning; the old index keeps serving.
func (l *Logger) LogAlgorithmSwitch(ctx context.Context, from, to string, records int, err error) {
	l.outcome(ctx, "index switch", slog.LevelInfo, slog.LevelWarn, err, "from", from, "to", to, "records", records)
}
