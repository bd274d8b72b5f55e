package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type runIDKey struct{}

// Logger wraps slog.Logger and pulls the analysis run ID out of the context.
type Logger struct {
	*slog.Logger
}

// New creates a Logger writing to w (stderr when nil). format is "json" or
// "text"; anything else is json.
func New(level slog.Level, format string, w io.Writer) *Logger {
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	}

	var handler slog.Handler
	switch format {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// Default returns a Logger backed by slog.Default.
func Default() *Logger {
	return &Logger{Logger: slog.Default()}
}

// Discard returns a Logger that drops everything.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// ContextWithRunID stores the run ID for WithContext to pick up.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext returns the run ID stored by ContextWithRunID.
func RunIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(runIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithContext returns a logger carrying the run ID from ctx, if any.
func (l *Logger) WithContext(ctx context.Context) *slog.Logger {
	if id := RunIDFromContext(ctx); id != "" {
		return l.Logger.With(RunID(id))
	}
	return l.Logger
}

// InfoContext logs at Info level with context-aware fields.
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).InfoContext(ctx, msg, args...)
}

// WarnContext logs at Warn level with context-aware fields.
func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).WarnContext(ctx, msg, args...)
}

// ErrorContext logs at Error level with context-aware fields.
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).ErrorContext(ctx, msg, args...)
}

// DebugContext logs at Debug level with context-aware fields.
func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).DebugContext(ctx, msg, args...)
}

// With returns a new logger with the given attributes added.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// ParseLevel converts "debug", "info", "warn" or "error" to a slog.Level.
// Unknown values are Info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// SetDefault makes l the process-wide slog default.
func SetDefault(l *Logger) {
	slog.SetDefault(l.Logger)
}
