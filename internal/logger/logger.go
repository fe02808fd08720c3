package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

var defaultLogger *slog.Logger

type ctxKey string

const (
	runIDKey ctxKey = "run_id"
	fileKey  ctxKey = "file"
)

func init() {
	// Default to JSON handler for structured logs
	defaultLogger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// Init replaces the global logger with one writing to w in the given format
// ("json" or "text") at the given level.
func Init(level, format string, w io.Writer) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "", "json":
		defaultLogger = slog.New(slog.NewJSONHandler(w, opts))
	case "text":
		defaultLogger = slog.New(slog.NewTextHandler(w, opts))
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	return nil
}

// ParseLevel maps debug/info/warn/error onto slog levels. Empty means info.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// SetLogger sets the global logger instance.
func SetLogger(l *slog.Logger) {
	defaultLogger = l
}

// Logger returns the default logger.
func Logger() *slog.Logger {
	return defaultLogger
}

// WithRunID tags ctx with the run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// WithFile tags ctx with the input file being converted.
func WithFile(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, fileKey, path)
}

// RunID returns the run identifier stored in ctx, if any.
func RunID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(runIDKey).(string)
	return id
}

// WithContext returns a logger with context values attached.
func WithContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return defaultLogger
	}

	l := defaultLogger
	if id, ok := ctx.Value(runIDKey).(string); ok && id != "" {
		l = l.With("run_id", id)
	}
	if path, ok := ctx.Value(fileKey).(string); ok && path != "" {
		l = l.With("file", path)
	}
	return l
}

// Info logs at Info level.
func Info(msg string, args ...any) {
	defaultLogger.Info(msg, args...)
}

// InfoContext logs at Info level with context.
func InfoContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Info(msg, args...)
}

// Error logs at Error level.
func Error(msg string, args ...any) {
	defaultLogger.Error(msg, args...)
}

// ErrorContext logs at Error level with context.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Error(msg, args...)
}

// Warn logs at Warn level.
func Warn(msg string, args ...any) {
	defaultLogger.Warn(msg, args...)
}

// WarnContext logs at Warn level with context.
func WarnContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Warn(msg, args...)
}

// Debug logs at Debug level.
func Debug(msg string, args ...any) {
	defaultLogger.Debug(msg, args...)
}

// DebugContext logs at Debug level with context.
func DebugContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Debug(msg, args...)
}
