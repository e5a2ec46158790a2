package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// EnvLogLevel overrides the configured log level when no flag is given.
const EnvLogLevel = "FNSDK_LOG_LEVEL"

// NewLogger returns a JSON logger on stdout tagged with component. Passing a
// *slog.LevelVar lets the level change while the process runs.
func NewLogger(component string, level slog.Leveler) *slog.Logger {
	return NewLoggerTo(os.Stdout, component, level)
}

// NewLoggerTo is NewLogger with an explicit destination.
func NewLoggerTo(w io.Writer, component string, level slog.Leveler) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h).With("component", component)
}

// TraceLogger adds trace_id and span_id from the context to every line.
type TraceLogger struct {
	logger *slog.Logger
}

func NewTraceLogger(logger *slog.Logger) *TraceLogger {
	return &TraceLogger{logger: logger}
}

// For returns the underlying logger, enriched when ctx carries a valid span.
func (l *TraceLogger) For(ctx context.Context) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return l.logger
	}
	return l.logger.With(
		"trace_id", sc.TraceID().String(),
		"span_id", sc.SpanID().String(),
	)
}

func (l *TraceLogger) Debug(ctx context.Context, msg string, args ...any) {
	l.For(ctx).Debug(msg, args...)
}

func (l *TraceLogger) Info(ctx context.Context, msg string, args ...any) {
	l.For(ctx).Info(msg, args...)
}

func (l *TraceLogger) Warn(ctx context.Context, msg string, args ...any) {
	l.For(ctx).Warn(msg, args...)
}

func (l *TraceLogger) Error(ctx context.Context, msg string, args ...any) {
	l.For(ctx).Error(msg, args...)
}

func (l *TraceLogger) With(args ...any) *TraceLogger {
	return &TraceLogger{logger: l.logger.With(args...)}
}

// ParseLogLevel maps debug, info, warn(ing) and error, in any case, to a
// level. Anything else is info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// GetLogLevel resolves the level from a CLI flag, then FNSDK_LOG_LEVEL, then
// the configured value.
func GetLogLevel(flagLevel, configured string) slog.Level {
	if flagLevel != "" {
		return ParseLogLevel(flagLevel)
	}
	if env := os.Getenv(EnvLogLevel); env != "" {
		return ParseLogLevel(env)
	}
	return ParseLogLevel(configured)
}
