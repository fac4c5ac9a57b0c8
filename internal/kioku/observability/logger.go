// Package observability configures structured logging for kioku.
//
// It wraps log/slog with trace ID propagation so every log line emitted
// during one flush or retrieval carries the correlation context.
package observability

import (
	"context"
	"log/slog"
	"os"

	"github.com/bdobrica/kioku/common/trace"
)

// Setup configures the global slog logger according to the provided level
// and format strings (e.g. level="info", format="json").
func Setup(level, format string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// WithTrace returns a child of logger carrying the trace_id from ctx, or
// logger unchanged when the context has none.
func WithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if traceID := trace.FromContext(ctx); traceID != "" {
		return logger.With("trace_id", traceID)
	}
	return logger
}
