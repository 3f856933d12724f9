package core

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

// WithLogger attaches a slog logger to the context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFromContext returns the logger attached to the context, or slog.Default() if absent.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return slog.Default()
	}
	logger, ok := ctx.Value(loggerKey{}).(*slog.Logger)
	if !ok || logger == nil {
		logger = slog.Default()
	}
	return logger
}

// WithRunLogger attaches the run id and a logger carrying it in one step.
func WithRunLogger(ctx context.Context, logger *slog.Logger, runID string) context.Context {
	if logger == nil {
		logger = slog.Default()
	}
	ctx = WithRunID(ctx, runID)
	return WithLogger(ctx, logger.With("run_id", runID))
}
