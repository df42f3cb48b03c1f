package logger

import (
	"context"
	"log/slog"
)

type ctxLoggerKey struct{}

// WithLogger returns a context carrying l.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxLoggerKey{}, l)
}

// FromContext returns the logger carried by ctx, or slog.Default.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxLoggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// FromContextWithOp returns the context logger with the operation name attached
func FromContextWithOp(ctx context.Context, op string) *slog.Logger {
	return FromContext(ctx).With(slog.String("op", op))
}
