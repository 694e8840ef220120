package migrations

import (
	"context"

	"github.com/jkdp/printshop-migrate/pkg/logger"
)

type loggerKey struct{}

// ContextWithLogger attaches the logger migrations report their steps to
func ContextWithLogger(ctx context.Context, l logger.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// LoggerFromContext returns the attached logger or a no-op logger
func LoggerFromContext(ctx context.Context) logger.Logger {
	if l, ok := ctx.Value(loggerKey{}).(logger.Logger); ok && l != nil {
		return l
	}
	return logger.NewNopLogger()
}
