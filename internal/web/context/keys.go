package context

import (
	"context"

	"go.uber.org/zap"

	"github.com/conduit-lang/querykit/internal/orm/schema"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey int

const (
	requestIDKey contextKey = iota
	loggerKey
	requestContextKey
)

// GetRequestID extracts the request ID from the context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// SetRequestID adds the request ID to the context
func SetRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// Logger returns the request-scoped logger, or a no-op logger outside a request
func Logger(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

// SetLogger adds a request-scoped logger to the context
func SetLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// GetRequestContext returns the caller identity conditional capabilities are decided on.
// Anonymous requests get the zero value.
func GetRequestContext(ctx context.Context) schema.RequestContext {
	if rc, ok := ctx.Value(requestContextKey).(schema.RequestContext); ok {
		return rc
	}
	return schema.RequestContext{}
}

// SetRequestContext adds the caller identity to the context
func SetRequestContext(ctx context.Context, rc schema.RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey, rc)
}
