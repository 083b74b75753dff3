package observability

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey int

const (
	correlationCtx ctxKey = iota
	requestCtx
)

// Attribute keys shared by logs and metrics.
const (
	CorrelationIDKey = "correlation_id"
	RequestIDKey     = "request_id"
	OperationKey     = "operation"
	DurationKey      = "duration_ms"
	ErrorKey         = "error"
)

func withID(ctx context.Context, key ctxKey, id string) context.Context {
	if id == "" {
		id = uuid.NewString()
	}
	return context.WithValue(ctx, key, id)
}

func idFrom(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(key).(string)
	return id
}

// WithCorrelationID stores id in ctx, generating one when id is empty. The
// correlation ID follows an operation through the outbox and the broker.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return withID(ctx, correlationCtx, id)
}

// CorrelationIDFromContext returns the correlation ID, or "".
func CorrelationIDFromContext(ctx context.Context) string { return idFrom(ctx, correlationCtx) }

// WithRequestID stores id in ctx, generating one when id is empty.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withID(ctx, requestCtx, id)
}

// RequestIDFromContext returns the request ID, or "".
func RequestIDFromContext(ctx context.Context) string { return idFrom(ctx, requestCtx) }

// NewRequestContext tags ctx with a fresh request ID and the given
// correlation ID (or a fresh one).
func NewRequestContext(ctx context.Context, correlationID string) context.Context {
	return WithCorrelationID(WithRequestID(ctx, ""), correlationID)
}
