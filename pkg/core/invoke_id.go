package core

import (
	"context"
)

type invokeIDKey struct{}

// WithInvokeID adds an invokeId to the context
func WithInvokeID(ctx context.Context, invokeID string) context.Context {
	return context.WithValue(ctx, invokeIDKey{}, invokeID)
}

// InvokeIDFromContext returns the invokeId of the call a handler is serving,
// or "" outside a handler
func InvokeIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(invokeIDKey{}).(string); ok {
		return id
	}
	return ""
}
