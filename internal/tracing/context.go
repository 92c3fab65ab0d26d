// Package tracing carries a per-request trace id through context so log
// lines from an async turn can be tied back to the HTTP request that
// triggered it.
package tracing

import (
	"context"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

type contextKey string

const traceIDKey contextKey = "trace_id"

// NewTraceID generates a new trace id
func NewTraceID() string {
	id, err := gonanoid.New()
	if err != nil {
		return "unknown"
	}
	return id
}

// WithTraceID adds a trace id to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID returns the trace id from the context, or empty
func TraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(traceIDKey).(string)
	return id
}

// EnsureTraceID returns a context that carries a trace id, generating one
// if the context has none
func EnsureTraceID(ctx context.Context) (context.Context, string) {
	if id := TraceID(ctx); id != "" {
		return ctx, id
	}
	id := NewTraceID()
	return WithTraceID(ctx, id), id
}
