package common

import (
	"context"

	"github.com/google/uuid"
)

// traceCtxKey is the unexported key under which a *TraceContext is stored on
// a context.Context. Kept task-local rather than process-wide static state,
// per the gateway's no-global-mutable-state design.
type traceCtxKey struct{}

// TraceContext carries the per-request correlation fields threaded through
// every component call: frontend, router, pool, telemetry.
type TraceContext struct {
	TraceID   string
	RequestID string
	SessionID string
}

// NewTraceContext mints a fresh trace/request id pair for one client request.
// SessionID may be empty and filled in once the session is resolved.
func NewTraceContext(sessionID string) *TraceContext {
	return &TraceContext{
		TraceID:   uuid.NewString(),
		RequestID: uuid.NewString(),
		SessionID: sessionID,
	}
}

// WithTrace returns a child context carrying tc.
func WithTrace(ctx context.Context, tc *TraceContext) context.Context {
	return context.WithValue(ctx, traceCtxKey{}, tc)
}

// TraceFromContext retrieves the TraceContext installed by WithTrace, or nil
// if none is present.
func TraceFromContext(ctx context.Context) *TraceContext {
	tc, _ := ctx.Value(traceCtxKey{}).(*TraceContext)
	return tc
}
