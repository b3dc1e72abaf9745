package context

import (
	"context"

	"github.com/google/uuid"
)

// TraceContext carries the identifiers propagated to the inventory service.
// SessionID groups every call issued by one composer session.
type TraceContext struct {
	TraceID   string
	SpanID    string
	RequestID string
	SessionID string
}

type traceContextKey struct{}

// WithTrace adds TraceContext to context.
func WithTrace(ctx context.Context, trace *TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, trace)
}

// GetTrace returns TraceContext from context.
func GetTrace(ctx context.Context) *TraceContext {
	if v, ok := ctx.Value(traceContextKey{}).(*TraceContext); ok {
		return v
	}
	return nil
}

// NewTraceContext creates a new TraceContext with generated IDs.
func NewTraceContext() *TraceContext {
	return &TraceContext{
		TraceID:   uuid.New().String(),
		SpanID:    uuid.New().String()[:16],
		RequestID: uuid.New().String(),
	}
}

// NewSessionTrace starts a trace for a composer session. Each outgoing
// request derives its own RequestID from it.
func NewSessionTrace() *TraceContext {
	t := NewTraceContext()
	t.SessionID = uuid.New().String()
	return t
}

// ForRequest returns a copy of t with a fresh RequestID and SpanID.
func (t *TraceContext) ForRequest() *TraceContext {
	cp := *t
	cp.RequestID = uuid.New().String()
	cp.SpanID = uuid.New().String()[:16]
	return &cp
}
