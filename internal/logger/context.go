package logger

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type (
	loggerKey struct{}
	eventKey  struct{}
)

// ContextWithLogger stores a logger in the context.
func ContextWithLogger(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext returns the context logger, or a nop logger.
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}

// With returns ctx carrying the context logger enriched with fields.
func With(ctx context.Context, fields ...zap.Field) context.Context {
	return ContextWithLogger(ctx, FromContext(ctx).With(fields...))
}

// event accumulates fields for the canonical request line.
type event struct {
	mu     sync.Mutex
	fields []zap.Field
}

// WithEvent starts a canonical-line accumulator for one request.
func WithEvent(ctx context.Context) context.Context {
	return context.WithValue(ctx, eventKey{}, &event{})
}

// Annotate adds fields to the request's canonical line. Outside a request
// started with WithEvent it does nothing.
func Annotate(ctx context.Context, fields ...zap.Field) {
	ev, ok := ctx.Value(eventKey{}).(*event)
	if !ok {
		return
	}
	ev.mu.Lock()
	ev.fields = append(ev.fields, fields...)
	ev.mu.Unlock()
}

// EventFields returns a copy of the fields annotated so far.
func EventFields(ctx context.Context) []zap.Field {
	ev, ok := ctx.Value(eventKey{}).(*event)
	if !ok {
		return nil
	}
	ev.mu.Lock()
	defer ev.mu.Unlock()
	return append([]zap.Field(nil), ev.fields...)
}
