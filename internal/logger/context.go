package logger

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	TraceIDKey   contextKey = "trace_id"
	ServiceIDKey contextKey = "service_id"
)

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey, id)
}

func GetTraceID(ctx context.Context) string {
	if id, ok := ctx.Value(TraceIDKey).(string); ok {
		return id
	}
	return ""
}

// WithServiceID records the verified caller identity.
func WithServiceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ServiceIDKey, id)
}

func GetServiceID(ctx context.Context) string {
	if id, ok := ctx.Value(ServiceIDKey).(string); ok {
		return id
	}
	return ""
}

// FromContext returns the default logger annotated with the request's trace
// and caller identity, when present.
func FromContext(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if id := GetTraceID(ctx); id != "" {
		l = l.With("trace_id", id)
	}
	if id := GetServiceID(ctx); id != "" {
		l = l.With("service_id", id)
	}
	return l
}
