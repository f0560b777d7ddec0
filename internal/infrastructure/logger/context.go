package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// contextKey is a private type for context keys used by the logger package
type contextKey string

const (
	// LoggerKey is the context key for the request-scoped logger
	LoggerKey contextKey = "logger"
	// RequestIDKey is the context key for the request ID
	RequestIDKey contextKey = "request_id"
	// TenantIDKey is the context key for the tenant ID
	TenantIDKey contextKey = "tenant_id"
)

// WithContext returns a new context carrying the given logger. Handlers and
// services read it back with FromContext so log entries keep the request
// scope without threading a logger through every signature.
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext retrieves the logger stored by WithContext. Returns a no-op
// logger when the context carries none, so callers never need a nil check.
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(LoggerKey).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

// WithRequestID stores the request ID in the context and returns the context
// together with a logger that tags every entry with it.
func WithRequestID(ctx context.Context, logger *zap.Logger, requestID string) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, RequestIDKey, requestID)
	enriched := logger.With(zap.String("request_id", requestID))
	return WithContext(ctx, enriched), enriched
}

// WithTenantID stores the tenant ID in the context and returns the context
// together with a logger that tags every entry with it.
func WithTenantID(ctx context.Context, logger *zap.Logger, tenantID string) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, TenantIDKey, tenantID)
	enriched := logger.With(zap.String("tenant_id", tenantID))
	return WithContext(ctx, enriched), enriched
}

// GetRequestID retrieves the request ID from the context, empty if absent
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetTenantID retrieves the tenant ID from the context, empty if absent
func GetTenantID(ctx context.Context) string {
	if tenantID, ok := ctx.Value(TenantIDKey).(string); ok {
		return tenantID
	}
	return ""
}

// WithTraceContext tags the logger with trace_id and span_id from the
// context's active span. Without a valid span the logger comes back
// unchanged, so it is safe to call unconditionally.
func WithTraceContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if !spanCtx.IsValid() {
		return logger
	}
	return logger.With(
		zap.String("trace_id", spanCtx.TraceID().String()),
		zap.String("span_id", spanCtx.SpanID().String()),
	)
}
