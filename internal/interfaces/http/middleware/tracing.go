package middleware

import (
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Limits on header-derived trace attributes.
const (
	MaxRequestIDLength = 128
	MaxTenantIDLength  = 64
)

// uuidRegex validates UUID format for tenant IDs from headers.
var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	// ServiceName is the name of the service for trace identification.
	ServiceName string
	// Enabled controls whether tracing is active.
	Enabled bool
}

// DefaultTracingConfig returns default tracing configuration.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName: "ml-service",
		Enabled:     true,
	}
}

// Tracing returns OpenTelemetry tracing middleware with default configuration.
func Tracing() gin.HandlerFunc {
	return TracingWithConfig(DefaultTracingConfig())
}

// TracingWithConfig returns OpenTelemetry tracing middleware. It wraps
// otelgin and adds request_id and tenant_id span attributes.
func TracingWithConfig(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	baseMiddleware := otelgin.Middleware(cfg.ServiceName)

	return func(c *gin.Context) {
		baseMiddleware(c)

		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			enrichSpanWithAttributes(c, span)
		}
	}
}

// enrichSpanWithAttributes adds custom attributes to the span from the request context.
func enrichSpanWithAttributes(c *gin.Context, span trace.Span) {
	if requestID := traceRequestID(c); requestID != "" {
		span.SetAttributes(attribute.String("request_id", requestID))
	}
	if tenantID := traceTenantID(c); tenantID != "" {
		span.SetAttributes(attribute.String("tenant_id", tenantID))
	}
}

// traceRequestID retrieves the request ID from the gin context or header.
// Header values are truncated to prevent abuse.
func traceRequestID(c *gin.Context) string {
	if requestID, exists := c.Get("request_id"); exists {
		if id, ok := requestID.(string); ok && id != "" {
			return id
		}
	}

	headerID := c.GetHeader("X-Request-ID")
	if len(headerID) > MaxRequestIDLength {
		return headerID[:MaxRequestIDLength]
	}
	return headerID
}

// traceTenantID retrieves the tenant ID set by RequireTenant, falling
// back to the header. Header values are validated as UUIDs to prevent
// trace data injection.
func traceTenantID(c *gin.Context) string {
	if tenantID, ok := GetTenantID(c); ok {
		return tenantID.String()
	}

	headerTenantID := c.GetHeader(TenantHeader)
	if headerTenantID != "" && len(headerTenantID) <= MaxTenantIDLength && uuidRegex.MatchString(headerTenantID) {
		return headerTenantID
	}
	return ""
}

// SpanErrorMarker returns a middleware that marks spans with error status
// for HTTP error responses (4xx/5xx). Place it AFTER the Tracing
// middleware in the chain.
func SpanErrorMarker() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}

		statusCode := c.Writer.Status()
		if statusCode >= http.StatusBadRequest {
			var errorMessage string
			switch {
			case statusCode >= http.StatusInternalServerError:
				errorMessage = "Server Error"
			case statusCode == http.StatusNotFound:
				errorMessage = "Not Found"
			case statusCode == http.StatusConflict:
				errorMessage = "Conflict"
			default:
				errorMessage = "Client Error"
			}

			span.SetStatus(codes.Error, errorMessage)
			span.SetAttributes(attribute.Int("http.status_code", statusCode))
		}
	}
}
