package logger

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GinMiddleware logs every HTTP request and installs a request-scoped
// logger. The logger carries request_id plus trace correlation fields and
// is stored both in the gin context (key "logger") and in the request
// context, where FromContext picks it up in handlers and services.
func GinMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		// request_id is set by the RequestID middleware, which runs first
		requestID := c.GetString("request_id")

		reqLogger := WithTraceContext(c.Request.Context(), logger.With(
			zap.String("method", c.Request.Method),
			zap.String("path", path),
		))
		ctx, reqLogger := WithRequestID(c.Request.Context(), reqLogger, requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Set("logger", reqLogger)

		c.Next()

		fields := []zap.Field{
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
			zap.Int("body_size", c.Writer.Size()),
		}
		if query != "" {
			fields = append(fields, zap.String("query", query))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.Strings("errors", c.Errors.Errors()))
		}

		msg := "HTTP Request"
		switch status := c.Writer.Status(); {
		case status >= 500:
			reqLogger.Error(msg, fields...)
		case status >= 400:
			reqLogger.Warn(msg, fields...)
		default:
			reqLogger.Info(msg, fields...)
		}
	}
}

// Recovery catches handler panics, logs them with the stack, and answers 500
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				// The request context only carries a logger once
				// GinMiddleware has run; fall back to the base logger
				// for panics raised earlier in the chain.
				l := logger
				if _, exists := c.Get("logger"); exists {
					l = FromContext(c.Request.Context())
				}
				l.Error("Panic recovered",
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.Any("error", err),
					zap.Stack("stacktrace"),
				)
				c.AbortWithStatus(500)
			}
		}()
		c.Next()
	}
}

// GetGinLogger retrieves the request-scoped logger from the gin context
func GetGinLogger(c *gin.Context) *zap.Logger {
	if logger, exists := c.Get("logger"); exists {
		if l, ok := logger.(*zap.Logger); ok {
			return l
		}
	}
	return zap.NewNop()
}
