// Package middleware provides HTTP middleware for the serving API.
package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// CORSConfig holds CORS middleware configuration
type CORSConfig struct {
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// DefaultCORSConfig returns default CORS configuration
// NOTE: AllowOrigins is empty by default. An empty list rejects all
// cross-origin requests until configured.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins:     []string{},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization", "X-Request-ID", "X-Tenant-ID", "X-Service-Key", "Idempotency-Key", "Accept", "Origin", "Cache-Control"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
}

// CORS returns a middleware that handles CORS with default configuration
func CORS() gin.HandlerFunc {
	return CORSWithConfig(DefaultCORSConfig())
}

// CORSWithConfig returns a CORS middleware with custom configuration
func CORSWithConfig(cfg CORSConfig) gin.HandlerFunc {
	allowWildcard := false
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			allowWildcard = true
			break
		}
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// Preflight requests always get 204; CORS headers only when the
		// origin is allowed.
		if c.Request.Method == "OPTIONS" {
			if len(cfg.AllowOrigins) > 0 {
				if allowWildcard {
					c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
					setCORSHeaders(c, cfg)
				} else {
					for _, o := range cfg.AllowOrigins {
						if o == origin {
							c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
							if cfg.AllowCredentials {
								c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
							}
							setCORSHeaders(c, cfg)
							break
						}
					}
				}
			}
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		if len(cfg.AllowOrigins) == 0 {
			c.Next()
			return
		}

		var allowedOrigin string
		if allowWildcard {
			allowedOrigin = "*"
		} else {
			for _, o := range cfg.AllowOrigins {
				if o == origin {
					allowedOrigin = origin
					break
				}
			}
			if allowedOrigin == "" && origin != "" {
				c.Next()
				return
			}
		}

		if allowedOrigin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			if cfg.AllowCredentials && allowedOrigin != "*" {
				c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			}
			setCORSHeaders(c, cfg)
		}

		c.Next()
	}
}

// setCORSHeaders sets common CORS headers (methods, headers, expose, max-age)
func setCORSHeaders(c *gin.Context, cfg CORSConfig) {
	c.Writer.Header().Set("Access-Control-Allow-Headers", strings.Join(cfg.AllowHeaders, ", "))
	c.Writer.Header().Set("Access-Control-Allow-Methods", strings.Join(cfg.AllowMethods, ", "))

	if len(cfg.ExposeHeaders) > 0 {
		c.Writer.Header().Set("Access-Control-Expose-Headers", strings.Join(cfg.ExposeHeaders, ", "))
	}

	if cfg.MaxAge > 0 {
		c.Writer.Header().Set("Access-Control-Max-Age", strconv.Itoa(int(cfg.MaxAge.Seconds())))
	}
}

// RequestID adds a unique request ID to each request
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}
		c.Set("request_id", requestID)
		c.Writer.Header().Set("X-Request-ID", requestID)
		c.Next()
	}
}

// generateRequestID generates a unique request ID
func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return time.Now().Format("20060102150405")
	}
	return hex.EncodeToString(bytes)
}

// Secure adds security headers to responses
func Secure() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("X-Frame-Options", "DENY")
		c.Writer.Header().Set("X-Content-Type-Options", "nosniff")
		c.Writer.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}
