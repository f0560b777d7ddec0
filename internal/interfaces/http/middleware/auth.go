package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/aastreli/ml-service/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// ServiceKeyHeader authenticates service-to-service callers
const ServiceKeyHeader = "X-Service-Key"

// ServiceKeyAuth rejects requests whose X-Service-Key header does not
// match the configured key. An empty configured key disables the check,
// which is only acceptable in development.
func ServiceKeyAuth(key string) gin.HandlerFunc {
	if key == "" {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	return func(c *gin.Context) {
		presented := c.GetHeader(ServiceKeyHeader)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponse(
				dto.ErrCodeUnauthorized, "invalid or missing service key"))
			return
		}
		c.Next()
	}
}
