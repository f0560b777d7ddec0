package middleware

import (
	"net/http"

	"github.com/aastreli/ml-service/internal/infrastructure/logger"
	"github.com/aastreli/ml-service/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TenantIDKey is the gin context key holding the validated tenant ID
const TenantIDKey = "tenant_id"

// TenantHeader carries the tenant on every API request
const TenantHeader = "X-Tenant-ID"

// RequireTenant validates the X-Tenant-ID header and stores the parsed
// UUID in the context. Requests without a valid tenant are rejected.
func RequireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(TenantHeader)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponse(
				dto.ErrCodeBadRequest, "X-Tenant-ID header is required"))
			return
		}
		tenantID, err := uuid.Parse(raw)
		if err != nil || tenantID == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponse(
				dto.ErrCodeBadRequest, "X-Tenant-ID must be a valid UUID"))
			return
		}
		c.Set(TenantIDKey, tenantID)

		// Tag the request-scoped logger so every entry downstream of this
		// point carries the tenant.
		ctx, _ := logger.WithTenantID(c.Request.Context(),
			logger.FromContext(c.Request.Context()), tenantID.String())
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// GetTenantID returns the tenant ID stored by RequireTenant
func GetTenantID(c *gin.Context) (uuid.UUID, bool) {
	value, exists := c.Get(TenantIDKey)
	if !exists {
		return uuid.Nil, false
	}
	tenantID, ok := value.(uuid.UUID)
	return tenantID, ok
}
