package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aastreli/ml-service/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequireTenant(t *testing.T) {
	newRouter := func() (*gin.Engine, *uuid.UUID) {
		var captured uuid.UUID
		r := gin.New()
		r.Use(RequireTenant())
		r.GET("/ping", func(c *gin.Context) {
			tenantID, ok := GetTenantID(c)
			require.True(t, ok)
			captured = tenantID
			c.Status(http.StatusOK)
		})
		return r, &captured
	}

	t.Run("valid tenant header passes", func(t *testing.T) {
		r, captured := newRouter()
		tenantID := uuid.New()

		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(TenantHeader, tenantID.String())
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, tenantID, *captured)
	})

	t.Run("missing header is rejected", func(t *testing.T) {
		r, _ := newRouter()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed header is rejected", func(t *testing.T) {
		r, _ := newRouter()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(TenantHeader, "not-a-uuid")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("nil uuid is rejected", func(t *testing.T) {
		r, _ := newRouter()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(TenantHeader, uuid.Nil.String())
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("tenant lands in the request context", func(t *testing.T) {
		tenantID := uuid.New()
		r := gin.New()
		r.Use(RequireTenant())
		r.GET("/ping", func(c *gin.Context) {
			assert.Equal(t, tenantID.String(), logger.GetTenantID(c.Request.Context()))
			c.Status(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(TenantHeader, tenantID.String())
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestServiceKeyAuth(t *testing.T) {
	newRouter := func(key string) *gin.Engine {
		r := gin.New()
		r.Use(ServiceKeyAuth(key))
		r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
		return r
	}

	t.Run("matching key passes", func(t *testing.T) {
		r := newRouter("secret")
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(ServiceKeyHeader, "secret")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("wrong key is rejected", func(t *testing.T) {
		r := newRouter("secret")
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(ServiceKeyHeader, "wrong")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing key is rejected", func(t *testing.T) {
		r := newRouter("secret")
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("empty configured key disables the check", func(t *testing.T) {
		r := newRouter("")
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
