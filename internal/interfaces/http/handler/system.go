package handler

import (
	"net/http"
	"runtime"
	"time"

	"github.com/aastreli/ml-service/internal/application/serving"
	"github.com/aastreli/ml-service/internal/infrastructure/persistence"
	"github.com/aastreli/ml-service/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// SystemHandler handles health and system info endpoints
type SystemHandler struct {
	BaseHandler
	db        *persistence.Database
	registry  *serving.Registry
	startTime time.Time
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(db *persistence.Database, registry *serving.Registry) *SystemHandler {
	return &SystemHandler{
		db:        db,
		registry:  registry,
		startTime: time.Now(),
	}
}

// RegisterRoutes registers system routes
func (h *SystemHandler) RegisterRoutes(rg *gin.RouterGroup) {
	system := rg.Group("/system")
	{
		system.GET("/info", h.GetSystemInfo)
		system.GET("/health", h.Health)
		system.GET("/ping", h.Ping)
	}
}

// SystemInfoResponse represents the system information response
type SystemInfoResponse struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
}

// GetSystemInfo returns basic system information
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	info := SystemInfoResponse{
		Name:      "Model Serving API",
		Version:   "1.0.0",
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(info))
}

// HealthResponse reports readiness of the service's dependencies
type HealthResponse struct {
	Status         string `json:"status"`
	Database       string `json:"database"`
	CachedModels   int    `json:"cached_models"`
	ActiveBindings int    `json:"active_bindings"`
	FallbackLoaded bool   `json:"fallback_loaded"`
}

// Health reports whether the service can serve predictions. A broken
// metadata store degrades the status but the endpoint still answers 200
// as long as a model can serve.
func (h *SystemHandler) Health(c *gin.Context) {
	resp := HealthResponse{
		Status:         "ok",
		Database:       "ok",
		CachedModels:   h.registry.CacheLen(),
		ActiveBindings: h.registry.BindingCount(),
		FallbackLoaded: h.registry.FallbackLoaded(),
	}

	if err := h.db.Ping(); err != nil {
		resp.Database = "unreachable"
		resp.Status = "degraded"
	}

	status := http.StatusOK
	if resp.Status != "ok" && !resp.FallbackLoaded && resp.CachedModels == 0 {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, dto.NewSuccessResponse(resp))
}

// PingResponse represents the ping response
type PingResponse struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Ping checks if the API is responsive
func (h *SystemHandler) Ping(c *gin.Context) {
	response := PingResponse{
		Message:   "pong",
		Timestamp: time.Now().Format(time.RFC3339),
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(response))
}
