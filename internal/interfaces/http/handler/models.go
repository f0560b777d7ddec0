package handler

import (
	"github.com/aastreli/ml-service/internal/application/serving"
	servingdto "github.com/aastreli/ml-service/internal/application/serving/dto"
	"github.com/aastreli/ml-service/internal/domain/shared"
	"github.com/aastreli/ml-service/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// ModelHandler manages model version lifecycle endpoints
type ModelHandler struct {
	BaseHandler
	service *serving.DeploymentService
}

// NewModelHandler creates a new ModelHandler
func NewModelHandler(service *serving.DeploymentService) *ModelHandler {
	return &ModelHandler{service: service}
}

// RegisterRoutes registers model lifecycle routes
func (h *ModelHandler) RegisterRoutes(rg *gin.RouterGroup) {
	models := rg.Group("/models")
	{
		models.GET("/versions", h.ListVersions)
		models.GET("/versions/:id", h.GetVersion)
		models.POST("/versions/:id/deploy", h.Deploy)
		models.POST("/versions/:id/archive", h.Archive)
		models.DELETE("/versions/:id", h.DeleteVersion)
		models.GET("/versions/:id/deployments", h.History)
		models.GET("/versions/:id/metrics", h.Metrics)
		models.GET("/production", h.CurrentProduction)
		models.POST("/fallback/:version/activate", h.ActivateFallback)
	}
	assets := rg.Group("/assets")
	{
		assets.PUT("/:asset_id/model-version/:id", h.BindAsset)
	}
}

// listVersionsRequest carries the list filters
type listVersionsRequest struct {
	dto.ListRequest
	Stage string `form:"stage" binding:"omitempty,oneof=staging production archived"`
}

// ListVersions lists the tenant's model versions
func (h *ModelHandler) ListVersions(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "invalid tenant ID")
		return
	}

	req := listVersionsRequest{ListRequest: dto.DefaultListRequest()}
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, "invalid list parameters")
		return
	}

	filter := shared.Filter{
		Page:     req.Page,
		PageSize: req.PageSize,
		OrderBy:  req.OrderBy,
		OrderDir: req.OrderDir,
	}
	if req.Stage != "" {
		filter.Filters = map[string]interface{}{"stage": req.Stage}
	}

	versions, err := h.service.ListVersions(c.Request.Context(), tenantID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, versions)
}

// GetVersion returns one model version
func (h *ModelHandler) GetVersion(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "invalid tenant ID")
		return
	}
	versionID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	version, err := h.service.GetVersion(c.Request.Context(), tenantID, versionID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, version)
}

// Deploy promotes a version to the tenant's production slot. The body is
// optional; deployments are production unless is_production says otherwise.
func (h *ModelHandler) Deploy(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "invalid tenant ID")
		return
	}
	versionID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req servingdto.DeployRequest
	if c.Request.ContentLength > 0 {
		if !h.bindJSON(c, &req) {
			return
		}
	}
	production := req.IsProduction == nil || *req.IsProduction

	resp, err := h.service.Deploy(c.Request.Context(), tenantID, versionID, production)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Archive retires a staged version
func (h *ModelHandler) Archive(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "invalid tenant ID")
		return
	}
	versionID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	version, err := h.service.ArchiveVersion(c.Request.Context(), tenantID, versionID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, version)
}

// CurrentProduction returns the tenant's open production deployment
func (h *ModelHandler) CurrentProduction(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "invalid tenant ID")
		return
	}

	deployment, err := h.service.CurrentProduction(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, deployment)
}

// DeleteVersion soft-deletes a version
func (h *ModelHandler) DeleteVersion(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "invalid tenant ID")
		return
	}
	versionID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteVersion(c.Request.Context(), tenantID, versionID); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// History lists the deployment windows of a version
func (h *ModelHandler) History(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "invalid tenant ID")
		return
	}
	versionID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	history, err := h.service.History(c.Request.Context(), tenantID, versionID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, history)
}

// Metrics returns the evaluation metrics of a version
func (h *ModelHandler) Metrics(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "invalid tenant ID")
		return
	}
	versionID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	metrics, err := h.service.Metrics(c.Request.Context(), tenantID, versionID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, metrics)
}

// ActivateFallback swaps the process fallback to a stored version. The
// path parameter is the storage key of the version, not its UUID.
func (h *ModelHandler) ActivateFallback(c *gin.Context) {
	versionKey := c.Param("version")

	if err := h.service.ActivateFallback(c.Request.Context(), versionKey); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"version": versionKey, "activated": true})
}

// BindAsset pins an asset to a model version
func (h *ModelHandler) BindAsset(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "invalid tenant ID")
		return
	}
	assetID, ok := h.parseUUIDParam(c, "asset_id")
	if !ok {
		return
	}
	versionID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.service.BindAsset(c.Request.Context(), tenantID, assetID, versionID); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}
