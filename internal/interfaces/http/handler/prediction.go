package handler

import (
	"github.com/aastreli/ml-service/internal/application/serving"
	servingdto "github.com/aastreli/ml-service/internal/application/serving/dto"
	"github.com/gin-gonic/gin"
)

// PredictionHandler serves classification requests
type PredictionHandler struct {
	BaseHandler
	service *serving.PredictionService
}

// NewPredictionHandler creates a new PredictionHandler
func NewPredictionHandler(service *serving.PredictionService) *PredictionHandler {
	return &PredictionHandler{service: service}
}

// RegisterRoutes registers prediction routes
func (h *PredictionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	predictions := rg.Group("/predictions")
	{
		predictions.POST("", h.Predict)
		predictions.POST("/batch", h.PredictBatch)
	}
}

// Predict classifies one feature vector
func (h *PredictionHandler) Predict(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "invalid tenant ID")
		return
	}

	var req servingdto.PredictRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.service.Predict(c.Request.Context(), tenantID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// PredictBatch classifies several feature vectors against one model
func (h *PredictionHandler) PredictBatch(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "invalid tenant ID")
		return
	}

	var req servingdto.BatchPredictRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.service.PredictBatch(c.Request.Context(), tenantID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}
