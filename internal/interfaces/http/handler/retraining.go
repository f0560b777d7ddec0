package handler

import (
	"github.com/aastreli/ml-service/internal/application/retraining"
	retrainingdto "github.com/aastreli/ml-service/internal/application/retraining/dto"
	"github.com/gin-gonic/gin"
)

// RetrainingHandler starts and inspects retraining runs
type RetrainingHandler struct {
	BaseHandler
	pipeline *retraining.Pipeline
}

// NewRetrainingHandler creates a new RetrainingHandler
func NewRetrainingHandler(pipeline *retraining.Pipeline) *RetrainingHandler {
	return &RetrainingHandler{pipeline: pipeline}
}

// RegisterRoutes registers retraining routes
func (h *RetrainingHandler) RegisterRoutes(rg *gin.RouterGroup) {
	retrain := rg.Group("/retraining")
	{
		retrain.POST("/runs", h.Retrain)
		retrain.GET("/gate", h.FeedbackGate)
	}
}

// Retrain starts a retraining run. Async runs answer 202 immediately.
func (h *RetrainingHandler) Retrain(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "invalid tenant ID")
		return
	}

	// The body is optional; an empty body means a synchronous run.
	var req retrainingdto.RetrainRequest
	if c.Request.ContentLength > 0 {
		if !h.bindJSON(c, &req) {
			return
		}
	}

	resp, err := h.pipeline.Retrain(c.Request.Context(), tenantID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if resp.Status == retrainingdto.StatusStarted {
		h.Accepted(c, resp)
		return
	}
	h.Success(c, resp)
}

// FeedbackGate reports how far the tenant is from the retraining threshold
func (h *RetrainingHandler) FeedbackGate(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "invalid tenant ID")
		return
	}

	gate, err := h.pipeline.FeedbackGate(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gate)
}
