package handler

import (
	appfeedback "github.com/aastreli/ml-service/internal/application/feedback"
	feedbackdto "github.com/aastreli/ml-service/internal/application/feedback/dto"
	"github.com/gin-gonic/gin"
)

// IdempotencyKeyHeader deduplicates repeated feedback submissions
const IdempotencyKeyHeader = "Idempotency-Key"

// FeedbackHandler records operator feedback on predictions
type FeedbackHandler struct {
	BaseHandler
	service *appfeedback.Service
}

// NewFeedbackHandler creates a new FeedbackHandler
func NewFeedbackHandler(service *appfeedback.Service) *FeedbackHandler {
	return &FeedbackHandler{service: service}
}

// RegisterRoutes registers feedback routes
func (h *FeedbackHandler) RegisterRoutes(rg *gin.RouterGroup) {
	feedback := rg.Group("/feedback")
	{
		feedback.POST("", h.Submit)
		feedback.GET("/stats", h.Stats)
	}
}

// Submit stores one feedback row
func (h *FeedbackHandler) Submit(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "invalid tenant ID")
		return
	}

	var req feedbackdto.SubmitFeedbackRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.service.Submit(c.Request.Context(), tenantID, req, c.GetHeader(IdempotencyKeyHeader))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if resp.Duplicate {
		h.Success(c, resp)
		return
	}
	h.Created(c, resp)
}

// Stats summarizes the tenant's feedback by type
func (h *FeedbackHandler) Stats(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "invalid tenant ID")
		return
	}

	stats, err := h.service.Stats(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}
