// Package handler contains the HTTP handlers for the serving API.
package handler

import (
	"errors"
	"net/http"

	"github.com/aastreli/ml-service/internal/domain/shared"
	"github.com/aastreli/ml-service/internal/infrastructure/logger"
	"github.com/aastreli/ml-service/internal/interfaces/http/dto"
	"github.com/aastreli/ml-service/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDKey is the context key for request ID
const RequestIDKey = "X-Request-ID"

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID from the context
func getRequestID(c *gin.Context) string {
	if id := c.GetString("request_id"); id != "" {
		return id
	}
	if id := c.GetHeader(RequestIDKey); id != "" {
		return id
	}
	return ""
}

// getTenantID extracts the tenant ID set by the tenant middleware,
// falling back to the header for routes mounted without it
func getTenantID(c *gin.Context) (uuid.UUID, error) {
	if tenantID, ok := middleware.GetTenantID(c); ok {
		return tenantID, nil
	}
	raw := c.GetHeader(middleware.TenantHeader)
	if raw == "" {
		return uuid.Nil, errors.New("tenant ID not found in request")
	}
	return uuid.Parse(raw)
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Accepted sends a 202 accepted response
func (h *BaseHandler) Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(data))
}

// NoContent sends a 204 no content response
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	requestID := getRequestID(c)
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, requestID))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// ValidationError sends a 400 validation error response with details
func (h *BaseHandler) ValidationError(c *gin.Context, details []dto.ValidationDetail) {
	requestID := getRequestID(c)
	c.JSON(http.StatusBadRequest, dto.NewValidationErrorResponse(
		"Request validation failed",
		requestID,
		details,
	))
}

// HandleError converts domain errors to HTTP responses
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	requestID := getRequestID(c)

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		code := dto.NormalizeErrorCode(domainErr.Code)
		statusCode := dto.GetHTTPStatus(code)
		c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, domainErr.Message, requestID))
		return
	}

	// Domain errors carry their own message; anything else is unexpected
	// and worth the full error in the log.
	logger.FromContext(c.Request.Context()).Error("Unhandled error", zap.Error(err))
	c.JSON(http.StatusInternalServerError, dto.NewErrorResponseWithRequestID(
		dto.ErrCodeInternal,
		"An unexpected error occurred",
		requestID,
	))
}

// bindJSON binds the request body, sending the validation response on failure
func (h *BaseHandler) bindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		middleware.HandleValidationError(c, err)
		return false
	}
	return true
}

// parseUUIDParam parses a UUID path parameter
func (h *BaseHandler) parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.BadRequest(c, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}
