package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	appfeedback "github.com/aastreli/ml-service/internal/application/feedback"
	"github.com/aastreli/ml-service/internal/domain/feedback"
	"github.com/aastreli/ml-service/internal/infrastructure/cache"
	httpdto "github.com/aastreli/ml-service/internal/interfaces/http/dto"
	"github.com/aastreli/ml-service/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockFeedbackRepository is a mock implementation of feedback.Repository
type MockFeedbackRepository struct {
	mock.Mock
}

func (m *MockFeedbackRepository) Save(ctx context.Context, fb *feedback.Feedback) error {
	args := m.Called(ctx, fb)
	return args.Error(0)
}

func (m *MockFeedbackRepository) CountTrainable(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockFeedbackRepository) FindTrainable(ctx context.Context, tenantID uuid.UUID, limit int) ([]feedback.Feedback, error) {
	args := m.Called(ctx, tenantID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]feedback.Feedback), args.Error(1)
}

func (m *MockFeedbackRepository) StatsForTenant(ctx context.Context, tenantID uuid.UUID) (*feedback.Stats, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*feedback.Stats), args.Error(1)
}

func newFeedbackRouter(repo *MockFeedbackRepository) *gin.Engine {
	svc := appfeedback.NewService(repo, cache.NewInMemoryIdempotencyStore(), zap.NewNop())

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.RequireTenant())
	NewFeedbackHandler(svc).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func TestFeedbackHandler_Submit(t *testing.T) {
	tenantID := uuid.New()

	t.Run("valid correction answers 201", func(t *testing.T) {
		repo := new(MockFeedbackRepository)
		repo.On("Save", mock.Anything, mock.AnythingOfType("*feedback.Feedback")).Return(nil)
		r := newFeedbackRouter(repo)

		w := doJSON(t, r, http.MethodPost, "/api/v1/feedback", tenantID, map[string]any{
			"feedback_type":      "correction",
			"prediction_label":   "normal",
			"probability":        0.62,
			"corrected_label":    "bearing_wear",
			"payload_normalized": map[string]any{"features": []float64{0.1, 0.2}},
		})

		assert.Equal(t, http.StatusCreated, w.Code)
		var resp httpdto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		repo.AssertExpectations(t)
	})

	t.Run("repeated idempotency key answers 200 with duplicate marker", func(t *testing.T) {
		repo := new(MockFeedbackRepository)
		repo.On("Save", mock.Anything, mock.AnythingOfType("*feedback.Feedback")).Return(nil)
		r := newFeedbackRouter(repo)

		body := map[string]any{
			"feedback_type":      "correction",
			"prediction_label":   "normal",
			"probability":        0.62,
			"corrected_label":    "bearing_wear",
			"payload_normalized": map[string]any{"features": []float64{0.1, 0.2}},
		}

		do := func() *httptest.ResponseRecorder {
			raw, err := json.Marshal(body)
			require.NoError(t, err)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/feedback", bytes.NewReader(raw))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set(middleware.TenantHeader, tenantID.String())
			req.Header.Set(IdempotencyKeyHeader, "fb-1")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			return w
		}

		first := do()
		assert.Equal(t, http.StatusCreated, first.Code)

		second := do()
		assert.Equal(t, http.StatusOK, second.Code)
		var resp struct {
			Data struct {
				Duplicate bool `json:"duplicate"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(second.Body.Bytes(), &resp))
		assert.True(t, resp.Data.Duplicate)
		repo.AssertNumberOfCalls(t, "Save", 1)
	})

	t.Run("unknown feedback type fails validation", func(t *testing.T) {
		repo := new(MockFeedbackRepository)
		r := newFeedbackRouter(repo)

		w := doJSON(t, r, http.MethodPost, "/api/v1/feedback", tenantID, map[string]any{
			"feedback_type":    "guess",
			"prediction_label": "normal",
			"probability":      0.5,
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		repo.AssertNotCalled(t, "Save")
	})
}

func TestFeedbackHandler_Stats(t *testing.T) {
	tenantID := uuid.New()

	repo := new(MockFeedbackRepository)
	repo.On("StatsForTenant", mock.Anything, tenantID).Return(&feedback.Stats{
		Total:         3,
		ByType:        map[string]int64{feedback.TypeCorrection: 3},
		TrainableRows: 2,
	}, nil)
	r := newFeedbackRouter(repo)

	w := doJSON(t, r, http.MethodGet, "/api/v1/feedback/stats", tenantID, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data struct {
			Total         int64 `json:"total"`
			TrainableRows int64 `json:"trainable_rows"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(3), resp.Data.Total)
	assert.Equal(t, int64(2), resp.Data.TrainableRows)
}
