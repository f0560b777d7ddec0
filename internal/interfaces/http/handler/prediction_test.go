package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aastreli/ml-service/internal/application/serving"
	"github.com/aastreli/ml-service/internal/domain/registry"
	"github.com/aastreli/ml-service/internal/domain/shared"
	httpdto "github.com/aastreli/ml-service/internal/interfaces/http/dto"
	"github.com/aastreli/ml-service/internal/interfaces/http/middleware"
	"github.com/aastreli/ml-service/internal/ml"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// MockModelVersionRepository is a mock implementation of ModelVersionRepository
type MockModelVersionRepository struct {
	mock.Mock
}

func (m *MockModelVersionRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*registry.ModelVersion, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*registry.ModelVersion), args.Error(1)
}

func (m *MockModelVersionRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]registry.ModelVersion, error) {
	args := m.Called(ctx, tenantID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]registry.ModelVersion), args.Error(1)
}

func (m *MockModelVersionRepository) CountForTenant(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockModelVersionRepository) FindProductionForTenant(ctx context.Context, tenantID uuid.UUID) (*registry.ModelVersion, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*registry.ModelVersion), args.Error(1)
}

func (m *MockModelVersionRepository) Save(ctx context.Context, version *registry.ModelVersion) error {
	args := m.Called(ctx, version)
	return args.Error(0)
}

func (m *MockModelVersionRepository) ServingSnapshot(ctx context.Context) (*registry.ServingSnapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*registry.ServingSnapshot), args.Error(1)
}

// MockAssetBindingRepository is a mock implementation of AssetBindingRepository
type MockAssetBindingRepository struct {
	mock.Mock
}

func (m *MockAssetBindingRepository) ActiveBindings(ctx context.Context) (map[uuid.UUID]uuid.UUID, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID]uuid.UUID), args.Error(1)
}

func (m *MockAssetBindingRepository) Save(ctx context.Context, binding *registry.AssetBinding) error {
	args := m.Called(ctx, binding)
	return args.Error(0)
}

// MockModelLoader is a mock implementation of ModelLoader
type MockModelLoader struct {
	mock.Mock
}

func (m *MockModelLoader) SaveModel(ctx context.Context, version string, model *ml.Model, data *ml.Dataset) error {
	args := m.Called(ctx, version, model, data)
	return args.Error(0)
}

func (m *MockModelLoader) LoadModel(ctx context.Context, version string) (*ml.Model, error) {
	args := m.Called(ctx, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ml.Model), args.Error(1)
}

func (m *MockModelLoader) LoadDataset(ctx context.Context, version string) (*ml.Dataset, error) {
	args := m.Called(ctx, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ml.Dataset), args.Error(1)
}

func newPredictionRouter(t *testing.T) (*gin.Engine, *MockModelLoader, *serving.Registry) {
	t.Helper()

	versionRepo := new(MockModelVersionRepository)
	bindingRepo := new(MockAssetBindingRepository)
	loader := new(MockModelLoader)
	reg := serving.NewRegistry(versionRepo, bindingRepo, loader, serving.RegistryConfig{
		CacheSize:       4,
		RefreshInterval: time.Minute,
	}, zap.NewNop())
	svc := serving.NewPredictionService(reg, 3, zap.NewNop())

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.RequireTenant())
	NewPredictionHandler(svc).RegisterRoutes(r.Group("/api/v1"))
	return r, loader, reg
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, tenantID uuid.UUID, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.TenantHeader, tenantID.String())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPredictionHandler_Predict(t *testing.T) {
	tenantID := uuid.New()

	t.Run("no servable model answers 503", func(t *testing.T) {
		r, _, _ := newPredictionRouter(t)

		w := doJSON(t, r, http.MethodPost, "/api/v1/predictions", tenantID, map[string]any{
			"features": []float64{0.1, 0.2},
		})

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		var resp httpdto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.NotNil(t, resp.Error)
		assert.Equal(t, httpdto.ErrCodeUnavailable, resp.Error.Code)
	})

	t.Run("unknown explicit version degrades to the fallback", func(t *testing.T) {
		r, loader, reg := newPredictionRouter(t)
		loader.On("LoadModel", mock.Anything, "baseline").Return(tinyModel(t, "baseline"), nil).Once()
		require.NoError(t, reg.ActivateFallback(context.Background(), "baseline"))

		w := doJSON(t, r, http.MethodPost, "/api/v1/predictions", tenantID, map[string]any{
			"features":         []float64{0.1, 0.2},
			"model_version_id": uuid.New().String(),
		})

		assert.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Data struct {
				Degraded     bool `json:"degraded"`
				ModelVersion struct {
					Source string `json:"source"`
				} `json:"model_version"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Data.Degraded)
		assert.Equal(t, "fallback", resp.Data.ModelVersion.Source)
	})

	t.Run("unknown explicit version with nothing servable answers 503", func(t *testing.T) {
		r, _, _ := newPredictionRouter(t)

		w := doJSON(t, r, http.MethodPost, "/api/v1/predictions", tenantID, map[string]any{
			"features":         []float64{0.1, 0.2},
			"model_version_id": uuid.New().String(),
		})

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		var resp httpdto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.NotNil(t, resp.Error)
		assert.Equal(t, httpdto.ErrCodeUnavailable, resp.Error.Code)
	})

	t.Run("missing features fails validation", func(t *testing.T) {
		r, _, _ := newPredictionRouter(t)

		w := doJSON(t, r, http.MethodPost, "/api/v1/predictions", tenantID, map[string]any{})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp httpdto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.NotNil(t, resp.Error)
		assert.Equal(t, httpdto.ErrCodeValidation, resp.Error.Code)
	})

	t.Run("top_k above the cap fails validation", func(t *testing.T) {
		r, _, _ := newPredictionRouter(t)

		w := doJSON(t, r, http.MethodPost, "/api/v1/predictions", tenantID, map[string]any{
			"features": []float64{0.1, 0.2},
			"top_k":    50,
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp httpdto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.NotNil(t, resp.Error)
		assert.Equal(t, httpdto.ErrCodeValidation, resp.Error.Code)
	})

	t.Run("missing tenant header answers 400", func(t *testing.T) {
		r, _, _ := newPredictionRouter(t)

		body := bytes.NewBufferString(`{"features":[0.1,0.2]}`)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/predictions", body)
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestPredictionHandler_PredictBatch(t *testing.T) {
	tenantID := uuid.New()

	t.Run("empty samples fails validation", func(t *testing.T) {
		r, _, _ := newPredictionRouter(t)

		w := doJSON(t, r, http.MethodPost, "/api/v1/predictions/batch", tenantID, map[string]any{
			"samples": [][]float64{},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("no servable model answers 503", func(t *testing.T) {
		r, _, _ := newPredictionRouter(t)

		w := doJSON(t, r, http.MethodPost, "/api/v1/predictions/batch", tenantID, map[string]any{
			"samples": [][]float64{{0.1, 0.2}},
		})
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}
