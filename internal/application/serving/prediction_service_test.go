package serving

import (
	"context"
	"errors"
	"testing"

	"github.com/aastreli/ml-service/internal/application/serving/dto"
	"github.com/aastreli/ml-service/internal/domain/registry"
	"github.com/aastreli/ml-service/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPredictionService_Predict(t *testing.T) {
	tenantID := uuid.New()
	modelID := uuid.New()

	t.Run("predicts with the tenant production model", func(t *testing.T) {
		versionRepo := new(MockModelVersionRepository)
		bindingRepo := new(MockAssetBindingRepository)
		loader := new(MockModelLoader)
		reg := newTestRegistry(versionRepo, bindingRepo, loader)

		version, err := registry.NewModelVersion(tenantID, modelID, 1, "key-v1")
		require.NoError(t, err)
		reg.ApplyDeployment(tenantID, version.ID, "key-v1")

		loader.On("LoadModel", mock.Anything, "key-v1").Return(servableModel(t, "v1"), nil)

		svc := NewPredictionService(reg, 3, zap.NewNop())
		resp, err := svc.Predict(context.Background(), tenantID, dto.PredictRequest{
			Features: []float64{0.1, 0.2},
		})
		require.NoError(t, err)

		assert.Equal(t, "normal", resp.Label)
		assert.Greater(t, resp.Confidence, 0.5)
		assert.False(t, resp.Degraded)
		assert.Equal(t, SourceProduction, resp.ModelVersion.Source)
		// The label comes from the artifact metadata, not a store lookup.
		assert.Equal(t, "v1", resp.ModelVersion.VersionLabel)
		assert.NotEmpty(t, resp.Probabilities)
	})

	t.Run("explicit unknown version degrades to the tenant default", func(t *testing.T) {
		versionRepo := new(MockModelVersionRepository)
		bindingRepo := new(MockAssetBindingRepository)
		loader := new(MockModelLoader)
		reg := newTestRegistry(versionRepo, bindingRepo, loader)

		versionID := uuid.New()
		reg.ApplyDeployment(tenantID, versionID, "key-v1")
		loader.On("LoadModel", mock.Anything, "key-v1").Return(servableModel(t, "v1"), nil)

		svc := NewPredictionService(reg, 3, zap.NewNop())
		unknown := uuid.New()
		resp, err := svc.Predict(context.Background(), tenantID, dto.PredictRequest{
			Features:       []float64{0.1, 0.2},
			ModelVersionID: &unknown,
		})
		require.NoError(t, err)
		assert.Equal(t, SourceProduction, resp.ModelVersion.Source)
		assert.Equal(t, versionID, *resp.ModelVersion.VersionID)
	})

	t.Run("no resolvable model is UNAVAILABLE", func(t *testing.T) {
		versionRepo := new(MockModelVersionRepository)
		bindingRepo := new(MockAssetBindingRepository)
		loader := new(MockModelLoader)
		reg := newTestRegistry(versionRepo, bindingRepo, loader)

		svc := NewPredictionService(reg, 3, zap.NewNop())
		_, err := svc.Predict(context.Background(), tenantID, dto.PredictRequest{
			Features: []float64{0.1, 0.2},
		})
		assert.Equal(t, shared.ErrUnavailable, err)
	})

	t.Run("fallback prediction is flagged degraded", func(t *testing.T) {
		versionRepo := new(MockModelVersionRepository)
		bindingRepo := new(MockAssetBindingRepository)
		loader := new(MockModelLoader)
		reg := newTestRegistry(versionRepo, bindingRepo, loader)

		loader.On("LoadModel", mock.Anything, "default").Return(servableModel(t, "baseline"), nil)
		reg.loadFallback(context.Background())

		svc := NewPredictionService(reg, 3, zap.NewNop())
		resp, err := svc.Predict(context.Background(), tenantID, dto.PredictRequest{
			Features: []float64{5.0, 5.1},
		})
		require.NoError(t, err)

		assert.True(t, resp.Degraded)
		assert.Equal(t, "bearing_wear", resp.Label)
		assert.Equal(t, SourceFallback, resp.ModelVersion.Source)
		assert.Equal(t, "baseline", resp.ModelVersion.VersionLabel)
		assert.Nil(t, resp.ModelVersion.VersionID)
	})

	t.Run("wrong feature dimension is INVALID_INPUT", func(t *testing.T) {
		versionRepo := new(MockModelVersionRepository)
		bindingRepo := new(MockAssetBindingRepository)
		loader := new(MockModelLoader)
		reg := newTestRegistry(versionRepo, bindingRepo, loader)

		versionID := uuid.New()
		reg.ApplyDeployment(tenantID, versionID, "key-v1")
		loader.On("LoadModel", mock.Anything, "key-v1").Return(servableModel(t, "v1"), nil)

		svc := NewPredictionService(reg, 3, zap.NewNop())
		_, err := svc.Predict(context.Background(), tenantID, dto.PredictRequest{
			Features: []float64{0.1, 0.2, 0.3},
		})
		require.Error(t, err)
		var domainErr *shared.DomainError
		require.True(t, errors.As(err, &domainErr))
		assert.Equal(t, "INVALID_INPUT", domainErr.Code)
	})
}

func TestPredictionService_PredictBatch(t *testing.T) {
	tenantID := uuid.New()
	modelID := uuid.New()

	setup := func(t *testing.T) (*PredictionService, *MockModelLoader, *registry.ModelVersion) {
		versionRepo := new(MockModelVersionRepository)
		bindingRepo := new(MockAssetBindingRepository)
		loader := new(MockModelLoader)
		reg := newTestRegistry(versionRepo, bindingRepo, loader)

		version, err := registry.NewModelVersion(tenantID, modelID, 1, "key-v1")
		require.NoError(t, err)
		reg.ApplyDeployment(tenantID, version.ID, "key-v1")
		loader.On("LoadModel", mock.Anything, "key-v1").Return(servableModel(t, "v1"), nil)

		return NewPredictionService(reg, 3, zap.NewNop()), loader, version
	}

	t.Run("classifies all samples with one resolved model", func(t *testing.T) {
		svc, loader, _ := setup(t)

		resp, err := svc.PredictBatch(context.Background(), tenantID, dto.BatchPredictRequest{
			Samples: [][]float64{{0.1, 0.2}, {5.0, 5.1}, {0.2, 0.1}},
		})
		require.NoError(t, err)

		require.Len(t, resp.Predictions, 3)
		assert.Equal(t, "normal", resp.Predictions[0].Label)
		assert.Equal(t, "bearing_wear", resp.Predictions[1].Label)
		assert.Equal(t, "normal", resp.Predictions[2].Label)
		assert.False(t, resp.Degraded)
		loader.AssertNumberOfCalls(t, "LoadModel", 1)
	})

	t.Run("a bad sample aborts the batch", func(t *testing.T) {
		svc, _, _ := setup(t)

		_, err := svc.PredictBatch(context.Background(), tenantID, dto.BatchPredictRequest{
			Samples: [][]float64{{0.1, 0.2}, {5.0}},
		})
		require.Error(t, err)
		var domainErr *shared.DomainError
		require.True(t, errors.As(err, &domainErr))
		assert.Equal(t, "INVALID_INPUT", domainErr.Code)
	})
}
