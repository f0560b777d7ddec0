package retraining

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aastreli/ml-service/internal/application/retraining/dto"
	"github.com/aastreli/ml-service/internal/domain/feedback"
	"github.com/aastreli/ml-service/internal/domain/registry"
	"github.com/aastreli/ml-service/internal/domain/shared"
	"github.com/aastreli/ml-service/internal/ml"
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

// MockModelRepository is a mock implementation of registry.ModelRepository
type MockModelRepository struct {
	mock.Mock
}

func (m *MockModelRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*registry.Model, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*registry.Model), args.Error(1)
}

func (m *MockModelRepository) FindByNameForTenant(ctx context.Context, tenantID uuid.UUID, name string) (*registry.Model, error) {
	args := m.Called(ctx, tenantID, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*registry.Model), args.Error(1)
}

func (m *MockModelRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]registry.Model, error) {
	args := m.Called(ctx, tenantID, filter)
	return args.Get(0).([]registry.Model), args.Error(1)
}

func (m *MockModelRepository) Save(ctx context.Context, model *registry.Model) error {
	args := m.Called(ctx, model)
	return args.Error(0)
}

// MockModelVersionRepository is a mock implementation of registry.ModelVersionRepository
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

// MockModelLoader is a mock implementation of registry.ModelLoader
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

func testPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MinFeedback:        10,
		FeedbackMultiplier: 3,
		ValidationRatio:    0.2,
		MaxFeedbackRows:    500,
		Epochs:             100,
		LearningRate:       0.1,
	}
}

// productionModel builds a loaded model whose encoder knows the given
// labels. The pipeline only consults the encoder when unioning label sets.
func productionModel(labels ...string) *ml.Model {
	return &ml.Model{Encoder: ml.NewLabelEncoder(labels)}
}

// correctionRows builds trainable corrections alternating between two
// well-separated feature clusters.
func correctionRows(t *testing.T, tenantID uuid.UUID, n int) []feedback.Feedback {
	t.Helper()

	rows := make([]feedback.Feedback, 0, n)
	for i := 0; i < n; i++ {
		label := "normal"
		features := []float64{0.1 + float64(i%3)*0.05, 0.2 + float64(i%3)*0.05}
		if i%2 == 1 {
			label = "bearing_wear"
			features = []float64{5.0 + float64(i%3)*0.05, 5.1 + float64(i%3)*0.05}
		}
		payload, err := json.Marshal(map[string][]float64{"features": features})
		require.NoError(t, err)
		fb, err := feedback.NewCorrection(tenantID, "normal", 0.6, label, payload)
		require.NoError(t, err)
		rows = append(rows, *fb)
	}
	return rows
}

func TestPipeline_FeedbackGate(t *testing.T) {
	tenantID := uuid.New()

	t.Run("below threshold", func(t *testing.T) {
		feedbackRepo := new(MockFeedbackRepository)
		feedbackRepo.On("CountTrainable", mock.Anything, tenantID).Return(int64(4), nil)
		p := NewPipeline(feedbackRepo, nil, nil, nil, testPipelineConfig(), zap.NewNop())

		gate, err := p.FeedbackGate(context.Background(), tenantID)
		require.NoError(t, err)
		assert.Equal(t, int64(4), gate.TrainableFeedback)
		assert.Equal(t, 10, gate.MinRequired)
		assert.False(t, gate.Ready)
	})

	t.Run("at threshold", func(t *testing.T) {
		feedbackRepo := new(MockFeedbackRepository)
		feedbackRepo.On("CountTrainable", mock.Anything, tenantID).Return(int64(10), nil)
		p := NewPipeline(feedbackRepo, nil, nil, nil, testPipelineConfig(), zap.NewNop())

		gate, err := p.FeedbackGate(context.Background(), tenantID)
		require.NoError(t, err)
		assert.True(t, gate.Ready)
	})
}

func TestPipeline_Retrain_InsufficientFeedback(t *testing.T) {
	tenantID := uuid.New()
	feedbackRepo := new(MockFeedbackRepository)
	feedbackRepo.On("CountTrainable", mock.Anything, tenantID).Return(int64(3), nil)
	p := NewPipeline(feedbackRepo, nil, nil, nil, testPipelineConfig(), zap.NewNop())

	_, err := p.Retrain(context.Background(), tenantID, dto.RetrainRequest{})
	require.Error(t, err)

	var domainErr *shared.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, "INSUFFICIENT_FEEDBACK", domainErr.Code)

	// The threshold rejection happens before the lock, so a concurrent
	// run must still be able to take it.
	assert.True(t, p.lockFor(tenantID).TryLock())
}

func TestPipeline_Retrain_Conflict(t *testing.T) {
	tenantID := uuid.New()
	feedbackRepo := new(MockFeedbackRepository)
	feedbackRepo.On("CountTrainable", mock.Anything, tenantID).Return(int64(20), nil)
	p := NewPipeline(feedbackRepo, nil, nil, nil, testPipelineConfig(), zap.NewNop())

	lock := p.lockFor(tenantID)
	lock.Lock()
	defer lock.Unlock()

	_, err := p.Retrain(context.Background(), tenantID, dto.RetrainRequest{})
	assert.Equal(t, shared.ErrRetrainConflict, err)

	// A different tenant is not affected by the held lock.
	otherTenant := uuid.New()
	feedbackRepo.On("CountTrainable", mock.Anything, otherTenant).Return(int64(0), nil)
	_, err = p.Retrain(context.Background(), otherTenant, dto.RetrainRequest{})
	var domainErr *shared.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, "INSUFFICIENT_FEEDBACK", domainErr.Code)
}

func TestPipeline_Retrain_Sync(t *testing.T) {
	tenantID := uuid.New()
	modelID := uuid.New()

	setup := func(t *testing.T, rows []feedback.Feedback) (*Pipeline, *MockFeedbackRepository, *MockModelRepository, *MockModelVersionRepository, *MockModelLoader) {
		feedbackRepo := new(MockFeedbackRepository)
		modelRepo := new(MockModelRepository)
		versionRepo := new(MockModelVersionRepository)
		loader := new(MockModelLoader)

		feedbackRepo.On("CountTrainable", mock.Anything, tenantID).Return(int64(len(rows)), nil)
		feedbackRepo.On("FindTrainable", mock.Anything, tenantID, 500).Return(rows, nil)

		model := &registry.Model{
			TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
			Name:                registry.ModelFamily,
			ModelType:           "classifier",
		}
		model.ID = modelID
		modelRepo.On("FindByNameForTenant", mock.Anything, tenantID, registry.ModelFamily).Return(model, nil)

		return NewPipeline(feedbackRepo, modelRepo, versionRepo, loader, testPipelineConfig(), zap.NewNop()),
			feedbackRepo, modelRepo, versionRepo, loader
	}

	t.Run("feedback only run is degraded", func(t *testing.T) {
		rows := correctionRows(t, tenantID, 12)
		p, _, _, versionRepo, loader := setup(t, rows)

		versionRepo.On("FindProductionForTenant", mock.Anything, tenantID).Return(nil, shared.ErrNotFound)
		versionRepo.On("CountForTenant", mock.Anything, tenantID).Return(int64(2), nil)
		versionRepo.On("Save", mock.Anything, mock.AnythingOfType("*registry.ModelVersion")).Return(nil)

		expectedKey := fmt.Sprintf("%s_v3", tenantID)
		loader.On("SaveModel", mock.Anything, expectedKey,
			mock.AnythingOfType("*ml.Model"), mock.AnythingOfType("*ml.Dataset")).Return(nil)

		resp, err := p.Retrain(context.Background(), tenantID, dto.RetrainRequest{})
		require.NoError(t, err)

		assert.Equal(t, dto.StatusCompleted, resp.Status)
		assert.Equal(t, 12, resp.FeedbackCount)
		assert.Equal(t, 36, resp.SampleCount) // 12 corrections x multiplier 3
		assert.True(t, resp.Degraded)
		require.NotNil(t, resp.Version)
		assert.Equal(t, "v3", resp.Version.VersionLabel)
		assert.Equal(t, "1.0.3", resp.Version.SemanticVersion)
		assert.Equal(t, registry.ModelFamily+":1.0.3", resp.Version.FullVersionLabel)
		assert.Equal(t, string(registry.StageStaging), resp.Version.Stage)
		require.NotNil(t, resp.Metrics)
		require.NotNil(t, resp.CompletedAt)

		// The lock is released after a synchronous run.
		assert.True(t, p.lockFor(tenantID).TryLock())
		loader.AssertExpectations(t)
		versionRepo.AssertExpectations(t)
	})

	t.Run("selected feedback ids restrict the training set", func(t *testing.T) {
		rows := correctionRows(t, tenantID, 20)
		p, _, _, versionRepo, loader := setup(t, rows)

		selected := make([]uuid.UUID, 0, 12)
		for _, row := range rows[:12] {
			selected = append(selected, row.ID)
		}

		versionRepo.On("FindProductionForTenant", mock.Anything, tenantID).Return(nil, shared.ErrNotFound)
		versionRepo.On("CountForTenant", mock.Anything, tenantID).Return(int64(0), nil)
		versionRepo.On("Save", mock.Anything, mock.AnythingOfType("*registry.ModelVersion")).Return(nil)
		loader.On("SaveModel", mock.Anything, mock.AnythingOfType("string"),
			mock.AnythingOfType("*ml.Model"), mock.AnythingOfType("*ml.Dataset")).Return(nil)

		resp, err := p.Retrain(context.Background(), tenantID, dto.RetrainRequest{SelectedFeedbackIDs: selected})
		require.NoError(t, err)
		assert.Equal(t, 12, resp.FeedbackCount)
		assert.Equal(t, 36, resp.SampleCount)
	})

	t.Run("historical data is merged when dimensions match", func(t *testing.T) {
		rows := correctionRows(t, tenantID, 12)
		p, _, _, versionRepo, loader := setup(t, rows)

		production, err := registry.NewModelVersion(tenantID, modelID, 2, "old-key")
		require.NoError(t, err)
		versionRepo.On("FindProductionForTenant", mock.Anything, tenantID).Return(production, nil)
		loader.On("LoadModel", mock.Anything, "old-key").Return(productionModel("normal", "bearing_wear"), nil)

		historical := &ml.Dataset{}
		for i := 0; i < 8; i++ {
			label := "normal"
			features := []float64{0.3, 0.1}
			if i%2 == 1 {
				label = "bearing_wear"
				features = []float64{4.7, 5.4}
			}
			historical.Append(features, label)
		}
		loader.On("LoadDataset", mock.Anything, "old-key").Return(historical, nil)

		versionRepo.On("CountForTenant", mock.Anything, tenantID).Return(int64(2), nil)
		versionRepo.On("Save", mock.Anything, mock.AnythingOfType("*registry.ModelVersion")).Return(nil)
		loader.On("SaveModel", mock.Anything, mock.AnythingOfType("string"),
			mock.AnythingOfType("*ml.Model"), mock.AnythingOfType("*ml.Dataset")).Return(nil)

		resp, err := p.Retrain(context.Background(), tenantID, dto.RetrainRequest{})
		require.NoError(t, err)
		assert.False(t, resp.Degraded)
		assert.Equal(t, 44, resp.SampleCount) // 12x3 feedback + 8 historical
	})

	t.Run("dimension mismatch degrades to feedback only", func(t *testing.T) {
		rows := correctionRows(t, tenantID, 12)
		p, _, _, versionRepo, loader := setup(t, rows)

		production, err := registry.NewModelVersion(tenantID, modelID, 2, "old-key")
		require.NoError(t, err)
		versionRepo.On("FindProductionForTenant", mock.Anything, tenantID).Return(production, nil)
		loader.On("LoadModel", mock.Anything, "old-key").Return(productionModel("normal", "bearing_wear"), nil)

		historical := &ml.Dataset{}
		historical.Append([]float64{1, 2, 3}, "normal")
		loader.On("LoadDataset", mock.Anything, "old-key").Return(historical, nil)

		versionRepo.On("CountForTenant", mock.Anything, tenantID).Return(int64(2), nil)
		versionRepo.On("Save", mock.Anything, mock.AnythingOfType("*registry.ModelVersion")).Return(nil)
		loader.On("SaveModel", mock.Anything, mock.AnythingOfType("string"),
			mock.AnythingOfType("*ml.Model"), mock.AnythingOfType("*ml.Dataset")).Return(nil)

		resp, err := p.Retrain(context.Background(), tenantID, dto.RetrainRequest{})
		require.NoError(t, err)
		assert.True(t, resp.Degraded)
		assert.Equal(t, 36, resp.SampleCount)
	})

	t.Run("production labels survive a degraded run", func(t *testing.T) {
		rows := correctionRows(t, tenantID, 12)
		p, _, _, versionRepo, loader := setup(t, rows)

		production, err := registry.NewModelVersion(tenantID, modelID, 2, "old-key")
		require.NoError(t, err)
		versionRepo.On("FindProductionForTenant", mock.Anything, tenantID).Return(production, nil)

		// The production classifier knows a class the feedback never
		// mentions, and its training data is gone.
		loader.On("LoadModel", mock.Anything, "old-key").
			Return(productionModel("normal", "bearing_wear", "imbalance"), nil)
		loader.On("LoadDataset", mock.Anything, "old-key").Return(nil, shared.ErrNotFound)

		versionRepo.On("CountForTenant", mock.Anything, tenantID).Return(int64(2), nil)
		versionRepo.On("Save", mock.Anything, mock.AnythingOfType("*registry.ModelVersion")).Return(nil)

		var persisted *ml.Model
		loader.On("SaveModel", mock.Anything, mock.AnythingOfType("string"),
			mock.AnythingOfType("*ml.Model"), mock.AnythingOfType("*ml.Dataset")).
			Run(func(args mock.Arguments) {
				persisted = args.Get(2).(*ml.Model)
			}).Return(nil)

		resp, err := p.Retrain(context.Background(), tenantID, dto.RetrainRequest{})
		require.NoError(t, err)
		assert.True(t, resp.Degraded)

		require.NotNil(t, persisted)
		assert.Equal(t, []string{"bearing_wear", "imbalance", "normal"}, persisted.Encoder.Classes)
		assert.Equal(t, []string{"bearing_wear", "imbalance", "normal"}, persisted.Metadata.Labels)
	})

	t.Run("new feedback label extends the production label set", func(t *testing.T) {
		rows := correctionRows(t, tenantID, 12)
		newFault, err := json.Marshal(map[string][]float64{"features": {9.5, 9.4}})
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			fb, err := feedback.New(tenantID, feedback.TypeNewFault, "normal", 0.4, "shaft_misalignment", newFault)
			require.NoError(t, err)
			rows = append(rows, *fb)
		}
		p, _, _, versionRepo, loader := setup(t, rows)

		production, err := registry.NewModelVersion(tenantID, modelID, 2, "old-key")
		require.NoError(t, err)
		versionRepo.On("FindProductionForTenant", mock.Anything, tenantID).Return(production, nil)
		loader.On("LoadModel", mock.Anything, "old-key").
			Return(productionModel("normal", "bearing_wear"), nil)
		loader.On("LoadDataset", mock.Anything, "old-key").Return(nil, shared.ErrNotFound)

		versionRepo.On("CountForTenant", mock.Anything, tenantID).Return(int64(2), nil)
		versionRepo.On("Save", mock.Anything, mock.AnythingOfType("*registry.ModelVersion")).Return(nil)

		var persisted *ml.Model
		loader.On("SaveModel", mock.Anything, mock.AnythingOfType("string"),
			mock.AnythingOfType("*ml.Model"), mock.AnythingOfType("*ml.Dataset")).
			Run(func(args mock.Arguments) {
				persisted = args.Get(2).(*ml.Model)
			}).Return(nil)

		_, err = p.Retrain(context.Background(), tenantID, dto.RetrainRequest{})
		require.NoError(t, err)

		require.NotNil(t, persisted)
		assert.Equal(t, []string{"bearing_wear", "normal", "shaft_misalignment"}, persisted.Encoder.Classes)
	})

	t.Run("storage failure surfaces as STORAGE_FAILURE and releases the lock", func(t *testing.T) {
		rows := correctionRows(t, tenantID, 12)
		p, _, _, versionRepo, loader := setup(t, rows)

		versionRepo.On("FindProductionForTenant", mock.Anything, tenantID).Return(nil, shared.ErrNotFound)
		versionRepo.On("CountForTenant", mock.Anything, tenantID).Return(int64(0), nil)
		loader.On("SaveModel", mock.Anything, mock.AnythingOfType("string"),
			mock.AnythingOfType("*ml.Model"), mock.AnythingOfType("*ml.Dataset")).Return(assert.AnError)

		_, err := p.Retrain(context.Background(), tenantID, dto.RetrainRequest{})
		assert.Equal(t, shared.ErrStorageFailure, err)
		assert.True(t, p.lockFor(tenantID).TryLock())
	})
}

func TestPipeline_Retrain_Async(t *testing.T) {
	tenantID := uuid.New()
	modelID := uuid.New()
	rows := correctionRows(t, tenantID, 12)

	feedbackRepo := new(MockFeedbackRepository)
	modelRepo := new(MockModelRepository)
	versionRepo := new(MockModelVersionRepository)
	loader := new(MockModelLoader)

	feedbackRepo.On("CountTrainable", mock.Anything, tenantID).Return(int64(len(rows)), nil)
	feedbackRepo.On("FindTrainable", mock.Anything, tenantID, 500).Return(rows, nil)

	model := &registry.Model{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		Name:                registry.ModelFamily,
		ModelType:           "classifier",
	}
	model.ID = modelID
	modelRepo.On("FindByNameForTenant", mock.Anything, tenantID, registry.ModelFamily).Return(model, nil)
	versionRepo.On("FindProductionForTenant", mock.Anything, tenantID).Return(nil, shared.ErrNotFound)
	versionRepo.On("CountForTenant", mock.Anything, tenantID).Return(int64(0), nil)

	saved := make(chan *registry.ModelVersion, 1)
	versionRepo.On("Save", mock.Anything, mock.AnythingOfType("*registry.ModelVersion")).
		Run(func(args mock.Arguments) {
			saved <- args.Get(1).(*registry.ModelVersion)
		}).Return(nil)
	loader.On("SaveModel", mock.Anything, mock.AnythingOfType("string"),
		mock.AnythingOfType("*ml.Model"), mock.AnythingOfType("*ml.Dataset")).Return(nil)

	p := NewPipeline(feedbackRepo, modelRepo, versionRepo, loader, testPipelineConfig(), zap.NewNop())

	resp, err := p.Retrain(context.Background(), tenantID, dto.RetrainRequest{Async: true})
	require.NoError(t, err)
	assert.Equal(t, dto.StatusStarted, resp.Status)
	assert.Equal(t, 12, resp.FeedbackCount)
	assert.Nil(t, resp.Version)

	select {
	case version := <-saved:
		assert.Equal(t, "v1", version.VersionLabel)
		assert.Equal(t, registry.StageStaging, version.Stage)
	case <-time.After(5 * time.Second):
		t.Fatal("async run did not persist a version in time")
	}
}
