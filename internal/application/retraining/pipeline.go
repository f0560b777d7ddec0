// Package retraining implements the per-tenant retraining pipeline: it
// turns accumulated feedback corrections into a new staged model version.
package retraining

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aastreli/ml-service/internal/application/retraining/dto"
	servingdto "github.com/aastreli/ml-service/internal/application/serving/dto"
	"github.com/aastreli/ml-service/internal/domain/feedback"
	"github.com/aastreli/ml-service/internal/domain/registry"
	"github.com/aastreli/ml-service/internal/domain/shared"
	"github.com/aastreli/ml-service/internal/infrastructure/telemetry"
	"github.com/aastreli/ml-service/internal/ml"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PipelineConfig holds the retraining tunables
type PipelineConfig struct {
	MinFeedback        int
	FeedbackMultiplier int
	ValidationRatio    float64
	MaxFeedbackRows    int
	Epochs             int
	LearningRate       float64
}

// Pipeline runs retraining for tenant models. At most one run per
// (tenant, model) is allowed at a time; concurrent attempts are rejected
// with RETRAIN_CONFLICT instead of queueing.
type Pipeline struct {
	feedbackRepo feedback.Repository
	modelRepo    registry.ModelRepository
	versionRepo  registry.ModelVersionRepository
	loader       registry.ModelLoader
	config       PipelineConfig
	logger       *zap.Logger

	locks sync.Map // "tenantID/modelFamily" -> *sync.Mutex
}

// NewPipeline creates a retraining pipeline
func NewPipeline(
	feedbackRepo feedback.Repository,
	modelRepo registry.ModelRepository,
	versionRepo registry.ModelVersionRepository,
	loader registry.ModelLoader,
	config PipelineConfig,
	logger *zap.Logger,
) *Pipeline {
	if config.FeedbackMultiplier < 1 {
		config.FeedbackMultiplier = 1
	}
	return &Pipeline{
		feedbackRepo: feedbackRepo,
		modelRepo:    modelRepo,
		versionRepo:  versionRepo,
		loader:       loader,
		config:       config,
		logger:       logger,
	}
}

// FeedbackGate reports whether a tenant has accumulated enough trainable
// feedback to retrain.
func (p *Pipeline) FeedbackGate(ctx context.Context, tenantID uuid.UUID) (*dto.FeedbackGateResponse, error) {
	count, err := p.feedbackRepo.CountTrainable(ctx, tenantID)
	if err != nil {
		p.logger.Error("Failed to count trainable feedback", zap.Error(err))
		return nil, shared.ErrMetadataStoreFailure
	}
	return &dto.FeedbackGateResponse{
		TrainableFeedback: count,
		MinRequired:       p.config.MinFeedback,
		Ready:             count >= int64(p.config.MinFeedback),
	}, nil
}

// Retrain runs the pipeline for a tenant. The feedback threshold is
// checked before the lock is taken so a rejected request never blocks a
// concurrent legitimate run. Async runs detach from the request context
// and report their outcome through logs and the version table.
func (p *Pipeline) Retrain(ctx context.Context, tenantID uuid.UUID, req dto.RetrainRequest) (*dto.RetrainResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "retraining", "run",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, tenantID.String()))
	defer span.End()

	count, err := p.feedbackRepo.CountTrainable(ctx, tenantID)
	if err != nil {
		p.logger.Error("Failed to count trainable feedback", zap.Error(err))
		telemetry.RecordError(span, err)
		return nil, shared.ErrMetadataStoreFailure
	}
	if count < int64(p.config.MinFeedback) {
		return nil, shared.NewDomainError("INSUFFICIENT_FEEDBACK",
			fmt.Sprintf("need at least %d feedback corrections, have %d", p.config.MinFeedback, count))
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrFeedbackCount, int(count))

	lock := p.lockFor(tenantID)
	if !lock.TryLock() {
		return nil, shared.ErrRetrainConflict
	}

	startedAt := time.Now()

	if req.Async {
		// Detached context: the run must survive the HTTP request that
		// started it.
		runCtx := context.WithoutCancel(ctx)
		go func() {
			defer lock.Unlock()
			if _, err := p.run(runCtx, tenantID, req.SelectedFeedbackIDs, startedAt); err != nil {
				p.logger.Error("Async retraining run failed",
					zap.String("tenant_id", tenantID.String()),
					zap.Error(err))
			}
		}()
		return &dto.RetrainResponse{
			Status:        dto.StatusStarted,
			FeedbackCount: int(count),
			StartedAt:     startedAt,
		}, nil
	}

	defer lock.Unlock()
	result, err := p.run(ctx, tenantID, req.SelectedFeedbackIDs, startedAt)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

func (p *Pipeline) lockFor(tenantID uuid.UUID) *sync.Mutex {
	key := tenantID.String() + "/" + registry.ModelFamily
	actual, _ := p.locks.LoadOrStore(key, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

// trainedArtifacts is the outcome of one training run before persistence
type trainedArtifacts struct {
	model       *ml.Model
	dataset     *ml.Dataset
	metrics     *ml.Metrics
	stratified  bool
	degraded    bool
	feedbackLen int
}

// run executes the full pipeline: assemble the dataset, train, evaluate
// and persist the new staged version.
func (p *Pipeline) run(ctx context.Context, tenantID uuid.UUID, selected []uuid.UUID, startedAt time.Time) (*dto.RetrainResponse, error) {
	trained, err := p.train(ctx, tenantID, selected)
	if err != nil {
		return nil, err
	}

	version, err := p.persist(ctx, tenantID, trained, startedAt)
	if err != nil {
		return nil, err
	}

	completedAt := time.Now()
	p.logger.Info("Retraining run completed",
		zap.String("tenant_id", tenantID.String()),
		zap.String("version_label", version.VersionLabel),
		zap.Int("feedback_count", trained.feedbackLen),
		zap.Int("sample_count", trained.dataset.Len()),
		zap.Float64("accuracy", trained.metrics.Accuracy),
		zap.Float64("balanced_accuracy", trained.metrics.BalancedAccuracy),
		zap.Float64("weighted_f1", trained.metrics.WeightedF1),
		zap.Bool("degraded", trained.degraded),
		zap.Duration("duration", completedAt.Sub(startedAt)))

	return &dto.RetrainResponse{
		Status:        dto.StatusCompleted,
		FeedbackCount: trained.feedbackLen,
		SampleCount:   trained.dataset.Len(),
		Degraded:      trained.degraded,
		StartedAt:     startedAt,
		CompletedAt:   &completedAt,
		Version:       servingdto.ToModelVersionResponse(version),
		Metrics: &dto.MetricsPayload{
			Accuracy:         trained.metrics.Accuracy,
			BalancedAccuracy: trained.metrics.BalancedAccuracy,
			WeightedF1:       trained.metrics.WeightedF1,
			Stratified:       trained.stratified,
		},
	}, nil
}

// feedbackPayload is the normalized payload stored with a correction
type feedbackPayload struct {
	Features []float64 `json:"features"`
}

// train assembles the dataset and fits a new classifier
func (p *Pipeline) train(ctx context.Context, tenantID uuid.UUID, selected []uuid.UUID) (*trainedArtifacts, error) {
	rows, err := p.feedbackRepo.FindTrainable(ctx, tenantID, p.config.MaxFeedbackRows)
	if err != nil {
		p.logger.Error("Failed to load trainable feedback", zap.Error(err))
		return nil, shared.ErrMetadataStoreFailure
	}
	if len(selected) > 0 {
		rows = filterSelected(rows, selected)
	}

	fb := &ml.Dataset{}
	for _, row := range rows {
		var payload feedbackPayload
		if err := json.Unmarshal(row.PayloadNormalized, &payload); err != nil || len(payload.Features) == 0 {
			p.logger.Warn("Skipping feedback row with unparseable payload",
				zap.String("feedback_id", row.ID.String()))
			continue
		}
		fb.Append(payload.Features, row.CorrectedLabel)
	}
	if fb.Len() < p.config.MinFeedback {
		return nil, shared.NewDomainError("INSUFFICIENT_FEEDBACK",
			fmt.Sprintf("only %d of %d feedback rows are usable", fb.Len(), len(rows)))
	}
	if err := fb.Validate(); err != nil {
		return nil, shared.NewDomainError("INVALID_INPUT", err.Error())
	}

	historical, knownLabels, degraded := p.loadHistorical(ctx, tenantID, fb.Dim())

	// Feedback samples are overweighted against the historical set.
	merged := &ml.Dataset{}
	for i := range fb.Labels {
		merged.AppendRepeated(fb.Features[i], fb.Labels[i], p.config.FeedbackMultiplier)
	}
	if historical != nil {
		merged.Merge(historical)
	}

	// The label set is the union of what the production classifier knows
	// and what the feedback introduces, so classes never silently vanish
	// from a retrained version even when the run is degraded.
	labelPool := make([]string, 0, len(merged.Labels)+len(knownLabels))
	labelPool = append(labelPool, merged.Labels...)
	labelPool = append(labelPool, knownLabels...)
	encoder := ml.NewLabelEncoder(labelPool)
	if encoder.NumClasses() < 2 {
		return nil, shared.NewDomainError("INVALID_INPUT",
			"retraining needs feedback for at least 2 distinct labels")
	}
	encoded, err := encoder.EncodeAll(merged.Labels)
	if err != nil {
		return nil, shared.NewDomainError("INVALID_INPUT", err.Error())
	}

	split, err := ml.StratifiedSplit(merged.Features, encoded, p.config.ValidationRatio, time.Now().UnixNano())
	if err != nil {
		return nil, shared.NewDomainError("INVALID_INPUT", err.Error())
	}

	// The scaler is fitted on training rows only so validation metrics
	// are not leaked into the transform.
	scaler, err := ml.FitScaler(split.TrainFeatures)
	if err != nil {
		return nil, shared.NewDomainError("INVALID_INPUT", err.Error())
	}
	scaledTrain, err := scaler.TransformAll(split.TrainFeatures)
	if err != nil {
		return nil, shared.NewDomainError("INVALID_INPUT", err.Error())
	}
	scaledVal, err := scaler.TransformAll(split.ValFeatures)
	if err != nil {
		return nil, shared.NewDomainError("INVALID_INPUT", err.Error())
	}

	weights := ml.BalancedSampleWeights(split.TrainLabels, encoder.NumClasses())

	trainCfg := ml.DefaultTrainConfig()
	if p.config.Epochs > 0 {
		trainCfg.Epochs = p.config.Epochs
	}
	if p.config.LearningRate > 0 {
		trainCfg.LearningRate = p.config.LearningRate
	}
	classifier, err := ml.TrainClassifier(scaledTrain, split.TrainLabels, encoder.NumClasses(), weights, trainCfg)
	if err != nil {
		p.logger.Error("Classifier training failed", zap.Error(err))
		return nil, shared.NewDomainError("INVALID_INPUT", err.Error())
	}

	predicted := make([]int, len(scaledVal))
	for i, row := range scaledVal {
		cls, _, err := classifier.Predict(row)
		if err != nil {
			return nil, shared.NewDomainError("INVALID_INPUT", err.Error())
		}
		predicted[i] = cls
	}
	metrics, err := ml.Evaluate(predicted, split.ValLabels, encoder.NumClasses())
	if err != nil {
		return nil, shared.NewDomainError("INVALID_INPUT", err.Error())
	}

	return &trainedArtifacts{
		model: &ml.Model{
			Classifier: classifier,
			Encoder:    encoder,
			Scaler:     scaler,
		},
		dataset:     merged,
		metrics:     metrics,
		stratified:  split.Stratified,
		degraded:    degraded,
		feedbackLen: fb.Len(),
	}, nil
}

// filterSelected keeps only the rows an operator picked for the run
func filterSelected(rows []feedback.Feedback, selected []uuid.UUID) []feedback.Feedback {
	keep := make(map[uuid.UUID]struct{}, len(selected))
	for _, id := range selected {
		keep[id] = struct{}{}
	}
	filtered := rows[:0]
	for _, row := range rows {
		if _, ok := keep[row.ID]; ok {
			filtered = append(filtered, row)
		}
	}
	return filtered
}

// loadHistorical loads the training data persisted with the tenant's
// production version, plus the label set that version's classifier knows.
// A missing or incompatible historical set degrades the run to
// feedback-only training instead of failing it; the known labels are
// returned even then so the retrained encoder keeps covering them.
func (p *Pipeline) loadHistorical(ctx context.Context, tenantID uuid.UUID, featureDim int) (*ml.Dataset, []string, bool) {
	production, err := p.versionRepo.FindProductionForTenant(ctx, tenantID)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			p.logger.Warn("Production version lookup failed, training on feedback only", zap.Error(err))
		}
		return nil, nil, true
	}

	var knownLabels []string
	if model, err := p.loader.LoadModel(ctx, production.ArtifactPath); err != nil {
		p.logger.Warn("Production model unavailable, label set comes from feedback only",
			zap.String("version_label", production.VersionLabel),
			zap.Error(err))
	} else {
		knownLabels = model.Encoder.Classes
	}

	historical, err := p.loader.LoadDataset(ctx, production.ArtifactPath)
	if err != nil {
		p.logger.Warn("Historical training data unavailable, training on feedback only",
			zap.String("version_label", production.VersionLabel),
			zap.Error(err))
		return nil, knownLabels, true
	}
	if historical.Dim() != featureDim {
		p.logger.Warn("Historical training data has a different feature dimension, training on feedback only",
			zap.Int("historical_dim", historical.Dim()),
			zap.Int("feedback_dim", featureDim))
		return nil, knownLabels, true
	}
	return historical, knownLabels, false
}

// persist stores the artifacts and creates the staged version row
func (p *Pipeline) persist(ctx context.Context, tenantID uuid.UUID, trained *trainedArtifacts, startedAt time.Time) (*registry.ModelVersion, error) {
	model, err := p.ensureModel(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	// The sequence is derived from a count, not a sequence generator, so
	// two concurrent runs for one tenant could collide on the label. The
	// per-tenant lock makes that impossible within a process; across
	// processes the unique index on the full label rejects the loser.
	count, err := p.versionRepo.CountForTenant(ctx, tenantID)
	if err != nil {
		p.logger.Error("Failed to count versions", zap.Error(err))
		return nil, shared.ErrMetadataStoreFailure
	}
	sequence := int(count) + 1
	storageKey := fmt.Sprintf("%s_v%d", tenantID, sequence)

	completedAt := time.Now()
	trained.model.Metadata = ml.ModelMetadata{
		VersionLabel:     fmt.Sprintf("v%d", sequence),
		SemanticVersion:  fmt.Sprintf("1.0.%d", sequence),
		FullVersionLabel: fmt.Sprintf("%s:1.0.%d", registry.ModelFamily, sequence),
		TrainedAt:        completedAt.UTC(),
		FeatureDim:       trained.model.Scaler.Dim(),
		Labels:           trained.model.Encoder.Classes,
		SampleCount:      trained.dataset.Len(),
		Metrics:          trained.metrics,
	}

	if err := p.loader.SaveModel(ctx, storageKey, trained.model, trained.dataset); err != nil {
		p.logger.Error("Failed to persist model artifacts",
			zap.String("storage_key", storageKey),
			zap.Error(err))
		return nil, shared.ErrStorageFailure
	}

	version, err := registry.NewModelVersion(tenantID, model.ID, sequence, storageKey)
	if err != nil {
		return nil, err
	}
	version.RecordTraining(startedAt, completedAt,
		trained.metrics.Accuracy, trained.metrics.BalancedAccuracy, trained.metrics.WeightedF1,
		trained.feedbackLen)

	if err := p.versionRepo.Save(ctx, version); err != nil {
		p.logger.Error("Failed to save model version", zap.Error(err))
		return nil, shared.ErrMetadataStoreFailure
	}
	return version, nil
}

// ensureModel finds or creates the tenant's fault classifier model row
func (p *Pipeline) ensureModel(ctx context.Context, tenantID uuid.UUID) (*registry.Model, error) {
	model, err := p.modelRepo.FindByNameForTenant(ctx, tenantID, registry.ModelFamily)
	if err == nil {
		return model, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		p.logger.Error("Failed to look up model", zap.Error(err))
		return nil, shared.ErrMetadataStoreFailure
	}

	model, err = registry.NewModel(tenantID, registry.ModelFamily, "classifier")
	if err != nil {
		return nil, err
	}
	if err := p.modelRepo.Save(ctx, model); err != nil {
		p.logger.Error("Failed to create model", zap.Error(err))
		return nil, shared.ErrMetadataStoreFailure
	}
	return model, nil
}
