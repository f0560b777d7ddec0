package serving

import (
	"context"

	"github.com/aastreli/ml-service/internal/application/serving/dto"
	"github.com/aastreli/ml-service/internal/domain/shared"
	"github.com/aastreli/ml-service/internal/infrastructure/telemetry"
	"github.com/aastreli/ml-service/internal/ml"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// defaultTopK bounds the probability list returned with predictions
const defaultTopK = 3

// PredictionService classifies feature vectors with the model resolved
// by the registry.
type PredictionService struct {
	registry *Registry
	topK     int
	logger   *zap.Logger
}

// NewPredictionService creates a prediction service
func NewPredictionService(registry *Registry, topK int, logger *zap.Logger) *PredictionService {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &PredictionService{
		registry: registry,
		topK:     topK,
		logger:   logger,
	}
}

// Predict classifies one feature vector. Resolution misses degrade down
// the chain rather than fail; UNAVAILABLE happens only when no model at
// all is servable.
func (s *PredictionService) Predict(ctx context.Context, tenantID uuid.UUID, req dto.PredictRequest) (*dto.PredictionResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "prediction", "predict",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, tenantID.String()))
	defer span.End()

	resolved, err := s.registry.Resolve(ctx, tenantID, req.ModelVersionID, req.AssetID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	topK := req.TopK
	if topK <= 0 {
		topK = s.topK
	}
	prediction, err := resolved.Model.PredictOne(req.Features, topK)
	if err != nil {
		s.logger.Error("Prediction failed on resolved model",
			zap.String("tenant_id", tenantID.String()),
			zap.String("source", resolved.Source),
			zap.Error(err))
		telemetry.RecordError(span, err)
		return nil, shared.NewDomainError("INVALID_INPUT", err.Error())
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrLabel, prediction.Label,
		telemetry.SpanAttrConfidence, prediction.Confidence,
		telemetry.SpanAttrFallback, resolved.Fallback)

	return &dto.PredictionResponse{
		Label:         prediction.Label,
		Confidence:    prediction.Confidence,
		Probabilities: dto.ToLabelScores(prediction.Probabilities),
		ModelVersion:  s.modelInfo(resolved),
		Degraded:      resolved.Fallback,
	}, nil
}

// PredictBatch classifies several feature vectors against one resolved
// model. Per-sample failures abort the batch; resolution failures follow
// the same degradation rules as Predict.
func (s *PredictionService) PredictBatch(ctx context.Context, tenantID uuid.UUID, req dto.BatchPredictRequest) (*dto.BatchPredictionResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "prediction", "predict_batch",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, tenantID.String()),
		telemetry.WithAttribute("sample_count", len(req.Samples)))
	defer span.End()

	resolved, err := s.registry.Resolve(ctx, tenantID, req.ModelVersionID, req.AssetID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	topK := req.TopK
	if topK <= 0 {
		topK = s.topK
	}

	items := make([]dto.PredictionItem, 0, len(req.Samples))
	for i, features := range req.Samples {
		prediction, err := resolved.Model.PredictOne(features, topK)
		if err != nil {
			s.logger.Error("Batch prediction failed",
				zap.String("tenant_id", tenantID.String()),
				zap.Int("sample_index", i),
				zap.Error(err))
			telemetry.RecordError(span, err)
			return nil, shared.NewDomainError("INVALID_INPUT", err.Error())
		}
		items = append(items, dto.PredictionItem{
			Label:         prediction.Label,
			Confidence:    prediction.Confidence,
			Probabilities: dto.ToLabelScores(prediction.Probabilities),
		})
	}

	return &dto.BatchPredictionResponse{
		Predictions:  items,
		ModelVersion: s.modelInfo(resolved),
		Degraded:     resolved.Fallback,
	}, nil
}

// modelInfo builds the version annotation for a response. Labels come
// from the metadata persisted with the artifact, so annotating never
// touches the metadata store on the hot path.
func (s *PredictionService) modelInfo(resolved *ResolvedModel) dto.ModelInfo {
	info := dto.ModelInfo{
		VersionID: resolved.VersionID,
		Source:    resolved.Source,
	}
	if resolved.Fallback {
		info.VersionLabel = fallbackLabel(resolved.Model)
		return info
	}
	if resolved.Model != nil {
		info.VersionLabel = resolved.Model.Metadata.VersionLabel
		info.FullVersionLabel = resolved.Model.Metadata.FullVersionLabel
	}
	return info
}

func fallbackLabel(model *ml.Model) string {
	if model != nil && model.Metadata.VersionLabel != "" {
		return model.Metadata.VersionLabel
	}
	return "fallback"
}
