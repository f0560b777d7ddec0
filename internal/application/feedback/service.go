// Package feedback implements the application service for recording
// operator feedback on predictions.
package feedback

import (
	"context"
	"time"

	"github.com/aastreli/ml-service/internal/application/feedback/dto"
	"github.com/aastreli/ml-service/internal/domain/feedback"
	"github.com/aastreli/ml-service/internal/domain/shared"
	"github.com/aastreli/ml-service/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// idempotencyTTL bounds how long a submission key suppresses duplicates
const idempotencyTTL = 24 * time.Hour

// Service records feedback and serves feedback statistics. Submissions
// carrying an idempotency key are deduplicated through the shared
// idempotency store.
type Service struct {
	repo        feedback.Repository
	idempotency shared.IdempotencyStore
	logger      *zap.Logger
}

// NewService creates a feedback service
func NewService(repo feedback.Repository, idempotency shared.IdempotencyStore, logger *zap.Logger) *Service {
	return &Service{
		repo:        repo,
		idempotency: idempotency,
		logger:      logger,
	}
}

// Submit stores one feedback row. A repeated idempotency key returns the
// duplicate marker without writing a second row.
func (s *Service) Submit(ctx context.Context, tenantID uuid.UUID, req dto.SubmitFeedbackRequest, idempotencyKey string) (*dto.FeedbackResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "feedback", "submit",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, tenantID.String()))
	defer span.End()

	if idempotencyKey != "" {
		fresh, err := s.idempotency.MarkProcessed(ctx, tenantID.String()+":"+idempotencyKey, idempotencyTTL)
		if err != nil {
			// Deduplication is best effort; a broken store must not block
			// feedback collection.
			s.logger.Warn("Idempotency check failed, accepting submission", zap.Error(err))
		} else if !fresh {
			s.logger.Debug("Duplicate feedback submission suppressed",
				zap.String("tenant_id", tenantID.String()),
				zap.String("idempotency_key", idempotencyKey))
			return &dto.FeedbackResponse{
				FeedbackType: req.FeedbackType,
				Duplicate:    true,
			}, nil
		}
	}

	fb, err := feedback.New(tenantID, req.FeedbackType, req.PredictionLabel, req.Probability, req.CorrectedLabel, req.PayloadNormalized)
	if err != nil {
		return nil, err
	}
	fb.AssetID = req.AssetID

	if err := s.repo.Save(ctx, fb); err != nil {
		s.logger.Error("Failed to save feedback", zap.Error(err))
		telemetry.RecordError(span, err)
		return nil, shared.ErrMetadataStoreFailure
	}

	s.logger.Info("Feedback recorded",
		zap.String("tenant_id", tenantID.String()),
		zap.String("feedback_id", fb.ID.String()),
		zap.String("type", fb.FeedbackType),
		zap.Bool("trainable", fb.Trainable()))

	return &dto.FeedbackResponse{
		ID:           fb.ID,
		FeedbackType: fb.FeedbackType,
		Trainable:    fb.Trainable(),
		CreatedAt:    fb.CreatedAt,
	}, nil
}

// Stats summarizes a tenant's feedback by type
func (s *Service) Stats(ctx context.Context, tenantID uuid.UUID) (*dto.StatsResponse, error) {
	stats, err := s.repo.StatsForTenant(ctx, tenantID)
	if err != nil {
		s.logger.Error("Failed to load feedback stats", zap.Error(err))
		return nil, shared.ErrMetadataStoreFailure
	}
	return &dto.StatsResponse{
		Total:         stats.Total,
		ByType:        stats.ByType,
		TrainableRows: stats.TrainableRows,
	}, nil
}
