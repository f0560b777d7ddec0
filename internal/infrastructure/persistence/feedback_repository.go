package persistence

import (
	"context"

	"github.com/aastreli/ml-service/internal/domain/feedback"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormFeedbackRepository implements feedback.Repository using GORM
type GormFeedbackRepository struct {
	db *gorm.DB
}

// NewGormFeedbackRepository creates a new GormFeedbackRepository
func NewGormFeedbackRepository(db *gorm.DB) *GormFeedbackRepository {
	return &GormFeedbackRepository{db: db}
}

// Save creates or updates a feedback row
func (r *GormFeedbackRepository) Save(ctx context.Context, fb *feedback.Feedback) error {
	return r.db.WithContext(ctx).Save(fb).Error
}

// CountTrainable counts feedback rows that carry both a corrected label
// and a normalized payload, the rows retraining can actually learn from.
func (r *GormFeedbackRepository) CountTrainable(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var count int64
	if err := r.trainableQuery(ctx, tenantID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// FindTrainable returns trainable feedback for a tenant, oldest first,
// capped at limit rows.
func (r *GormFeedbackRepository) FindTrainable(ctx context.Context, tenantID uuid.UUID, limit int) ([]feedback.Feedback, error) {
	var rows []feedback.Feedback
	query := r.trainableQuery(ctx, tenantID).Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// StatsForTenant summarizes a tenant's feedback by type
func (r *GormFeedbackRepository) StatsForTenant(ctx context.Context, tenantID uuid.UUID) (*feedback.Stats, error) {
	type typeCount struct {
		FeedbackType string
		Count        int64
	}

	var counts []typeCount
	if err := r.db.WithContext(ctx).
		Model(&feedback.Feedback{}).
		Select("feedback_type, COUNT(*) AS count").
		Where("tenant_id = ?", tenantID).
		Group("feedback_type").
		Find(&counts).Error; err != nil {
		return nil, err
	}

	stats := &feedback.Stats{ByType: make(map[string]int64, len(counts))}
	for _, c := range counts {
		stats.ByType[c.FeedbackType] = c.Count
		stats.Total += c.Count
	}

	trainable, err := r.CountTrainable(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	stats.TrainableRows = trainable

	return stats, nil
}

func (r *GormFeedbackRepository) trainableQuery(ctx context.Context, tenantID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&feedback.Feedback{}).
		Where("tenant_id = ?", tenantID).
		Where("corrected_label <> ''").
		Where("payload_normalized IS NOT NULL")
}

// Ensure GormFeedbackRepository implements feedback.Repository
var _ feedback.Repository = (*GormFeedbackRepository)(nil)
