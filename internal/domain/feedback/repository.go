package feedback

import (
	"context"

	"github.com/google/uuid"
)

// Stats summarizes a tenant's feedback by type
type Stats struct {
	Total         int64            `json:"total"`
	ByType        map[string]int64 `json:"by_type"`
	TrainableRows int64            `json:"trainable_rows"`
}

// Repository provides access to stored feedback
type Repository interface {
	Save(ctx context.Context, fb *Feedback) error
	// CountTrainable counts feedback rows usable for retraining.
	CountTrainable(ctx context.Context, tenantID uuid.UUID) (int64, error)
	// FindTrainable returns feedback rows usable for retraining, oldest first.
	FindTrainable(ctx context.Context, tenantID uuid.UUID, limit int) ([]Feedback, error)
	StatsForTenant(ctx context.Context, tenantID uuid.UUID) (*Stats, error)
}
