package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/aastreli/ml-service/internal/domain/registry"
	"github.com/aastreli/ml-service/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormModelRepository implements ModelRepository using GORM
type GormModelRepository struct {
	db *gorm.DB
}

// NewGormModelRepository creates a new GormModelRepository
func NewGormModelRepository(db *gorm.DB) *GormModelRepository {
	return &GormModelRepository{db: db}
}

// FindByIDForTenant finds a model by ID within a tenant
func (r *GormModelRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*registry.Model, error) {
	var model registry.Model
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &model, nil
}

// FindByNameForTenant finds a model by name within a tenant
func (r *GormModelRepository) FindByNameForTenant(ctx context.Context, tenantID uuid.UUID, name string) (*registry.Model, error) {
	var model registry.Model
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND name = ?", tenantID, name).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &model, nil
}

// FindAllForTenant finds all models for a tenant
func (r *GormModelRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]registry.Model, error) {
	var models []registry.Model
	query := applyFilter(r.db.WithContext(ctx).Model(&registry.Model{}).Where("tenant_id = ?", tenantID), filter)

	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return models, nil
}

// Save creates or updates a model
func (r *GormModelRepository) Save(ctx context.Context, model *registry.Model) error {
	return r.db.WithContext(ctx).Save(model).Error
}

// applyFilter applies pagination and ordering to the query
func applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	for key, value := range filter.Filters {
		switch key {
		case "is_active":
			query = query.Where("is_active = ?", value)
		case "model_type":
			query = query.Where("model_type = ?", value)
		case "stage":
			query = query.Where("stage = ?", value)
		}
	}

	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	if filter.OrderBy != "" {
		orderDir := "ASC"
		if strings.ToLower(filter.OrderDir) == "desc" {
			orderDir = "DESC"
		}
		query = query.Order(filter.OrderBy + " " + orderDir)
	}

	return query
}

// Ensure GormModelRepository implements ModelRepository
var _ registry.ModelRepository = (*GormModelRepository)(nil)
