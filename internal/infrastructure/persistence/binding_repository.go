package persistence

import (
	"context"

	"github.com/aastreli/ml-service/internal/domain/registry"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormAssetBindingRepository implements AssetBindingRepository using GORM
type GormAssetBindingRepository struct {
	db *gorm.DB
}

// NewGormAssetBindingRepository creates a new GormAssetBindingRepository
func NewGormAssetBindingRepository(db *gorm.DB) *GormAssetBindingRepository {
	return &GormAssetBindingRepository{db: db}
}

// ActiveBindings returns asset -> version for every active binding whose
// target version is still servable. Bindings pointing at deleted or
// deactivated versions drop out of the map instead of erroring.
func (r *GormAssetBindingRepository) ActiveBindings(ctx context.Context) (map[uuid.UUID]uuid.UUID, error) {
	type bindingRow struct {
		AssetID   uuid.UUID
		VersionID uuid.UUID
	}

	var rows []bindingRow
	if err := r.db.WithContext(ctx).
		Model(&registry.AssetBinding{}).
		Select("asset_model_versions.asset_id, asset_model_versions.version_id").
		Joins("JOIN ml_model_versions ON ml_model_versions.id = asset_model_versions.version_id").
		Where("asset_model_versions.is_active = ?", true).
		Where("ml_model_versions.is_active = ? AND ml_model_versions.is_deleted = ?", true, false).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	bindings := make(map[uuid.UUID]uuid.UUID, len(rows))
	for _, row := range rows {
		bindings[row.AssetID] = row.VersionID
	}
	return bindings, nil
}

// Save creates or updates a binding
func (r *GormAssetBindingRepository) Save(ctx context.Context, binding *registry.AssetBinding) error {
	return r.db.WithContext(ctx).Save(binding).Error
}

// Ensure GormAssetBindingRepository implements AssetBindingRepository
var _ registry.AssetBindingRepository = (*GormAssetBindingRepository)(nil)
