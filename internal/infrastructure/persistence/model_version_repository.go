package persistence

import (
	"context"
	"errors"

	"github.com/aastreli/ml-service/internal/domain/registry"
	"github.com/aastreli/ml-service/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormModelVersionRepository implements ModelVersionRepository using GORM
type GormModelVersionRepository struct {
	db *gorm.DB
}

// NewGormModelVersionRepository creates a new GormModelVersionRepository
func NewGormModelVersionRepository(db *gorm.DB) *GormModelVersionRepository {
	return &GormModelVersionRepository{db: db}
}

// FindByIDForTenant finds a version by ID within a tenant
func (r *GormModelVersionRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*registry.ModelVersion, error) {
	var version registry.ModelVersion
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&version).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &version, nil
}

// FindAllForTenant finds all versions for a tenant
func (r *GormModelVersionRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]registry.ModelVersion, error) {
	var versions []registry.ModelVersion
	query := applyFilter(r.db.WithContext(ctx).Model(&registry.ModelVersion{}).Where("tenant_id = ?", tenantID), filter)

	if err := query.Find(&versions).Error; err != nil {
		return nil, err
	}
	return versions, nil
}

// CountForTenant counts all versions recorded for a tenant, including
// deleted ones, so version labels never repeat after a deletion.
func (r *GormModelVersionRepository) CountForTenant(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&registry.ModelVersion{}).
		Where("tenant_id = ?", tenantID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// FindProductionForTenant finds the tenant's current production version
func (r *GormModelVersionRepository) FindProductionForTenant(ctx context.Context, tenantID uuid.UUID) (*registry.ModelVersion, error) {
	var version registry.ModelVersion
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND stage = ? AND is_active = ? AND is_deleted = ?",
			tenantID, registry.StageProduction, true, false).
		Order("updated_at DESC").
		First(&version).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &version, nil
}

// Save creates or updates a version
func (r *GormModelVersionRepository) Save(ctx context.Context, version *registry.ModelVersion) error {
	return r.db.WithContext(ctx).Save(version).Error
}

// ServingSnapshot loads the full serving view in one query over the
// active, non-deleted versions. Production rows feed the tenant default
// map; every servable row feeds the artifact path map.
func (r *GormModelVersionRepository) ServingSnapshot(ctx context.Context) (*registry.ServingSnapshot, error) {
	type servingRow struct {
		ID           uuid.UUID
		TenantID     uuid.UUID
		Stage        registry.Stage
		ArtifactPath string
	}

	var rows []servingRow
	if err := r.db.WithContext(ctx).
		Model(&registry.ModelVersion{}).
		Select("id", "tenant_id", "stage", "artifact_path").
		Where("is_active = ? AND is_deleted = ?", true, false).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	snapshot := &registry.ServingSnapshot{
		TenantDefaults: make(map[uuid.UUID]uuid.UUID, len(rows)),
		VersionPaths:   make(map[uuid.UUID]string, len(rows)),
	}
	for _, row := range rows {
		snapshot.VersionPaths[row.ID] = row.ArtifactPath
		if row.Stage == registry.StageProduction {
			snapshot.TenantDefaults[row.TenantID] = row.ID
		}
	}
	return snapshot, nil
}

// Ensure GormModelVersionRepository implements ModelVersionRepository
var _ registry.ModelVersionRepository = (*GormModelVersionRepository)(nil)
