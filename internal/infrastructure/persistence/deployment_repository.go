package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/aastreli/ml-service/internal/domain/registry"
	"github.com/aastreli/ml-service/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormDeploymentRepository implements DeploymentRepository using GORM
type GormDeploymentRepository struct {
	db *gorm.DB
}

// NewGormDeploymentRepository creates a new GormDeploymentRepository
func NewGormDeploymentRepository(db *gorm.DB) *GormDeploymentRepository {
	return &GormDeploymentRepository{db: db}
}

// Promote runs the full deployment sequence in one transaction: load and
// verify the version, close the tenant's open production window, move the
// version to production and open a new window. A failure at any step rolls
// the whole sequence back so the registry never sees a half deployment.
func (r *GormDeploymentRepository) Promote(ctx context.Context, versionID uuid.UUID, production bool) (*registry.ModelVersion, *registry.Deployment, error) {
	var promoted *registry.ModelVersion
	var created *registry.Deployment

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var version registry.ModelVersion
		if err := tx.First(&version, "id = ?", versionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return shared.ErrNotFound
			}
			return err
		}
		if version.IsDeleted {
			return shared.ErrNotFound
		}

		deployment := registry.NewDeployment(version.TenantID, version.ID, production)

		now := time.Now()
		if production {
			// Close whatever production window the tenant has open and
			// remember which version it served; that is the rollback
			// target of the new deployment.
			var open []registry.Deployment
			if err := tx.
				Where("tenant_id = ? AND is_production = ? AND deployment_end IS NULL",
					version.TenantID, true).
				Find(&open).Error; err != nil {
				return err
			}
			for i := range open {
				open[i].Close(now)
				if err := tx.Save(&open[i]).Error; err != nil {
					return err
				}
			}
			if len(open) > 0 && open[0].VersionID != version.ID {
				rollbackFrom := open[0].VersionID
				deployment.RollbackFromVersionID = &rollbackFrom
			}

			// Demote the previous production versions so a tenant has at
			// most one production row.
			var previous []registry.ModelVersion
			if err := tx.
				Where("tenant_id = ? AND stage = ? AND id <> ?",
					version.TenantID, registry.StageProduction, version.ID).
				Find(&previous).Error; err != nil {
				return err
			}
			for i := range previous {
				previous[i].Demote()
				if err := tx.Save(&previous[i]).Error; err != nil {
					return err
				}
			}

			if err := version.Promote(); err != nil {
				return err
			}
			if err := tx.Save(&version).Error; err != nil {
				return err
			}
		}

		if err := tx.Create(deployment).Error; err != nil {
			return err
		}

		promoted = &version
		created = deployment
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return promoted, created, nil
}

// FindByVersion finds all deployment windows for a version, newest first
func (r *GormDeploymentRepository) FindByVersion(ctx context.Context, versionID uuid.UUID) ([]registry.Deployment, error) {
	var deployments []registry.Deployment
	if err := r.db.WithContext(ctx).
		Where("version_id = ?", versionID).
		Order("deployment_start DESC").
		Find(&deployments).Error; err != nil {
		return nil, err
	}
	return deployments, nil
}

// FindOpenProduction finds the tenant's currently open production deployment
func (r *GormDeploymentRepository) FindOpenProduction(ctx context.Context, tenantID uuid.UUID) (*registry.Deployment, error) {
	var deployment registry.Deployment
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND is_production = ? AND deployment_end IS NULL", tenantID, true).
		First(&deployment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &deployment, nil
}

// Ensure GormDeploymentRepository implements DeploymentRepository
var _ registry.DeploymentRepository = (*GormDeploymentRepository)(nil)
