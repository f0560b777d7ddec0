package registry

import (
	"context"

	"github.com/aastreli/ml-service/internal/domain/shared"
	"github.com/google/uuid"
)

// ServingSnapshot is the registry's view of the metadata store: which
// version each tenant serves in production and where every servable
// version keeps its artifacts. Both maps are rebuilt wholesale on each
// refresh so readers never observe a partially updated view.
type ServingSnapshot struct {
	// TenantDefaults maps tenant ID to its production version ID.
	TenantDefaults map[uuid.UUID]uuid.UUID
	// VersionPaths maps version ID to its artifact path.
	VersionPaths map[uuid.UUID]string
}

// ModelRepository provides access to registered models
type ModelRepository interface {
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*Model, error)
	FindByNameForTenant(ctx context.Context, tenantID uuid.UUID, name string) (*Model, error)
	FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]Model, error)
	Save(ctx context.Context, model *Model) error
}

// ModelVersionRepository provides access to model versions
type ModelVersionRepository interface {
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*ModelVersion, error)
	FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]ModelVersion, error)
	CountForTenant(ctx context.Context, tenantID uuid.UUID) (int64, error)
	FindProductionForTenant(ctx context.Context, tenantID uuid.UUID) (*ModelVersion, error)
	Save(ctx context.Context, version *ModelVersion) error
	// ServingSnapshot loads the tenant default and artifact path maps for
	// all active, non-deleted versions.
	ServingSnapshot(ctx context.Context) (*ServingSnapshot, error)
}

// DeploymentRepository provides access to deployment records
type DeploymentRepository interface {
	// Promote verifies the version, closes the tenant's open production
	// deployment, stages the version and opens a new deployment window,
	// all in one transaction. Returns the promoted version and the new
	// deployment record. With production false only a window is opened.
	Promote(ctx context.Context, versionID uuid.UUID, production bool) (*ModelVersion, *Deployment, error)
	FindByVersion(ctx context.Context, versionID uuid.UUID) ([]Deployment, error)
	FindOpenProduction(ctx context.Context, tenantID uuid.UUID) (*Deployment, error)
}

// AssetBindingRepository provides access to asset/version bindings
type AssetBindingRepository interface {
	// ActiveBindings returns asset ID -> version ID for all bindings whose
	// version is active and not deleted.
	ActiveBindings(ctx context.Context) (map[uuid.UUID]uuid.UUID, error)
	Save(ctx context.Context, binding *AssetBinding) error
}
