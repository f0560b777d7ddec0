package registry

import (
	"github.com/aastreli/ml-service/internal/domain/shared"
	"github.com/google/uuid"
)

// AssetBinding pins an individual asset to a specific model version,
// overriding the tenant's production default for that asset.
type AssetBinding struct {
	shared.BaseEntity
	TenantID  uuid.UUID `gorm:"type:uuid;not null;index"`
	AssetID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	VersionID uuid.UUID `gorm:"type:uuid;not null;index"`
	// No column default: GORM omits false on insert, so a DB-side
	// default would silently reactivate a deactivated binding.
	IsActive bool `gorm:"not null"`
}

// TableName returns the table name for GORM
func (AssetBinding) TableName() string {
	return "asset_model_versions"
}

// NewAssetBinding creates an active binding between an asset and a version
func NewAssetBinding(tenantID, assetID, versionID uuid.UUID) *AssetBinding {
	return &AssetBinding{
		BaseEntity: shared.NewBaseEntity(),
		TenantID:   tenantID,
		AssetID:    assetID,
		VersionID:  versionID,
		IsActive:   true,
	}
}

// Deactivate disables the binding without deleting it
func (b *AssetBinding) Deactivate() {
	b.IsActive = false
}
