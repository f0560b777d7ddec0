package registry

import (
	"time"

	"github.com/aastreli/ml-service/internal/domain/shared"
	"github.com/google/uuid"
)

// Deployment records a serving window for a model version. A tenant has at
// most one open production deployment at a time; promoting a new version
// closes the previous window in the same transaction.
type Deployment struct {
	shared.BaseEntity
	TenantID              uuid.UUID  `gorm:"type:uuid;not null;index"`
	VersionID             uuid.UUID  `gorm:"type:uuid;not null;index"`
	IsProduction          bool       `gorm:"not null;default:false"`
	DeploymentStart       time.Time  `gorm:"not null"`
	DeploymentEnd         *time.Time `gorm:""`
	RollbackFromVersionID *uuid.UUID `gorm:"type:uuid"`
}

// TableName returns the table name for GORM
func (Deployment) TableName() string {
	return "ml_model_deployments"
}

// NewDeployment opens a deployment window for a version
func NewDeployment(tenantID, versionID uuid.UUID, production bool) *Deployment {
	return &Deployment{
		BaseEntity:      shared.NewBaseEntity(),
		TenantID:        tenantID,
		VersionID:       versionID,
		IsProduction:    production,
		DeploymentStart: time.Now(),
	}
}

// Close ends the deployment window and clears the production flag
func (d *Deployment) Close(at time.Time) {
	d.DeploymentEnd = &at
	d.IsProduction = false
}

// Open reports whether the deployment window is still open
func (d *Deployment) Open() bool {
	return d.DeploymentEnd == nil
}
