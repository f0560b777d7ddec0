// Package registry contains the model lifecycle domain: registered models,
// their versions, deployments and asset bindings.
package registry

import (
	"strings"

	"github.com/aastreli/ml-service/internal/domain/shared"
	"github.com/google/uuid"
)

// ModelFamily is the logical name shared by all fault classifier versions.
const ModelFamily = "fault_classifier"

// Model represents a registered model for a tenant. Versions hang off a
// model; the model row itself only carries identity and description.
type Model struct {
	shared.TenantAggregateRoot
	Name        string `gorm:"size:255;not null"`
	Description string `gorm:"type:text"`
	ModelType   string `gorm:"size:100;not null"`
	IsActive    bool   `gorm:"not null;default:true"`
}

// TableName returns the table name for GORM
func (Model) TableName() string {
	return "ml_models"
}

// NewModel creates a new registered model
func NewModel(tenantID uuid.UUID, name, modelType string) (*Model, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "model name is required")
	}
	if modelType == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "model type is required")
	}
	return &Model{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		Name:                name,
		ModelType:           modelType,
		IsActive:            true,
	}, nil
}

// Deactivate marks the model inactive. Inactive models keep their
// versions but are excluded from serving.
func (m *Model) Deactivate() {
	m.IsActive = false
}
