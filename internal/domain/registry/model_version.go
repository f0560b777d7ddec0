package registry

import (
	"fmt"
	"time"

	"github.com/aastreli/ml-service/internal/domain/shared"
	"github.com/google/uuid"
)

// Stage represents the lifecycle stage of a model version
type Stage string

// Model version stages
const (
	StageStaging    Stage = "staging"
	StageProduction Stage = "production"
	StageArchived   Stage = "archived"
)

// IsValid checks if the stage is a known value
func (s Stage) IsValid() bool {
	switch s {
	case StageStaging, StageProduction, StageArchived:
		return true
	}
	return false
}

// ModelVersion represents one trained snapshot of a model. New versions
// always enter at the staging stage; promotion to production happens only
// through an explicit deployment.
type ModelVersion struct {
	shared.TenantAggregateRoot
	ModelID          uuid.UUID  `gorm:"type:uuid;not null;index"`
	SemanticVersion  string     `gorm:"size:50;not null"`
	VersionLabel     string     `gorm:"size:50;not null"`
	FullVersionLabel string     `gorm:"size:255;not null;uniqueIndex:idx_version_tenant_full_label,priority:2"`
	Stage            Stage      `gorm:"size:20;not null;default:'staging'"`
	ArtifactPath     string     `gorm:"size:512;not null"`
	TrainingStart    *time.Time `gorm:""`
	TrainingEnd      *time.Time `gorm:""`
	Accuracy         *float64   `gorm:""`
	BalancedAccuracy *float64   `gorm:""`
	WeightedF1       *float64   `gorm:""`
	FeedbackCount    int        `gorm:"not null;default:0"`
	IsActive         bool       `gorm:"not null;default:true"`
	IsDeleted        bool       `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (ModelVersion) TableName() string {
	return "ml_model_versions"
}

// NewModelVersion creates a staged version with labels derived from the
// sequence number: v{n}, 1.0.{n} and "fault_classifier:1.0.{n}".
func NewModelVersion(tenantID, modelID uuid.UUID, sequence int, artifactPath string) (*ModelVersion, error) {
	if sequence < 1 {
		return nil, shared.NewDomainError("INVALID_INPUT", "version sequence must be positive")
	}
	if artifactPath == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "artifact path is required")
	}
	semantic := fmt.Sprintf("1.0.%d", sequence)
	return &ModelVersion{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		ModelID:             modelID,
		SemanticVersion:     semantic,
		VersionLabel:        fmt.Sprintf("v%d", sequence),
		FullVersionLabel:    fmt.Sprintf("%s:%s", ModelFamily, semantic),
		Stage:               StageStaging,
		ArtifactPath:        artifactPath,
		IsActive:            true,
	}, nil
}

// Promote moves the version to the production stage
func (v *ModelVersion) Promote() error {
	if v.IsDeleted {
		return shared.NewDomainError("INVALID_STATE", "cannot promote a deleted version")
	}
	v.Stage = StageProduction
	return nil
}

// Demote moves a production version back to staging
func (v *ModelVersion) Demote() {
	if v.Stage == StageProduction {
		v.Stage = StageStaging
	}
}

// Archive moves the version to the archived stage and takes it out of
// serving. Archived versions stay queryable but no longer load.
func (v *ModelVersion) Archive() {
	v.Stage = StageArchived
	v.IsActive = false
}

// MarkDeleted soft-deletes the version. Deleted versions are excluded
// from serving snapshots and cannot be deployed.
func (v *ModelVersion) MarkDeleted() {
	v.IsDeleted = true
	v.IsActive = false
}

// RecordTraining sets the training window and metrics
func (v *ModelVersion) RecordTraining(start, end time.Time, accuracy, balancedAccuracy, weightedF1 float64, feedbackCount int) {
	v.TrainingStart = &start
	v.TrainingEnd = &end
	v.Accuracy = &accuracy
	v.BalancedAccuracy = &balancedAccuracy
	v.WeightedF1 = &weightedF1
	v.FeedbackCount = feedbackCount
}

// Servable reports whether the version may be loaded for predictions
func (v *ModelVersion) Servable() bool {
	return v.IsActive && !v.IsDeleted
}
