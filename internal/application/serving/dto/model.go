package dto

import (
	"time"

	"github.com/aastreli/ml-service/internal/domain/registry"
	"github.com/google/uuid"
)

// ModelVersionResponse describes a model version
type ModelVersionResponse struct {
	ID               uuid.UUID  `json:"id"`
	ModelID          uuid.UUID  `json:"model_id"`
	SemanticVersion  string     `json:"semantic_version"`
	VersionLabel     string     `json:"version_label"`
	FullVersionLabel string     `json:"full_version_label"`
	Stage            string     `json:"stage"`
	ArtifactPath     string     `json:"artifact_path"`
	TrainingStart    *time.Time `json:"training_start,omitempty"`
	TrainingEnd      *time.Time `json:"training_end,omitempty"`
	Accuracy         *float64   `json:"accuracy,omitempty"`
	BalancedAccuracy *float64   `json:"balanced_accuracy,omitempty"`
	WeightedF1       *float64   `json:"weighted_f1,omitempty"`
	FeedbackCount    int        `json:"feedback_count"`
	IsActive         bool       `json:"is_active"`
	CreatedAt        time.Time  `json:"created_at"`
}

// ToModelVersionResponse converts a domain version to its response shape
func ToModelVersionResponse(v *registry.ModelVersion) *ModelVersionResponse {
	return &ModelVersionResponse{
		ID:               v.ID,
		ModelID:          v.ModelID,
		SemanticVersion:  v.SemanticVersion,
		VersionLabel:     v.VersionLabel,
		FullVersionLabel: v.FullVersionLabel,
		Stage:            string(v.Stage),
		ArtifactPath:     v.ArtifactPath,
		TrainingStart:    v.TrainingStart,
		TrainingEnd:      v.TrainingEnd,
		Accuracy:         v.Accuracy,
		BalancedAccuracy: v.BalancedAccuracy,
		WeightedF1:       v.WeightedF1,
		FeedbackCount:    v.FeedbackCount,
		IsActive:         v.IsActive,
		CreatedAt:        v.CreatedAt,
	}
}

// ToModelVersionResponses converts a slice of domain versions
func ToModelVersionResponses(versions []registry.ModelVersion) []ModelVersionResponse {
	out := make([]ModelVersionResponse, len(versions))
	for i := range versions {
		out[i] = *ToModelVersionResponse(&versions[i])
	}
	return out
}

// DeployRequest is the optional deploy body. IsProduction defaults to
// true when the body or the field is absent.
type DeployRequest struct {
	IsProduction *bool `json:"is_production"`
}

// DeployResponse reports the outcome of a deployment
type DeployResponse struct {
	DeploymentID uuid.UUID            `json:"deployment_id"`
	Version      ModelVersionResponse `json:"version"`
	Production   bool                 `json:"production"`
	DeployedAt   time.Time            `json:"deployed_at"`
}

// DeploymentResponse describes one deployment window
type DeploymentResponse struct {
	ID                    uuid.UUID  `json:"id"`
	VersionID             uuid.UUID  `json:"version_id"`
	IsProduction          bool       `json:"is_production"`
	DeploymentStart       time.Time  `json:"deployment_start"`
	DeploymentEnd         *time.Time `json:"deployment_end,omitempty"`
	RollbackFromVersionID *uuid.UUID `json:"rollback_from_version_id,omitempty"`
}

// ToDeploymentResponse converts one domain deployment
func ToDeploymentResponse(d *registry.Deployment) *DeploymentResponse {
	return &DeploymentResponse{
		ID:                    d.ID,
		VersionID:             d.VersionID,
		IsProduction:          d.IsProduction,
		DeploymentStart:       d.DeploymentStart,
		DeploymentEnd:         d.DeploymentEnd,
		RollbackFromVersionID: d.RollbackFromVersionID,
	}
}

// ToDeploymentResponses converts domain deployments
func ToDeploymentResponses(deployments []registry.Deployment) []DeploymentResponse {
	out := make([]DeploymentResponse, len(deployments))
	for i := range deployments {
		out[i] = *ToDeploymentResponse(&deployments[i])
	}
	return out
}

// VersionMetricsResponse reports the evaluation metrics of a version
type VersionMetricsResponse struct {
	VersionID        uuid.UUID  `json:"version_id"`
	VersionLabel     string     `json:"version_label"`
	Stage            string     `json:"stage"`
	Accuracy         *float64   `json:"accuracy,omitempty"`
	BalancedAccuracy *float64   `json:"balanced_accuracy,omitempty"`
	WeightedF1       *float64   `json:"weighted_f1,omitempty"`
	FeedbackCount    int        `json:"feedback_count"`
	TrainingStart    *time.Time `json:"training_start,omitempty"`
	TrainingEnd      *time.Time `json:"training_end,omitempty"`
}
