// Package dto contains request and response shapes for the retraining API.
package dto

import (
	"time"

	servingdto "github.com/aastreli/ml-service/internal/application/serving/dto"
	"github.com/google/uuid"
)

// Run states reported by the retraining API
const (
	StatusStarted   = "started"
	StatusCompleted = "completed"
)

// RetrainRequest starts a retraining run for the tenant's fault
// classifier. Async runs return immediately and train in the background.
// When SelectedFeedbackIDs is set, only those feedback rows feed the run;
// empty means all trainable feedback.
type RetrainRequest struct {
	Async               bool        `json:"async,omitempty"`
	SelectedFeedbackIDs []uuid.UUID `json:"selected_feedback_ids,omitempty"`
}

// RetrainResponse reports a retraining run. Version and Metrics are only
// present for synchronous, completed runs.
type RetrainResponse struct {
	Status        string                           `json:"status"`
	FeedbackCount int                              `json:"feedback_count"`
	SampleCount   int                              `json:"sample_count,omitempty"`
	Degraded      bool                             `json:"degraded"`
	StartedAt     time.Time                        `json:"started_at"`
	CompletedAt   *time.Time                       `json:"completed_at,omitempty"`
	Version       *servingdto.ModelVersionResponse `json:"version,omitempty"`
	Metrics       *MetricsPayload                  `json:"metrics,omitempty"`
}

// MetricsPayload reports validation metrics of a completed run
type MetricsPayload struct {
	Accuracy         float64 `json:"accuracy"`
	BalancedAccuracy float64 `json:"balanced_accuracy"`
	WeightedF1       float64 `json:"weighted_f1"`
	Stratified       bool    `json:"stratified"`
}

// FeedbackGateResponse reports how far a tenant is from the retraining
// feedback threshold.
type FeedbackGateResponse struct {
	TrainableFeedback int64 `json:"trainable_feedback"`
	MinRequired       int   `json:"min_required"`
	Ready             bool  `json:"ready"`
}
