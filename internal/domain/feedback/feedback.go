// Package feedback contains operator feedback on model predictions, the
// raw material for per-tenant retraining.
package feedback

import (
	"github.com/aastreli/ml-service/internal/domain/shared"
	"github.com/google/uuid"
)

// Feedback types
const (
	TypeCorrect       = "correct"
	TypeCorrection    = "correction"
	TypeNewFault      = "new_fault"
	TypeFalsePositive = "false_positive"
)

// ValidType reports whether t is a known feedback type
func ValidType(t string) bool {
	switch t {
	case TypeCorrect, TypeCorrection, TypeNewFault, TypeFalsePositive:
		return true
	}
	return false
}

// Feedback records an operator's verdict on a prediction. Every verdict
// carries a corrected label; for a "correct" verdict it restates the
// prediction. Rows with a corrected label and a feature payload feed
// retraining regardless of type.
type Feedback struct {
	shared.TenantAggregateRoot
	AssetID           *uuid.UUID `gorm:"type:uuid;index"`
	PredictionLabel   string     `gorm:"size:100;not null"`
	Probability       float64    `gorm:"not null"`
	CorrectedLabel    string     `gorm:"size:100;not null"`
	FeedbackType      string     `gorm:"size:20;not null"`
	PayloadNormalized []byte     `gorm:"type:jsonb"`
}

// TableName returns the table name for GORM
func (Feedback) TableName() string {
	return "feedback"
}

// New creates a feedback row. The normalized payload holds the feature
// vector the prediction was made on.
func New(tenantID uuid.UUID, feedbackType, predictionLabel string, probability float64, correctedLabel string, payload []byte) (*Feedback, error) {
	if !ValidType(feedbackType) {
		return nil, shared.NewDomainError("INVALID_INPUT", "unknown feedback type "+feedbackType)
	}
	if predictionLabel == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "prediction label is required")
	}
	if correctedLabel == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "corrected label is required")
	}
	return &Feedback{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		PredictionLabel:     predictionLabel,
		Probability:         probability,
		CorrectedLabel:      correctedLabel,
		FeedbackType:        feedbackType,
		PayloadNormalized:   payload,
	}, nil
}

// NewCorrection creates feedback that corrects a prediction
func NewCorrection(tenantID uuid.UUID, predictionLabel string, probability float64, correctedLabel string, payload []byte) (*Feedback, error) {
	return New(tenantID, TypeCorrection, predictionLabel, probability, correctedLabel, payload)
}

// Trainable reports whether the feedback can be used as a training sample
func (f *Feedback) Trainable() bool {
	return f.CorrectedLabel != "" && len(f.PayloadNormalized) > 0
}
