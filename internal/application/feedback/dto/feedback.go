// Package dto contains request and response shapes for the feedback API.
package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SubmitFeedbackRequest records an operator's verdict on a prediction.
// Every verdict carries a corrected label; a "correct" verdict restates
// the prediction. The normalized payload holds the feature vector the
// prediction was made on.
type SubmitFeedbackRequest struct {
	FeedbackType      string          `json:"feedback_type" binding:"required,oneof=correct correction new_fault false_positive"`
	PredictionLabel   string          `json:"prediction_label" binding:"required"`
	Probability       float64         `json:"probability" binding:"min=0,max=1"`
	CorrectedLabel    string          `json:"corrected_label" binding:"required"`
	AssetID           *uuid.UUID      `json:"asset_id,omitempty"`
	PayloadNormalized json.RawMessage `json:"payload_normalized,omitempty"`
}

// FeedbackResponse reports a stored feedback row
type FeedbackResponse struct {
	ID           uuid.UUID `json:"id"`
	FeedbackType string    `json:"feedback_type"`
	Trainable    bool      `json:"trainable"`
	Duplicate    bool      `json:"duplicate"`
	CreatedAt    time.Time `json:"created_at"`
}

// StatsResponse summarizes a tenant's feedback
type StatsResponse struct {
	Total         int64            `json:"total"`
	ByType        map[string]int64 `json:"by_type"`
	TrainableRows int64            `json:"trainable_rows"`
}
