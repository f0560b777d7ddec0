// Package dto contains request and response shapes for the serving API.
package dto

import (
	"github.com/aastreli/ml-service/internal/ml"
	"github.com/google/uuid"
)

// PredictRequest asks for a classification of one feature vector.
// ModelVersionID pins an exact version; AssetID lets asset-level bindings
// apply. With neither, the tenant's production default serves the request.
type PredictRequest struct {
	Features       []float64  `json:"features" binding:"required,min=1"`
	AssetID        *uuid.UUID `json:"asset_id,omitempty"`
	ModelVersionID *uuid.UUID `json:"model_version_id,omitempty"`
	TopK           int        `json:"top_k,omitempty" binding:"omitempty,min=1,max=10"`
}

// BatchPredictRequest asks for classifications of several feature vectors
// resolved against the same model.
type BatchPredictRequest struct {
	Samples        [][]float64 `json:"samples" binding:"required,min=1"`
	AssetID        *uuid.UUID  `json:"asset_id,omitempty"`
	ModelVersionID *uuid.UUID  `json:"model_version_id,omitempty"`
	TopK           int         `json:"top_k,omitempty" binding:"omitempty,min=1,max=10"`
}

// LabelScore pairs a label with its probability
type LabelScore struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// PredictionResponse is the result of classifying one feature vector
type PredictionResponse struct {
	Label         string       `json:"label"`
	Confidence    float64      `json:"confidence"`
	Probabilities []LabelScore `json:"probabilities"`
	ModelVersion  ModelInfo    `json:"model_version"`
	Degraded      bool         `json:"degraded"`
}

// BatchPredictionResponse is the result of a batch classification
type BatchPredictionResponse struct {
	Predictions  []PredictionItem `json:"predictions"`
	ModelVersion ModelInfo        `json:"model_version"`
	Degraded     bool             `json:"degraded"`
}

// PredictionItem is one entry of a batch prediction
type PredictionItem struct {
	Label         string       `json:"label"`
	Confidence    float64      `json:"confidence"`
	Probabilities []LabelScore `json:"probabilities"`
}

// ModelInfo identifies the model version that served a prediction
type ModelInfo struct {
	VersionID        *uuid.UUID `json:"version_id,omitempty"`
	VersionLabel     string     `json:"version_label,omitempty"`
	FullVersionLabel string     `json:"full_version_label,omitempty"`
	Source           string     `json:"source"`
}

// ToLabelScores converts ml probability pairs to the DTO shape
func ToLabelScores(scores []ml.LabelScore) []LabelScore {
	out := make([]LabelScore, len(scores))
	for i, s := range scores {
		out[i] = LabelScore{Label: s.Label, Probability: s.Probability}
	}
	return out
}
