package ml

import (
	"fmt"
	"math"
)

// StandardScaler standardizes features to zero mean and unit variance.
// It must be fitted on training data only and reused as-is at inference
// time so that serving sees the same transform the model was trained with.
type StandardScaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// FitScaler computes per-feature mean and standard deviation.
func FitScaler(features [][]float64) (*StandardScaler, error) {
	if len(features) == 0 {
		return nil, fmt.Errorf("cannot fit scaler on empty data")
	}
	dim := len(features[0])
	mean := make([]float64, dim)
	std := make([]float64, dim)

	for _, row := range features {
		if len(row) != dim {
			return nil, fmt.Errorf("inconsistent feature dimension: got %d, want %d", len(row), dim)
		}
		for j, v := range row {
			mean[j] += v
		}
	}
	n := float64(len(features))
	for j := range mean {
		mean[j] /= n
	}
	for _, row := range features {
		for j, v := range row {
			d := v - mean[j]
			std[j] += d * d
		}
	}
	for j := range std {
		std[j] = math.Sqrt(std[j] / n)
		// Constant features pass through unscaled.
		if std[j] == 0 {
			std[j] = 1
		}
	}

	return &StandardScaler{Mean: mean, Std: std}, nil
}

// Transform standardizes a single feature vector.
func (s *StandardScaler) Transform(row []float64) ([]float64, error) {
	if len(row) != len(s.Mean) {
		return nil, fmt.Errorf("feature dimension mismatch: got %d, want %d", len(row), len(s.Mean))
	}
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.Mean[j]) / s.Std[j]
	}
	return out, nil
}

// TransformAll standardizes a batch of feature vectors.
func (s *StandardScaler) TransformAll(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		t, err := s.Transform(row)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

// Dim returns the feature dimension the scaler was fitted on.
func (s *StandardScaler) Dim() int {
	return len(s.Mean)
}
