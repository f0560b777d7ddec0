package ml

import "fmt"

// Dataset is a labelled training set: one feature vector per label. It is
// the shape persisted as the training data artifact alongside a model.
type Dataset struct {
	Features [][]float64 `json:"features"`
	Labels   []string    `json:"labels"`
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return len(d.Labels)
}

// Validate checks that features and labels line up and that feature
// dimensions are consistent.
func (d *Dataset) Validate() error {
	if len(d.Features) != len(d.Labels) {
		return fmt.Errorf("dataset has %d feature rows but %d labels", len(d.Features), len(d.Labels))
	}
	if len(d.Features) == 0 {
		return nil
	}
	dim := len(d.Features[0])
	for i, row := range d.Features {
		if len(row) != dim {
			return fmt.Errorf("inconsistent feature dimension at row %d: got %d, want %d", i, len(row), dim)
		}
	}
	return nil
}

// Dim returns the feature dimension, or 0 for an empty dataset.
func (d *Dataset) Dim() int {
	if len(d.Features) == 0 {
		return 0
	}
	return len(d.Features[0])
}

// Append adds one sample.
func (d *Dataset) Append(features []float64, label string) {
	d.Features = append(d.Features, features)
	d.Labels = append(d.Labels, label)
}

// AppendRepeated adds one sample n times. Used to overweight feedback
// samples relative to historical training data.
func (d *Dataset) AppendRepeated(features []float64, label string, n int) {
	for i := 0; i < n; i++ {
		d.Append(features, label)
	}
}

// Merge appends all samples from another dataset.
func (d *Dataset) Merge(other *Dataset) {
	d.Features = append(d.Features, other.Features...)
	d.Labels = append(d.Labels, other.Labels...)
}

// LabelSet returns the distinct labels present in the dataset.
func (d *Dataset) LabelSet() []string {
	seen := make(map[string]struct{}, len(d.Labels))
	labels := make([]string, 0, len(d.Labels))
	for _, l := range d.Labels {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		labels = append(labels, l)
	}
	return labels
}
