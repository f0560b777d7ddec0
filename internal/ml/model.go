package ml

import (
	"fmt"
	"time"
)

// Model is a loaded, servable classifier runtime: the trained weights plus
// the encoder and scaler they were fitted with.
type Model struct {
	Classifier *Classifier
	Encoder    *LabelEncoder
	Scaler     *StandardScaler
	Metadata   ModelMetadata
}

// ModelMetadata describes a persisted model version.
type ModelMetadata struct {
	VersionLabel     string    `json:"version_label"`
	SemanticVersion  string    `json:"semantic_version"`
	FullVersionLabel string    `json:"full_version_label"`
	TrainedAt        time.Time `json:"trained_at"`
	FeatureDim       int       `json:"feature_dim"`
	Labels           []string  `json:"labels"`
	SampleCount      int       `json:"sample_count"`
	Metrics          *Metrics  `json:"metrics,omitempty"`
}

// LabelScore pairs a class label with its probability.
type LabelScore struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// Prediction is the result of classifying one feature vector.
type Prediction struct {
	Label         string       `json:"label"`
	Confidence    float64      `json:"confidence"`
	Probabilities []LabelScore `json:"probabilities"`
}

// Validate checks that the model parts are present and dimensionally
// consistent. Called after loading artifacts from storage.
func (m *Model) Validate() error {
	if m.Classifier == nil || m.Encoder == nil || m.Scaler == nil {
		return fmt.Errorf("model is missing artifacts")
	}
	if m.Classifier.NumClasses != m.Encoder.NumClasses() {
		return fmt.Errorf("classifier has %d classes but encoder has %d",
			m.Classifier.NumClasses, m.Encoder.NumClasses())
	}
	if m.Classifier.Dim != m.Scaler.Dim() {
		return fmt.Errorf("classifier dimension %d does not match scaler dimension %d",
			m.Classifier.Dim, m.Scaler.Dim())
	}
	return nil
}

// PredictOne classifies a raw feature vector, returning the top label and
// the topK most probable labels.
func (m *Model) PredictOne(features []float64, topK int) (*Prediction, error) {
	scaled, err := m.Scaler.Transform(features)
	if err != nil {
		return nil, err
	}
	ranked, err := m.Classifier.TopK(scaled, topK)
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		return nil, fmt.Errorf("classifier returned no classes")
	}

	p := &Prediction{
		Probabilities: make([]LabelScore, 0, len(ranked)),
	}
	for i, cp := range ranked {
		label, err := m.Encoder.Decode(cp.Class)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			p.Label = label
			p.Confidence = cp.Probability
		}
		p.Probabilities = append(p.Probabilities, LabelScore{Label: label, Probability: cp.Probability})
	}
	return p, nil
}
