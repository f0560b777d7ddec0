package ml

import (
	"encoding/json"
	"fmt"
)

// ArtifactBundle holds the serialized form of a model's artifacts. The
// training data slot is optional; fallback models ship without it.
type ArtifactBundle struct {
	Classifier   []byte
	Encoder      []byte
	Scaler       []byte
	Metadata     []byte
	TrainingData []byte
}

// Bundle serializes the model and, when provided, its training data.
func (m *Model) Bundle(data *Dataset) (*ArtifactBundle, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	b := &ArtifactBundle{}
	var err error
	if b.Classifier, err = json.Marshal(m.Classifier); err != nil {
		return nil, fmt.Errorf("failed to serialize classifier: %w", err)
	}
	if b.Encoder, err = json.Marshal(m.Encoder); err != nil {
		return nil, fmt.Errorf("failed to serialize label encoder: %w", err)
	}
	if b.Scaler, err = json.Marshal(m.Scaler); err != nil {
		return nil, fmt.Errorf("failed to serialize scaler: %w", err)
	}
	if b.Metadata, err = json.Marshal(m.Metadata); err != nil {
		return nil, fmt.Errorf("failed to serialize metadata: %w", err)
	}
	if data != nil {
		if b.TrainingData, err = json.Marshal(data); err != nil {
			return nil, fmt.Errorf("failed to serialize training data: %w", err)
		}
	}
	return b, nil
}

// ModelFromBundle deserializes a model from its artifacts and validates
// dimensional consistency before returning it.
func ModelFromBundle(b *ArtifactBundle) (*Model, error) {
	m := &Model{
		Classifier: &Classifier{},
		Encoder:    &LabelEncoder{},
		Scaler:     &StandardScaler{},
	}
	if err := json.Unmarshal(b.Classifier, m.Classifier); err != nil {
		return nil, fmt.Errorf("failed to parse classifier artifact: %w", err)
	}
	if err := json.Unmarshal(b.Encoder, m.Encoder); err != nil {
		return nil, fmt.Errorf("failed to parse label encoder artifact: %w", err)
	}
	m.Encoder.buildIndex()
	if err := json.Unmarshal(b.Scaler, m.Scaler); err != nil {
		return nil, fmt.Errorf("failed to parse scaler artifact: %w", err)
	}
	if len(b.Metadata) > 0 {
		if err := json.Unmarshal(b.Metadata, &m.Metadata); err != nil {
			return nil, fmt.Errorf("failed to parse metadata artifact: %w", err)
		}
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("loaded model is inconsistent: %w", err)
	}
	return m, nil
}

// DatasetFromJSON deserializes a persisted training data artifact.
func DatasetFromJSON(data []byte) (*Dataset, error) {
	var d Dataset
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse training data artifact: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}
