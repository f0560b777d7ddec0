package artifact

import (
	"context"
	"errors"
	"fmt"

	"github.com/aastreli/ml-service/internal/domain/registry"
	"github.com/aastreli/ml-service/internal/domain/shared"
	"github.com/aastreli/ml-service/internal/ml"
)

// Codec reads and writes complete models through an ArtifactStore,
// translating between the on-disk artifact layout and the in-memory
// ml.Model runtime.
type Codec struct {
	store registry.ArtifactStore
}

// NewCodec creates a codec over the given store
func NewCodec(store registry.ArtifactStore) *Codec {
	return &Codec{store: store}
}

// Store exposes the underlying artifact store
func (c *Codec) Store() registry.ArtifactStore {
	return c.store
}

// SaveModel persists all artifacts for a version. Training data is
// optional and skipped when nil.
func (c *Codec) SaveModel(ctx context.Context, version string, model *ml.Model, data *ml.Dataset) error {
	bundle, err := model.Bundle(data)
	if err != nil {
		return err
	}

	files := []struct {
		name string
		data []byte
	}{
		{registry.ArtifactClassifier, bundle.Classifier},
		{registry.ArtifactLabelEncoder, bundle.Encoder},
		{registry.ArtifactScaler, bundle.Scaler},
		{registry.ArtifactMetadata, bundle.Metadata},
	}
	if bundle.TrainingData != nil {
		files = append(files, struct {
			name string
			data []byte
		}{registry.ArtifactTrainingData, bundle.TrainingData})
	}

	for _, f := range files {
		if err := c.store.Save(ctx, version, f.name, f.data); err != nil {
			return fmt.Errorf("failed to save %s: %w", f.name, err)
		}
	}
	return nil
}

// LoadModel reads and validates a complete model for a version. A missing
// metadata file is tolerated; missing classifier, encoder or scaler
// artifacts are not.
func (c *Codec) LoadModel(ctx context.Context, version string) (*ml.Model, error) {
	bundle := &ml.ArtifactBundle{}

	var err error
	if bundle.Classifier, err = c.store.Load(ctx, version, registry.ArtifactClassifier); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", registry.ArtifactClassifier, err)
	}
	if bundle.Encoder, err = c.store.Load(ctx, version, registry.ArtifactLabelEncoder); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", registry.ArtifactLabelEncoder, err)
	}
	if bundle.Scaler, err = c.store.Load(ctx, version, registry.ArtifactScaler); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", registry.ArtifactScaler, err)
	}
	bundle.Metadata, err = c.store.Load(ctx, version, registry.ArtifactMetadata)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("failed to load %s: %w", registry.ArtifactMetadata, err)
	}

	return ml.ModelFromBundle(bundle)
}

// LoadDataset reads the persisted training data for a version. Returns
// shared.ErrNotFound when the version has no training data artifact.
func (c *Codec) LoadDataset(ctx context.Context, version string) (*ml.Dataset, error) {
	data, err := c.store.Load(ctx, version, registry.ArtifactTrainingData)
	if err != nil {
		return nil, err
	}
	return ml.DatasetFromJSON(data)
}
