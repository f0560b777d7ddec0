package registry

import (
	"context"

	"github.com/aastreli/ml-service/internal/ml"
)

// Artifact file names within a version directory
const (
	ArtifactClassifier   = "classifier.json"
	ArtifactLabelEncoder = "label_encoder.json"
	ArtifactScaler       = "feature_scaler.json"
	ArtifactMetadata     = "metadata.json"
	ArtifactTrainingData = "training_data.json"
)

// ArtifactStore persists model artifacts under a versioned layout
// (<base>/versions/<label>/<file>). Implementations exist for the local
// filesystem and for S3-compatible object storage.
type ArtifactStore interface {
	// Save writes one artifact file for a version.
	Save(ctx context.Context, version, name string, data []byte) error
	// Load reads one artifact file for a version.
	Load(ctx context.Context, version, name string) ([]byte, error)
	// Exists reports whether the version directory exists.
	Exists(ctx context.Context, version string) (bool, error)
	// ListVersions returns the labels of all stored versions.
	ListVersions(ctx context.Context) ([]string, error)
	// Delete removes a version directory and its artifacts.
	Delete(ctx context.Context, version string) error
	// Metadata reads the metadata file for a version.
	Metadata(ctx context.Context, version string) ([]byte, error)
}

// ModelLoader translates between stored artifacts and model runtimes.
// The version argument is the storage key recorded as ArtifactPath on the
// model version row.
type ModelLoader interface {
	SaveModel(ctx context.Context, version string, model *ml.Model, data *ml.Dataset) error
	LoadModel(ctx context.Context, version string) (*ml.Model, error)
	// LoadDataset reads the training data persisted with a version.
	LoadDataset(ctx context.Context, version string) (*ml.Dataset, error)
}
