// Package artifact provides model artifact storage backends: a local
// filesystem store for development and an S3-compatible store for
// production deployments.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/aastreli/ml-service/internal/domain/registry"
	"github.com/aastreli/ml-service/internal/domain/shared"
	"go.uber.org/zap"
)

// Ensure LocalStore implements ArtifactStore
var _ registry.ArtifactStore = (*LocalStore)(nil)

// LocalStore keeps artifacts on the local filesystem under
// <baseDir>/versions/<version>/<file>.
type LocalStore struct {
	baseDir string
	logger  *zap.Logger
}

// LocalStoreOption is a functional option for configuring LocalStore
type LocalStoreOption func(*LocalStore)

// WithLocalLogger sets a custom logger for LocalStore
func WithLocalLogger(logger *zap.Logger) LocalStoreOption {
	return func(s *LocalStore) {
		s.logger = logger
	}
}

// NewLocalStore creates a local artifact store rooted at baseDir
func NewLocalStore(baseDir string, opts ...LocalStoreOption) (*LocalStore, error) {
	if baseDir == "" {
		return nil, errors.New("artifact base directory is required")
	}
	if err := os.MkdirAll(filepath.Join(baseDir, "versions"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	store := &LocalStore{
		baseDir: baseDir,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

func (s *LocalStore) versionDir(version string) (string, error) {
	if version == "" || strings.ContainsAny(version, `/\`) || version == "." || version == ".." {
		return "", fmt.Errorf("invalid version label %q", version)
	}
	return filepath.Join(s.baseDir, "versions", version), nil
}

func (s *LocalStore) artifactPath(version, name string) (string, error) {
	dir, err := s.versionDir(version)
	if err != nil {
		return "", err
	}
	if name == "" || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	return filepath.Join(dir, name), nil
}

// Save writes one artifact file. The write goes through a temp file and a
// rename so a crash never leaves a truncated artifact in place.
func (s *LocalStore) Save(ctx context.Context, version, name string, data []byte) error {
	path, err := s.artifactPath(version, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create version directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to commit artifact: %w", err)
	}

	s.logger.Debug("artifact saved",
		zap.String("version", version),
		zap.String("artifact", name),
		zap.Int("bytes", len(data)))
	return nil
}

// Load reads one artifact file. Returns shared.ErrNotFound when either
// the version or the file is missing.
func (s *LocalStore) Load(ctx context.Context, version, name string) ([]byte, error) {
	path, err := s.artifactPath(version, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	return data, nil
}

// Exists reports whether the version directory exists
func (s *LocalStore) Exists(ctx context.Context, version string) (bool, error) {
	dir, err := s.versionDir(version)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat version directory: %w", err)
	}
	return info.IsDir(), nil
}

// ListVersions returns the labels of all stored versions
func (s *LocalStore) ListVersions(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.baseDir, "versions"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	versions := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			versions = append(versions, e.Name())
		}
	}
	return versions, nil
}

// Delete removes a version directory and its artifacts
func (s *LocalStore) Delete(ctx context.Context, version string) error {
	dir, err := s.versionDir(version)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete version: %w", err)
	}
	return nil
}

// Metadata reads the metadata file for a version
func (s *LocalStore) Metadata(ctx context.Context, version string) ([]byte, error) {
	return s.Load(ctx, version, registry.ArtifactMetadata)
}
