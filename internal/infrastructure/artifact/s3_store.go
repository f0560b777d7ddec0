package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aastreli/ml-service/internal/domain/registry"
	"github.com/aastreli/ml-service/internal/domain/shared"
	infraconfig "github.com/aastreli/ml-service/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Ensure S3Store implements ArtifactStore
var _ registry.ArtifactStore = (*S3Store)(nil)

// S3Store keeps artifacts in S3-compatible object storage under
// <prefix>/versions/<version>/<file>. It works against AWS S3, MinIO and
// other S3-compatible backends.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// S3StoreOption is a functional option for configuring S3Store
type S3StoreOption func(*S3Store)

// WithS3Logger sets a custom logger for S3Store
func WithS3Logger(logger *zap.Logger) S3StoreOption {
	return func(s *S3Store) {
		s.logger = logger
	}
}

// NewS3Store creates an S3-backed artifact store from configuration
func NewS3Store(cfg *infraconfig.StorageConfig, opts ...S3StoreOption) (*S3Store, error) {
	if cfg == nil {
		return nil, errors.New("storage configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	if cfg.AccessKey == "" {
		return nil, errors.New("storage access key is required")
	}
	if cfg.SecretKey == "" {
		return nil, errors.New("storage secret key is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "http://localhost:9000" // MinIO default
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if cfg.UseSSL {
			endpoint = "https://" + endpoint
		} else {
			endpoint = "http://" + endpoint
		}
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("invalid storage endpoint: %w", err)
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"", // session token (not used for static credentials)
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		o.BaseEndpoint = aws.String(endpoint)
	})

	store := &S3Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.BaseDir, "/"),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
// Call this during application startup to ensure the bucket is ready.
func (s *S3Store) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	s.logger.Info("Creating artifact bucket", zap.String("bucket", s.bucket))
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		// Ignore "BucketAlreadyOwnedByYou" error (race condition)
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &alreadyOwned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

func (s *S3Store) versionPrefix(version string) string {
	if s.prefix == "" {
		return "versions/" + version + "/"
	}
	return s.prefix + "/versions/" + version + "/"
}

func (s *S3Store) key(version, name string) string {
	return s.versionPrefix(version) + name
}

// Save writes one artifact object for a version
func (s *S3Store) Save(ctx context.Context, version, name string, data []byte) error {
	if version == "" || name == "" {
		return errors.New("version and artifact name are required")
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(version, name)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload artifact: %w", err)
	}

	s.logger.Debug("artifact uploaded",
		zap.String("version", version),
		zap.String("artifact", name),
		zap.Int("bytes", len(data)))
	return nil
}

// Load reads one artifact object. Returns shared.ErrNotFound when the
// object is missing.
func (s *S3Store) Load(ctx context.Context, version, name string) ([]byte, error) {
	if version == "" || name == "" {
		return nil, errors.New("version and artifact name are required")
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(version, name)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to download artifact: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact body: %w", err)
	}
	return data, nil
}

// Exists reports whether any object exists under the version prefix
func (s *S3Store) Exists(ctx context.Context, version string) (bool, error) {
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(s.versionPrefix(version)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, fmt.Errorf("failed to list version objects: %w", err)
	}
	return len(out.Contents) > 0, nil
}

// ListVersions returns the labels of all stored versions
func (s *S3Store) ListVersions(ctx context.Context) ([]string, error) {
	base := "versions/"
	if s.prefix != "" {
		base = s.prefix + "/versions/"
	}

	var versions []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(base),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list versions: %w", err)
		}
		for _, cp := range page.CommonPrefixes {
			if cp.Prefix == nil {
				continue
			}
			label := strings.TrimSuffix(strings.TrimPrefix(*cp.Prefix, base), "/")
			if label != "" {
				versions = append(versions, label)
			}
		}
	}
	return versions, nil
}

// Delete removes all artifact objects for a version
func (s *S3Store) Delete(ctx context.Context, version string) error {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.versionPrefix(version)),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list version objects: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    obj.Key,
			}); err != nil {
				return fmt.Errorf("failed to delete artifact object: %w", err)
			}
		}
	}
	return nil
}

// Metadata reads the metadata object for a version
func (s *S3Store) Metadata(ctx context.Context, version string) ([]byte, error) {
	return s.Load(ctx, version, registry.ArtifactMetadata)
}

// isNotFound checks the error shapes S3-compatible services return for
// missing objects.
func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return true
	}
	// Some S3-compatible services return this differently
	return strings.Contains(err.Error(), "NotFound") || strings.Contains(err.Error(), "NoSuchKey")
}
