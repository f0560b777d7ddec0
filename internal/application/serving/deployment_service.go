package serving

import (
	"context"
	"errors"

	"github.com/aastreli/ml-service/internal/application/serving/dto"
	"github.com/aastreli/ml-service/internal/domain/registry"
	"github.com/aastreli/ml-service/internal/domain/shared"
	"github.com/aastreli/ml-service/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DeploymentService manages model version lifecycle: listing, deploying
// to production and retiring versions.
type DeploymentService struct {
	versionRepo    registry.ModelVersionRepository
	deploymentRepo registry.DeploymentRepository
	bindingRepo    registry.AssetBindingRepository
	registry       *Registry
	logger         *zap.Logger
}

// NewDeploymentService creates a deployment service
func NewDeploymentService(
	versionRepo registry.ModelVersionRepository,
	deploymentRepo registry.DeploymentRepository,
	bindingRepo registry.AssetBindingRepository,
	reg *Registry,
	logger *zap.Logger,
) *DeploymentService {
	return &DeploymentService{
		versionRepo:    versionRepo,
		deploymentRepo: deploymentRepo,
		bindingRepo:    bindingRepo,
		registry:       reg,
		logger:         logger,
	}
}

// ListVersions lists a tenant's model versions
func (s *DeploymentService) ListVersions(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]dto.ModelVersionResponse, error) {
	versions, err := s.versionRepo.FindAllForTenant(ctx, tenantID, filter)
	if err != nil {
		s.logger.Error("Failed to list model versions", zap.Error(err))
		return nil, shared.ErrMetadataStoreFailure
	}
	return dto.ToModelVersionResponses(versions), nil
}

// GetVersion returns one model version
func (s *DeploymentService) GetVersion(ctx context.Context, tenantID, versionID uuid.UUID) (*dto.ModelVersionResponse, error) {
	version, err := s.versionRepo.FindByIDForTenant(ctx, tenantID, versionID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrNotFound
		}
		s.logger.Error("Failed to load model version", zap.Error(err))
		return nil, shared.ErrMetadataStoreFailure
	}
	if version.IsDeleted {
		return nil, shared.ErrNotFound
	}
	return dto.ToModelVersionResponse(version), nil
}

// Deploy promotes a version to the tenant's production slot. The metadata
// change happens in one transaction; the serving snapshot is patched
// synchronously so the version serves without waiting for a refresh tick.
// With production false only a deployment window is recorded; the
// tenant's default stays where it is.
func (s *DeploymentService) Deploy(ctx context.Context, tenantID, versionID uuid.UUID, production bool) (*dto.DeployResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "deployment", "deploy",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, tenantID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrVersionID, versionID.String()))
	defer span.End()

	// Tenant scoping happens before the transaction; Promote trusts the
	// version row it loads.
	version, err := s.versionRepo.FindByIDForTenant(ctx, tenantID, versionID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrNotFound
		}
		s.logger.Error("Failed to load version for deployment", zap.Error(err))
		telemetry.RecordError(span, err)
		return nil, shared.ErrMetadataStoreFailure
	}
	if version.IsDeleted {
		return nil, shared.ErrNotFound
	}

	promoted, deployment, err := s.deploymentRepo.Promote(ctx, versionID, production)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrNotFound
		}
		var domainErr *shared.DomainError
		if errors.As(err, &domainErr) {
			return nil, err
		}
		s.logger.Error("Deployment transaction failed", zap.Error(err))
		telemetry.RecordError(span, err)
		return nil, shared.ErrMetadataStoreFailure
	}

	if production {
		s.registry.ApplyDeployment(tenantID, promoted.ID, promoted.ArtifactPath)
	}

	s.logger.Info("Model version deployed",
		zap.String("tenant_id", tenantID.String()),
		zap.String("version_id", promoted.ID.String()),
		zap.String("version_label", promoted.VersionLabel),
		zap.Bool("production", production))
	telemetry.SetAttributes(span, telemetry.SpanAttrVersionLabel, promoted.VersionLabel)

	return &dto.DeployResponse{
		DeploymentID: deployment.ID,
		Version:      *dto.ToModelVersionResponse(promoted),
		Production:   production,
		DeployedAt:   deployment.DeploymentStart,
	}, nil
}

// CurrentProduction returns the tenant's open production deployment
func (s *DeploymentService) CurrentProduction(ctx context.Context, tenantID uuid.UUID) (*dto.DeploymentResponse, error) {
	deployment, err := s.deploymentRepo.FindOpenProduction(ctx, tenantID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrNotFound
		}
		s.logger.Error("Failed to load production deployment", zap.Error(err))
		return nil, shared.ErrMetadataStoreFailure
	}
	resp := dto.ToDeploymentResponse(deployment)
	return resp, nil
}

// ActivateFallback swaps the process fallback model for the named stored
// version. Single-box installations without per-tenant deployments use
// this to pick what the service serves by default.
func (s *DeploymentService) ActivateFallback(ctx context.Context, versionKey string) error {
	if err := s.registry.ActivateFallback(ctx, versionKey); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.ErrNotFound
		}
		var domainErr *shared.DomainError
		if errors.As(err, &domainErr) {
			return err
		}
		s.logger.Error("Fallback activation failed",
			zap.String("version", versionKey),
			zap.Error(err))
		return shared.ErrStorageFailure
	}
	return nil
}

// DeleteVersion soft-deletes a version. The production version cannot be
// deleted; deploy a replacement first.
func (s *DeploymentService) DeleteVersion(ctx context.Context, tenantID, versionID uuid.UUID) error {
	version, err := s.versionRepo.FindByIDForTenant(ctx, tenantID, versionID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.ErrNotFound
		}
		s.logger.Error("Failed to load version for deletion", zap.Error(err))
		return shared.ErrMetadataStoreFailure
	}
	if version.IsDeleted {
		return shared.ErrNotFound
	}
	if version.Stage == registry.StageProduction {
		return shared.NewDomainError("INVALID_STATE", "cannot delete the production version")
	}

	version.MarkDeleted()
	if err := s.versionRepo.Save(ctx, version); err != nil {
		s.logger.Error("Failed to delete version", zap.Error(err))
		return shared.ErrMetadataStoreFailure
	}

	// Stop serving the deleted artifact right away.
	s.registry.InvalidateVersion(versionID)

	s.logger.Info("Model version deleted",
		zap.String("tenant_id", tenantID.String()),
		zap.String("version_id", versionID.String()))
	return nil
}

// ArchiveVersion retires a version from staging. The production version
// cannot be archived; deploy a replacement first.
func (s *DeploymentService) ArchiveVersion(ctx context.Context, tenantID, versionID uuid.UUID) (*dto.ModelVersionResponse, error) {
	version, err := s.versionRepo.FindByIDForTenant(ctx, tenantID, versionID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrNotFound
		}
		s.logger.Error("Failed to load version for archiving", zap.Error(err))
		return nil, shared.ErrMetadataStoreFailure
	}
	if version.IsDeleted {
		return nil, shared.ErrNotFound
	}
	if version.Stage == registry.StageProduction {
		return nil, shared.NewDomainError("INVALID_STATE", "cannot archive the production version")
	}

	version.Archive()
	if err := s.versionRepo.Save(ctx, version); err != nil {
		s.logger.Error("Failed to archive version", zap.Error(err))
		return nil, shared.ErrMetadataStoreFailure
	}
	s.registry.InvalidateVersion(versionID)

	s.logger.Info("Model version archived",
		zap.String("tenant_id", tenantID.String()),
		zap.String("version_id", versionID.String()))
	return dto.ToModelVersionResponse(version), nil
}

// History lists the deployment windows of a version
func (s *DeploymentService) History(ctx context.Context, tenantID, versionID uuid.UUID) ([]dto.DeploymentResponse, error) {
	if _, err := s.versionRepo.FindByIDForTenant(ctx, tenantID, versionID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrNotFound
		}
		s.logger.Error("Failed to load version for history", zap.Error(err))
		return nil, shared.ErrMetadataStoreFailure
	}

	deployments, err := s.deploymentRepo.FindByVersion(ctx, versionID)
	if err != nil {
		s.logger.Error("Failed to load deployment history", zap.Error(err))
		return nil, shared.ErrMetadataStoreFailure
	}
	return dto.ToDeploymentResponses(deployments), nil
}

// Metrics returns the evaluation metrics recorded for a version
func (s *DeploymentService) Metrics(ctx context.Context, tenantID, versionID uuid.UUID) (*dto.VersionMetricsResponse, error) {
	version, err := s.versionRepo.FindByIDForTenant(ctx, tenantID, versionID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrNotFound
		}
		s.logger.Error("Failed to load version metrics", zap.Error(err))
		return nil, shared.ErrMetadataStoreFailure
	}
	if version.IsDeleted {
		return nil, shared.ErrNotFound
	}

	return &dto.VersionMetricsResponse{
		VersionID:        version.ID,
		VersionLabel:     version.VersionLabel,
		Stage:            string(version.Stage),
		Accuracy:         version.Accuracy,
		BalancedAccuracy: version.BalancedAccuracy,
		WeightedF1:       version.WeightedF1,
		FeedbackCount:    version.FeedbackCount,
		TrainingStart:    version.TrainingStart,
		TrainingEnd:      version.TrainingEnd,
	}, nil
}

// BindAsset pins an asset to a version. The binding takes effect on the
// next binding refresh tick.
func (s *DeploymentService) BindAsset(ctx context.Context, tenantID, assetID, versionID uuid.UUID) error {
	version, err := s.versionRepo.FindByIDForTenant(ctx, tenantID, versionID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.ErrNotFound
		}
		s.logger.Error("Failed to load version for binding", zap.Error(err))
		return shared.ErrMetadataStoreFailure
	}
	if !version.Servable() {
		return shared.NewDomainError("INVALID_STATE", "cannot bind an asset to an unservable version")
	}

	binding := registry.NewAssetBinding(tenantID, assetID, versionID)
	if err := s.bindingRepo.Save(ctx, binding); err != nil {
		s.logger.Error("Failed to save asset binding", zap.Error(err))
		return shared.ErrMetadataStoreFailure
	}

	s.logger.Info("Asset bound to model version",
		zap.String("tenant_id", tenantID.String()),
		zap.String("asset_id", assetID.String()),
		zap.String("version_id", versionID.String()))
	return nil
}
