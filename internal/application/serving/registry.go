// Package serving implements the model serving side of the service: the
// in-memory model registry, prediction resolution and deployments.
package serving

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aastreli/ml-service/internal/domain/registry"
	"github.com/aastreli/ml-service/internal/domain/shared"
	"github.com/aastreli/ml-service/internal/infrastructure/cache"
	"github.com/aastreli/ml-service/internal/infrastructure/telemetry"
	"github.com/aastreli/ml-service/internal/ml"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Resolution sources reported with each prediction
const (
	SourceExplicit   = "explicit"
	SourceBinding    = "asset_binding"
	SourceProduction = "production"
	SourceFallback   = "fallback"
)

// ResolvedModel is the outcome of model resolution for a request: the
// runtime to predict with and where it came from. Fallback is true when
// the request degraded to the process-wide fallback model.
type ResolvedModel struct {
	Model     *ml.Model
	VersionID *uuid.UUID
	Source    string
	Fallback  bool
}

// RegistryConfig holds the tunables of the model registry
type RegistryConfig struct {
	CacheSize       int
	RefreshInterval time.Duration
	// FallbackVersion is the storage key of the process fallback model.
	FallbackVersion string
}

// Registry keeps the serving state of the process: a bounded LRU cache of
// loaded models, a snapshot of tenant production defaults and artifact
// paths, and the asset binding view. Snapshots are replaced wholesale by
// the refresh loop and patched synchronously after deployments.
type Registry struct {
	versionRepo registry.ModelVersionRepository
	bindingRepo registry.AssetBindingRepository
	loader      registry.ModelLoader
	config      RegistryConfig
	logger      *zap.Logger

	models   *cache.ModelCache
	bindings *cache.BindingCache
	snapshot atomic.Pointer[registry.ServingSnapshot]
	fallback atomic.Pointer[ml.Model]

	// snapshotMu serializes snapshot writers (refresh loop and deployment
	// patches); readers go through the atomic pointer.
	snapshotMu sync.Mutex

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewRegistry creates a model registry
func NewRegistry(
	versionRepo registry.ModelVersionRepository,
	bindingRepo registry.AssetBindingRepository,
	loader registry.ModelLoader,
	config RegistryConfig,
	logger *zap.Logger,
) *Registry {
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = 60 * time.Second
	}
	r := &Registry{
		versionRepo: versionRepo,
		bindingRepo: bindingRepo,
		loader:      loader,
		config:      config,
		logger:      logger,
		models:      cache.NewModelCache(config.CacheSize),
		bindings:    cache.NewBindingCache(),
	}
	r.snapshot.Store(&registry.ServingSnapshot{
		TenantDefaults: make(map[uuid.UUID]uuid.UUID),
		VersionPaths:   make(map[uuid.UUID]string),
	})
	return r
}

// Start loads the fallback model, performs an initial refresh and starts
// the periodic refresh loop. A failing initial refresh does not abort
// startup; the loop retries on the next tick.
func (r *Registry) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = true
	r.mu.Unlock()

	r.loadFallback(ctx)

	if err := r.Refresh(ctx); err != nil {
		r.logger.Warn("Initial registry refresh failed, serving fallback until next tick", zap.Error(err))
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel

	r.wg.Add(1)
	go r.refreshLoop(loopCtx)

	r.logger.Info("Model registry started",
		zap.Duration("refresh_interval", r.config.RefreshInterval),
		zap.Int("cache_size", r.config.CacheSize),
		zap.Bool("fallback_loaded", r.fallback.Load() != nil))
	return nil
}

// Stop terminates the refresh loop and waits for it to exit
func (r *Registry) Stop() {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return
	}
	r.isRunning = false
	r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.models.Purge()
	r.logger.Info("Model registry stopped")
}

// refreshLoop refreshes the serving view on every tick. Errors are logged
// and the loop keeps running; serving continues on the last good snapshot.
func (r *Registry) refreshLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				r.logger.Error("Registry refresh failed, keeping previous snapshot", zap.Error(err))
			}
			if r.fallback.Load() == nil {
				r.loadFallback(ctx)
			}
		}
	}
}

// Refresh rebuilds the serving snapshot and binding view from the
// metadata store and drops cached models that are no longer servable.
func (r *Registry) Refresh(ctx context.Context) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "registry", "refresh")
	defer span.End()

	snapshot, err := r.versionRepo.ServingSnapshot(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	bindings, err := r.bindingRepo.ActiveBindings(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	r.snapshotMu.Lock()
	r.snapshot.Store(snapshot)
	r.snapshotMu.Unlock()
	r.bindings.Replace(bindings)
	r.models.Retain(snapshot.VersionPaths)

	telemetry.AddEvent(span, "snapshot_refreshed",
		"tenant_count", len(snapshot.TenantDefaults),
		"version_count", len(snapshot.VersionPaths),
		"binding_count", len(bindings))
	r.logger.Debug("Registry refreshed",
		zap.Int("tenants", len(snapshot.TenantDefaults)),
		zap.Int("versions", len(snapshot.VersionPaths)),
		zap.Int("bindings", len(bindings)))
	return nil
}

// ApplyDeployment patches the snapshot after a successful deployment so
// the new production version serves immediately instead of waiting for
// the next refresh tick.
func (r *Registry) ApplyDeployment(tenantID, versionID uuid.UUID, artifactPath string) {
	r.snapshotMu.Lock()
	defer r.snapshotMu.Unlock()

	old := r.snapshot.Load()
	next := &registry.ServingSnapshot{
		TenantDefaults: make(map[uuid.UUID]uuid.UUID, len(old.TenantDefaults)+1),
		VersionPaths:   make(map[uuid.UUID]string, len(old.VersionPaths)+1),
	}
	for k, v := range old.TenantDefaults {
		next.TenantDefaults[k] = v
	}
	for k, v := range old.VersionPaths {
		next.VersionPaths[k] = v
	}
	next.TenantDefaults[tenantID] = versionID
	next.VersionPaths[versionID] = artifactPath

	r.snapshot.Store(next)
}

// Snapshot returns the current serving snapshot
func (r *Registry) Snapshot() *registry.ServingSnapshot {
	return r.snapshot.Load()
}

// CacheLen returns the number of models currently cached
func (r *Registry) CacheLen() int {
	return r.models.Len()
}

// BindingCount returns the number of active asset bindings
func (r *Registry) BindingCount() int {
	return r.bindings.Size()
}

// FallbackLoaded reports whether the process fallback model is usable
func (r *Registry) FallbackLoaded() bool {
	return r.fallback.Load() != nil
}

// loadFallback loads the process-wide fallback model. A missing fallback
// is tolerated; prediction returns UNAVAILABLE only when every other
// resolution step also fails.
func (r *Registry) loadFallback(ctx context.Context) {
	if r.config.FallbackVersion == "" {
		return
	}
	model, err := r.loader.LoadModel(ctx, r.config.FallbackVersion)
	if err != nil {
		r.logger.Warn("Fallback model not loadable",
			zap.String("version", r.config.FallbackVersion),
			zap.Error(err))
		return
	}
	r.fallback.Store(model)
	r.logger.Info("Fallback model loaded", zap.String("version", r.config.FallbackVersion))
}

// ActivateFallback retargets the process fallback to the named stored
// version. This is the legacy single-tenant path: requests without a
// tenant production default serve whatever was last activated. Unlike
// the startup load, a failure here is reported to the caller and the
// previous fallback stays in place.
func (r *Registry) ActivateFallback(ctx context.Context, versionKey string) error {
	if versionKey == "" {
		return shared.NewDomainError("INVALID_INPUT", "version is required")
	}
	model, err := r.loader.LoadModel(ctx, versionKey)
	if err != nil {
		return err
	}
	r.fallback.Store(model)
	r.logger.Info("Fallback model activated", zap.String("version", versionKey))
	return nil
}

// Resolve picks the model for a prediction request. Resolution order:
// explicitly requested version, asset binding, tenant production default,
// process fallback. A miss at any step degrades to the next one with a
// warning; only when nothing is servable the result is UNAVAILABLE.
func (r *Registry) Resolve(ctx context.Context, tenantID uuid.UUID, explicit, assetID *uuid.UUID) (*ResolvedModel, error) {
	snapshot := r.snapshot.Load()

	if explicit != nil {
		if path, ok := snapshot.VersionPaths[*explicit]; ok {
			model, err := r.loadVersion(ctx, *explicit, path)
			if err == nil {
				return &ResolvedModel{Model: model, VersionID: explicit, Source: SourceExplicit}, nil
			}
			r.logger.Warn("Requested model version failed to load, degrading to default",
				zap.String("version_id", explicit.String()),
				zap.Error(err))
		} else {
			r.logger.Warn("Requested model version is not servable, degrading to default",
				zap.String("version_id", explicit.String()))
		}
	}

	if assetID != nil {
		if versionID, ok := r.bindings.Lookup(*assetID); ok {
			if path, ok := snapshot.VersionPaths[versionID]; ok {
				model, err := r.loadVersion(ctx, versionID, path)
				if err == nil {
					return &ResolvedModel{Model: model, VersionID: &versionID, Source: SourceBinding}, nil
				}
				r.logger.Warn("Bound model version failed to load, trying tenant default",
					zap.String("asset_id", assetID.String()),
					zap.String("version_id", versionID.String()),
					zap.Error(err))
			}
		}
	}

	if versionID, ok := snapshot.TenantDefaults[tenantID]; ok {
		if path, ok := snapshot.VersionPaths[versionID]; ok {
			model, err := r.loadVersion(ctx, versionID, path)
			if err == nil {
				return &ResolvedModel{Model: model, VersionID: &versionID, Source: SourceProduction}, nil
			}
			r.logger.Warn("Production model failed to load, degrading to fallback",
				zap.String("tenant_id", tenantID.String()),
				zap.String("version_id", versionID.String()),
				zap.Error(err))
		}
	}

	if fallback := r.fallback.Load(); fallback != nil {
		return &ResolvedModel{Model: fallback, Source: SourceFallback, Fallback: true}, nil
	}
	return nil, shared.ErrUnavailable
}

// loadVersion returns a cached model or loads it from artifact storage
func (r *Registry) loadVersion(ctx context.Context, versionID uuid.UUID, path string) (*ml.Model, error) {
	if model, ok := r.models.Get(versionID); ok {
		return model, nil
	}

	model, err := r.loader.LoadModel(ctx, path)
	if err != nil {
		return nil, err
	}
	r.models.Put(versionID, model)
	r.logger.Info("Model version loaded into cache",
		zap.String("version_id", versionID.String()),
		zap.String("artifact_path", path),
		zap.Int("cached_models", r.models.Len()))
	return model, nil
}

// InvalidateVersion drops a version from the model cache. Called when a
// version is deleted so the artifact stops serving before the next
// refresh tick.
func (r *Registry) InvalidateVersion(versionID uuid.UUID) {
	r.models.Remove(versionID)
}
