package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/modelops/internal/observability/metrics"
	"github.com/inferloop/modelops/pkg/clock"
	pkgerrors "github.com/inferloop/modelops/pkg/errors"
	"github.com/inferloop/modelops/pkg/models"
)

// RegistryConfig configures the version registry
type RegistryConfig struct {
	ValidationThreshold float64 `json:"validation_threshold" mapstructure:"validation_threshold"`
	MaxMetricSkew       float64 `json:"max_metric_skew" mapstructure:"max_metric_skew"`
	MaxLatencyMs        float64 `json:"max_latency_ms" mapstructure:"max_latency_ms"`
	MinThroughputRPS    float64 `json:"min_throughput_rps" mapstructure:"min_throughput_rps"`
	BenchmarkLoadSizes  []int   `json:"benchmark_load_sizes" mapstructure:"benchmark_load_sizes"`
}

// VersionRegistry records every trained artifact as an immutable version
// entry and advances it through the lifecycle state machine. Status moves
// strictly forward; only deprecation can be forced from any state.
type VersionRegistry struct {
	logger  *logrus.Logger
	config  *RegistryConfig
	clock   clock.Clock
	store   VersionStore
	metrics *metrics.PrometheusMetrics

	mu       sync.RWMutex
	versions map[string]*models.ModelVersion
	byModel  map[string][]string // ordered version ids per model
}

// NewVersionRegistry creates a version registry. store may be nil for a
// memory-only registry; clk may be nil.
func NewVersionRegistry(config *RegistryConfig, store VersionStore, clk clock.Clock, logger *logrus.Logger) *VersionRegistry {
	if config == nil {
		config = getDefaultRegistryConfig()
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &VersionRegistry{
		logger:   logger,
		config:   config,
		clock:    clk,
		store:    store,
		versions: make(map[string]*models.ModelVersion),
		byModel:  make(map[string][]string),
	}
}

// SetMetrics attaches a Prometheus recorder. Must be called before Start.
func (vr *VersionRegistry) SetMetrics(prom *metrics.PrometheusMetrics) {
	vr.metrics = prom
}

// Start connects the version store and restores persisted entries
func (vr *VersionRegistry) Start(ctx context.Context) error {
	if vr.store == nil {
		return nil
	}

	if err := vr.store.Connect(ctx); err != nil {
		return pkgerrors.WrapError(err, pkgerrors.ErrorTypeStorage,
			pkgerrors.CodeConnectionFailed, "failed to connect version store")
	}

	restored, err := vr.store.LoadVersions(ctx)
	if err != nil {
		return pkgerrors.WrapError(err, pkgerrors.ErrorTypeStorage,
			pkgerrors.CodeReadFailed, "failed to restore version entries")
	}

	vr.mu.Lock()
	for _, version := range restored {
		vr.versions[version.ID] = version
		vr.byModel[version.ModelID] = append(vr.byModel[version.ModelID], version.ID)
	}
	vr.mu.Unlock()

	if len(restored) > 0 {
		vr.logger.WithField("versions", len(restored)).Info("Restored model versions from store")
	}

	vr.publishStatusCounts()
	return nil
}

// Close releases the version store
func (vr *VersionRegistry) Close() error {
	if vr.store == nil {
		return nil
	}
	return vr.store.Close()
}

// RegisterVersion records a completed training run as the next sequential
// version of its model, starting in training status
func (vr *VersionRegistry) RegisterVersion(ctx context.Context, modelID string, result *models.TrainingResult) (*models.ModelVersion, error) {
	if modelID == "" {
		return nil, pkgerrors.NewValidationError(pkgerrors.CodeInvalidInput, "model id is required")
	}
	if result == nil {
		return nil, pkgerrors.NewValidationError(pkgerrors.CodeInvalidInput, "training result is required")
	}

	vr.mu.Lock()
	sequence := len(vr.byModel[modelID]) + 1
	versionStr := fmt.Sprintf("v%d", sequence)
	versionID := models.VersionID(modelID, versionStr)

	if _, exists := vr.versions[versionID]; exists {
		vr.mu.Unlock()
		return nil, pkgerrors.ErrVersionExists
	}

	version := &models.ModelVersion{
		ID:                versionID,
		ModelID:           modelID,
		Version:           versionStr,
		Status:            models.VersionStatusTraining,
		TrainingMetrics:   *result,
		ValidationMetrics: result.ValidationMetrics,
		Artifacts:         result.Artifacts,
		CreatedAt:         vr.clock.Now(),
	}

	vr.versions[versionID] = version
	vr.byModel[modelID] = append(vr.byModel[modelID], versionID)
	stored := *version
	vr.mu.Unlock()

	if err := vr.persist(ctx, &stored); err != nil {
		return nil, err
	}

	vr.logger.WithFields(logrus.Fields{
		"model_id": modelID,
		"version":  versionStr,
		"accuracy": result.Accuracy,
	}).Info("Registered new model version")

	vr.publishStatusCounts()

	return &stored, nil
}

// GetVersion returns a copy of a version entry
func (vr *VersionRegistry) GetVersion(versionID string) (*models.ModelVersion, error) {
	vr.mu.RLock()
	defer vr.mu.RUnlock()

	version, ok := vr.versions[versionID]
	if !ok {
		return nil, pkgerrors.ErrVersionNotFound
	}

	result := *version
	return &result, nil
}

// ListVersions returns all versions of a model in registration order
func (vr *VersionRegistry) ListVersions(modelID string) []*models.ModelVersion {
	vr.mu.RLock()
	defer vr.mu.RUnlock()

	ids := vr.byModel[modelID]
	versions := make([]*models.ModelVersion, 0, len(ids))
	for _, id := range ids {
		version := *vr.versions[id]
		versions = append(versions, &version)
	}
	return versions
}

// LatestVersion returns the most recently registered version of a model
func (vr *VersionRegistry) LatestVersion(modelID string) (*models.ModelVersion, error) {
	vr.mu.RLock()
	defer vr.mu.RUnlock()

	ids := vr.byModel[modelID]
	if len(ids) == 0 {
		return nil, pkgerrors.ErrModelNotFound
	}

	version := *vr.versions[ids[len(ids)-1]]
	return &version, nil
}

// UpdateStatus advances a version through the lifecycle state machine,
// rejecting backward transitions
func (vr *VersionRegistry) UpdateStatus(ctx context.Context, versionID string, next models.VersionStatus) error {
	vr.mu.Lock()
	version, ok := vr.versions[versionID]
	if !ok {
		vr.mu.Unlock()
		return pkgerrors.ErrVersionNotFound
	}

	if !version.Status.CanTransitionTo(next) {
		current := version.Status
		vr.mu.Unlock()
		return pkgerrors.NewRegistryError(pkgerrors.CodeInvalidTransition,
			fmt.Sprintf("cannot move version %s from %s to %s", versionID, current, next))
	}

	previous := version.Status
	version.Status = next
	if next == models.VersionStatusProduction {
		now := vr.clock.Now()
		version.DeployedAt = &now
	}
	stored := *version
	vr.mu.Unlock()

	if err := vr.persist(ctx, &stored); err != nil {
		return err
	}

	vr.logger.WithFields(logrus.Fields{
		"version_id": versionID,
		"from":       previous,
		"to":         next,
	}).Info("Model version status changed")

	vr.publishStatusCounts()
	return nil
}

// PromoteToStaging moves a tested version into the staging environment
func (vr *VersionRegistry) PromoteToStaging(ctx context.Context, versionID string) error {
	return vr.UpdateStatus(ctx, versionID, models.VersionStatusStaging)
}

// MarkProduction records that a version is now serving production traffic
func (vr *VersionRegistry) MarkProduction(ctx context.Context, versionID string) error {
	return vr.UpdateStatus(ctx, versionID, models.VersionStatusProduction)
}

// Deprecate retires a version. Legal from any state; used when a newer
// version supersedes this one or a rollback abandons it.
func (vr *VersionRegistry) Deprecate(ctx context.Context, versionID string) error {
	return vr.UpdateStatus(ctx, versionID, models.VersionStatusDeprecated)
}

// setPerformanceMetrics records benchmark results on a version
func (vr *VersionRegistry) setPerformanceMetrics(ctx context.Context, versionID string, perf *models.PerformanceMetrics) error {
	vr.mu.Lock()
	version, ok := vr.versions[versionID]
	if !ok {
		vr.mu.Unlock()
		return pkgerrors.ErrVersionNotFound
	}
	version.PerformanceMetrics = perf
	stored := *version
	vr.mu.Unlock()

	return vr.persist(ctx, &stored)
}

func (vr *VersionRegistry) persist(ctx context.Context, version *models.ModelVersion) error {
	if vr.store == nil {
		return nil
	}

	if err := vr.store.SaveVersion(ctx, version); err != nil {
		return pkgerrors.WrapError(err, pkgerrors.ErrorTypeStorage,
			pkgerrors.CodeWriteFailed, "failed to persist version entry")
	}
	return nil
}

func (vr *VersionRegistry) publishStatusCounts() {
	if vr.metrics == nil {
		return
	}

	counts := make(map[models.VersionStatus]int)
	vr.mu.RLock()
	for _, version := range vr.versions {
		counts[version.Status]++
	}
	vr.mu.RUnlock()

	for _, status := range []models.VersionStatus{
		models.VersionStatusTraining,
		models.VersionStatusTesting,
		models.VersionStatusStaging,
		models.VersionStatusProduction,
		models.VersionStatusDeprecated,
	} {
		vr.metrics.SetModelVersions(string(status), counts[status])
	}
}

func getDefaultRegistryConfig() *RegistryConfig {
	return &RegistryConfig{
		ValidationThreshold: 0.8,
		MaxMetricSkew:       0.15,
		MaxLatencyMs:        500,
		MinThroughputRPS:    10,
		BenchmarkLoadSizes:  []int{1, 10, 100},
	}
}
