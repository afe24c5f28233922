package deploy

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/modelops/pkg/constants"
	pkgerrors "github.com/inferloop/modelops/pkg/errors"
	"github.com/inferloop/modelops/pkg/models"
)

// StatsSource supplies live serving samples for a deployed model. The
// serving layer implements this; tests substitute a scripted source.
type StatsSource interface {
	Stats(ctx context.Context, modelID string) (*models.ServingStats, error)
}

// VersionReader is the registry surface the health checker needs
type VersionReader interface {
	GetVersion(versionID string) (*models.ModelVersion, error)
}

// ModelLookup is the cache surface the health checker needs
type ModelLookup interface {
	Get(ctx context.Context, modelID string) (*models.CachedModel, error)
}

// HealthChecker evaluates one named health signal for a version under
// rollout. A nil return means the check passed.
type HealthChecker interface {
	Check(ctx context.Context, check models.HealthCheckType, version *models.ModelVersion) error
}

// HealthCheckerConfig holds the pass/fail limits for rollout health checks
type HealthCheckerConfig struct {
	MinAccuracy  float64 `json:"min_accuracy" mapstructure:"min_accuracy"`
	MaxLatencyMs float64 `json:"max_latency_ms" mapstructure:"max_latency_ms"`
	MaxErrorRate float64 `json:"max_error_rate" mapstructure:"max_error_rate"`
	MaxMemoryMB  float64 `json:"max_memory_mb" mapstructure:"max_memory_mb"`
}

// defaultHealthChecker verifies rollout health against the artifact cache,
// the version record, and live serving samples
type defaultHealthChecker struct {
	config *HealthCheckerConfig
	cache  ModelLookup
	stats  StatsSource
	logger *logrus.Logger
}

// NewHealthChecker creates the standard health checker. cache and stats may
// be nil, in which case the checks that need them pass vacuously.
func NewHealthChecker(config *HealthCheckerConfig, cache ModelLookup, stats StatsSource, logger *logrus.Logger) HealthChecker {
	if config == nil {
		config = getDefaultHealthCheckerConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &defaultHealthChecker{
		config: config,
		cache:  cache,
		stats:  stats,
		logger: logger,
	}
}

func (hc *defaultHealthChecker) Check(ctx context.Context, check models.HealthCheckType, version *models.ModelVersion) error {
	switch check {
	case models.CheckModelHealth:
		return hc.checkModelHealth(ctx, version)
	case models.CheckPredictionAccuracy:
		return hc.checkPredictionAccuracy(version)
	case models.CheckLatency:
		return hc.checkLatency(ctx, version)
	case models.CheckErrorRate:
		return hc.checkErrorRate(ctx, version)
	case models.CheckMemoryUsage:
		return hc.checkMemoryUsage(ctx, version)
	default:
		return pkgerrors.NewDeploymentError(pkgerrors.CodeHealthCheckFailed,
			fmt.Sprintf("unknown health check %q", check))
	}
}

// checkModelHealth verifies the serving artifact is loadable
func (hc *defaultHealthChecker) checkModelHealth(ctx context.Context, version *models.ModelVersion) error {
	if version.Artifacts.Model == "" {
		return fmt.Errorf("version %s has no model artifact", version.ID)
	}
	if hc.cache == nil {
		return nil
	}

	if _, err := hc.cache.Get(ctx, version.ModelID); err != nil {
		return fmt.Errorf("model %s not loadable: %w", version.ModelID, err)
	}
	return nil
}

// checkPredictionAccuracy verifies held-out accuracy clears the serving floor
func (hc *defaultHealthChecker) checkPredictionAccuracy(version *models.ModelVersion) error {
	if version.ValidationMetrics.Accuracy < hc.config.MinAccuracy {
		return fmt.Errorf("validation accuracy %.3f below serving floor %.3f",
			version.ValidationMetrics.Accuracy, hc.config.MinAccuracy)
	}
	return nil
}

func (hc *defaultHealthChecker) checkLatency(ctx context.Context, version *models.ModelVersion) error {
	sample, err := hc.sample(ctx, version)
	if err != nil || sample == nil {
		return err
	}
	if sample.LatencyP95Ms > hc.config.MaxLatencyMs {
		return fmt.Errorf("p95 latency %.1fms exceeds limit %.1fms", sample.LatencyP95Ms, hc.config.MaxLatencyMs)
	}
	return nil
}

func (hc *defaultHealthChecker) checkErrorRate(ctx context.Context, version *models.ModelVersion) error {
	sample, err := hc.sample(ctx, version)
	if err != nil || sample == nil {
		return err
	}
	if sample.ErrorRate > hc.config.MaxErrorRate {
		return fmt.Errorf("error rate %.4f exceeds limit %.4f", sample.ErrorRate, hc.config.MaxErrorRate)
	}
	return nil
}

func (hc *defaultHealthChecker) checkMemoryUsage(ctx context.Context, version *models.ModelVersion) error {
	sample, err := hc.sample(ctx, version)
	if err != nil || sample == nil {
		return err
	}
	if sample.MemoryUsageMB > hc.config.MaxMemoryMB {
		return fmt.Errorf("memory usage %.0fMB exceeds limit %.0fMB", sample.MemoryUsageMB, hc.config.MaxMemoryMB)
	}
	return nil
}

func (hc *defaultHealthChecker) sample(ctx context.Context, version *models.ModelVersion) (*models.ServingStats, error) {
	if hc.stats == nil {
		return nil, nil
	}

	sample, err := hc.stats.Stats(ctx, version.ModelID)
	if err != nil {
		return nil, fmt.Errorf("no serving sample for model %s: %w", version.ModelID, err)
	}
	return sample, nil
}

func getDefaultHealthCheckerConfig() *HealthCheckerConfig {
	return &HealthCheckerConfig{
		MinAccuracy:  0.8,
		MaxLatencyMs: constants.DefaultLatencyCriticalMs,
		MaxErrorRate: constants.DefaultErrorRateCritical,
		MaxMemoryMB:  constants.DefaultMemoryCriticalMB,
	}
}
