package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/modelops/internal/observability/metrics"
	"github.com/inferloop/modelops/pkg/clock"
	"github.com/inferloop/modelops/pkg/constants"
	pkgerrors "github.com/inferloop/modelops/pkg/errors"
	"github.com/inferloop/modelops/pkg/models"
)

// StatsSource supplies live serving samples for a deployed model
type StatsSource interface {
	Stats(ctx context.Context, modelID string) (*models.ServingStats, error)
}

// DeploymentController is the executor surface the monitor needs to watch
// deployed models and trigger automatic rollbacks
type DeploymentController interface {
	ListDeployments() []*models.DeploymentState
	Rollback(ctx context.Context, modelID string) (*models.DeploymentState, error)
}

// MetricsRecorder is an optional sink for serving samples. Recording
// failures never affect monitoring decisions.
type MetricsRecorder interface {
	Record(ctx context.Context, sample *models.ServingStats) error
	Close()
}

// Thresholds holds the warning and critical limits for each serving metric.
// Throughput is a floor; everything else is a ceiling.
type Thresholds struct {
	LatencyWarningMs   float64 `json:"latency_warning_ms" mapstructure:"latency_warning_ms"`
	LatencyCriticalMs  float64 `json:"latency_critical_ms" mapstructure:"latency_critical_ms"`
	ErrorRateWarning   float64 `json:"error_rate_warning" mapstructure:"error_rate_warning"`
	ErrorRateCritical  float64 `json:"error_rate_critical" mapstructure:"error_rate_critical"`
	MemoryWarningMB    float64 `json:"memory_warning_mb" mapstructure:"memory_warning_mb"`
	MemoryCriticalMB   float64 `json:"memory_critical_mb" mapstructure:"memory_critical_mb"`
	ThroughputFloorRPS float64 `json:"throughput_floor_rps" mapstructure:"throughput_floor_rps"`
}

// MonitorConfig configures the performance monitor
type MonitorConfig struct {
	Interval             time.Duration `json:"interval" mapstructure:"interval"`
	Thresholds           Thresholds    `json:"thresholds" mapstructure:"thresholds"`
	EscalationMultiplier float64       `json:"escalation_multiplier" mapstructure:"escalation_multiplier"`
	AutoRollbackEnabled  bool          `json:"auto_rollback_enabled" mapstructure:"auto_rollback_enabled"`
}

// PerformanceMonitor samples serving behaviour of deployed models on a
// fixed interval, raises and resolves threshold alerts, and triggers an
// automatic rollback when a model goes critical.
type PerformanceMonitor struct {
	config   *MonitorConfig
	stats    StatsSource
	deployer DeploymentController
	recorder MetricsRecorder
	clock    clock.Clock
	logger   *logrus.Logger
	metrics  *metrics.PrometheusMetrics

	mu      sync.RWMutex
	active  map[string]*models.Alert // keyed by modelID/metric
	history []*models.Alert

	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
}

// NewPerformanceMonitor creates a performance monitor. recorder may be nil.
func NewPerformanceMonitor(config *MonitorConfig, stats StatsSource, deployer DeploymentController, recorder MetricsRecorder, clk clock.Clock, logger *logrus.Logger) *PerformanceMonitor {
	if config == nil {
		config = getDefaultMonitorConfig()
	}
	if config.Interval <= 0 {
		config.Interval = constants.DefaultMonitorInterval
	}
	if config.EscalationMultiplier <= 1 {
		config.EscalationMultiplier = constants.DefaultEscalationMultiplier
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &PerformanceMonitor{
		config:   config,
		stats:    stats,
		deployer: deployer,
		recorder: recorder,
		clock:    clk,
		logger:   logger,
		active:   make(map[string]*models.Alert),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// SetMetrics attaches a Prometheus recorder. Must be called before Start.
func (pm *PerformanceMonitor) SetMetrics(prom *metrics.PrometheusMetrics) {
	pm.metrics = prom
}

// Start launches the monitoring loop
func (pm *PerformanceMonitor) Start(ctx context.Context) error {
	pm.mu.Lock()
	if pm.started {
		pm.mu.Unlock()
		return nil
	}
	pm.started = true
	pm.mu.Unlock()

	pm.logger.WithField("interval", pm.config.Interval).Info("Starting performance monitor")
	go pm.monitorLoop(ctx)
	return nil
}

// Stop shuts the monitoring loop down and closes the recorder
func (pm *PerformanceMonitor) Stop() {
	pm.mu.Lock()
	if !pm.started {
		pm.mu.Unlock()
		return
	}
	pm.started = false
	pm.mu.Unlock()

	close(pm.stopCh)
	<-pm.doneCh

	if pm.recorder != nil {
		pm.recorder.Close()
	}
	pm.logger.Info("Performance monitor stopped")
}

func (pm *PerformanceMonitor) monitorLoop(ctx context.Context) {
	defer close(pm.doneCh)

	ticker := pm.clock.NewTicker(pm.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C():
			pm.sweep(ctx)
		case <-pm.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// sweep monitors every model with a settled deployment. One model failing
// never stops the sweep.
func (pm *PerformanceMonitor) sweep(ctx context.Context) {
	for _, deployment := range pm.deployer.ListDeployments() {
		if deployment.Status != models.DeploymentStatusDeployed {
			continue
		}
		if _, err := pm.Monitor(ctx, deployment.ModelID); err != nil {
			pm.logger.WithError(err).WithField("model_id", deployment.ModelID).
				Warn("Monitoring pass failed")
		}
	}
}

// Monitor takes one serving sample for a model, updates alerts, and returns
// the overall health bucket. Critical health triggers an automatic rollback
// when enabled.
func (pm *PerformanceMonitor) Monitor(ctx context.Context, modelID string) (models.HealthStatus, error) {
	sample, err := pm.stats.Stats(ctx, modelID)
	if err != nil {
		return models.HealthCritical, pkgerrors.WrapError(err, pkgerrors.ErrorTypeMonitoring,
			pkgerrors.CodeReadFailed, "failed to sample serving stats").
			WithContext("model_id", modelID)
	}

	health := pm.CheckAlerts(sample)
	pm.metrics.SetHealthStatus(modelID, healthValue(health))

	if pm.recorder != nil {
		if err := pm.recorder.Record(ctx, sample); err != nil {
			pm.logger.WithError(err).WithField("model_id", modelID).
				Warn("Failed to record serving sample")
		}
	}

	if health == models.HealthCritical && pm.config.AutoRollbackEnabled {
		pm.autoRollback(ctx, modelID)
	}

	return health, nil
}

// CheckAlerts evaluates one sample against the configured thresholds,
// raising, escalating, and resolving alerts as needed. Returns the overall
// health bucket, the worst bucket across all metrics.
func (pm *PerformanceMonitor) CheckAlerts(sample *models.ServingStats) models.HealthStatus {
	overall := models.HealthHealthy

	for _, metric := range []models.MetricType{
		models.MetricLatency,
		models.MetricErrorRate,
		models.MetricMemory,
		models.MetricThroughput,
	} {
		status, threshold := pm.bucket(metric, sample.Value(metric))

		switch status {
		case models.HealthHealthy:
			pm.resolveAlert(sample.ModelID, metric)
		case models.HealthWarning:
			pm.raiseAlert(sample, metric, models.SeverityWarning, threshold)
		case models.HealthCritical:
			pm.raiseAlert(sample, metric, models.SeverityCritical, threshold)
		}

		if healthValue(status) > healthValue(overall) {
			overall = status
		}
	}

	return overall
}

// bucket grades one metric value and returns the threshold it breached.
// A value more than EscalationMultiplier times over the warning threshold
// is treated as critical even below the critical threshold.
func (pm *PerformanceMonitor) bucket(metric models.MetricType, value float64) (models.HealthStatus, float64) {
	t := pm.config.Thresholds

	switch metric {
	case models.MetricLatency:
		return pm.gradeCeiling(value, t.LatencyWarningMs, t.LatencyCriticalMs)
	case models.MetricErrorRate:
		return pm.gradeCeiling(value, t.ErrorRateWarning, t.ErrorRateCritical)
	case models.MetricMemory:
		return pm.gradeCeiling(value, t.MemoryWarningMB, t.MemoryCriticalMB)
	case models.MetricThroughput:
		floor := t.ThroughputFloorRPS
		if floor <= 0 {
			return models.HealthHealthy, 0
		}
		if value < floor/pm.config.EscalationMultiplier {
			return models.HealthCritical, floor
		}
		if value < floor {
			return models.HealthWarning, floor
		}
		return models.HealthHealthy, floor
	}
	return models.HealthHealthy, 0
}

func (pm *PerformanceMonitor) gradeCeiling(value, warning, critical float64) (models.HealthStatus, float64) {
	switch {
	case critical > 0 && value > critical:
		return models.HealthCritical, critical
	case warning > 0 && value > warning*pm.config.EscalationMultiplier:
		return models.HealthCritical, warning * pm.config.EscalationMultiplier
	case warning > 0 && value > warning:
		return models.HealthWarning, warning
	default:
		return models.HealthHealthy, warning
	}
}

// raiseAlert creates a new alert or escalates an existing one. A repeat
// breach at the same severity only refreshes the recorded value.
func (pm *PerformanceMonitor) raiseAlert(sample *models.ServingStats, metric models.MetricType, severity models.AlertSeverity, threshold float64) {
	key := alertKey(sample.ModelID, metric)
	value := sample.Value(metric)

	pm.mu.Lock()
	existing, ok := pm.active[key]
	if ok && existing.Severity == severity {
		existing.Value = value
		existing.Timestamp = pm.clock.Now()
		pm.mu.Unlock()
		return
	}
	if ok {
		// Severity changed; retire the old alert and raise at the new grade
		pm.resolveLocked(key)
	}

	alert := &models.Alert{
		ID:        uuid.New().String(),
		ModelID:   sample.ModelID,
		Metric:    metric,
		Severity:  severity,
		Message:   fmt.Sprintf("%s %s breached threshold %.4g with value %.4g", sample.ModelID, metric, threshold, value),
		Value:     value,
		Threshold: threshold,
		Timestamp: pm.clock.Now(),
	}
	pm.active[key] = alert
	pm.history = append(pm.history, alert)
	pm.mu.Unlock()

	pm.metrics.RecordAlert(string(severity))

	pm.logger.WithFields(logrus.Fields{
		"model_id":  sample.ModelID,
		"metric":    metric,
		"severity":  severity,
		"value":     value,
		"threshold": threshold,
	}).Warn("Alert raised")
}

// resolveAlert clears an active alert once its metric recovers
func (pm *PerformanceMonitor) resolveAlert(modelID string, metric models.MetricType) {
	key := alertKey(modelID, metric)

	pm.mu.Lock()
	alert, ok := pm.active[key]
	if !ok {
		pm.mu.Unlock()
		return
	}
	pm.resolveLocked(key)
	pm.mu.Unlock()

	pm.logger.WithFields(logrus.Fields{
		"model_id": modelID,
		"metric":   metric,
		"severity": alert.Severity,
	}).Info("Alert resolved")
}

func (pm *PerformanceMonitor) resolveLocked(key string) {
	alert := pm.active[key]
	now := pm.clock.Now()
	alert.Resolved = true
	alert.ResolvedAt = &now
	delete(pm.active, key)
}

// autoRollback restores the previous version of a critical model. A model
// with nothing to roll back to stays critical and keeps being reported.
func (pm *PerformanceMonitor) autoRollback(ctx context.Context, modelID string) {
	pm.logger.WithField("model_id", modelID).Warn("Critical health, triggering automatic rollback")

	if _, err := pm.deployer.Rollback(ctx, modelID); err != nil {
		if errors.Is(err, pkgerrors.ErrRollbackImpossible) {
			pm.logger.WithField("model_id", modelID).
				Error("Automatic rollback impossible, no previous version")
			return
		}
		pm.logger.WithError(err).WithField("model_id", modelID).
			Error("Automatic rollback failed")
	}
}

// ActiveAlerts returns copies of all unresolved alerts
func (pm *PerformanceMonitor) ActiveAlerts() []*models.Alert {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	alerts := make([]*models.Alert, 0, len(pm.active))
	for _, alert := range pm.active {
		result := *alert
		alerts = append(alerts, &result)
	}
	return alerts
}

// AlertHistory returns copies of every alert ever raised, oldest first
func (pm *PerformanceMonitor) AlertHistory() []*models.Alert {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	history := make([]*models.Alert, 0, len(pm.history))
	for _, alert := range pm.history {
		result := *alert
		history = append(history, &result)
	}
	return history
}

func alertKey(modelID string, metric models.MetricType) string {
	return modelID + "/" + string(metric)
}

func healthValue(status models.HealthStatus) float64 {
	switch status {
	case models.HealthWarning:
		return 1
	case models.HealthCritical:
		return 2
	}
	return 0
}

func getDefaultMonitorConfig() *MonitorConfig {
	return &MonitorConfig{
		Interval: constants.DefaultMonitorInterval,
		Thresholds: Thresholds{
			LatencyWarningMs:   constants.DefaultLatencyWarningMs,
			LatencyCriticalMs:  constants.DefaultLatencyCriticalMs,
			ErrorRateWarning:   constants.DefaultErrorRateWarning,
			ErrorRateCritical:  constants.DefaultErrorRateCritical,
			MemoryWarningMB:    constants.DefaultMemoryWarningMB,
			MemoryCriticalMB:   constants.DefaultMemoryCriticalMB,
			ThroughputFloorRPS: constants.DefaultThroughputFloorRPS,
		},
		EscalationMultiplier: constants.DefaultEscalationMultiplier,
		AutoRollbackEnabled:  true,
	}
}
