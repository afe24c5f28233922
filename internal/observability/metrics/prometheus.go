package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// PrometheusMetrics provides Prometheus-based metrics collection for the
// cache, deployment, and monitoring subsystems
type PrometheusMetrics struct {
	logger   *logrus.Logger
	registry *prometheus.Registry
	server   *http.Server
	config   *PrometheusConfig

	// Cache metrics
	cacheHitsTotal      prometheus.Counter
	cacheMissesTotal    prometheus.Counter
	cacheEvictionsTotal prometheus.Counter
	cacheMemoryBytes    prometheus.Gauge
	cacheEntries        prometheus.Gauge

	// Deployment metrics
	deploymentsTotal     *prometheus.CounterVec
	rollbacksTotal       *prometheus.CounterVec
	stepDuration         *prometheus.HistogramVec
	healthChecksTotal    *prometheus.CounterVec

	// Registry metrics
	modelVersions *prometheus.GaugeVec

	// Monitoring metrics
	alertsTotal  *prometheus.CounterVec
	healthStatus *prometheus.GaugeVec
}

// PrometheusConfig configures Prometheus metrics
type PrometheusConfig struct {
	Enabled   bool   `json:"enabled"`
	Port      int    `json:"port"`
	Path      string `json:"path"`
	Namespace string `json:"namespace"`
}

// NewPrometheusMetrics creates a new Prometheus metrics instance
func NewPrometheusMetrics(config *PrometheusConfig, logger *logrus.Logger) (*PrometheusMetrics, error) {
	if config == nil {
		config = getDefaultPrometheusConfig()
	}

	if logger == nil {
		logger = logrus.New()
	}

	pm := &PrometheusMetrics{
		logger:   logger,
		registry: prometheus.NewRegistry(),
		config:   config,
	}

	pm.initializeMetrics()

	if err := pm.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return pm, nil
}

// Start starts the Prometheus metrics server
func (pm *PrometheusMetrics) Start(ctx context.Context) error {
	if !pm.config.Enabled {
		pm.logger.Info("Prometheus metrics disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(pm.config.Path, promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	pm.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", pm.config.Port),
		Handler: mux,
	}

	pm.logger.WithFields(logrus.Fields{
		"port": pm.config.Port,
		"path": pm.config.Path,
	}).Info("Starting Prometheus metrics server")

	go func() {
		if err := pm.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			pm.logger.WithError(err).Error("Prometheus metrics server error")
		}
	}()

	return nil
}

// Stop stops the Prometheus metrics server
func (pm *PrometheusMetrics) Stop(ctx context.Context) error {
	if pm.server == nil {
		return nil
	}

	pm.logger.Info("Stopping Prometheus metrics server")
	return pm.server.Shutdown(ctx)
}

// Cache metrics

func (pm *PrometheusMetrics) RecordCacheHit() {
	if pm == nil {
		return
	}
	pm.cacheHitsTotal.Inc()
}

func (pm *PrometheusMetrics) RecordCacheMiss() {
	if pm == nil {
		return
	}
	pm.cacheMissesTotal.Inc()
}

func (pm *PrometheusMetrics) RecordCacheEviction() {
	if pm == nil {
		return
	}
	pm.cacheEvictionsTotal.Inc()
}

func (pm *PrometheusMetrics) SetCacheUsage(memoryBytes int64, entries int) {
	if pm == nil {
		return
	}
	pm.cacheMemoryBytes.Set(float64(memoryBytes))
	pm.cacheEntries.Set(float64(entries))
}

// Deployment metrics

func (pm *PrometheusMetrics) RecordDeployment(strategy, status string) {
	if pm == nil {
		return
	}
	pm.deploymentsTotal.WithLabelValues(strategy, status).Inc()
}

func (pm *PrometheusMetrics) RecordRollback(status string) {
	if pm == nil {
		return
	}
	pm.rollbacksTotal.WithLabelValues(status).Inc()
}

func (pm *PrometheusMetrics) ObserveStepDuration(strategy string, duration time.Duration) {
	if pm == nil {
		return
	}
	pm.stepDuration.WithLabelValues(strategy).Observe(duration.Seconds())
}

func (pm *PrometheusMetrics) RecordHealthCheck(check, status string) {
	if pm == nil {
		return
	}
	pm.healthChecksTotal.WithLabelValues(check, status).Inc()
}

// Registry metrics

func (pm *PrometheusMetrics) SetModelVersions(status string, count int) {
	if pm == nil {
		return
	}
	pm.modelVersions.WithLabelValues(status).Set(float64(count))
}

// Monitoring metrics

func (pm *PrometheusMetrics) RecordAlert(severity string) {
	if pm == nil {
		return
	}
	pm.alertsTotal.WithLabelValues(severity).Inc()
}

func (pm *PrometheusMetrics) SetHealthStatus(modelID string, value float64) {
	if pm == nil {
		return
	}
	pm.healthStatus.WithLabelValues(modelID).Set(value)
}

// initializeMetrics initializes all Prometheus metrics
func (pm *PrometheusMetrics) initializeMetrics() {
	namespace := pm.config.Namespace

	pm.cacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total number of model cache hits",
	})

	pm.cacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total number of model cache misses",
	})

	pm.cacheEvictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "evictions_total",
		Help:      "Total number of LRU evictions",
	})

	pm.cacheMemoryBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "memory_bytes",
		Help:      "Aggregate size of in-memory cached artifacts",
	})

	pm.cacheEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "entries",
		Help:      "Number of artifacts currently cached in memory",
	})

	pm.deploymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deploy",
			Name:      "deployments_total",
			Help:      "Total number of deployments by strategy and outcome",
		},
		[]string{"strategy", "status"},
	)

	pm.rollbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deploy",
			Name:      "rollbacks_total",
			Help:      "Total number of rollbacks by outcome",
		},
		[]string{"status"},
	)

	pm.stepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "deploy",
			Name:      "step_duration_seconds",
			Help:      "Deployment step duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		},
		[]string{"strategy"},
	)

	pm.healthChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deploy",
			Name:      "health_checks_total",
			Help:      "Total number of health check executions",
		},
		[]string{"check", "status"},
	)

	pm.modelVersions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "model_versions",
			Help:      "Number of registered model versions by status",
		},
		[]string{"status"},
	)

	pm.alertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "alerts_total",
			Help:      "Total number of alerts raised by severity",
		},
		[]string{"severity"},
	)

	pm.healthStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "health_status",
			Help:      "Model health bucket (0 healthy, 1 warning, 2 critical)",
		},
		[]string{"model_id"},
	)
}

// registerMetrics registers all metrics with the registry
func (pm *PrometheusMetrics) registerMetrics() error {
	collectors := []prometheus.Collector{
		pm.cacheHitsTotal,
		pm.cacheMissesTotal,
		pm.cacheEvictionsTotal,
		pm.cacheMemoryBytes,
		pm.cacheEntries,
		pm.deploymentsTotal,
		pm.rollbacksTotal,
		pm.stepDuration,
		pm.healthChecksTotal,
		pm.modelVersions,
		pm.alertsTotal,
		pm.healthStatus,
	}

	for _, collector := range collectors {
		if err := pm.registry.Register(collector); err != nil {
			return err
		}
	}

	return nil
}

func getDefaultPrometheusConfig() *PrometheusConfig {
	return &PrometheusConfig{
		Enabled:   true,
		Port:      9090,
		Path:      "/metrics",
		Namespace: "modelops",
	}
}
