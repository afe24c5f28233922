package models

import "time"

// MetricType is the closed set of serving metrics tracked by the monitor
type MetricType string

const (
	MetricLatency    MetricType = "latency"
	MetricThroughput MetricType = "throughput"
	MetricErrorRate  MetricType = "error_rate"
	MetricMemory     MetricType = "memory"
)

// ServingStats is one sample of live serving behaviour for a deployed model,
// supplied by the serving layer
type ServingStats struct {
	ModelID       string    `json:"model_id"`
	LatencyP95Ms  float64   `json:"latency_p95_ms"`
	ThroughputRPS float64   `json:"throughput_rps"`
	ErrorRate     float64   `json:"error_rate"`
	MemoryUsageMB float64   `json:"memory_usage_mb"`
	SampledAt     time.Time `json:"sampled_at"`
}

// Value returns the sample value for a given metric type
func (s *ServingStats) Value(metric MetricType) float64 {
	switch metric {
	case MetricLatency:
		return s.LatencyP95Ms
	case MetricThroughput:
		return s.ThroughputRPS
	case MetricErrorRate:
		return s.ErrorRate
	case MetricMemory:
		return s.MemoryUsageMB
	}
	return 0
}

// HealthStatus buckets a sample against configured thresholds
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
)

// AlertSeverity grades an alert
type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// Alert is raised when a sampled metric breaches a configured threshold and
// resolved when a later sample no longer breaches it
type Alert struct {
	ID         string        `json:"id"`
	ModelID    string        `json:"model_id"`
	Metric     MetricType    `json:"metric"`
	Severity   AlertSeverity `json:"severity"`
	Message    string        `json:"message"`
	Value      float64       `json:"value"`
	Threshold  float64       `json:"threshold"`
	Timestamp  time.Time     `json:"timestamp"`
	Resolved   bool          `json:"resolved"`
	ResolvedAt *time.Time    `json:"resolved_at,omitempty"`
}
