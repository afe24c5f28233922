package models

import (
	"fmt"
	"time"
)

// VersionStatus tracks a model version through its lifecycle. Transitions
// move strictly forward along the declared order; deprecation may be forced
// from any state when a later version supersedes this one.
type VersionStatus string

const (
	VersionStatusTraining   VersionStatus = "training"
	VersionStatusTesting    VersionStatus = "testing"
	VersionStatusStaging    VersionStatus = "staging"
	VersionStatusProduction VersionStatus = "production"
	VersionStatusDeprecated VersionStatus = "deprecated"
)

// rank orders statuses for forward-only transition checks
func (vs VersionStatus) rank() int {
	switch vs {
	case VersionStatusTraining:
		return 0
	case VersionStatusTesting:
		return 1
	case VersionStatusStaging:
		return 2
	case VersionStatusProduction:
		return 3
	case VersionStatusDeprecated:
		return 4
	}
	return -1
}

// CanTransitionTo reports whether moving to next is a legal lifecycle step
func (vs VersionStatus) CanTransitionTo(next VersionStatus) bool {
	if next == VersionStatusDeprecated {
		return true
	}
	return next.rank() > vs.rank()
}

// PerformanceMetrics holds measured serving characteristics for a version,
// recorded during validation benchmarking and refreshed from live traffic
type PerformanceMetrics struct {
	LatencyP50Ms   float64   `json:"latency_p50_ms"`
	LatencyP95Ms   float64   `json:"latency_p95_ms"`
	ThroughputRPS  float64   `json:"throughput_rps"`
	ErrorRate      float64   `json:"error_rate"`
	MemoryUsageMB  float64   `json:"memory_usage_mb"`
	MeasuredAt     time.Time `json:"measured_at"`
}

// ModelVersion is an immutable record of one trained artifact advancing
// through the lifecycle state machine
type ModelVersion struct {
	ID                 string              `json:"id"`
	ModelID            string              `json:"model_id"`
	Version            string              `json:"version"`
	Status             VersionStatus       `json:"status"`
	TrainingMetrics    TrainingResult      `json:"training_metrics"`
	ValidationMetrics  ValidationMetrics   `json:"validation_metrics"`
	PerformanceMetrics *PerformanceMetrics `json:"performance_metrics,omitempty"`
	Artifacts          ArtifactLocations   `json:"artifacts"`
	CreatedAt          time.Time           `json:"created_at"`
	DeployedAt         *time.Time          `json:"deployed_at,omitempty"`
}

// VersionID builds the registry key for a model/version pair
func VersionID(modelID, version string) string {
	return fmt.Sprintf("%s-%s", modelID, version)
}
