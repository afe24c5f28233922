package models

import "time"

// DeploymentStrategy selects the rollout shape for a deployment plan
type DeploymentStrategy string

const (
	StrategyBlueGreen DeploymentStrategy = "blue_green"
	StrategyCanary    DeploymentStrategy = "canary"
	StrategyRolling   DeploymentStrategy = "rolling"
)

// IsValid reports whether the strategy is supported
func (ds DeploymentStrategy) IsValid() bool {
	switch ds {
	case StrategyBlueGreen, StrategyCanary, StrategyRolling:
		return true
	}
	return false
}

// HealthCheckType names a boolean health signal gating rollout progression
type HealthCheckType string

const (
	CheckModelHealth        HealthCheckType = "model_health"
	CheckPredictionAccuracy HealthCheckType = "prediction_accuracy"
	CheckLatency            HealthCheckType = "latency_check"
	CheckErrorRate          HealthCheckType = "error_rate_check"
	CheckMemoryUsage        HealthCheckType = "memory_usage_check"
)

// RollbackCondition names a failure signal that triggers rollback
type RollbackCondition string

const (
	ConditionHealthCheckFailure RollbackCondition = "health_check_failure"
	ConditionAccuracyDrop       RollbackCondition = "accuracy_drop"
	ConditionErrorRateSpike     RollbackCondition = "error_rate_spike"
	ConditionLatencyIncrease    RollbackCondition = "latency_increase"
)

// DeploymentStep is one traffic-shift stage of a rollout. Traffic percentage
// never decreases from one step to the next within a plan.
type DeploymentStep struct {
	Step               int                 `json:"step"`
	Description        string              `json:"description"`
	TrafficPercent     int                 `json:"traffic_percent"`
	HealthChecks       []HealthCheckType   `json:"health_checks"`
	RollbackConditions []RollbackCondition `json:"rollback_conditions"`
}

// DeploymentPlan is the ordered step sequence produced by the planner for
// one model version and target environment
type DeploymentPlan struct {
	VersionID   string             `json:"version_id"`
	ModelID     string             `json:"model_id"`
	Strategy    DeploymentStrategy `json:"strategy"`
	Environment string             `json:"environment"`
	Steps       []DeploymentStep   `json:"steps"`
	CreatedAt   time.Time          `json:"created_at"`
}

// DeploymentStatus tracks an in-flight or settled deployment
type DeploymentStatus string

const (
	DeploymentStatusDeploying   DeploymentStatus = "deploying"
	DeploymentStatusDeployed    DeploymentStatus = "deployed"
	DeploymentStatusRollingBack DeploymentStatus = "rolling_back"
	DeploymentStatusFailed      DeploymentStatus = "failed"
)

// DeploymentState is the authoritative per-model record of what is serving.
// PreviousVersion is captured immediately before a new deployment starts and
// enables exactly one level of rollback.
type DeploymentState struct {
	DeploymentID    string           `json:"deployment_id"`
	ModelID         string           `json:"model_id"`
	CurrentVersion  string           `json:"current_version"`
	PreviousVersion string           `json:"previous_version,omitempty"`
	Strategy        DeploymentStrategy `json:"strategy"`
	Environment     string           `json:"environment"`
	Status          DeploymentStatus `json:"status"`
	DeploymentTime  time.Time        `json:"deployment_time"`
	CompletedSteps  int              `json:"completed_steps"`
	FailedStep      *int             `json:"failed_step,omitempty"`
	LastError       string           `json:"last_error,omitempty"`
}
