package deploy

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/modelops/pkg/clock"
	"github.com/inferloop/modelops/pkg/constants"
	pkgerrors "github.com/inferloop/modelops/pkg/errors"
	"github.com/inferloop/modelops/pkg/models"
)

// PlannerConfig configures deployment plan generation
type PlannerConfig struct {
	CanaryInitialPercent int `json:"canary_initial_percent" mapstructure:"canary_initial_percent"`
}

// DeploymentPlanner turns a validated model version into an ordered rollout
// plan. Planning is pure: no side effects, the same inputs always produce
// the same step sequence.
type DeploymentPlanner struct {
	config *PlannerConfig
	clock  clock.Clock
	logger *logrus.Logger
}

// NewDeploymentPlanner creates a deployment planner
func NewDeploymentPlanner(config *PlannerConfig, clk clock.Clock, logger *logrus.Logger) *DeploymentPlanner {
	if config == nil {
		config = getDefaultPlannerConfig()
	}
	if config.CanaryInitialPercent <= 0 || config.CanaryInitialPercent >= 50 {
		config.CanaryInitialPercent = constants.DefaultCanaryInitialPercent
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &DeploymentPlanner{
		config: config,
		clock:  clk,
		logger: logger,
	}
}

// CreatePlan builds the step sequence for rolling out a version with the
// given strategy into the target environment
func (dp *DeploymentPlanner) CreatePlan(version *models.ModelVersion, strategy models.DeploymentStrategy, environment string) (*models.DeploymentPlan, error) {
	if version == nil {
		return nil, pkgerrors.NewValidationError(pkgerrors.CodeInvalidInput, "model version is required")
	}
	if !strategy.IsValid() {
		return nil, pkgerrors.NewDeploymentError(pkgerrors.CodeInvalidStrategy,
			fmt.Sprintf("unsupported deployment strategy %q", strategy))
	}
	if environment == "" {
		environment = constants.DefaultTargetEnvironment
	}

	var steps []models.DeploymentStep
	switch strategy {
	case models.StrategyBlueGreen:
		steps = dp.blueGreenSteps()
	case models.StrategyCanary:
		steps = dp.canarySteps()
	case models.StrategyRolling:
		steps = dp.rollingSteps()
	}

	plan := &models.DeploymentPlan{
		VersionID:   version.ID,
		ModelID:     version.ModelID,
		Strategy:    strategy,
		Environment: environment,
		Steps:       steps,
		CreatedAt:   dp.clock.Now(),
	}

	if err := ValidatePlan(plan); err != nil {
		return nil, err
	}

	dp.logger.WithFields(logrus.Fields{
		"version_id":  version.ID,
		"strategy":    strategy,
		"environment": environment,
		"steps":       len(steps),
	}).Info("Created deployment plan")

	return plan, nil
}

// blueGreenSteps stands the new version up alongside the old one at zero
// traffic, then cuts over in a single switch
func (dp *DeploymentPlanner) blueGreenSteps() []models.DeploymentStep {
	return []models.DeploymentStep{
		{
			Step:           1,
			Description:    "Deploy new version to green environment",
			TrafficPercent: 0,
			HealthChecks: []models.HealthCheckType{
				models.CheckModelHealth,
				models.CheckPredictionAccuracy,
			},
			RollbackConditions: []models.RollbackCondition{
				models.ConditionHealthCheckFailure,
				models.ConditionAccuracyDrop,
			},
		},
		{
			Step:           2,
			Description:    "Switch all traffic to green environment",
			TrafficPercent: 100,
			HealthChecks: []models.HealthCheckType{
				models.CheckModelHealth,
				models.CheckPredictionAccuracy,
				models.CheckLatency,
			},
			RollbackConditions: []models.RollbackCondition{
				models.ConditionErrorRateSpike,
				models.ConditionLatencyIncrease,
			},
		},
	}
}

// canarySteps ramps traffic through three stages with progressively
// stricter health gating at each stage
func (dp *DeploymentPlanner) canarySteps() []models.DeploymentStep {
	initial := dp.config.CanaryInitialPercent

	return []models.DeploymentStep{
		{
			Step:           1,
			Description:    fmt.Sprintf("Route %d%% of traffic to canary", initial),
			TrafficPercent: initial,
			HealthChecks: []models.HealthCheckType{
				models.CheckModelHealth,
				models.CheckPredictionAccuracy,
			},
			RollbackConditions: []models.RollbackCondition{
				models.ConditionHealthCheckFailure,
				models.ConditionAccuracyDrop,
			},
		},
		{
			Step:           2,
			Description:    "Increase canary traffic to 50%",
			TrafficPercent: 50,
			HealthChecks: []models.HealthCheckType{
				models.CheckModelHealth,
				models.CheckPredictionAccuracy,
				models.CheckErrorRate,
			},
			RollbackConditions: []models.RollbackCondition{
				models.ConditionHealthCheckFailure,
				models.ConditionAccuracyDrop,
				models.ConditionErrorRateSpike,
			},
		},
		{
			Step:           3,
			Description:    "Promote canary to full traffic",
			TrafficPercent: 100,
			HealthChecks: []models.HealthCheckType{
				models.CheckModelHealth,
				models.CheckPredictionAccuracy,
				models.CheckErrorRate,
				models.CheckLatency,
			},
			RollbackConditions: []models.RollbackCondition{
				models.ConditionHealthCheckFailure,
				models.ConditionAccuracyDrop,
				models.ConditionErrorRateSpike,
				models.ConditionLatencyIncrease,
			},
		},
	}
}

// rollingSteps replaces serving instances in place in a single pass
func (dp *DeploymentPlanner) rollingSteps() []models.DeploymentStep {
	return []models.DeploymentStep{
		{
			Step:           1,
			Description:    "Replace serving instances with new version",
			TrafficPercent: 100,
			HealthChecks: []models.HealthCheckType{
				models.CheckModelHealth,
				models.CheckErrorRate,
				models.CheckMemoryUsage,
			},
			RollbackConditions: []models.RollbackCondition{
				models.ConditionHealthCheckFailure,
				models.ConditionErrorRateSpike,
			},
		},
	}
}

// ValidatePlan checks the structural invariants every executable plan must
// hold: at least one step, a terminal step at full traffic, step numbers in
// sequence, and traffic that never decreases between steps.
func ValidatePlan(plan *models.DeploymentPlan) error {
	if plan == nil {
		return pkgerrors.NewDeploymentError(pkgerrors.CodeInvalidPlan, "plan cannot be nil")
	}
	if len(plan.Steps) == 0 {
		return pkgerrors.NewDeploymentError(pkgerrors.CodeInvalidPlan, "plan has no steps")
	}

	previousTraffic := -1
	for i, step := range plan.Steps {
		if step.Step != i+1 {
			return pkgerrors.NewDeploymentError(pkgerrors.CodeInvalidPlan,
				fmt.Sprintf("step %d is numbered %d", i+1, step.Step))
		}
		if step.TrafficPercent < 0 || step.TrafficPercent > 100 {
			return pkgerrors.NewDeploymentError(pkgerrors.CodeInvalidPlan,
				fmt.Sprintf("step %d traffic %d%% out of range", step.Step, step.TrafficPercent))
		}
		if step.TrafficPercent < previousTraffic {
			return pkgerrors.NewDeploymentError(pkgerrors.CodeInvalidPlan,
				fmt.Sprintf("step %d decreases traffic from %d%% to %d%%",
					step.Step, previousTraffic, step.TrafficPercent))
		}
		if len(step.HealthChecks) == 0 {
			return pkgerrors.NewDeploymentError(pkgerrors.CodeInvalidPlan,
				fmt.Sprintf("step %d has no health checks", step.Step))
		}
		previousTraffic = step.TrafficPercent
	}

	if last := plan.Steps[len(plan.Steps)-1]; last.TrafficPercent != 100 {
		return pkgerrors.NewDeploymentError(pkgerrors.CodeInvalidPlan,
			fmt.Sprintf("final step serves %d%% traffic, expected 100%%", last.TrafficPercent))
	}

	return nil
}

func getDefaultPlannerConfig() *PlannerConfig {
	return &PlannerConfig{
		CanaryInitialPercent: constants.DefaultCanaryInitialPercent,
	}
}
