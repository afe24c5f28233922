package deploy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/inferloop/modelops/pkg/errors"
	"github.com/inferloop/modelops/pkg/models"
)

func testVersion() *models.ModelVersion {
	return &models.ModelVersion{
		ID:      "fraud-detector-v2",
		ModelID: "fraud-detector",
		Version: "v2",
		Status:  models.VersionStatusStaging,
		ValidationMetrics: models.ValidationMetrics{
			Accuracy:  0.91,
			Precision: 0.90,
			Recall:    0.88,
		},
		Artifacts: models.ArtifactLocations{Model: "artifacts/fraud-detector/model.json"},
	}
}

func TestCreatePlanCanary(t *testing.T) {
	dp := NewDeploymentPlanner(nil, nil, nil)

	plan, err := dp.CreatePlan(testVersion(), models.StrategyCanary, "production")
	require.NoError(t, err)

	require.Len(t, plan.Steps, 3)
	assert.Equal(t, []int{10, 50, 100}, trafficRamp(plan))
	assert.Equal(t, "fraud-detector-v2", plan.VersionID)
	assert.Equal(t, "fraud-detector", plan.ModelID)

	// Each stage gates on strictly more checks than the previous one
	for i := 1; i < len(plan.Steps); i++ {
		assert.Greater(t, len(plan.Steps[i].HealthChecks), len(plan.Steps[i-1].HealthChecks))
		assert.Greater(t, len(plan.Steps[i].RollbackConditions), len(plan.Steps[i-1].RollbackConditions))
	}

	final := plan.Steps[2]
	assert.Contains(t, final.HealthChecks, models.CheckLatency)
	assert.Contains(t, final.RollbackConditions, models.ConditionLatencyIncrease)
}

func TestCreatePlanCanaryCustomInitialPercent(t *testing.T) {
	dp := NewDeploymentPlanner(&PlannerConfig{CanaryInitialPercent: 25}, nil, nil)

	plan, err := dp.CreatePlan(testVersion(), models.StrategyCanary, "production")
	require.NoError(t, err)
	assert.Equal(t, []int{25, 50, 100}, trafficRamp(plan))
}

func TestCreatePlanCanaryRejectsBadInitialPercent(t *testing.T) {
	// An initial slice at or above the midpoint falls back to the default
	dp := NewDeploymentPlanner(&PlannerConfig{CanaryInitialPercent: 60}, nil, nil)

	plan, err := dp.CreatePlan(testVersion(), models.StrategyCanary, "production")
	require.NoError(t, err)
	assert.Equal(t, []int{10, 50, 100}, trafficRamp(plan))
}

func TestCreatePlanBlueGreen(t *testing.T) {
	dp := NewDeploymentPlanner(nil, nil, nil)

	plan, err := dp.CreatePlan(testVersion(), models.StrategyBlueGreen, "production")
	require.NoError(t, err)

	require.Len(t, plan.Steps, 2)
	assert.Equal(t, []int{0, 100}, trafficRamp(plan))
	assert.Contains(t, plan.Steps[0].HealthChecks, models.CheckModelHealth)
	assert.Contains(t, plan.Steps[1].RollbackConditions, models.ConditionErrorRateSpike)
}

func TestCreatePlanRolling(t *testing.T) {
	dp := NewDeploymentPlanner(nil, nil, nil)

	plan, err := dp.CreatePlan(testVersion(), models.StrategyRolling, "production")
	require.NoError(t, err)

	require.Len(t, plan.Steps, 1)
	assert.Equal(t, 100, plan.Steps[0].TrafficPercent)
	assert.Contains(t, plan.Steps[0].HealthChecks, models.CheckMemoryUsage)
}

func TestCreatePlanDefaultsEnvironment(t *testing.T) {
	dp := NewDeploymentPlanner(nil, nil, nil)

	plan, err := dp.CreatePlan(testVersion(), models.StrategyRolling, "")
	require.NoError(t, err)
	assert.Equal(t, "production", plan.Environment)
}

func TestCreatePlanInvalidStrategy(t *testing.T) {
	dp := NewDeploymentPlanner(nil, nil, nil)

	_, err := dp.CreatePlan(testVersion(), models.DeploymentStrategy("big_bang"), "production")
	require.Error(t, err)

	var appErr *pkgerrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, pkgerrors.CodeInvalidStrategy, appErr.Code)
}

func TestCreatePlanRequiresVersion(t *testing.T) {
	dp := NewDeploymentPlanner(nil, nil, nil)

	_, err := dp.CreatePlan(nil, models.StrategyCanary, "production")
	assert.Error(t, err)
}

func TestValidatePlanRejectsBrokenPlans(t *testing.T) {
	dp := NewDeploymentPlanner(nil, nil, nil)
	base, err := dp.CreatePlan(testVersion(), models.StrategyCanary, "production")
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(*models.DeploymentPlan)
		message string
	}{
		{
			name:    "no steps",
			mutate:  func(p *models.DeploymentPlan) { p.Steps = nil },
			message: "no steps",
		},
		{
			name:    "bad numbering",
			mutate:  func(p *models.DeploymentPlan) { p.Steps[1].Step = 7 },
			message: "numbered",
		},
		{
			name:    "traffic out of range",
			mutate:  func(p *models.DeploymentPlan) { p.Steps[0].TrafficPercent = 120 },
			message: "out of range",
		},
		{
			name: "traffic decreases",
			mutate: func(p *models.DeploymentPlan) {
				p.Steps[0].TrafficPercent = 60
				p.Steps[1].TrafficPercent = 30
			},
			message: "decreases traffic",
		},
		{
			name:    "step without health checks",
			mutate:  func(p *models.DeploymentPlan) { p.Steps[1].HealthChecks = nil },
			message: "no health checks",
		},
		{
			name:    "final step below full traffic",
			mutate:  func(p *models.DeploymentPlan) { p.Steps[2].TrafficPercent = 90 },
			message: "expected 100%",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := *base
			plan.Steps = make([]models.DeploymentStep, len(base.Steps))
			copy(plan.Steps, base.Steps)
			tt.mutate(&plan)

			err := ValidatePlan(&plan)
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.message)

			var appErr *pkgerrors.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, pkgerrors.CodeInvalidPlan, appErr.Code)
		})
	}
}

func TestCreatePlanIsDeterministic(t *testing.T) {
	dp := NewDeploymentPlanner(nil, nil, nil)

	first, err := dp.CreatePlan(testVersion(), models.StrategyCanary, "production")
	require.NoError(t, err)
	second, err := dp.CreatePlan(testVersion(), models.StrategyCanary, "production")
	require.NoError(t, err)

	assert.Equal(t, first.Steps, second.Steps)
}

func trafficRamp(plan *models.DeploymentPlan) []int {
	ramp := make([]int, 0, len(plan.Steps))
	for _, step := range plan.Steps {
		ramp = append(ramp, step.TrafficPercent)
	}
	return ramp
}
