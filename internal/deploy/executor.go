package deploy

import (
	"context"
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

// VersionLifecycle is the registry surface the executor needs to look up
// versions and record lifecycle outcomes
type VersionLifecycle interface {
	GetVersion(versionID string) (*models.ModelVersion, error)
	MarkProduction(ctx context.Context, versionID string) error
	Deprecate(ctx context.Context, versionID string) error
}

// ExecutorConfig configures deployment execution
type ExecutorConfig struct {
	HealthCheckTimeout time.Duration `json:"health_check_timeout" mapstructure:"health_check_timeout"`
}

// DeploymentExecutor runs deployment plans step by step and keeps the
// authoritative per-model record of what is serving. Operations on the same
// model are serialized; different models deploy concurrently.
type DeploymentExecutor struct {
	config   *ExecutorConfig
	registry VersionLifecycle
	health   HealthChecker
	clock    clock.Clock
	logger   *logrus.Logger
	metrics  *metrics.PrometheusMetrics

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	statesMu sync.RWMutex
	states   map[string]*models.DeploymentState
}

// NewDeploymentExecutor creates a deployment executor
func NewDeploymentExecutor(config *ExecutorConfig, registry VersionLifecycle, health HealthChecker, clk clock.Clock, logger *logrus.Logger) *DeploymentExecutor {
	if config == nil {
		config = getDefaultExecutorConfig()
	}
	if config.HealthCheckTimeout <= 0 {
		config.HealthCheckTimeout = constants.DefaultHealthCheckTimeout
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &DeploymentExecutor{
		config:   config,
		registry: registry,
		health:   health,
		clock:    clk,
		logger:   logger,
		locks:    make(map[string]*sync.Mutex),
		states:   make(map[string]*models.DeploymentState),
	}
}

// SetMetrics attaches a Prometheus recorder
func (de *DeploymentExecutor) SetMetrics(prom *metrics.PrometheusMetrics) {
	de.metrics = prom
}

// Deploy executes a plan step by step. Every health check of a step must
// pass before the next step runs. A failing step triggers an automatic
// rollback to the previously serving version; if no previous version exists
// the deployment settles in failed status. The returned state reflects the
// settled outcome even when an error is returned.
func (de *DeploymentExecutor) Deploy(ctx context.Context, plan *models.DeploymentPlan) (*models.DeploymentState, error) {
	if err := ValidatePlan(plan); err != nil {
		return nil, err
	}

	version, err := de.registry.GetVersion(plan.VersionID)
	if err != nil {
		return nil, err
	}
	if version.Status == models.VersionStatusDeprecated {
		return nil, pkgerrors.NewDeploymentError(pkgerrors.CodeInvalidPlan,
			fmt.Sprintf("version %s is deprecated", plan.VersionID))
	}

	lock := de.modelLock(plan.ModelID)
	lock.Lock()
	defer lock.Unlock()

	state := &models.DeploymentState{
		DeploymentID:    uuid.New().String(),
		ModelID:         plan.ModelID,
		CurrentVersion:  plan.VersionID,
		PreviousVersion: de.servingVersion(plan.ModelID),
		Strategy:        plan.Strategy,
		Environment:     plan.Environment,
		Status:          models.DeploymentStatusDeploying,
		DeploymentTime:  de.clock.Now(),
	}
	de.putState(state)

	de.logger.WithFields(logrus.Fields{
		"deployment_id": state.DeploymentID,
		"model_id":      plan.ModelID,
		"version_id":    plan.VersionID,
		"strategy":      plan.Strategy,
		"previous":      state.PreviousVersion,
	}).Info("Starting deployment")

	for i, step := range plan.Steps {
		if err := de.executeStep(ctx, plan, version, &step); err != nil {
			failed := step.Step
			state.FailedStep = &failed
			state.LastError = err.Error()
			state.Status = models.DeploymentStatusRollingBack
			de.putState(state)
			de.metrics.RecordDeployment(string(plan.Strategy), "failed")

			de.logger.WithError(err).WithFields(logrus.Fields{
				"deployment_id": state.DeploymentID,
				"model_id":      plan.ModelID,
				"step":          step.Step,
			}).Error("Deployment step failed, rolling back")

			de.settleRollback(ctx, state, plan.VersionID)

			return de.copyState(state), pkgerrors.WrapError(err, pkgerrors.ErrorTypeDeployment,
				pkgerrors.CodeStepFailed, "deployment step failed").
				WithContext("deployment_id", state.DeploymentID).
				WithContext("step", step.Step)
		}

		state.CompletedSteps = i + 1
		de.putState(state)
	}

	if err := de.registry.MarkProduction(ctx, plan.VersionID); err != nil {
		de.logger.WithError(err).WithField("version_id", plan.VersionID).
			Warn("Failed to mark version as production")
	}

	state.Status = models.DeploymentStatusDeployed
	de.putState(state)
	de.metrics.RecordDeployment(string(plan.Strategy), "success")

	de.logger.WithFields(logrus.Fields{
		"deployment_id": state.DeploymentID,
		"model_id":      plan.ModelID,
		"version_id":    plan.VersionID,
		"steps":         state.CompletedSteps,
	}).Info("Deployment completed")

	return de.copyState(state), nil
}

// Rollback restores the previously serving version of a model. The previous
// version is retained afterwards, so repeating a rollback restores the same
// version and is a safe no-op.
func (de *DeploymentExecutor) Rollback(ctx context.Context, modelID string) (*models.DeploymentState, error) {
	lock := de.modelLock(modelID)
	lock.Lock()
	defer lock.Unlock()

	state := de.lookupState(modelID)
	if state == nil {
		return nil, pkgerrors.ErrDeploymentNotFound
	}

	if state.PreviousVersion == "" {
		state.Status = models.DeploymentStatusFailed
		state.LastError = pkgerrors.ErrRollbackImpossible.Error()
		de.putState(state)
		de.metrics.RecordRollback("impossible")

		de.logger.WithField("model_id", modelID).Error("Rollback impossible, no previous version")
		return de.copyState(state), pkgerrors.ErrRollbackImpossible
	}

	abandoned := state.CurrentVersion
	state.CurrentVersion = state.PreviousVersion
	state.Status = models.DeploymentStatusDeployed
	de.putState(state)
	de.metrics.RecordRollback("success")

	if abandoned != state.PreviousVersion {
		de.deprecateAbandoned(ctx, abandoned)
	}

	de.logger.WithFields(logrus.Fields{
		"model_id": modelID,
		"restored": state.CurrentVersion,
	}).Info("Rolled back to previous version")

	return de.copyState(state), nil
}

// GetDeploymentState returns a copy of the deployment record for a model
func (de *DeploymentExecutor) GetDeploymentState(modelID string) (*models.DeploymentState, error) {
	de.statesMu.RLock()
	defer de.statesMu.RUnlock()

	state, ok := de.states[modelID]
	if !ok {
		return nil, pkgerrors.ErrDeploymentNotFound
	}
	result := *state
	return &result, nil
}

// ListDeployments returns copies of all deployment records
func (de *DeploymentExecutor) ListDeployments() []*models.DeploymentState {
	de.statesMu.RLock()
	defer de.statesMu.RUnlock()

	deployments := make([]*models.DeploymentState, 0, len(de.states))
	for _, state := range de.states {
		result := *state
		deployments = append(deployments, &result)
	}
	return deployments
}

// executeStep runs every health check of one step, each under the
// configured timeout
func (de *DeploymentExecutor) executeStep(ctx context.Context, plan *models.DeploymentPlan, version *models.ModelVersion, step *models.DeploymentStep) error {
	started := de.clock.Now()

	de.logger.WithFields(logrus.Fields{
		"model_id":    plan.ModelID,
		"step":        step.Step,
		"traffic_pct": step.TrafficPercent,
		"description": step.Description,
	}).Info("Executing deployment step")

	for _, check := range step.HealthChecks {
		if err := de.runHealthCheck(ctx, check, version); err != nil {
			de.metrics.RecordHealthCheck(string(check), "fail")
			de.metrics.ObserveStepDuration(string(plan.Strategy), de.clock.Now().Sub(started))
			return fmt.Errorf("health check %s: %w", check, err)
		}
		de.metrics.RecordHealthCheck(string(check), "pass")
	}

	de.metrics.ObserveStepDuration(string(plan.Strategy), de.clock.Now().Sub(started))
	return nil
}

func (de *DeploymentExecutor) runHealthCheck(ctx context.Context, check models.HealthCheckType, version *models.ModelVersion) error {
	if de.health == nil {
		return nil
	}

	checkCtx, cancel := context.WithTimeout(ctx, de.config.HealthCheckTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- de.health.Check(checkCtx, check, version)
	}()

	select {
	case err := <-done:
		return err
	case <-checkCtx.Done():
		return pkgerrors.ErrHealthCheckTimeout
	}
}

// settleRollback restores the previous version after a failed deployment,
// or marks the deployment failed when there is nothing to restore
func (de *DeploymentExecutor) settleRollback(ctx context.Context, state *models.DeploymentState, abandonedVersion string) {
	if state.PreviousVersion == "" {
		state.Status = models.DeploymentStatusFailed
		de.putState(state)
		de.metrics.RecordRollback("impossible")

		de.logger.WithField("model_id", state.ModelID).
			Error("No previous version to restore, deployment failed")
		return
	}

	state.CurrentVersion = state.PreviousVersion
	state.Status = models.DeploymentStatusDeployed
	de.putState(state)
	de.metrics.RecordRollback("success")

	de.deprecateAbandoned(ctx, abandonedVersion)

	de.logger.WithFields(logrus.Fields{
		"model_id": state.ModelID,
		"restored": state.CurrentVersion,
	}).Info("Restored previous version after failed deployment")
}

func (de *DeploymentExecutor) deprecateAbandoned(ctx context.Context, versionID string) {
	if err := de.registry.Deprecate(ctx, versionID); err != nil {
		de.logger.WithError(err).WithField("version_id", versionID).
			Warn("Failed to deprecate abandoned version")
	}
}

// servingVersion returns the version currently serving a model, if any
func (de *DeploymentExecutor) servingVersion(modelID string) string {
	de.statesMu.RLock()
	defer de.statesMu.RUnlock()

	state, ok := de.states[modelID]
	if !ok {
		return ""
	}
	if state.Status != models.DeploymentStatusDeployed {
		return ""
	}
	return state.CurrentVersion
}

// lookupState returns a private copy of the published state
func (de *DeploymentExecutor) lookupState(modelID string) *models.DeploymentState {
	de.statesMu.RLock()
	defer de.statesMu.RUnlock()

	state, ok := de.states[modelID]
	if !ok {
		return nil
	}
	result := *state
	return &result
}

// putState publishes a snapshot of the state. The caller keeps mutating its
// own struct; readers only ever see published snapshots.
func (de *DeploymentExecutor) putState(state *models.DeploymentState) {
	snapshot := *state
	de.statesMu.Lock()
	de.states[state.ModelID] = &snapshot
	de.statesMu.Unlock()
}

func (de *DeploymentExecutor) copyState(state *models.DeploymentState) *models.DeploymentState {
	result := *state
	return &result
}

// modelLock returns the mutex serializing operations on one model
func (de *DeploymentExecutor) modelLock(modelID string) *sync.Mutex {
	de.locksMu.Lock()
	defer de.locksMu.Unlock()

	lock, ok := de.locks[modelID]
	if !ok {
		lock = &sync.Mutex{}
		de.locks[modelID] = lock
	}
	return lock
}

func getDefaultExecutorConfig() *ExecutorConfig {
	return &ExecutorConfig{
		HealthCheckTimeout: constants.DefaultHealthCheckTimeout,
	}
}
