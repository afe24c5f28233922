package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/modelops/pkg/clock"
	pkgerrors "github.com/inferloop/modelops/pkg/errors"
	"github.com/inferloop/modelops/pkg/models"
)

// stubDeployer records rollback requests from the monitor
type stubDeployer struct {
	mu          sync.Mutex
	deployments []*models.DeploymentState
	rollbacks   []string
	rollbackErr error
}

func (sd *stubDeployer) ListDeployments() []*models.DeploymentState {
	sd.mu.Lock()
	defer sd.mu.Unlock()
	return sd.deployments
}

func (sd *stubDeployer) Rollback(ctx context.Context, modelID string) (*models.DeploymentState, error) {
	sd.mu.Lock()
	defer sd.mu.Unlock()
	sd.rollbacks = append(sd.rollbacks, modelID)
	if sd.rollbackErr != nil {
		return nil, sd.rollbackErr
	}
	return &models.DeploymentState{ModelID: modelID, Status: models.DeploymentStatusDeployed}, nil
}

func (sd *stubDeployer) rollbackCount() int {
	sd.mu.Lock()
	defer sd.mu.Unlock()
	return len(sd.rollbacks)
}

func testThresholds() Thresholds {
	return Thresholds{
		LatencyWarningMs:   200,
		LatencyCriticalMs:  500,
		ErrorRateWarning:   0.02,
		ErrorRateCritical:  0.05,
		MemoryWarningMB:    1024,
		MemoryCriticalMB:   2048,
		ThroughputFloorRPS: 1.0,
	}
}

func newTestMonitor(samples *SampleBuffer, deployer DeploymentController, autoRollback bool) *PerformanceMonitor {
	config := &MonitorConfig{
		Interval:             time.Second,
		Thresholds:           testThresholds(),
		EscalationMultiplier: 2.0,
		AutoRollbackEnabled:  autoRollback,
	}
	return NewPerformanceMonitor(config, samples, deployer, nil, nil, nil)
}

func healthySample(modelID string) *models.ServingStats {
	return &models.ServingStats{
		ModelID:       modelID,
		LatencyP95Ms:  100,
		ThroughputRPS: 50,
		ErrorRate:     0.001,
		MemoryUsageMB: 512,
	}
}

func TestSampleBuffer(t *testing.T) {
	ctx := context.Background()
	sb := NewSampleBuffer()

	_, err := sb.Stats(ctx, "absent")
	assert.ErrorIs(t, err, pkgerrors.ErrModelNotFound)

	sample := healthySample("fraud-detector")
	sb.Report(sample)

	got, err := sb.Stats(ctx, "fraud-detector")
	require.NoError(t, err)
	assert.Equal(t, 100.0, got.LatencyP95Ms)

	// The buffer holds copies in both directions
	sample.LatencyP95Ms = 999
	got.ErrorRate = 1
	again, err := sb.Stats(ctx, "fraud-detector")
	require.NoError(t, err)
	assert.Equal(t, 100.0, again.LatencyP95Ms)
	assert.Equal(t, 0.001, again.ErrorRate)

	sb.Forget("fraud-detector")
	_, err = sb.Stats(ctx, "fraud-detector")
	assert.ErrorIs(t, err, pkgerrors.ErrModelNotFound)
}

func TestCheckAlertsHealthy(t *testing.T) {
	pm := newTestMonitor(NewSampleBuffer(), &stubDeployer{}, false)

	health := pm.CheckAlerts(healthySample("fraud-detector"))
	assert.Equal(t, models.HealthHealthy, health)
	assert.Empty(t, pm.ActiveAlerts())
}

func TestCheckAlertsBuckets(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.ServingStats)
		metric models.MetricType
		want   models.HealthStatus
	}{
		{
			name:   "latency warning",
			mutate: func(s *models.ServingStats) { s.LatencyP95Ms = 250 },
			metric: models.MetricLatency,
			want:   models.HealthWarning,
		},
		{
			name:   "latency critical",
			mutate: func(s *models.ServingStats) { s.LatencyP95Ms = 600 },
			metric: models.MetricLatency,
			want:   models.HealthCritical,
		},
		{
			// 450 is below the 500 critical ceiling but more than double
			// the 200 warning threshold, which escalates
			name:   "latency escalated past double warning",
			mutate: func(s *models.ServingStats) { s.LatencyP95Ms = 450 },
			metric: models.MetricLatency,
			want:   models.HealthCritical,
		},
		{
			name:   "error rate warning",
			mutate: func(s *models.ServingStats) { s.ErrorRate = 0.03 },
			metric: models.MetricErrorRate,
			want:   models.HealthWarning,
		},
		{
			name:   "error rate critical",
			mutate: func(s *models.ServingStats) { s.ErrorRate = 0.08 },
			metric: models.MetricErrorRate,
			want:   models.HealthCritical,
		},
		{
			name:   "memory warning",
			mutate: func(s *models.ServingStats) { s.MemoryUsageMB = 1500 },
			metric: models.MetricMemory,
			want:   models.HealthWarning,
		},
		{
			name:   "throughput below floor",
			mutate: func(s *models.ServingStats) { s.ThroughputRPS = 0.8 },
			metric: models.MetricThroughput,
			want:   models.HealthWarning,
		},
		{
			name:   "throughput collapsed",
			mutate: func(s *models.ServingStats) { s.ThroughputRPS = 0.3 },
			metric: models.MetricThroughput,
			want:   models.HealthCritical,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pm := newTestMonitor(NewSampleBuffer(), &stubDeployer{}, false)

			sample := healthySample("fraud-detector")
			tt.mutate(sample)

			health := pm.CheckAlerts(sample)
			assert.Equal(t, tt.want, health)

			alerts := pm.ActiveAlerts()
			require.Len(t, alerts, 1)
			assert.Equal(t, tt.metric, alerts[0].Metric)
			if tt.want == models.HealthCritical {
				assert.Equal(t, models.SeverityCritical, alerts[0].Severity)
			} else {
				assert.Equal(t, models.SeverityWarning, alerts[0].Severity)
			}
		})
	}
}

func TestCheckAlertsOverallIsWorstBucket(t *testing.T) {
	pm := newTestMonitor(NewSampleBuffer(), &stubDeployer{}, false)

	sample := healthySample("fraud-detector")
	sample.LatencyP95Ms = 250  // warning
	sample.ErrorRate = 0.08    // critical
	sample.MemoryUsageMB = 512 // healthy

	health := pm.CheckAlerts(sample)
	assert.Equal(t, models.HealthCritical, health)
	assert.Len(t, pm.ActiveAlerts(), 2)
}

func TestRepeatBreachRefreshesAlert(t *testing.T) {
	clk := clock.NewMock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	config := &MonitorConfig{
		Interval:             time.Second,
		Thresholds:           testThresholds(),
		EscalationMultiplier: 2.0,
	}
	pm := NewPerformanceMonitor(config, NewSampleBuffer(), &stubDeployer{}, nil, clk, nil)

	sample := healthySample("fraud-detector")
	sample.LatencyP95Ms = 250
	pm.CheckAlerts(sample)

	clk.Advance(time.Minute)
	sample.LatencyP95Ms = 260
	pm.CheckAlerts(sample)

	// Same severity breach updates the existing alert instead of raising
	// a second one
	alerts := pm.ActiveAlerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, 260.0, alerts[0].Value)
	assert.Equal(t, clk.Now(), alerts[0].Timestamp)
	assert.Len(t, pm.AlertHistory(), 1)
}

func TestEscalationRetiresWarningAndRaisesCritical(t *testing.T) {
	pm := newTestMonitor(NewSampleBuffer(), &stubDeployer{}, false)

	sample := healthySample("fraud-detector")
	sample.LatencyP95Ms = 250
	pm.CheckAlerts(sample)

	sample.LatencyP95Ms = 600
	pm.CheckAlerts(sample)

	alerts := pm.ActiveAlerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, models.SeverityCritical, alerts[0].Severity)

	history := pm.AlertHistory()
	require.Len(t, history, 2)
	assert.True(t, history[0].Resolved, "the warning alert was retired on escalation")
	assert.False(t, history[1].Resolved)
}

func TestAlertResolvesOnRecovery(t *testing.T) {
	pm := newTestMonitor(NewSampleBuffer(), &stubDeployer{}, false)

	sample := healthySample("fraud-detector")
	sample.ErrorRate = 0.03
	pm.CheckAlerts(sample)
	require.Len(t, pm.ActiveAlerts(), 1)

	sample.ErrorRate = 0.001
	health := pm.CheckAlerts(sample)

	assert.Equal(t, models.HealthHealthy, health)
	assert.Empty(t, pm.ActiveAlerts())

	history := pm.AlertHistory()
	require.Len(t, history, 1)
	assert.True(t, history[0].Resolved)
	assert.NotNil(t, history[0].ResolvedAt)
}

func TestMonitorSamplesAndReports(t *testing.T) {
	ctx := context.Background()
	samples := NewSampleBuffer()
	samples.Report(healthySample("fraud-detector"))
	pm := newTestMonitor(samples, &stubDeployer{}, false)

	health, err := pm.Monitor(ctx, "fraud-detector")
	require.NoError(t, err)
	assert.Equal(t, models.HealthHealthy, health)
}

func TestMonitorMissingSample(t *testing.T) {
	pm := newTestMonitor(NewSampleBuffer(), &stubDeployer{}, false)

	health, err := pm.Monitor(context.Background(), "absent")
	require.Error(t, err)
	assert.Equal(t, models.HealthCritical, health)
	assert.ErrorIs(t, err, pkgerrors.ErrModelNotFound)
}

func TestMonitorCriticalTriggersAutoRollback(t *testing.T) {
	ctx := context.Background()
	samples := NewSampleBuffer()
	sample := healthySample("fraud-detector")
	sample.ErrorRate = 0.2
	samples.Report(sample)

	deployer := &stubDeployer{}
	pm := newTestMonitor(samples, deployer, true)

	health, err := pm.Monitor(ctx, "fraud-detector")
	require.NoError(t, err)
	assert.Equal(t, models.HealthCritical, health)
	assert.Equal(t, []string{"fraud-detector"}, deployer.rollbacks)
}

func TestMonitorCriticalWithoutAutoRollback(t *testing.T) {
	ctx := context.Background()
	samples := NewSampleBuffer()
	sample := healthySample("fraud-detector")
	sample.ErrorRate = 0.2
	samples.Report(sample)

	deployer := &stubDeployer{}
	pm := newTestMonitor(samples, deployer, false)

	_, err := pm.Monitor(ctx, "fraud-detector")
	require.NoError(t, err)
	assert.Empty(t, deployer.rollbacks)
}

func TestMonitorSurvivesImpossibleRollback(t *testing.T) {
	ctx := context.Background()
	samples := NewSampleBuffer()
	sample := healthySample("fraud-detector")
	sample.ErrorRate = 0.2
	samples.Report(sample)

	deployer := &stubDeployer{rollbackErr: pkgerrors.ErrRollbackImpossible}
	pm := newTestMonitor(samples, deployer, true)

	// The rollback failure is logged, not surfaced; monitoring carries on
	health, err := pm.Monitor(ctx, "fraud-detector")
	require.NoError(t, err)
	assert.Equal(t, models.HealthCritical, health)
	require.Len(t, deployer.rollbacks, 1)

	_, err = pm.Monitor(ctx, "fraud-detector")
	require.NoError(t, err)
	assert.Len(t, deployer.rollbacks, 2)
}

func TestMonitorLoopSweepsDeployedModels(t *testing.T) {
	clk := clock.NewMock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	samples := NewSampleBuffer()

	bad := healthySample("fraud-detector")
	bad.ErrorRate = 0.2
	samples.Report(bad)
	samples.Report(healthySample("churn-model"))

	deployer := &stubDeployer{deployments: []*models.DeploymentState{
		{ModelID: "fraud-detector", Status: models.DeploymentStatusDeployed},
		{ModelID: "churn-model", Status: models.DeploymentStatusDeployed},
		{ModelID: "abandoned", Status: models.DeploymentStatusFailed},
	}}

	config := &MonitorConfig{
		Interval:             time.Second,
		Thresholds:           testThresholds(),
		EscalationMultiplier: 2.0,
		AutoRollbackEnabled:  true,
	}
	pm := NewPerformanceMonitor(config, samples, deployer, nil, clk, nil)

	require.NoError(t, pm.Start(context.Background()))
	defer pm.Stop()

	// Each poll fires one tick; the loop may need a moment to register
	// its ticker before the first one lands
	require.Eventually(t, func() bool {
		clk.Advance(time.Second)
		return deployer.rollbackCount() >= 1
	}, time.Second, 5*time.Millisecond)

	// Only the critical deployed model rolled back; the failed deployment
	// was skipped entirely
	deployer.mu.Lock()
	defer deployer.mu.Unlock()
	for _, modelID := range deployer.rollbacks {
		assert.Equal(t, "fraud-detector", modelID)
	}
}

func TestAlertHistoryReturnsCopies(t *testing.T) {
	pm := newTestMonitor(NewSampleBuffer(), &stubDeployer{}, false)

	sample := healthySample("fraud-detector")
	sample.LatencyP95Ms = 250
	pm.CheckAlerts(sample)

	history := pm.AlertHistory()
	require.Len(t, history, 1)
	history[0].Severity = models.SeverityCritical

	again := pm.AlertHistory()
	assert.Equal(t, models.SeverityWarning, again[0].Severity)
}
