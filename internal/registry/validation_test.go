package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/inferloop/modelops/pkg/errors"
	"github.com/inferloop/modelops/pkg/models"
)

func registerTestVersion(t *testing.T, vr *VersionRegistry, result *models.TrainingResult) *models.ModelVersion {
	t.Helper()

	version, err := vr.RegisterVersion(context.Background(), result.ModelID, result)
	require.NoError(t, err)
	return version
}

func TestValidateVersionPasses(t *testing.T) {
	ctx := context.Background()
	vr := NewVersionRegistry(nil, nil, nil, nil)
	version := registerTestVersion(t, vr, testTrainingResult())

	require.NoError(t, vr.ValidateVersion(ctx, version.ID))

	got, err := vr.GetVersion(version.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VersionStatusTesting, got.Status)

	require.NotNil(t, got.PerformanceMetrics, "a passing run records benchmark results")
	assert.Greater(t, got.PerformanceMetrics.LatencyP50Ms, 0.0)
	assert.Greater(t, got.PerformanceMetrics.LatencyP95Ms, got.PerformanceMetrics.LatencyP50Ms)
	assert.Greater(t, got.PerformanceMetrics.ThroughputRPS, 0.0)
}

func TestValidateVersionOnlyFromTraining(t *testing.T) {
	ctx := context.Background()
	vr := NewVersionRegistry(nil, nil, nil, nil)
	version := registerTestVersion(t, vr, testTrainingResult())

	require.NoError(t, vr.ValidateVersion(ctx, version.ID))

	err := vr.ValidateVersion(ctx, version.ID)
	require.Error(t, err)
	assert.ErrorContains(t, err, "only training versions")
}

func TestValidateVersionNotFound(t *testing.T) {
	vr := NewVersionRegistry(nil, nil, nil, nil)

	err := vr.ValidateVersion(context.Background(), "absent-v1")
	assert.ErrorIs(t, err, pkgerrors.ErrVersionNotFound)
}

func TestValidateVersionGateFailures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*models.TrainingResult)
		gate    string
		message string
	}{
		{
			name:    "no training samples",
			mutate:  func(r *models.TrainingResult) { r.SampleCount = 0 },
			gate:    "functional",
			message: "no training samples",
		},
		{
			name:    "missing model artifact",
			mutate:  func(r *models.TrainingResult) { r.Artifacts.Model = "" },
			gate:    "functional",
			message: "missing model artifact",
		},
		{
			name:    "accuracy below threshold",
			mutate:  func(r *models.TrainingResult) { r.ValidationMetrics.Accuracy = 0.6 },
			gate:    "performance",
			message: "below threshold",
		},
		{
			name:    "path traversal in artifact location",
			mutate:  func(r *models.TrainingResult) { r.Artifacts.Logs = "../../etc/passwd" },
			gate:    "security",
			message: "path traversal",
		},
		{
			name: "precision recall skew",
			mutate: func(r *models.TrainingResult) {
				r.ValidationMetrics.Precision = 0.95
				r.ValidationMetrics.Recall = 0.60
			},
			gate:    "bias",
			message: "skew",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			vr := NewVersionRegistry(nil, nil, nil, nil)

			result := testTrainingResult()
			tt.mutate(result)
			version := registerTestVersion(t, vr, result)

			err := vr.ValidateVersion(ctx, version.ID)
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.message)

			var appErr *pkgerrors.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, pkgerrors.CodeGateFailed, appErr.Code)
			assert.Equal(t, tt.gate, appErr.Context["gate"], "error names the failing gate")

			// A failed gate leaves the version in training
			got, getErr := vr.GetVersion(version.ID)
			require.NoError(t, getErr)
			assert.Equal(t, models.VersionStatusTraining, got.Status)
			assert.Nil(t, got.PerformanceMetrics)
		})
	}
}

func TestValidateVersionBenchmarkLimits(t *testing.T) {
	ctx := context.Background()
	config := getDefaultRegistryConfig()
	config.MaxLatencyMs = 1 // impossible to clear
	vr := NewVersionRegistry(config, nil, nil, nil)

	version := registerTestVersion(t, vr, testTrainingResult())

	err := vr.ValidateVersion(ctx, version.ID)
	require.Error(t, err)

	var appErr *pkgerrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, pkgerrors.CodeBenchmarkFailed, appErr.Code)

	got, getErr := vr.GetVersion(version.ID)
	require.NoError(t, getErr)
	assert.Equal(t, models.VersionStatusTraining, got.Status)
}

func TestBenchmarkLoadScalesWithFootprint(t *testing.T) {
	small := &models.ModelVersion{TrainingMetrics: models.TrainingResult{SampleCount: 100}}
	large := &models.ModelVersion{TrainingMetrics: models.TrainingResult{SampleCount: 10000000}}

	smallP50, smallP95, _ := benchmarkLoad(small, 10)
	largeP50, largeP95, _ := benchmarkLoad(large, 10)

	assert.Greater(t, largeP50, smallP50, "heavier training footprint serves slower")
	assert.Greater(t, largeP95, smallP95)

	_, lightLoadP95, _ := benchmarkLoad(small, 1)
	_, heavyLoadP95, _ := benchmarkLoad(small, 100)
	assert.Greater(t, heavyLoadP95, lightLoadP95, "latency grows with load")
}
