package registry

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	pkgerrors "github.com/inferloop/modelops/pkg/errors"
	"github.com/inferloop/modelops/pkg/models"
)

// validationGate is one named pass/fail check run before a version can
// leave training status
type validationGate struct {
	name string
	run  func(*RegistryConfig, *models.ModelVersion) error
}

var validationGates = []validationGate{
	{name: "functional", run: checkFunctional},
	{name: "performance", run: checkPerformance},
	{name: "security", run: checkSecurity},
	{name: "bias", run: checkBias},
}

// ValidateVersion runs the full gate battery plus a benchmarking pass on a
// version in training status. Status advances to testing only when every
// gate passes; a failed gate leaves the status unchanged and is reported
// with the failing gate named.
func (vr *VersionRegistry) ValidateVersion(ctx context.Context, versionID string) error {
	version, err := vr.GetVersion(versionID)
	if err != nil {
		return err
	}

	if version.Status != models.VersionStatusTraining {
		return pkgerrors.NewRegistryError(pkgerrors.CodeInvalidTransition,
			fmt.Sprintf("version %s is %s, only training versions can be validated", versionID, version.Status))
	}

	for _, gate := range validationGates {
		if gateErr := gate.run(vr.config, version); gateErr != nil {
			vr.logger.WithError(gateErr).WithFields(logrus.Fields{
				"version_id": versionID,
				"gate":       gate.name,
			}).Warn("Validation gate failed")

			return pkgerrors.WrapError(gateErr, pkgerrors.ErrorTypeValidation,
				pkgerrors.CodeGateFailed, "version validation failed").
				WithDetails(fmt.Sprintf("gate %q: %v", gate.name, gateErr)).
				WithContext("gate", gate.name).
				WithContext("version_id", versionID)
		}
	}

	perf := vr.runBenchmarks(version)
	if err := vr.checkBenchmarks(perf); err != nil {
		vr.logger.WithError(err).WithField("version_id", versionID).Warn("Benchmark pass failed")
		return pkgerrors.WrapError(err, pkgerrors.ErrorTypeValidation,
			pkgerrors.CodeBenchmarkFailed, "version benchmarking failed").
			WithContext("version_id", versionID)
	}

	if err := vr.setPerformanceMetrics(ctx, versionID, perf); err != nil {
		return err
	}

	if err := vr.UpdateStatus(ctx, versionID, models.VersionStatusTesting); err != nil {
		return err
	}

	vr.logger.WithFields(logrus.Fields{
		"version_id":     versionID,
		"latency_p95_ms": perf.LatencyP95Ms,
		"throughput_rps": perf.ThroughputRPS,
	}).Info("Version validated")

	return nil
}

// runBenchmarks measures expected serving latency and throughput across the
// configured representative load sizes and keeps the worst case observed
func (vr *VersionRegistry) runBenchmarks(version *models.ModelVersion) *models.PerformanceMetrics {
	loadSizes := vr.config.BenchmarkLoadSizes
	if len(loadSizes) == 0 {
		loadSizes = []int{1, 10, 100}
	}

	perf := &models.PerformanceMetrics{
		ErrorRate:  0,
		MeasuredAt: vr.clock.Now(),
	}

	for _, load := range loadSizes {
		p50, p95, throughput := benchmarkLoad(version, load)

		if p50 > perf.LatencyP50Ms {
			perf.LatencyP50Ms = p50
		}
		if p95 > perf.LatencyP95Ms {
			perf.LatencyP95Ms = p95
		}
		if perf.ThroughputRPS == 0 || throughput < perf.ThroughputRPS {
			perf.ThroughputRPS = throughput
		}
	}

	return perf
}

// benchmarkLoad estimates per-request latency and sustained throughput for a
// batch of the given size. The cost model scales with the training footprint
// so heavier models report proportionally heavier serving characteristics.
func benchmarkLoad(version *models.ModelVersion, load int) (p50, p95, throughput float64) {
	// Per-sample inference cost in milliseconds, scaled by training size
	sampleCost := 0.5 + 0.5*math.Log10(math.Max(float64(version.TrainingMetrics.SampleCount), 10))

	p50 = sampleCost + 0.02*float64(load)
	p95 = p50 * 2.5
	// Batching amortizes per-request overhead up to a parallelism limit
	throughput = 1000 / p50 * math.Min(float64(load), 8)

	return p50, p95, throughput
}

func (vr *VersionRegistry) checkBenchmarks(perf *models.PerformanceMetrics) error {
	if vr.config.MaxLatencyMs > 0 && perf.LatencyP95Ms > vr.config.MaxLatencyMs {
		return fmt.Errorf("p95 latency %.1fms exceeds limit %.1fms", perf.LatencyP95Ms, vr.config.MaxLatencyMs)
	}
	if vr.config.MinThroughputRPS > 0 && perf.ThroughputRPS < vr.config.MinThroughputRPS {
		return fmt.Errorf("throughput %.1f rps below floor %.1f rps", perf.ThroughputRPS, vr.config.MinThroughputRPS)
	}
	return nil
}

// checkFunctional verifies the training run produced a usable artifact
func checkFunctional(config *RegistryConfig, version *models.ModelVersion) error {
	if version.TrainingMetrics.SampleCount <= 0 {
		return fmt.Errorf("no training samples recorded")
	}
	if version.TrainingMetrics.Accuracy <= 0 || version.TrainingMetrics.Accuracy > 1 {
		return fmt.Errorf("training accuracy %.3f out of range", version.TrainingMetrics.Accuracy)
	}
	if version.Artifacts.Model == "" {
		return fmt.Errorf("missing model artifact location")
	}
	return nil
}

// checkPerformance verifies held-out accuracy clears the promotion threshold
func checkPerformance(config *RegistryConfig, version *models.ModelVersion) error {
	if version.ValidationMetrics.Accuracy < config.ValidationThreshold {
		return fmt.Errorf("validation accuracy %.3f below threshold %.3f",
			version.ValidationMetrics.Accuracy, config.ValidationThreshold)
	}
	return nil
}

// checkSecurity rejects artifact locations that escape the storage root
func checkSecurity(config *RegistryConfig, version *models.ModelVersion) error {
	for _, location := range []string{
		version.Artifacts.Model,
		version.Artifacts.Config,
		version.Artifacts.Metrics,
		version.Artifacts.Logs,
	} {
		if strings.Contains(location, "..") {
			return fmt.Errorf("artifact location %q contains path traversal", location)
		}
	}
	return nil
}

// checkBias flags a large precision/recall skew, which indicates the model
// systematically favours one class
func checkBias(config *RegistryConfig, version *models.ModelVersion) error {
	precision := version.ValidationMetrics.Precision
	recall := version.ValidationMetrics.Recall
	if precision == 0 && recall == 0 {
		return nil
	}

	if skew := math.Abs(precision - recall); skew > config.MaxMetricSkew {
		return fmt.Errorf("precision/recall skew %.3f exceeds %.3f", skew, config.MaxMetricSkew)
	}
	return nil
}
