package monitor

import (
	"context"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/sirupsen/logrus"

	pkgerrors "github.com/inferloop/modelops/pkg/errors"
	"github.com/inferloop/modelops/pkg/models"
)

// InfluxRecorderConfig holds configuration for the InfluxDB sample recorder
type InfluxRecorderConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// InfluxMetricsRecorder writes serving samples to InfluxDB as a time series,
// one point per sample tagged by model id. The recorder is a best-effort
// sink; the monitor never depends on it.
type InfluxMetricsRecorder struct {
	config   *InfluxRecorderConfig
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	logger   *logrus.Logger
}

// NewInfluxMetricsRecorder creates an InfluxDB-backed sample recorder
func NewInfluxMetricsRecorder(config *InfluxRecorderConfig, logger *logrus.Logger) (*InfluxMetricsRecorder, error) {
	if config == nil {
		return nil, pkgerrors.NewMonitoringError(pkgerrors.CodeInvalidConfig, "InfluxDB config cannot be nil")
	}
	if config.URL == "" || config.Bucket == "" {
		return nil, pkgerrors.NewMonitoringError(pkgerrors.CodeInvalidConfig, "InfluxDB URL and bucket are required")
	}

	if logger == nil {
		logger = logrus.New()
	}

	client := influxdb2.NewClient(config.URL, config.Token)

	return &InfluxMetricsRecorder{
		config:   config,
		client:   client,
		writeAPI: client.WriteAPIBlocking(config.Org, config.Bucket),
		logger:   logger,
	}, nil
}

// Record writes one serving sample
func (ir *InfluxMetricsRecorder) Record(ctx context.Context, sample *models.ServingStats) error {
	point := influxdb2.NewPoint(
		"model_serving",
		map[string]string{
			"model_id": sample.ModelID,
		},
		map[string]interface{}{
			"latency_p95_ms":  sample.LatencyP95Ms,
			"throughput_rps":  sample.ThroughputRPS,
			"error_rate":      sample.ErrorRate,
			"memory_usage_mb": sample.MemoryUsageMB,
		},
		sample.SampledAt,
	)

	if err := ir.writeAPI.WritePoint(ctx, point); err != nil {
		return pkgerrors.WrapError(err, pkgerrors.ErrorTypeMonitoring,
			pkgerrors.CodeWriteFailed, "failed to write serving sample to InfluxDB")
	}
	return nil
}

// Close releases the InfluxDB client
func (ir *InfluxMetricsRecorder) Close() {
	ir.client.Close()
}
