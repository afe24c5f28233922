package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleModel() *CachedModel {
	return &CachedModel{
		ID:   "fraud-detector",
		Name: "Fraud Detector",
		Type: ModelTypeClassifier,
		Weights: [][]float64{
			{0.1, 0.2, 0.3},
			{0.4, 0.5, 0.6},
		},
		Biases: [][]float64{{0.01, 0.02}},
		Config: ModelConfig{
			HiddenDims:   []int{64, 32},
			LearningRate: 0.001,
			Epochs:       50,
			Features:     []string{"amount", "velocity"},
		},
	}
}

func TestArtifactSize(t *testing.T) {
	model := sampleModel()

	encoded, err := json.Marshal(model.Config)
	require.NoError(t, err)

	// 6 weights + 2 biases at 8 bytes each, plus the encoded config
	expected := int64(8*8) + int64(len(encoded))
	assert.Equal(t, expected, model.ArtifactSize())
	assert.Equal(t, model.ArtifactSize(), model.ArtifactSize(), "derivation is deterministic")
}

func TestCloneIsDeep(t *testing.T) {
	model := sampleModel()
	clone := model.Clone()

	require.Equal(t, model, clone)

	clone.Weights[0][0] = 99
	clone.Biases[0][1] = 99
	clone.Config.HiddenDims[0] = 99
	clone.Config.Features[0] = "mutated"

	assert.Equal(t, 0.1, model.Weights[0][0])
	assert.Equal(t, 0.02, model.Biases[0][1])
	assert.Equal(t, 64, model.Config.HiddenDims[0])
	assert.Equal(t, "amount", model.Config.Features[0])
}

func TestModelTypeIsValid(t *testing.T) {
	assert.True(t, ModelTypeClassifier.IsValid())
	assert.True(t, ModelTypeAnomalyDetector.IsValid())
	assert.False(t, ModelType("oracle").IsValid())
}

func TestServingStatsValue(t *testing.T) {
	stats := &ServingStats{
		LatencyP95Ms:  120,
		ThroughputRPS: 80,
		ErrorRate:     0.01,
		MemoryUsageMB: 512,
	}

	assert.Equal(t, 120.0, stats.Value(MetricLatency))
	assert.Equal(t, 80.0, stats.Value(MetricThroughput))
	assert.Equal(t, 0.01, stats.Value(MetricErrorRate))
	assert.Equal(t, 512.0, stats.Value(MetricMemory))
	assert.Equal(t, 0.0, stats.Value(MetricType("unknown")))
}
