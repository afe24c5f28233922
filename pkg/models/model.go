package models

import (
	"encoding/json"
	"time"
)

// ModelType defines the kind of trained model an artifact represents
type ModelType string

const (
	ModelTypeClassifier      ModelType = "classifier"
	ModelTypeRegressor       ModelType = "regressor"
	ModelTypeForecaster      ModelType = "forecaster"
	ModelTypeAnomalyDetector ModelType = "anomaly_detector"
)

// IsValid reports whether the model type is one of the supported kinds
func (mt ModelType) IsValid() bool {
	switch mt {
	case ModelTypeClassifier, ModelTypeRegressor, ModelTypeForecaster, ModelTypeAnomalyDetector:
		return true
	}
	return false
}

// ModelConfig holds the hyperparameters a model was trained with
type ModelConfig struct {
	HiddenDims   []int    `json:"hidden_dims,omitempty"`
	LearningRate float64  `json:"learning_rate,omitempty"`
	Epochs       int      `json:"epochs,omitempty"`
	BatchSize    int      `json:"batch_size,omitempty"`
	Features     []string `json:"features,omitempty"`
	Threshold    float64  `json:"threshold,omitempty"`
	Regularization float64 `json:"regularization,omitempty"`
}

// ModelMetadata carries bookkeeping attached to a cached artifact.
// LastAccessed and AccessCount are the only fields mutated after creation.
type ModelMetadata struct {
	Version      string    `json:"version"`
	TrainedAt    time.Time `json:"trained_at"`
	Accuracy     float64   `json:"accuracy"`
	SizeBytes    int64     `json:"size_bytes"`
	LastAccessed time.Time `json:"last_accessed"`
	AccessCount  int64     `json:"access_count"`
}

// CachedModel is the in-memory and persisted representation of a trained
// model artifact: layer weight matrices, bias vectors, and the training
// configuration, plus metadata
type CachedModel struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Type     ModelType     `json:"type"`
	Weights  [][]float64   `json:"weights"`
	Biases   [][]float64   `json:"biases"`
	Config   ModelConfig   `json:"config"`
	Metadata ModelMetadata `json:"metadata"`
}

const float64Size = 8

// ArtifactSize derives the artifact size in bytes from the weights, biases,
// and the encoded configuration. The derivation is deterministic so repeated
// calls for the same model always agree.
func (m *CachedModel) ArtifactSize() int64 {
	var elements int64
	for _, row := range m.Weights {
		elements += int64(len(row))
	}
	for _, vec := range m.Biases {
		elements += int64(len(vec))
	}

	size := elements * float64Size
	if encoded, err := json.Marshal(m.Config); err == nil {
		size += int64(len(encoded))
	}
	return size
}

// Clone returns a deep copy of the model so callers cannot mutate cached state
func (m *CachedModel) Clone() *CachedModel {
	clone := *m

	clone.Weights = make([][]float64, len(m.Weights))
	for i, row := range m.Weights {
		clone.Weights[i] = append([]float64(nil), row...)
	}
	clone.Biases = make([][]float64, len(m.Biases))
	for i, vec := range m.Biases {
		clone.Biases[i] = append([]float64(nil), vec...)
	}
	clone.Config.HiddenDims = append([]int(nil), m.Config.HiddenDims...)
	clone.Config.Features = append([]string(nil), m.Config.Features...)

	return &clone
}
