package models

import "time"

// TrainingResult is the inbound record produced by the training pipeline
// when a training run completes
type TrainingResult struct {
	ModelID           string            `json:"model_id"`
	ModelName         string            `json:"model_name"`
	ModelType         ModelType         `json:"model_type"`
	Accuracy          float64           `json:"accuracy"`
	Loss              float64           `json:"loss"`
	SampleCount       int64             `json:"sample_count"`
	TrainingDuration  time.Duration     `json:"training_duration"`
	CompletedAt       time.Time         `json:"completed_at"`
	ValidationMetrics ValidationMetrics `json:"validation_metrics"`
	Artifacts         ArtifactLocations `json:"artifacts"`
}

// ValidationMetrics captures offline evaluation results from training
type ValidationMetrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1Score   float64 `json:"f1_score"`
	AUC       float64 `json:"auc,omitempty"`
}

// ArtifactLocations records where the artifacts of a trained version live
type ArtifactLocations struct {
	Model   string `json:"model"`
	Config  string `json:"config"`
	Metrics string `json:"metrics"`
	Logs    string `json:"logs"`
}
