package monitor

import (
	"context"
	"sync"

	pkgerrors "github.com/inferloop/modelops/pkg/errors"
	"github.com/inferloop/modelops/pkg/models"
)

// SampleBuffer holds the most recent serving sample per model. The serving
// layer reports samples; the monitor and deployment health checks read them.
type SampleBuffer struct {
	mu      sync.RWMutex
	samples map[string]*models.ServingStats
}

// NewSampleBuffer creates an empty sample buffer
func NewSampleBuffer() *SampleBuffer {
	return &SampleBuffer{
		samples: make(map[string]*models.ServingStats),
	}
}

// Report records the latest sample for a model
func (sb *SampleBuffer) Report(sample *models.ServingStats) {
	stored := *sample
	sb.mu.Lock()
	sb.samples[sample.ModelID] = &stored
	sb.mu.Unlock()
}

// Stats returns the most recent sample for a model
func (sb *SampleBuffer) Stats(ctx context.Context, modelID string) (*models.ServingStats, error) {
	sb.mu.RLock()
	defer sb.mu.RUnlock()

	sample, ok := sb.samples[modelID]
	if !ok {
		return nil, pkgerrors.ErrModelNotFound
	}
	result := *sample
	return &result, nil
}

// Forget drops the recorded sample for a model
func (sb *SampleBuffer) Forget(modelID string) {
	sb.mu.Lock()
	delete(sb.samples, modelID)
	sb.mu.Unlock()
}
