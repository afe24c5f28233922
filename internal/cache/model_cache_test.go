package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/modelops/pkg/clock"
	pkgerrors "github.com/inferloop/modelops/pkg/errors"
	"github.com/inferloop/modelops/pkg/models"
)

// testModel builds a small artifact; weights 2x2 plus biases 1x2 makes
// 6 float64 elements, 48 bytes before the encoded config
func testModel(name string) *models.CachedModel {
	return &models.CachedModel{
		ID:   name,
		Name: name,
		Type: models.ModelTypeClassifier,
		Weights: [][]float64{
			{0.1, 0.2},
			{0.3, 0.4},
		},
		Biases: [][]float64{{0.01, 0.02}},
		Config: models.ModelConfig{
			LearningRate: 0.001,
			Epochs:       10,
		},
		Metadata: models.ModelMetadata{
			Version:  "v1",
			Accuracy: 0.92,
		},
	}
}

func newTestCache(t *testing.T, config *CacheConfig, clk clock.Clock) *ModelCache {
	t.Helper()

	mc, err := NewModelCache(config, nil, clk, nil)
	require.NoError(t, err)
	return mc
}

func memoryOnlyConfig() *CacheConfig {
	return &CacheConfig{
		MaxMemoryBytes: 1 << 20,
		MaxEntries:     100,
		TTL:            24 * time.Hour,
	}
}

func TestModelCacheSetAndGet(t *testing.T) {
	ctx := context.Background()
	mc := newTestCache(t, memoryOnlyConfig(), nil)

	original := testModel("model-a")
	require.NoError(t, mc.Set(ctx, "model-a", original))

	got, err := mc.Get(ctx, "model-a")
	require.NoError(t, err)

	assert.Equal(t, original.Weights, got.Weights)
	assert.Equal(t, original.Biases, got.Biases)
	assert.Equal(t, original.Config, got.Config)
	assert.Equal(t, "v1", got.Metadata.Version)
	assert.Equal(t, int64(1), got.Metadata.AccessCount)
	assert.Equal(t, original.ArtifactSize(), got.Metadata.SizeBytes)
}

func TestModelCacheGetMiss(t *testing.T) {
	mc := newTestCache(t, memoryOnlyConfig(), nil)

	_, err := mc.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, pkgerrors.ErrCacheMiss)

	stats := mc.GetStats()
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(0), stats.Hits)
}

func TestModelCacheReturnsCopies(t *testing.T) {
	ctx := context.Background()
	mc := newTestCache(t, memoryOnlyConfig(), nil)

	require.NoError(t, mc.Set(ctx, "model-a", testModel("model-a")))

	first, err := mc.Get(ctx, "model-a")
	require.NoError(t, err)
	first.Weights[0][0] = 999

	second, err := mc.Get(ctx, "model-a")
	require.NoError(t, err)
	assert.Equal(t, 0.1, second.Weights[0][0], "mutating a returned model must not affect the cache")
}

func TestModelCacheLRUEvictionAtEntryLimit(t *testing.T) {
	ctx := context.Background()
	config := memoryOnlyConfig()
	config.MaxEntries = 2
	mc := newTestCache(t, config, nil)

	require.NoError(t, mc.Set(ctx, "a", testModel("a")))
	require.NoError(t, mc.Set(ctx, "b", testModel("b")))
	require.NoError(t, mc.Set(ctx, "c", testModel("c")))

	_, err := mc.Get(ctx, "a")
	assert.ErrorIs(t, err, pkgerrors.ErrCacheMiss, "oldest entry should have been evicted")

	_, err = mc.Get(ctx, "b")
	assert.NoError(t, err)
	_, err = mc.Get(ctx, "c")
	assert.NoError(t, err)

	assert.Equal(t, int64(1), mc.GetStats().Evictions)
}

func TestModelCacheGetRefreshesRecency(t *testing.T) {
	ctx := context.Background()
	config := memoryOnlyConfig()
	config.MaxEntries = 2
	mc := newTestCache(t, config, nil)

	require.NoError(t, mc.Set(ctx, "a", testModel("a")))
	require.NoError(t, mc.Set(ctx, "b", testModel("b")))

	// Touch a so b becomes the least recently used
	_, err := mc.Get(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, mc.Set(ctx, "c", testModel("c")))

	_, err = mc.Get(ctx, "b")
	assert.ErrorIs(t, err, pkgerrors.ErrCacheMiss)
	_, err = mc.Get(ctx, "a")
	assert.NoError(t, err)
}

func TestModelCacheMemoryBudgetEviction(t *testing.T) {
	ctx := context.Background()
	size := testModel("a").ArtifactSize()

	config := memoryOnlyConfig()
	config.MaxMemoryBytes = 2*size + size/2 // room for two entries, not three
	mc := newTestCache(t, config, nil)

	require.NoError(t, mc.Set(ctx, "a", testModel("a")))
	require.NoError(t, mc.Set(ctx, "b", testModel("b")))
	require.NoError(t, mc.Set(ctx, "c", testModel("c")))

	stats := mc.GetStats()
	assert.Equal(t, 2, stats.Entries)
	assert.LessOrEqual(t, stats.MemoryBytes, config.MaxMemoryBytes)
	assert.Equal(t, []string{"b", "c"}, mc.Keys())
}

func TestModelCacheOversizeEntryAdmitted(t *testing.T) {
	ctx := context.Background()
	size := testModel("a").ArtifactSize()

	config := memoryOnlyConfig()
	config.MaxMemoryBytes = size / 2
	mc := newTestCache(t, config, nil)

	require.NoError(t, mc.Set(ctx, "big", testModel("big")))

	got, err := mc.Get(ctx, "big")
	require.NoError(t, err)
	assert.Equal(t, "big", got.ID)
	assert.Equal(t, 1, mc.GetStats().Entries)
}

func TestModelCacheTTLExpiry(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	config := memoryOnlyConfig()
	config.TTL = time.Hour
	mc := newTestCache(t, config, clk)

	require.NoError(t, mc.Set(ctx, "model-a", testModel("model-a")))

	clk.Advance(2 * time.Hour)

	_, err := mc.Get(ctx, "model-a")
	assert.ErrorIs(t, err, pkgerrors.ErrCacheMiss)
	assert.Empty(t, mc.Keys(), "expired entry must be removed")

	stats := mc.GetStats()
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(0), stats.Evictions, "expiry is not an eviction")
}

func TestModelCacheExpiryBeatsRecency(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	config := memoryOnlyConfig()
	config.TTL = time.Hour
	mc := newTestCache(t, config, clk)

	require.NoError(t, mc.Set(ctx, "model-a", testModel("model-a")))

	// Repeated access within the TTL does not extend the artifact's life
	clk.Advance(45 * time.Minute)
	_, err := mc.Get(ctx, "model-a")
	require.NoError(t, err)

	clk.Advance(30 * time.Minute)
	_, err = mc.Get(ctx, "model-a")
	assert.ErrorIs(t, err, pkgerrors.ErrCacheMiss)
}

func TestModelCacheSweepExpiresEntries(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	config := memoryOnlyConfig()
	config.TTL = time.Hour
	config.SweepInterval = 10 * time.Minute
	mc := newTestCache(t, config, clk)

	require.NoError(t, mc.Set(ctx, "model-a", testModel("model-a")))

	clk.Advance(2 * time.Hour)
	mc.sweepExpired()

	assert.Equal(t, 0, mc.GetStats().Entries)
}

func TestModelCacheRemoveIdempotent(t *testing.T) {
	ctx := context.Background()
	mc := newTestCache(t, memoryOnlyConfig(), nil)

	require.NoError(t, mc.Set(ctx, "model-a", testModel("model-a")))
	require.NoError(t, mc.Remove(ctx, "model-a"))
	require.NoError(t, mc.Remove(ctx, "model-a"))

	_, err := mc.Get(ctx, "model-a")
	assert.ErrorIs(t, err, pkgerrors.ErrCacheMiss)
}

func TestModelCacheReplaceExistingEntry(t *testing.T) {
	ctx := context.Background()
	mc := newTestCache(t, memoryOnlyConfig(), nil)

	require.NoError(t, mc.Set(ctx, "model-a", testModel("model-a")))

	updated := testModel("model-a")
	updated.Metadata.Version = "v2"
	require.NoError(t, mc.Set(ctx, "model-a", updated))

	got, err := mc.Get(ctx, "model-a")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Metadata.Version)
	assert.Equal(t, 1, mc.GetStats().Entries)
}

func TestModelCacheClosed(t *testing.T) {
	ctx := context.Background()
	mc := newTestCache(t, memoryOnlyConfig(), nil)
	require.NoError(t, mc.Close())

	assert.ErrorIs(t, mc.Set(ctx, "a", testModel("a")), pkgerrors.ErrCacheClosed)
	_, err := mc.Get(ctx, "a")
	assert.ErrorIs(t, err, pkgerrors.ErrCacheClosed)
}

func TestModelCacheDurableFallback(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewFileArtifactStore(dir, nil)
	require.NoError(t, err)
	require.NoError(t, store.Connect(ctx))

	config := memoryOnlyConfig()
	config.PersistenceEnabled = true
	config.StorageBackend = BackendFile
	config.StoragePath = dir

	mc, err := NewModelCache(config, store, nil, nil)
	require.NoError(t, err)

	// Seed only the durable tier
	seeded := testModel("model-a")
	seeded.Metadata.TrainedAt = time.Now()
	seeded.Metadata.SizeBytes = seeded.ArtifactSize()
	require.NoError(t, store.Save(ctx, seeded))

	got, err := mc.Get(ctx, "model-a")
	require.NoError(t, err)
	assert.Equal(t, seeded.Weights, got.Weights)

	stats := mc.GetStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, 1, stats.Entries, "durable hit must re-admit the entry")
}

func TestModelCacheCorruptDurableRecordIsMiss(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewFileArtifactStore(dir, nil)
	require.NoError(t, err)
	require.NoError(t, store.Connect(ctx))

	config := memoryOnlyConfig()
	config.PersistenceEnabled = true
	config.StorageBackend = BackendFile
	config.StoragePath = dir

	mc, err := NewModelCache(config, store, nil, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "model-a.json"), []byte("{not json"), 0o644))

	_, err = mc.Get(ctx, "model-a")
	assert.ErrorIs(t, err, pkgerrors.ErrCacheMiss)
}

func TestModelCacheStats(t *testing.T) {
	ctx := context.Background()
	mc := newTestCache(t, memoryOnlyConfig(), nil)

	require.NoError(t, mc.Set(ctx, "a", testModel("a")))

	_, err := mc.Get(ctx, "a")
	require.NoError(t, err)
	_, err = mc.Get(ctx, "absent")
	require.Error(t, err)

	stats := mc.GetStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)
	assert.InDelta(t, 0.5, stats.MissRate, 1e-9)
}

func TestNewModelCacheRejectsBadConfig(t *testing.T) {
	_, err := NewModelCache(&CacheConfig{MaxMemoryBytes: 0, MaxEntries: 10}, nil, nil, nil)
	require.Error(t, err)

	var appErr *pkgerrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, pkgerrors.CodeInvalidConfig, appErr.Code)
}
