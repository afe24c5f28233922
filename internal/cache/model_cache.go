package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/modelops/internal/observability/metrics"
	"github.com/inferloop/modelops/pkg/clock"
	"github.com/inferloop/modelops/pkg/constants"
	pkgerrors "github.com/inferloop/modelops/pkg/errors"
	"github.com/inferloop/modelops/pkg/models"
)

// CacheConfig configures the model cache. It is supplied at construction
// and immutable afterwards.
type CacheConfig struct {
	MaxMemoryBytes     int64              `json:"max_memory_bytes" mapstructure:"max_memory_bytes"`
	MaxEntries         int                `json:"max_entries" mapstructure:"max_entries"`
	TTL                time.Duration      `json:"ttl" mapstructure:"ttl"`
	PersistenceEnabled bool               `json:"persistence_enabled" mapstructure:"persistence_enabled"`
	StorageBackend     string             `json:"storage_backend" mapstructure:"storage_backend"` // file, redis, s3
	StoragePath        string             `json:"storage_path" mapstructure:"storage_path"`
	Redis              *RedisStoreConfig  `json:"redis,omitempty" mapstructure:"redis"`
	S3                 *S3StoreConfig     `json:"s3,omitempty" mapstructure:"s3"`
	SweepInterval      time.Duration      `json:"sweep_interval" mapstructure:"sweep_interval"`
}

// CacheStats is a point-in-time snapshot of cache counters
type CacheStats struct {
	Entries     int     `json:"entries"`
	MemoryBytes int64   `json:"memory_bytes"`
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Evictions   int64   `json:"evictions"`
	HitRate     float64 `json:"hit_rate"`
	MissRate    float64 `json:"miss_rate"`
}

// ModelCache is a bounded, two-tier store for model artifacts with LRU
// eviction and TTL expiry. The in-memory tier is authoritative; the durable
// tier is best-effort and written asynchronously. Budgets are soft ceilings:
// a single entry larger than the memory budget is still admitted after the
// cache has been evicted to empty.
type ModelCache struct {
	logger  *logrus.Logger
	config  *CacheConfig
	clock   clock.Clock
	store   ArtifactStore
	metrics *metrics.PrometheusMetrics

	mu          sync.Mutex
	entries     map[string]*models.CachedModel
	accessOrder []string // head is least recently used
	memoryBytes int64
	hits        int64
	misses      int64
	evictions   int64
	closed      bool
	stopCh      chan struct{}
}

// NewModelCache creates a model cache. store may be nil when persistence is
// disabled; clk and prom may be nil.
func NewModelCache(config *CacheConfig, store ArtifactStore, clk clock.Clock, logger *logrus.Logger) (*ModelCache, error) {
	if config == nil {
		config = getDefaultCacheConfig()
	}
	if config.MaxMemoryBytes <= 0 || config.MaxEntries <= 0 {
		return nil, pkgerrors.NewValidationError(pkgerrors.CodeInvalidConfig,
			"cache memory budget and entry limit must be positive")
	}
	if config.PersistenceEnabled && store == nil {
		return nil, pkgerrors.NewValidationError(pkgerrors.CodeInvalidConfig,
			"persistence enabled but no artifact store provided")
	}

	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &ModelCache{
		logger:  logger,
		config:  config,
		clock:   clk,
		store:   store,
		entries: make(map[string]*models.CachedModel),
		stopCh:  make(chan struct{}),
	}, nil
}

// SetMetrics attaches a Prometheus recorder. Must be called before Start.
func (mc *ModelCache) SetMetrics(prom *metrics.PrometheusMetrics) {
	mc.metrics = prom
}

// Start connects the durable tier and launches the expiry sweep loop
func (mc *ModelCache) Start(ctx context.Context) error {
	if mc.store != nil && mc.config.PersistenceEnabled {
		if err := mc.store.Connect(ctx); err != nil {
			return pkgerrors.WrapError(err, pkgerrors.ErrorTypeStorage,
				pkgerrors.CodeConnectionFailed, "failed to connect artifact store")
		}
	}

	if mc.config.SweepInterval > 0 {
		go mc.sweepLoop(ctx)
	}

	mc.logger.WithFields(logrus.Fields{
		"max_memory_bytes": mc.config.MaxMemoryBytes,
		"max_entries":      mc.config.MaxEntries,
		"ttl":              mc.config.TTL,
		"persistence":      mc.config.PersistenceEnabled,
	}).Info("Model cache started")

	return nil
}

// Close stops background work and releases the durable tier
func (mc *ModelCache) Close() error {
	mc.mu.Lock()
	if mc.closed {
		mc.mu.Unlock()
		return nil
	}
	mc.closed = true
	close(mc.stopCh)
	mc.mu.Unlock()

	if mc.store != nil {
		return mc.store.Close()
	}
	return nil
}

// Set caches a model artifact, evicting least-recently-used entries until
// the new entry fits both the memory budget and the entry limit. The durable
// write is asynchronous and non-fatal.
func (mc *ModelCache) Set(ctx context.Context, modelID string, model *models.CachedModel) error {
	if modelID == "" {
		return pkgerrors.NewValidationError(pkgerrors.CodeInvalidInput, "model id is required")
	}
	if model == nil {
		return pkgerrors.NewValidationError(pkgerrors.CodeInvalidInput, "model is required")
	}

	stored := model.Clone()
	stored.ID = modelID
	stored.Metadata.SizeBytes = stored.ArtifactSize()
	if stored.Metadata.TrainedAt.IsZero() {
		stored.Metadata.TrainedAt = mc.clock.Now()
	}
	stored.Metadata.LastAccessed = mc.clock.Now()

	mc.mu.Lock()
	if mc.closed {
		mc.mu.Unlock()
		return pkgerrors.ErrCacheClosed
	}

	// Replacing an existing entry frees its budget before capacity checks
	if _, exists := mc.entries[modelID]; exists {
		mc.dropLocked(modelID)
	}

	mc.enforceCapacityLocked(stored.Metadata.SizeBytes)

	mc.entries[modelID] = stored
	mc.accessOrder = append(mc.accessOrder, modelID)
	mc.memoryBytes += stored.Metadata.SizeBytes

	persisted := stored.Clone()
	memory, count := mc.memoryBytes, len(mc.entries)
	mc.mu.Unlock()

	mc.metrics.SetCacheUsage(memory, count)

	mc.logger.WithFields(logrus.Fields{
		"model_id":   modelID,
		"size_bytes": persisted.Metadata.SizeBytes,
		"version":    persisted.Metadata.Version,
	}).Debug("Cached model artifact")

	if mc.store != nil && mc.config.PersistenceEnabled {
		go mc.persist(persisted)
	}

	return nil
}

// Get retrieves a model artifact. Expiry is checked before recency: an entry
// older than the TTL is removed from both tiers and reported as a miss. On a
// memory miss the durable tier is consulted and a fresh record is re-admitted.
func (mc *ModelCache) Get(ctx context.Context, modelID string) (*models.CachedModel, error) {
	mc.mu.Lock()
	if mc.closed {
		mc.mu.Unlock()
		return nil, pkgerrors.ErrCacheClosed
	}

	if entry, ok := mc.entries[modelID]; ok {
		if mc.expired(entry) {
			mc.dropLocked(modelID)
			mc.misses++
			memory, count := mc.memoryBytes, len(mc.entries)
			mc.mu.Unlock()

			mc.metrics.RecordCacheMiss()
			mc.metrics.SetCacheUsage(memory, count)
			mc.deleteDurable(modelID)

			mc.logger.WithField("model_id", modelID).Debug("Cached model expired")
			return nil, pkgerrors.ErrCacheMiss
		}

		entry.Metadata.LastAccessed = mc.clock.Now()
		entry.Metadata.AccessCount++
		mc.touchLocked(modelID)
		mc.hits++
		result := entry.Clone()
		mc.mu.Unlock()

		mc.metrics.RecordCacheHit()
		return result, nil
	}
	mc.mu.Unlock()

	if mc.store != nil && mc.config.PersistenceEnabled {
		if model, ok := mc.loadDurable(ctx, modelID); ok {
			return model, nil
		}
	}

	mc.mu.Lock()
	mc.misses++
	mc.mu.Unlock()
	mc.metrics.RecordCacheMiss()

	return nil, pkgerrors.ErrCacheMiss
}

// Remove deletes a model artifact from both tiers. Removing a missing key
// is a no-op.
func (mc *ModelCache) Remove(ctx context.Context, modelID string) error {
	mc.mu.Lock()
	if mc.closed {
		mc.mu.Unlock()
		return pkgerrors.ErrCacheClosed
	}
	mc.dropLocked(modelID)
	memory, count := mc.memoryBytes, len(mc.entries)
	mc.mu.Unlock()

	mc.metrics.SetCacheUsage(memory, count)
	mc.deleteDurable(modelID)
	return nil
}

// GetStats returns a snapshot of the running cache counters
func (mc *ModelCache) GetStats() CacheStats {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	stats := CacheStats{
		Entries:     len(mc.entries),
		MemoryBytes: mc.memoryBytes,
		Hits:        mc.hits,
		Misses:      mc.misses,
		Evictions:   mc.evictions,
	}

	if total := mc.hits + mc.misses; total > 0 {
		stats.HitRate = float64(mc.hits) / float64(total)
		stats.MissRate = float64(mc.misses) / float64(total)
	}

	return stats
}

// Keys returns the cached model ids in access order, least recent first
func (mc *ModelCache) Keys() []string {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return append([]string(nil), mc.accessOrder...)
}

// enforceCapacityLocked evicts head-of-list entries until the incoming size
// fits. Runs to quiescence; an incoming entry larger than the whole budget
// is admitted once the cache is empty.
func (mc *ModelCache) enforceCapacityLocked(incoming int64) {
	for len(mc.accessOrder) > 0 &&
		(mc.memoryBytes+incoming > mc.config.MaxMemoryBytes || len(mc.entries) >= mc.config.MaxEntries) {
		victim := mc.accessOrder[0]
		mc.dropLocked(victim)
		mc.evictions++
		mc.metrics.RecordCacheEviction()

		mc.logger.WithField("model_id", victim).Info("Evicted least recently used model")
	}
}

// dropLocked removes an entry from the map, order list, and memory counter
func (mc *ModelCache) dropLocked(modelID string) {
	entry, ok := mc.entries[modelID]
	if !ok {
		return
	}

	delete(mc.entries, modelID)
	mc.memoryBytes -= entry.Metadata.SizeBytes

	for i, id := range mc.accessOrder {
		if id == modelID {
			mc.accessOrder = append(mc.accessOrder[:i], mc.accessOrder[i+1:]...)
			break
		}
	}
}

// touchLocked moves a key to the most-recently-used position
func (mc *ModelCache) touchLocked(modelID string) {
	for i, id := range mc.accessOrder {
		if id == modelID {
			mc.accessOrder = append(mc.accessOrder[:i], mc.accessOrder[i+1:]...)
			mc.accessOrder = append(mc.accessOrder, modelID)
			return
		}
	}
}

func (mc *ModelCache) expired(entry *models.CachedModel) bool {
	if mc.config.TTL <= 0 {
		return false
	}
	return mc.clock.Now().Sub(entry.Metadata.TrainedAt) > mc.config.TTL
}

// loadDurable attempts to serve a memory miss from the durable tier,
// re-admitting a fresh record under the capacity rules. Read or decode
// failures degrade to a miss.
func (mc *ModelCache) loadDurable(ctx context.Context, modelID string) (*models.CachedModel, bool) {
	loaded, err := mc.store.Load(ctx, modelID)
	if err != nil {
		if !errors.Is(err, pkgerrors.ErrModelNotFound) {
			mc.logger.WithError(err).WithField("model_id", modelID).
				Warn("Durable read failed, treating as cache miss")
		}
		return nil, false
	}

	if mc.expired(loaded) {
		mc.deleteDurable(modelID)
		return nil, false
	}

	mc.mu.Lock()
	if mc.closed {
		mc.mu.Unlock()
		return nil, false
	}

	// A concurrent Set may have re-populated the entry while the durable
	// read was in flight; the in-memory copy wins.
	if entry, ok := mc.entries[modelID]; ok {
		entry.Metadata.LastAccessed = mc.clock.Now()
		entry.Metadata.AccessCount++
		mc.touchLocked(modelID)
		mc.hits++
		result := entry.Clone()
		mc.mu.Unlock()
		mc.metrics.RecordCacheHit()
		return result, true
	}

	loaded.Metadata.LastAccessed = mc.clock.Now()
	loaded.Metadata.AccessCount++

	mc.enforceCapacityLocked(loaded.Metadata.SizeBytes)
	mc.entries[modelID] = loaded
	mc.accessOrder = append(mc.accessOrder, modelID)
	mc.memoryBytes += loaded.Metadata.SizeBytes
	mc.hits++
	result := loaded.Clone()
	memory, count := mc.memoryBytes, len(mc.entries)
	mc.mu.Unlock()

	mc.metrics.RecordCacheHit()
	mc.metrics.SetCacheUsage(memory, count)

	mc.logger.WithField("model_id", modelID).Debug("Re-admitted model from durable storage")
	return result, true
}

// persist writes an artifact to the durable tier. Failures are logged and
// non-fatal; the in-memory tier remains authoritative.
func (mc *ModelCache) persist(model *models.CachedModel) {
	ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultStorageTimeout)
	defer cancel()

	if err := mc.store.Save(ctx, model); err != nil {
		mc.logger.WithError(err).WithField("model_id", model.ID).
			Warn("Durable cache write failed, memory tier remains authoritative")
	}
}

// deleteDurable removes the durable record for a key, best effort
func (mc *ModelCache) deleteDurable(modelID string) {
	if mc.store == nil || !mc.config.PersistenceEnabled {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultStorageTimeout)
		defer cancel()

		if err := mc.store.Delete(ctx, modelID); err != nil {
			mc.logger.WithError(err).WithField("model_id", modelID).
				Warn("Failed to delete durable cache record")
		}
	}()
}

// sweepLoop lazily expires TTL-stale entries on an interval
func (mc *ModelCache) sweepLoop(ctx context.Context) {
	ticker := mc.clock.NewTicker(mc.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-mc.stopCh:
			return
		case <-ticker.C():
			mc.sweepExpired()
		}
	}
}

// sweepExpired removes every expired entry from both tiers
func (mc *ModelCache) sweepExpired() {
	mc.mu.Lock()
	var expired []string
	for id, entry := range mc.entries {
		if mc.expired(entry) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		mc.dropLocked(id)
	}
	memory, count := mc.memoryBytes, len(mc.entries)
	mc.mu.Unlock()

	if len(expired) == 0 {
		return
	}

	mc.metrics.SetCacheUsage(memory, count)
	for _, id := range expired {
		mc.deleteDurable(id)
	}

	mc.logger.WithField("expired", len(expired)).Debug("Swept expired cache entries")
}

func getDefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		MaxMemoryBytes:     constants.DefaultCacheMaxMemoryBytes,
		MaxEntries:         constants.DefaultCacheMaxEntries,
		TTL:                constants.DefaultCacheTTL,
		PersistenceEnabled: false,
		StorageBackend:     BackendFile,
		StoragePath:        constants.DefaultArtifactRoot,
		SweepInterval:      constants.DefaultCacheSweepInterval,
	}
}
