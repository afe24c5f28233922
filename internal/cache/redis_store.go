package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	pkgerrors "github.com/inferloop/modelops/pkg/errors"
	"github.com/inferloop/modelops/pkg/models"
)

// RedisStoreConfig holds configuration for the Redis artifact store
type RedisStoreConfig struct {
	Addr         string        `json:"addr" mapstructure:"addr"`
	Password     string        `json:"password" mapstructure:"password"`
	DB           int           `json:"db" mapstructure:"db"`
	KeyPrefix    string        `json:"key_prefix" mapstructure:"key_prefix"`
	DialTimeout  time.Duration `json:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" mapstructure:"write_timeout"`
	PoolSize     int           `json:"pool_size" mapstructure:"pool_size"`
	MaxRetries   int           `json:"max_retries" mapstructure:"max_retries"`
}

// RedisArtifactStore persists artifact records as JSON values in Redis,
// one key per model id. Suited to multi-instance deployments that share a
// durable tier.
type RedisArtifactStore struct {
	config *RedisStoreConfig
	client *redis.Client
	logger *logrus.Logger
	mu     sync.Mutex
	closed bool
}

// NewRedisArtifactStore creates a Redis-backed artifact store
func NewRedisArtifactStore(config *RedisStoreConfig, logger *logrus.Logger) (*RedisArtifactStore, error) {
	if config == nil {
		return nil, pkgerrors.NewStorageError(pkgerrors.CodeInvalidConfig, "Redis config cannot be nil")
	}
	if config.Addr == "" {
		return nil, pkgerrors.NewStorageError(pkgerrors.CodeInvalidConfig, "Redis address is required")
	}

	if logger == nil {
		logger = logrus.New()
	}

	return &RedisArtifactStore{
		config: config,
		logger: logger,
	}, nil
}

// Connect establishes the Redis connection
func (rs *RedisArtifactStore) Connect(ctx context.Context) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.client != nil {
		return nil
	}

	rs.client = redis.NewClient(&redis.Options{
		Addr:         rs.config.Addr,
		Password:     rs.config.Password,
		DB:           rs.config.DB,
		DialTimeout:  rs.config.DialTimeout,
		ReadTimeout:  rs.config.ReadTimeout,
		WriteTimeout: rs.config.WriteTimeout,
		PoolSize:     rs.config.PoolSize,
		MaxRetries:   rs.config.MaxRetries,
	})

	if err := rs.client.Ping(ctx).Err(); err != nil {
		rs.client = nil
		return pkgerrors.WrapError(err, pkgerrors.ErrorTypeStorage,
			pkgerrors.CodeConnectionFailed, "failed to connect to Redis")
	}

	rs.logger.WithFields(logrus.Fields{
		"addr": rs.config.Addr,
		"db":   rs.config.DB,
	}).Info("Connected to Redis artifact store")

	return nil
}

// Save persists a model artifact record
func (rs *RedisArtifactStore) Save(ctx context.Context, model *models.CachedModel) error {
	client, err := rs.connection()
	if err != nil {
		return err
	}

	record := artifactRecord{
		Format:        recordFormat,
		FormatVersion: recordFormatVersion,
		WrittenAt:     model.Metadata.LastAccessed,
		Model:         model,
	}

	data, err := json.Marshal(&record)
	if err != nil {
		return pkgerrors.WrapError(err, pkgerrors.ErrorTypeStorage,
			pkgerrors.CodeWriteFailed, "failed to encode artifact record")
	}

	if err := client.Set(ctx, rs.recordKey(model.ID), data, 0).Err(); err != nil {
		return pkgerrors.WrapError(err, pkgerrors.ErrorTypeStorage,
			pkgerrors.CodeWriteFailed, "failed to write artifact record to Redis")
	}

	return nil
}

// Load retrieves a model artifact record by id
func (rs *RedisArtifactStore) Load(ctx context.Context, modelID string) (*models.CachedModel, error) {
	client, err := rs.connection()
	if err != nil {
		return nil, err
	}

	data, err := client.Get(ctx, rs.recordKey(modelID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, pkgerrors.ErrModelNotFound
		}
		return nil, pkgerrors.WrapError(err, pkgerrors.ErrorTypeStorage,
			pkgerrors.CodeReadFailed, "failed to read artifact record from Redis")
	}

	var record artifactRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, pkgerrors.WrapError(err, pkgerrors.ErrorTypeStorage,
			pkgerrors.CodeRecordCorrupted, "artifact record corrupted")
	}
	if record.Model == nil || record.Format != recordFormat {
		return nil, pkgerrors.NewStorageError(pkgerrors.CodeRecordCorrupted,
			fmt.Sprintf("unexpected artifact record format %q", record.Format))
	}

	return record.Model, nil
}

// Delete removes a record; missing keys are a no-op
func (rs *RedisArtifactStore) Delete(ctx context.Context, modelID string) error {
	client, err := rs.connection()
	if err != nil {
		return err
	}

	if err := client.Del(ctx, rs.recordKey(modelID)).Err(); err != nil {
		return pkgerrors.WrapError(err, pkgerrors.ErrorTypeStorage,
			pkgerrors.CodeWriteFailed, "failed to delete artifact record from Redis")
	}
	return nil
}

// List returns the ids of all persisted artifacts
func (rs *RedisArtifactStore) List(ctx context.Context) ([]string, error) {
	client, err := rs.connection()
	if err != nil {
		return nil, err
	}

	pattern := rs.recordKey("*")
	keys, err := client.Keys(ctx, pattern).Result()
	if err != nil {
		return nil, pkgerrors.WrapError(err, pkgerrors.ErrorTypeStorage,
			pkgerrors.CodeReadFailed, "failed to list artifact records in Redis")
	}

	prefix := rs.recordKey("")
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, strings.TrimPrefix(key, prefix))
	}

	return ids, nil
}

// Close closes the Redis connection
func (rs *RedisArtifactStore) Close() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.closed || rs.client == nil {
		rs.closed = true
		return nil
	}

	rs.closed = true
	return rs.client.Close()
}

func (rs *RedisArtifactStore) connection() (*redis.Client, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.closed {
		return nil, pkgerrors.ErrCacheClosed
	}
	if rs.client == nil {
		return nil, pkgerrors.ErrStorageConnectionFailed
	}
	return rs.client, nil
}

func (rs *RedisArtifactStore) recordKey(modelID string) string {
	if rs.config.KeyPrefix != "" {
		return fmt.Sprintf("%s:artifact:%s", rs.config.KeyPrefix, modelID)
	}
	return fmt.Sprintf("artifact:%s", modelID)
}
