package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/modelops/pkg/models"
)

// ArtifactStore is the durable tier backing the in-memory model cache.
// Implementations persist one self-describing record per model id.
// All operations must be safe for concurrent use.
type ArtifactStore interface {
	// Connect establishes the backend connection
	Connect(ctx context.Context) error

	// Save persists a model artifact, overwriting any existing record
	Save(ctx context.Context, model *models.CachedModel) error

	// Load retrieves a model artifact by id. Returns ErrModelNotFound when
	// no record exists and ErrRecordCorrupted when the record cannot be
	// decoded.
	Load(ctx context.Context, modelID string) (*models.CachedModel, error)

	// Delete removes a record; deleting a missing record is a no-op
	Delete(ctx context.Context, modelID string) error

	// List returns the ids of all persisted artifacts
	List(ctx context.Context) ([]string, error)

	// Close releases backend resources
	Close() error
}

// artifactRecord is the persisted envelope around a cached model. The
// format fields make each record self-describing for manual inspection
// and recovery.
type artifactRecord struct {
	Format        string              `json:"format"`
	FormatVersion int                 `json:"format_version"`
	WrittenAt     time.Time           `json:"written_at"`
	Model         *models.CachedModel `json:"model"`
}

const (
	recordFormat        = "modelops.cached_model"
	recordFormatVersion = 1
)

// Storage backend identifiers
const (
	BackendFile  = "file"
	BackendRedis = "redis"
	BackendS3    = "s3"
)

// NewArtifactStore creates the durable store selected by the cache config
func NewArtifactStore(config *CacheConfig, logger *logrus.Logger) (ArtifactStore, error) {
	switch config.StorageBackend {
	case BackendFile, "":
		return NewFileArtifactStore(config.StoragePath, logger)
	case BackendRedis:
		return NewRedisArtifactStore(config.Redis, logger)
	case BackendS3:
		return NewS3ArtifactStore(config.S3, logger)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", config.StorageBackend)
	}
}
