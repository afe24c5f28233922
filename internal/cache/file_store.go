package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	pkgerrors "github.com/inferloop/modelops/pkg/errors"
	"github.com/inferloop/modelops/pkg/models"
)

// FileArtifactStore persists one JSON document per model artifact under a
// configured root directory. Records are written atomically via a temp file
// rename and are human-inspectable for manual recovery.
type FileArtifactStore struct {
	logger   *logrus.Logger
	basePath string
	mu       sync.Mutex
}

// NewFileArtifactStore creates a file-backed artifact store
func NewFileArtifactStore(basePath string, logger *logrus.Logger) (*FileArtifactStore, error) {
	if basePath == "" {
		return nil, pkgerrors.NewValidationError(pkgerrors.CodeInvalidConfig, "storage path is required")
	}

	if logger == nil {
		logger = logrus.New()
	}

	return &FileArtifactStore{
		logger:   logger,
		basePath: basePath,
	}, nil
}

// Connect creates the storage root
func (fs *FileArtifactStore) Connect(ctx context.Context) error {
	if err := os.MkdirAll(fs.basePath, 0o755); err != nil {
		return pkgerrors.WrapError(err, pkgerrors.ErrorTypeStorage,
			pkgerrors.CodeConnectionFailed, "failed to create artifact directory")
	}
	return nil
}

// Save writes a model artifact record, replacing any existing one
func (fs *FileArtifactStore) Save(ctx context.Context, model *models.CachedModel) error {
	record := artifactRecord{
		Format:        recordFormat,
		FormatVersion: recordFormatVersion,
		WrittenAt:     model.Metadata.LastAccessed,
		Model:         model,
	}

	data, err := json.MarshalIndent(&record, "", "  ")
	if err != nil {
		return pkgerrors.WrapError(err, pkgerrors.ErrorTypeStorage,
			pkgerrors.CodeWriteFailed, "failed to encode artifact record")
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	path := fs.recordPath(model.ID)
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return pkgerrors.WrapError(err, pkgerrors.ErrorTypeStorage,
			pkgerrors.CodeWriteFailed, "failed to write artifact record")
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return pkgerrors.WrapError(err, pkgerrors.ErrorTypeStorage,
			pkgerrors.CodeWriteFailed, "failed to finalize artifact record")
	}

	fs.logger.WithFields(logrus.Fields{
		"model_id": model.ID,
		"path":     path,
		"size":     len(data),
	}).Debug("Persisted model artifact")

	return nil
}

// Load reads a model artifact record by id
func (fs *FileArtifactStore) Load(ctx context.Context, modelID string) (*models.CachedModel, error) {
	data, err := os.ReadFile(fs.recordPath(modelID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, pkgerrors.ErrModelNotFound
		}
		return nil, pkgerrors.WrapError(err, pkgerrors.ErrorTypeStorage,
			pkgerrors.CodeReadFailed, "failed to read artifact record")
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

// Delete removes a record; missing records are a no-op
func (fs *FileArtifactStore) Delete(ctx context.Context, modelID string) error {
	if err := os.Remove(fs.recordPath(modelID)); err != nil && !os.IsNotExist(err) {
		return pkgerrors.WrapError(err, pkgerrors.ErrorTypeStorage,
			pkgerrors.CodeWriteFailed, "failed to delete artifact record")
	}
	return nil
}

// List returns the ids of all persisted artifacts
func (fs *FileArtifactStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(fs.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, pkgerrors.WrapError(err, pkgerrors.ErrorTypeStorage,
			pkgerrors.CodeReadFailed, "failed to list artifact records")
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}

	return ids, nil
}

// Close is a no-op for the file backend
func (fs *FileArtifactStore) Close() error {
	return nil
}

func (fs *FileArtifactStore) recordPath(modelID string) string {
	return filepath.Join(fs.basePath, modelID+".json")
}
