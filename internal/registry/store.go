package registry

import (
	"context"

	"github.com/inferloop/modelops/pkg/models"
)

// VersionStore is the optional persistence layer behind the registry. The
// in-memory registry remains authoritative; the store is a write-through
// record used to restore state on startup.
type VersionStore interface {
	// Connect establishes the backend connection and prepares the schema
	Connect(ctx context.Context) error

	// SaveVersion upserts a version entry
	SaveVersion(ctx context.Context, version *models.ModelVersion) error

	// LoadVersions returns all persisted version entries in creation order
	LoadVersions(ctx context.Context) ([]*models.ModelVersion, error)

	// Close releases backend resources
	Close() error
}
