package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	pkgerrors "github.com/inferloop/modelops/pkg/errors"
	"github.com/inferloop/modelops/pkg/models"
)

// PostgresConfig holds configuration for the Postgres version store
type PostgresConfig struct {
	Host            string        `json:"host" mapstructure:"host"`
	Port            int           `json:"port" mapstructure:"port"`
	Database        string        `json:"database" mapstructure:"database"`
	Username        string        `json:"username" mapstructure:"username"`
	Password        string        `json:"password" mapstructure:"password"`
	SSLMode         string        `json:"ssl_mode" mapstructure:"ssl_mode"`
	ConnectTimeout  time.Duration `json:"connect_timeout" mapstructure:"connect_timeout"`
	MaxConnections  int           `json:"max_connections" mapstructure:"max_connections"`
	MaxIdleConns    int           `json:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// PostgresVersionStore persists version entries in Postgres. Metric blobs
// are stored as JSONB so the schema survives metric additions.
type PostgresVersionStore struct {
	config *PostgresConfig
	db     *sql.DB
	logger *logrus.Logger
	mu     sync.Mutex
	closed bool
}

// NewPostgresVersionStore creates a Postgres-backed version store
func NewPostgresVersionStore(config *PostgresConfig, logger *logrus.Logger) (*PostgresVersionStore, error) {
	if config == nil {
		return nil, pkgerrors.NewStorageError(pkgerrors.CodeInvalidConfig, "Postgres config cannot be nil")
	}
	if config.Host == "" || config.Database == "" {
		return nil, pkgerrors.NewStorageError(pkgerrors.CodeInvalidConfig, "Postgres host and database are required")
	}

	if config.Port == 0 {
		config.Port = 5432
	}
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &PostgresVersionStore{
		config: config,
		logger: logger,
	}, nil
}

// Connect opens the database and prepares the schema
func (ps *PostgresVersionStore) Connect(ctx context.Context) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.db != nil {
		return nil
	}

	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		ps.config.Host, ps.config.Port, ps.config.Database,
		ps.config.Username, ps.config.Password, ps.config.SSLMode)
	if ps.config.ConnectTimeout > 0 {
		dsn += fmt.Sprintf(" connect_timeout=%d", int(ps.config.ConnectTimeout.Seconds()))
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return pkgerrors.WrapError(err, pkgerrors.ErrorTypeStorage,
			pkgerrors.CodeConnectionFailed, "failed to open Postgres connection")
	}

	if ps.config.MaxConnections > 0 {
		db.SetMaxOpenConns(ps.config.MaxConnections)
	}
	if ps.config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(ps.config.MaxIdleConns)
	}
	if ps.config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(ps.config.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return pkgerrors.WrapError(err, pkgerrors.ErrorTypeStorage,
			pkgerrors.CodeConnectionFailed, "failed to ping Postgres")
	}

	ps.db = db

	if err := ps.createSchema(ctx); err != nil {
		db.Close()
		ps.db = nil
		return err
	}

	ps.logger.WithFields(logrus.Fields{
		"host":     ps.config.Host,
		"database": ps.config.Database,
	}).Info("Connected to Postgres version store")

	return nil
}

func (ps *PostgresVersionStore) createSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS model_versions (
			id                  TEXT PRIMARY KEY,
			model_id            TEXT NOT NULL,
			version             TEXT NOT NULL,
			status              TEXT NOT NULL,
			training_metrics    JSONB NOT NULL,
			validation_metrics  JSONB NOT NULL,
			performance_metrics JSONB,
			artifacts           JSONB NOT NULL,
			created_at          TIMESTAMPTZ NOT NULL,
			deployed_at         TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_model_versions_model_id ON model_versions (model_id, created_at);
	`

	if _, err := ps.db.ExecContext(ctx, schema); err != nil {
		return pkgerrors.WrapError(err, pkgerrors.ErrorTypeStorage,
			pkgerrors.CodeConnectionFailed, "failed to create version schema")
	}
	return nil
}

// SaveVersion upserts a version entry
func (ps *PostgresVersionStore) SaveVersion(ctx context.Context, version *models.ModelVersion) error {
	db, err := ps.connection()
	if err != nil {
		return err
	}

	trainingJSON, err := json.Marshal(version.TrainingMetrics)
	if err != nil {
		return pkgerrors.WrapError(err, pkgerrors.ErrorTypeStorage,
			pkgerrors.CodeWriteFailed, "failed to encode training metrics")
	}
	validationJSON, err := json.Marshal(version.ValidationMetrics)
	if err != nil {
		return pkgerrors.WrapError(err, pkgerrors.ErrorTypeStorage,
			pkgerrors.CodeWriteFailed, "failed to encode validation metrics")
	}
	artifactsJSON, err := json.Marshal(version.Artifacts)
	if err != nil {
		return pkgerrors.WrapError(err, pkgerrors.ErrorTypeStorage,
			pkgerrors.CodeWriteFailed, "failed to encode artifact locations")
	}

	var performanceJSON []byte
	if version.PerformanceMetrics != nil {
		performanceJSON, err = json.Marshal(version.PerformanceMetrics)
		if err != nil {
			return pkgerrors.WrapError(err, pkgerrors.ErrorTypeStorage,
				pkgerrors.CodeWriteFailed, "failed to encode performance metrics")
		}
	}

	query := `
		INSERT INTO model_versions
			(id, model_id, version, status, training_metrics, validation_metrics,
			 performance_metrics, artifacts, created_at, deployed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			validation_metrics = EXCLUDED.validation_metrics,
			performance_metrics = EXCLUDED.performance_metrics,
			deployed_at = EXCLUDED.deployed_at
	`

	_, err = db.ExecContext(ctx, query,
		version.ID, version.ModelID, version.Version, string(version.Status),
		trainingJSON, validationJSON, performanceJSON, artifactsJSON,
		version.CreatedAt, version.DeployedAt)
	if err != nil {
		return pkgerrors.WrapError(err, pkgerrors.ErrorTypeStorage,
			pkgerrors.CodeWriteFailed, "failed to upsert version entry")
	}

	return nil
}

// LoadVersions returns all persisted version entries in creation order
func (ps *PostgresVersionStore) LoadVersions(ctx context.Context) ([]*models.ModelVersion, error) {
	db, err := ps.connection()
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, model_id, version, status, training_metrics, validation_metrics,
		       performance_metrics, artifacts, created_at, deployed_at
		FROM model_versions
		ORDER BY created_at ASC
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, pkgerrors.WrapError(err, pkgerrors.ErrorTypeStorage,
			pkgerrors.CodeReadFailed, "failed to query version entries")
	}
	defer rows.Close()

	var versions []*models.ModelVersion
	for rows.Next() {
		var (
			version         models.ModelVersion
			status          string
			trainingJSON    []byte
			validationJSON  []byte
			performanceJSON []byte
			artifactsJSON   []byte
		)

		if err := rows.Scan(&version.ID, &version.ModelID, &version.Version, &status,
			&trainingJSON, &validationJSON, &performanceJSON, &artifactsJSON,
			&version.CreatedAt, &version.DeployedAt); err != nil {
			return nil, pkgerrors.WrapError(err, pkgerrors.ErrorTypeStorage,
				pkgerrors.CodeReadFailed, "failed to scan version entry")
		}

		version.Status = models.VersionStatus(status)

		if err := json.Unmarshal(trainingJSON, &version.TrainingMetrics); err != nil {
			return nil, pkgerrors.WrapError(err, pkgerrors.ErrorTypeStorage,
				pkgerrors.CodeRecordCorrupted, "training metrics corrupted")
		}
		if err := json.Unmarshal(validationJSON, &version.ValidationMetrics); err != nil {
			return nil, pkgerrors.WrapError(err, pkgerrors.ErrorTypeStorage,
				pkgerrors.CodeRecordCorrupted, "validation metrics corrupted")
		}
		if err := json.Unmarshal(artifactsJSON, &version.Artifacts); err != nil {
			return nil, pkgerrors.WrapError(err, pkgerrors.ErrorTypeStorage,
				pkgerrors.CodeRecordCorrupted, "artifact locations corrupted")
		}
		if len(performanceJSON) > 0 {
			version.PerformanceMetrics = &models.PerformanceMetrics{}
			if err := json.Unmarshal(performanceJSON, version.PerformanceMetrics); err != nil {
				return nil, pkgerrors.WrapError(err, pkgerrors.ErrorTypeStorage,
					pkgerrors.CodeRecordCorrupted, "performance metrics corrupted")
			}
		}

		versions = append(versions, &version)
	}

	if err := rows.Err(); err != nil {
		return nil, pkgerrors.WrapError(err, pkgerrors.ErrorTypeStorage,
			pkgerrors.CodeReadFailed, "failed to iterate version entries")
	}

	return versions, nil
}

// Close closes the database connection
func (ps *PostgresVersionStore) Close() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.closed || ps.db == nil {
		ps.closed = true
		return nil
	}

	ps.closed = true
	return ps.db.Close()
}

func (ps *PostgresVersionStore) connection() (*sql.DB, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.closed {
		return nil, pkgerrors.ErrStorageConnectionFailed
	}
	if ps.db == nil {
		return nil, pkgerrors.ErrStorageConnectionFailed
	}
	return ps.db, nil
}
