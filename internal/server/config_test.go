package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/modelops/internal/cache"
)

func TestLoadConfigDefaults(t *testing.T) {
	config, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "0.0.0.0:8080", config.Address())
	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, "json", config.Logging.Format)

	assert.Equal(t, int64(512*1024*1024), config.Cache.MaxMemoryBytes)
	assert.Equal(t, 100, config.Cache.MaxEntries)
	assert.Equal(t, 24*time.Hour, config.Cache.TTL)
	assert.True(t, config.Cache.PersistenceEnabled)
	assert.Equal(t, cache.BackendFile, config.Cache.StorageBackend)

	assert.Equal(t, 0.8, config.Registry.ValidationThreshold)
	assert.Equal(t, 10, config.Deploy.Planner.CanaryInitialPercent)
	assert.Equal(t, 30*time.Second, config.Deploy.Executor.HealthCheckTimeout)

	assert.Equal(t, 200.0, config.Monitor.Thresholds.LatencyWarningMs)
	assert.Equal(t, 500.0, config.Monitor.Thresholds.LatencyCriticalMs)
	assert.True(t, config.Monitor.AutoRollbackEnabled)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modelops.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9999
cache:
  max_entries: 7
monitor:
  auto_rollback_enabled: false
`), 0o644))

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, config.Server.Port)
	assert.Equal(t, 7, config.Cache.MaxEntries)
	assert.False(t, config.Monitor.AutoRollbackEnabled)
	// Untouched settings keep their defaults
	assert.Equal(t, 24*time.Hour, config.Cache.TTL)
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		message string
	}{
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			message: "invalid server port",
		},
		{
			name: "metrics port collision",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Port = c.Server.Port
			},
			message: "collides",
		},
		{
			name:    "persistence without postgres",
			mutate:  func(c *Config) { c.Registry.PersistenceEnabled = true },
			message: "no postgres section",
		},
		{
			name:    "history without influx",
			mutate:  func(c *Config) { c.Monitor.HistoryEnabled = true },
			message: "no influx section",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := testConfig()
			tt.mutate(config)

			err := config.Validate()
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.message)
		})
	}
}
