package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/inferloop/modelops/internal/cache"
	"github.com/inferloop/modelops/internal/deploy"
	"github.com/inferloop/modelops/internal/monitor"
	"github.com/inferloop/modelops/internal/observability/metrics"
	"github.com/inferloop/modelops/internal/registry"
	"github.com/inferloop/modelops/pkg/constants"
)

// Config is the full service configuration, loaded from file and
// MODELOPS_* environment variables
type Config struct {
	Server   HTTPConfig                `json:"server" mapstructure:"server"`
	Logging  LoggingConfig             `json:"logging" mapstructure:"logging"`
	Metrics  metrics.PrometheusConfig  `json:"metrics" mapstructure:"metrics"`
	Cache    cache.CacheConfig         `json:"cache" mapstructure:"cache"`
	Registry RegistryConfig            `json:"registry" mapstructure:"registry"`
	Deploy   DeployConfig              `json:"deploy" mapstructure:"deploy"`
	Monitor  MonitorConfig             `json:"monitor" mapstructure:"monitor"`
}

// HTTPConfig contains HTTP server settings
type HTTPConfig struct {
	Host            string        `json:"host" mapstructure:"host"`
	Port            int           `json:"port" mapstructure:"port"`
	ReadTimeout     time.Duration `json:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout" mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	TLSCertFile     string        `json:"tls_cert_file,omitempty" mapstructure:"tls_cert_file"`
	TLSKeyFile      string        `json:"tls_key_file,omitempty" mapstructure:"tls_key_file"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	Format string `json:"format" mapstructure:"format"`
}

// RegistryConfig wraps the registry settings with an optional Postgres
// persistence section
type RegistryConfig struct {
	registry.RegistryConfig `mapstructure:",squash"`

	PersistenceEnabled bool                     `json:"persistence_enabled" mapstructure:"persistence_enabled"`
	Postgres           *registry.PostgresConfig `json:"postgres,omitempty" mapstructure:"postgres"`
}

// DeployConfig groups the deployment settings
type DeployConfig struct {
	Planner  deploy.PlannerConfig       `json:"planner" mapstructure:"planner"`
	Executor deploy.ExecutorConfig      `json:"executor" mapstructure:"executor"`
	Health   deploy.HealthCheckerConfig `json:"health" mapstructure:"health"`
}

// MonitorConfig wraps the monitor settings with an optional InfluxDB
// history section
type MonitorConfig struct {
	monitor.MonitorConfig `mapstructure:",squash"`

	HistoryEnabled bool                          `json:"history_enabled" mapstructure:"history_enabled"`
	Influx         *monitor.InfluxRecorderConfig `json:"influx,omitempty" mapstructure:"influx"`
}

// LoadConfig reads the service configuration. An empty path falls back to
// modelops.yaml in the working directory or /etc/modelops, and every value
// can be overridden through MODELOPS_* environment variables.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("modelops")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/modelops")
	}

	v.SetEnvPrefix("MODELOPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing default config file is fine; an explicit one is not
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound || path != "" {
			if path != "" {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", constants.DefaultHost)
	v.SetDefault("server.port", constants.DefaultPort)
	v.SetDefault("server.read_timeout", constants.DefaultReadTimeout)
	v.SetDefault("server.write_timeout", constants.DefaultWriteTimeout)
	v.SetDefault("server.idle_timeout", constants.DefaultIdleTimeout)
	v.SetDefault("server.shutdown_timeout", constants.DefaultShutdownTimeout)

	v.SetDefault("logging.level", constants.DefaultLogLevel)
	v.SetDefault("logging.format", constants.DefaultLogFormat)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", constants.DefaultMetricsPort)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "modelops")

	v.SetDefault("cache.max_memory_bytes", constants.DefaultCacheMaxMemoryBytes)
	v.SetDefault("cache.max_entries", constants.DefaultCacheMaxEntries)
	v.SetDefault("cache.ttl", constants.DefaultCacheTTL)
	v.SetDefault("cache.sweep_interval", constants.DefaultCacheSweepInterval)
	v.SetDefault("cache.persistence_enabled", true)
	v.SetDefault("cache.storage_backend", cache.BackendFile)
	v.SetDefault("cache.storage_path", constants.DefaultArtifactRoot)

	v.SetDefault("registry.validation_threshold", 0.8)
	v.SetDefault("registry.max_metric_skew", 0.15)
	v.SetDefault("registry.max_latency_ms", 500)
	v.SetDefault("registry.min_throughput_rps", 10)

	v.SetDefault("deploy.planner.canary_initial_percent", constants.DefaultCanaryInitialPercent)
	v.SetDefault("deploy.executor.health_check_timeout", constants.DefaultHealthCheckTimeout)
	v.SetDefault("deploy.health.min_accuracy", 0.8)
	v.SetDefault("deploy.health.max_latency_ms", constants.DefaultLatencyCriticalMs)
	v.SetDefault("deploy.health.max_error_rate", constants.DefaultErrorRateCritical)
	v.SetDefault("deploy.health.max_memory_mb", constants.DefaultMemoryCriticalMB)

	v.SetDefault("monitor.interval", constants.DefaultMonitorInterval)
	v.SetDefault("monitor.escalation_multiplier", constants.DefaultEscalationMultiplier)
	v.SetDefault("monitor.auto_rollback_enabled", true)
	v.SetDefault("monitor.thresholds.latency_warning_ms", constants.DefaultLatencyWarningMs)
	v.SetDefault("monitor.thresholds.latency_critical_ms", constants.DefaultLatencyCriticalMs)
	v.SetDefault("monitor.thresholds.error_rate_warning", constants.DefaultErrorRateWarning)
	v.SetDefault("monitor.thresholds.error_rate_critical", constants.DefaultErrorRateCritical)
	v.SetDefault("monitor.thresholds.memory_warning_mb", constants.DefaultMemoryWarningMB)
	v.SetDefault("monitor.thresholds.memory_critical_mb", constants.DefaultMemoryCriticalMB)
	v.SetDefault("monitor.thresholds.throughput_floor_rps", constants.DefaultThroughputFloorRPS)
}

// Validate checks the configuration for inconsistencies
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Metrics.Enabled && c.Metrics.Port == c.Server.Port {
		return fmt.Errorf("metrics port %d collides with server port", c.Metrics.Port)
	}
	if c.Registry.PersistenceEnabled && c.Registry.Postgres == nil {
		return fmt.Errorf("registry persistence enabled but no postgres section configured")
	}
	if c.Monitor.HistoryEnabled && c.Monitor.Influx == nil {
		return fmt.Errorf("monitor history enabled but no influx section configured")
	}
	return nil
}

// Address returns the main listen address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
