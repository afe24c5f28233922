package constants

import "time"

// Application constants
const (
	// Application metadata
	AppName        = "modelops-server"
	AppDescription = "Model Artifact Cache & Deployment Lifecycle Service"
	AppVersion     = "0.1.0"

	// API constants
	APIVersion = "v1"
	APIPrefix  = "/api/v1"

	// Default server configuration
	DefaultPort            = 8080
	DefaultMetricsPort     = 9090
	DefaultHost            = "0.0.0.0"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	// Cache defaults
	DefaultCacheMaxMemoryBytes = int64(512 * 1024 * 1024)
	DefaultCacheMaxEntries     = 100
	DefaultCacheTTL            = 24 * time.Hour
	DefaultCacheSweepInterval  = 5 * time.Minute
	DefaultArtifactRoot        = "./artifacts"

	// Deployment defaults
	DefaultCanaryInitialPercent = 10
	DefaultHealthCheckTimeout   = 30 * time.Second
	DefaultTargetEnvironment    = "production"

	// Monitoring defaults
	DefaultMonitorInterval      = 30 * time.Second
	DefaultLatencyWarningMs     = 200.0
	DefaultLatencyCriticalMs    = 500.0
	DefaultErrorRateWarning     = 0.02
	DefaultErrorRateCritical    = 0.05
	DefaultMemoryWarningMB      = 1024.0
	DefaultMemoryCriticalMB     = 2048.0
	DefaultThroughputFloorRPS   = 1.0
	DefaultEscalationMultiplier = 2.0

	// Storage defaults
	DefaultStorageTimeout    = 30 * time.Second
	DefaultConnectionTimeout = 10 * time.Second
	DefaultMaxRetries        = 3
)
