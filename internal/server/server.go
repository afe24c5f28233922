package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/modelops/internal/cache"
	"github.com/inferloop/modelops/internal/deploy"
	"github.com/inferloop/modelops/internal/monitor"
	"github.com/inferloop/modelops/internal/observability/metrics"
	"github.com/inferloop/modelops/internal/registry"
	"github.com/inferloop/modelops/pkg/constants"
)

// Server wires the cache, registry, deployment, and monitoring components
// together behind the HTTP API
type Server struct {
	config   *Config
	logger   *logrus.Logger
	router   *mux.Router
	handlers *Handlers

	httpServer *http.Server
	metrics    *metrics.PrometheusMetrics
	modelCache *cache.ModelCache
	registry   *registry.VersionRegistry
	planner    *deploy.DeploymentPlanner
	executor   *deploy.DeploymentExecutor
	monitor    *monitor.PerformanceMonitor
	samples    *monitor.SampleBuffer
}

// NewServer creates a fully wired server instance
func NewServer(config *Config, logger *logrus.Logger) (*Server, error) {
	if config == nil {
		return nil, fmt.Errorf("server config is required")
	}
	if logger == nil {
		logger = logrus.New()
	}

	prom, err := metrics.NewPrometheusMetrics(&config.Metrics, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	var artifactStore cache.ArtifactStore
	if config.Cache.PersistenceEnabled {
		artifactStore, err = cache.NewArtifactStore(&config.Cache, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create artifact store: %w", err)
		}
	}

	modelCache, err := cache.NewModelCache(&config.Cache, artifactStore, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create model cache: %w", err)
	}
	modelCache.SetMetrics(prom)

	var versionStore registry.VersionStore
	if config.Registry.PersistenceEnabled {
		versionStore, err = registry.NewPostgresVersionStore(config.Registry.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create version store: %w", err)
		}
	}

	versionRegistry := registry.NewVersionRegistry(&config.Registry.RegistryConfig, versionStore, nil, logger)
	versionRegistry.SetMetrics(prom)

	samples := monitor.NewSampleBuffer()

	planner := deploy.NewDeploymentPlanner(&config.Deploy.Planner, nil, logger)
	health := deploy.NewHealthChecker(&config.Deploy.Health, modelCache, samples, logger)
	executor := deploy.NewDeploymentExecutor(&config.Deploy.Executor, versionRegistry, health, nil, logger)
	executor.SetMetrics(prom)

	var recorder monitor.MetricsRecorder
	if config.Monitor.HistoryEnabled {
		influx, err := monitor.NewInfluxMetricsRecorder(config.Monitor.Influx, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics recorder: %w", err)
		}
		recorder = influx
	}

	perfMonitor := monitor.NewPerformanceMonitor(&config.Monitor.MonitorConfig, samples, executor, recorder, nil, logger)
	perfMonitor.SetMetrics(prom)

	server := &Server{
		config:     config,
		logger:     logger,
		router:     mux.NewRouter(),
		metrics:    prom,
		modelCache: modelCache,
		registry:   versionRegistry,
		planner:    planner,
		executor:   executor,
		monitor:    perfMonitor,
		samples:    samples,
	}

	server.handlers = NewHandlers(modelCache, versionRegistry, planner, executor, perfMonitor, samples, logger)
	server.setupMiddleware()
	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:         config.Address(),
		Handler:      server.router,
		ReadTimeout:  config.Server.ReadTimeout,
		WriteTimeout: config.Server.WriteTimeout,
		IdleTimeout:  config.Server.IdleTimeout,
	}

	return server, nil
}

// Start brings every component up and serves HTTP until the listener fails
// or the server is stopped
func (s *Server) Start(ctx context.Context) error {
	if err := s.metrics.Start(ctx); err != nil {
		return fmt.Errorf("failed to start metrics: %w", err)
	}

	if err := s.modelCache.Start(ctx); err != nil {
		return fmt.Errorf("failed to start model cache: %w", err)
	}

	if err := s.registry.Start(ctx); err != nil {
		return fmt.Errorf("failed to start version registry: %w", err)
	}

	if err := s.monitor.Start(ctx); err != nil {
		return fmt.Errorf("failed to start performance monitor: %w", err)
	}

	s.logger.WithField("address", s.httpServer.Addr).Info("Starting HTTP server")

	if s.config.Server.TLSCertFile != "" && s.config.Server.TLSKeyFile != "" {
		return s.httpServer.ListenAndServeTLS(s.config.Server.TLSCertFile, s.config.Server.TLSKeyFile)
	}
	return s.httpServer.ListenAndServe()
}

// Stop shuts everything down in reverse dependency order
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.WithError(err).Error("HTTP server shutdown failed")
	}

	s.monitor.Stop()

	if err := s.modelCache.Close(); err != nil {
		s.logger.WithError(err).Error("Model cache shutdown failed")
	}

	if err := s.registry.Close(); err != nil {
		s.logger.WithError(err).Error("Version registry shutdown failed")
	}

	if err := s.metrics.Stop(shutdownCtx); err != nil {
		s.logger.WithError(err).Error("Metrics server shutdown failed")
	}

	s.logger.Info("Server stopped")
	return nil
}

// setupRoutes registers the HTTP API
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handlers.Health).Methods("GET")
	s.router.HandleFunc("/health/ready", s.handlers.Ready).Methods("GET")
	s.router.HandleFunc("/version", s.handlers.Version).Methods("GET")

	api := s.router.PathPrefix(constants.APIPrefix).Subrouter()

	// Version registry
	api.HandleFunc("/models/{model_id}/versions", s.handlers.RegisterVersion).Methods("POST")
	api.HandleFunc("/models/{model_id}/versions", s.handlers.ListVersions).Methods("GET")
	api.HandleFunc("/versions/{version_id}", s.handlers.GetVersion).Methods("GET")
	api.HandleFunc("/versions/{version_id}/validate", s.handlers.ValidateVersion).Methods("POST")
	api.HandleFunc("/versions/{version_id}/promote", s.handlers.PromoteVersion).Methods("POST")
	api.HandleFunc("/versions/{version_id}/deprecate", s.handlers.DeprecateVersion).Methods("POST")

	// Deployments
	api.HandleFunc("/models/{model_id}/deploy", s.handlers.Deploy).Methods("POST")
	api.HandleFunc("/models/{model_id}/rollback", s.handlers.Rollback).Methods("POST")
	api.HandleFunc("/models/{model_id}/deployment", s.handlers.GetDeployment).Methods("GET")
	api.HandleFunc("/deployments", s.handlers.ListDeployments).Methods("GET")

	// Artifact cache
	api.HandleFunc("/cache/models/{model_id}", s.handlers.PutCachedModel).Methods("PUT")
	api.HandleFunc("/cache/models/{model_id}", s.handlers.GetCachedModel).Methods("GET")
	api.HandleFunc("/cache/models/{model_id}", s.handlers.RemoveCachedModel).Methods("DELETE")
	api.HandleFunc("/cache/stats", s.handlers.CacheStats).Methods("GET")

	// Monitoring
	api.HandleFunc("/models/{model_id}/stats", s.handlers.ReportStats).Methods("POST")
	api.HandleFunc("/alerts", s.handlers.ListAlerts).Methods("GET")

	s.router.NotFoundHandler = http.HandlerFunc(s.handlers.NotFound)
}

// setupMiddleware installs the shared middleware chain
func (s *Server) setupMiddleware() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.securityHeadersMiddleware)
}

// GetRouter returns the HTTP router
func (s *Server) GetRouter() *mux.Router {
	return s.router
}
