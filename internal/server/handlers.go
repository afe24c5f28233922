package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/modelops/internal/cache"
	"github.com/inferloop/modelops/internal/deploy"
	"github.com/inferloop/modelops/internal/monitor"
	"github.com/inferloop/modelops/internal/registry"
	"github.com/inferloop/modelops/pkg/constants"
	pkgerrors "github.com/inferloop/modelops/pkg/errors"
	"github.com/inferloop/modelops/pkg/models"
)

// Handlers contains all HTTP handlers for the modelops API
type Handlers struct {
	cache    *cache.ModelCache
	registry *registry.VersionRegistry
	planner  *deploy.DeploymentPlanner
	executor *deploy.DeploymentExecutor
	monitor  *monitor.PerformanceMonitor
	samples  *monitor.SampleBuffer
	logger   *logrus.Logger
	started  time.Time
}

// NewHandlers creates a new handlers instance
func NewHandlers(
	modelCache *cache.ModelCache,
	versionRegistry *registry.VersionRegistry,
	planner *deploy.DeploymentPlanner,
	executor *deploy.DeploymentExecutor,
	perfMonitor *monitor.PerformanceMonitor,
	samples *monitor.SampleBuffer,
	logger *logrus.Logger,
) *Handlers {
	return &Handlers{
		cache:    modelCache,
		registry: versionRegistry,
		planner:  planner,
		executor: executor,
		monitor:  perfMonitor,
		samples:  samples,
		logger:   logger,
		started:  time.Now(),
	}
}

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"version": constants.AppVersion,
		"uptime":  time.Since(h.started).String(),
	})
}

// Ready handles GET /health/ready
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ready": true,
	})
}

// Version handles GET /version
func (h *Handlers) Version(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":        constants.AppName,
		"description": constants.AppDescription,
		"version":     constants.AppVersion,
		"api_version": constants.APIVersion,
	})
}

// RegisterVersion handles POST /api/v1/models/{model_id}/versions
func (h *Handlers) RegisterVersion(w http.ResponseWriter, r *http.Request) {
	modelID := mux.Vars(r)["model_id"]

	var result models.TrainingResult
	if err := json.NewDecoder(r.Body).Decode(&result); err != nil {
		h.writeError(w, r, pkgerrors.NewValidationError(pkgerrors.CodeInvalidInput, "invalid training result payload"))
		return
	}

	version, err := h.registry.RegisterVersion(r.Context(), modelID, &result)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, version)
}

// ListVersions handles GET /api/v1/models/{model_id}/versions
func (h *Handlers) ListVersions(w http.ResponseWriter, r *http.Request) {
	modelID := mux.Vars(r)["model_id"]

	versions := h.registry.ListVersions(modelID)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"model_id": modelID,
		"versions": versions,
		"count":    len(versions),
	})
}

// GetVersion handles GET /api/v1/versions/{version_id}
func (h *Handlers) GetVersion(w http.ResponseWriter, r *http.Request) {
	versionID := mux.Vars(r)["version_id"]

	version, err := h.registry.GetVersion(versionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, version)
}

// ValidateVersion handles POST /api/v1/versions/{version_id}/validate
func (h *Handlers) ValidateVersion(w http.ResponseWriter, r *http.Request) {
	versionID := mux.Vars(r)["version_id"]

	if err := h.registry.ValidateVersion(r.Context(), versionID); err != nil {
		h.writeError(w, r, err)
		return
	}

	version, err := h.registry.GetVersion(versionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, version)
}

// PromoteVersion handles POST /api/v1/versions/{version_id}/promote
func (h *Handlers) PromoteVersion(w http.ResponseWriter, r *http.Request) {
	versionID := mux.Vars(r)["version_id"]

	if err := h.registry.PromoteToStaging(r.Context(), versionID); err != nil {
		h.writeError(w, r, err)
		return
	}

	version, err := h.registry.GetVersion(versionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, version)
}

// DeprecateVersion handles POST /api/v1/versions/{version_id}/deprecate
func (h *Handlers) DeprecateVersion(w http.ResponseWriter, r *http.Request) {
	versionID := mux.Vars(r)["version_id"]

	if err := h.registry.Deprecate(r.Context(), versionID); err != nil {
		h.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeployRequest is the payload for POST /api/v1/models/{model_id}/deploy
type DeployRequest struct {
	VersionID   string                    `json:"version_id"`
	Strategy    models.DeploymentStrategy `json:"strategy"`
	Environment string                    `json:"environment"`
}

// Deploy handles POST /api/v1/models/{model_id}/deploy
func (h *Handlers) Deploy(w http.ResponseWriter, r *http.Request) {
	modelID := mux.Vars(r)["model_id"]

	var req DeployRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, pkgerrors.NewValidationError(pkgerrors.CodeInvalidInput, "invalid deploy payload"))
		return
	}
	if req.VersionID == "" {
		h.writeError(w, r, pkgerrors.NewValidationError(pkgerrors.CodeInvalidInput, "version_id is required"))
		return
	}

	version, err := h.registry.GetVersion(req.VersionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if version.ModelID != modelID {
		h.writeError(w, r, pkgerrors.NewValidationError(pkgerrors.CodeInvalidInput,
			"version does not belong to this model"))
		return
	}

	plan, err := h.planner.CreatePlan(version, req.Strategy, req.Environment)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	state, err := h.executor.Deploy(r.Context(), plan)
	if err != nil {
		// The deployment settled; report the outcome alongside the failure
		h.writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":      err.Error(),
			"deployment": state,
		})
		return
	}

	h.writeJSON(w, http.StatusOK, state)
}

// Rollback handles POST /api/v1/models/{model_id}/rollback
func (h *Handlers) Rollback(w http.ResponseWriter, r *http.Request) {
	modelID := mux.Vars(r)["model_id"]

	state, err := h.executor.Rollback(r.Context(), modelID)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrRollbackImpossible) {
			h.writeJSON(w, http.StatusConflict, map[string]interface{}{
				"error":      err.Error(),
				"deployment": state,
			})
			return
		}
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, state)
}

// GetDeployment handles GET /api/v1/models/{model_id}/deployment
func (h *Handlers) GetDeployment(w http.ResponseWriter, r *http.Request) {
	modelID := mux.Vars(r)["model_id"]

	state, err := h.executor.GetDeploymentState(modelID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, state)
}

// ListDeployments handles GET /api/v1/deployments
func (h *Handlers) ListDeployments(w http.ResponseWriter, r *http.Request) {
	deployments := h.executor.ListDeployments()
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"deployments": deployments,
		"count":       len(deployments),
	})
}

// PutCachedModel handles PUT /api/v1/cache/models/{model_id}
func (h *Handlers) PutCachedModel(w http.ResponseWriter, r *http.Request) {
	modelID := mux.Vars(r)["model_id"]

	var model models.CachedModel
	if err := json.NewDecoder(r.Body).Decode(&model); err != nil {
		h.writeError(w, r, pkgerrors.NewValidationError(pkgerrors.CodeInvalidInput, "invalid model payload"))
		return
	}

	if err := h.cache.Set(r.Context(), modelID, &model); err != nil {
		h.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetCachedModel handles GET /api/v1/cache/models/{model_id}
func (h *Handlers) GetCachedModel(w http.ResponseWriter, r *http.Request) {
	modelID := mux.Vars(r)["model_id"]

	model, err := h.cache.Get(r.Context(), modelID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, model)
}

// RemoveCachedModel handles DELETE /api/v1/cache/models/{model_id}
func (h *Handlers) RemoveCachedModel(w http.ResponseWriter, r *http.Request) {
	modelID := mux.Vars(r)["model_id"]

	if err := h.cache.Remove(r.Context(), modelID); err != nil {
		h.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CacheStats handles GET /api/v1/cache/stats
func (h *Handlers) CacheStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.cache.GetStats())
}

// ReportStats handles POST /api/v1/models/{model_id}/stats
func (h *Handlers) ReportStats(w http.ResponseWriter, r *http.Request) {
	modelID := mux.Vars(r)["model_id"]

	var sample models.ServingStats
	if err := json.NewDecoder(r.Body).Decode(&sample); err != nil {
		h.writeError(w, r, pkgerrors.NewValidationError(pkgerrors.CodeInvalidInput, "invalid stats payload"))
		return
	}
	sample.ModelID = modelID
	if sample.SampledAt.IsZero() {
		sample.SampledAt = time.Now().UTC()
	}

	h.samples.Report(&sample)
	w.WriteHeader(http.StatusAccepted)
}

// ListAlerts handles GET /api/v1/alerts
func (h *Handlers) ListAlerts(w http.ResponseWriter, r *http.Request) {
	var alerts []*models.Alert
	if r.URL.Query().Get("history") == "true" {
		alerts = h.monitor.AlertHistory()
	} else {
		alerts = h.monitor.ActiveAlerts()
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// NotFound handles unmatched routes
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusNotFound, map[string]interface{}{
		"error": map[string]string{
			"code":    "NOT_FOUND",
			"message": "resource not found",
		},
	})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
	}
}

// writeError maps domain errors onto HTTP status codes
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	code := pkgerrors.CodeInternalError

	switch {
	case errors.Is(err, pkgerrors.ErrCacheMiss),
		errors.Is(err, pkgerrors.ErrModelNotFound),
		errors.Is(err, pkgerrors.ErrVersionNotFound),
		errors.Is(err, pkgerrors.ErrDeploymentNotFound):
		status = http.StatusNotFound
	case errors.Is(err, pkgerrors.ErrVersionExists):
		status = http.StatusConflict
	case errors.Is(err, pkgerrors.ErrRollbackImpossible):
		status = http.StatusConflict
	}

	var appErr *pkgerrors.AppError
	if errors.As(err, &appErr) {
		code = appErr.Code
		if status == http.StatusInternalServerError {
			switch appErr.Type {
			case pkgerrors.ErrorTypeValidation:
				status = http.StatusUnprocessableEntity
			case pkgerrors.ErrorTypeRegistry, pkgerrors.ErrorTypeDeployment:
				status = http.StatusConflict
			case pkgerrors.ErrorTypeStorage:
				status = http.StatusServiceUnavailable
			}
		}
	}

	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).WithField("path", r.URL.Path).Error("Request failed")
	}

	h.writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": err.Error(),
		},
	})
}
