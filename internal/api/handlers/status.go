package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/scanward/scanward/internal/errors"
	"github.com/scanward/scanward/internal/logging"
	"github.com/scanward/scanward/internal/metrics"
	"github.com/scanward/scanward/internal/orchestrator"
	"github.com/scanward/scanward/internal/registry"
)

// StatusHandler serves the status and job inspection endpoints.
type StatusHandler struct {
	service orchestrator.Service
	logger  *logging.Logger
	metrics metrics.MetricsRegistry
}

// NewStatusHandler creates a status handler.
func NewStatusHandler(service orchestrator.Service, logger *logging.Logger,
	metricsRegistry metrics.MetricsRegistry) *StatusHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if metricsRegistry == nil {
		metricsRegistry = metrics.NewRegistry()
	}
	return &StatusHandler{
		service: service,
		logger:  logger.WithComponent("api"),
		metrics: metricsRegistry,
	}
}

// Status handles GET /status.
// @Summary Scanner status
// @Description Reports stored artifact counts, topology availability, and the configured schedules.
// @Tags System
// @Produce json
// @Success 200 {object} orchestrator.StatusReport
// @Failure 500 {object} ErrorResponse
// @Router /status [get]
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	h.metrics.Counter(metrics.MetricStatusRequests, nil)

	report, err := h.service.Status(r.Context())
	if err != nil {
		h.logger.Error("failed to assemble status report", "error", err)
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, report)
}

// ListJobs handles GET /jobs.
// @Summary Recent jobs
// @Description Lists recent jobs of a kind, newest first.
// @Tags Jobs
// @Produce json
// @Param kind query string false "Job kind (scan or topology)" default(scan)
// @Success 200 {array} registry.Job
// @Failure 400 {object} ErrorResponse
// @Router /jobs [get]
func (h *StatusHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	kind := registry.Kind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = registry.KindScan
	}
	if !kind.Valid() {
		writeError(w, r, errors.NewJobError(errors.CodeValidation,
			"kind must be scan or topology"))
		return
	}

	jobs := h.service.Jobs(kind)
	if jobs == nil {
		jobs = []registry.Job{}
	}
	writeJSON(w, r, http.StatusOK, jobs)
}

// GetJob handles GET /jobs/{id}.
// @Summary Job details
// @Description Returns a single job by id.
// @Tags Jobs
// @Produce json
// @Param id path string true "Job id"
// @Success 200 {object} registry.Job
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /jobs/{id} [get]
func (h *StatusHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	idStr := mux.Vars(r)["id"]
	id, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, r, errors.NewJobError(errors.CodeValidation,
			"job id must be a UUID"))
		return
	}

	job, err := h.service.Job(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, job)
}
