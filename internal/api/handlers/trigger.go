package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/scanward/scanward/internal/logging"
	"github.com/scanward/scanward/internal/metrics"
	"github.com/scanward/scanward/internal/orchestrator"
	"github.com/scanward/scanward/internal/registry"
)

// TriggerHandler serves the scan and topology trigger endpoints.
type TriggerHandler struct {
	service  orchestrator.Service
	logger   *logging.Logger
	metrics  metrics.MetricsRegistry
	validate *validator.Validate
}

// TriggerRequest is the optional POST body. An absent or empty body
// triggers a run over the configured network.
type TriggerRequest struct {
	Network string `json:"network" validate:"omitempty,cidr"`
}

// TriggerResponse answers an accepted trigger.
type TriggerResponse struct {
	Status    string    `json:"status"`
	JobID     string    `json:"job_id"`
	Network   string    `json:"network"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// NewTriggerHandler creates a trigger handler.
func NewTriggerHandler(service orchestrator.Service, logger *logging.Logger,
	metricsRegistry metrics.MetricsRegistry) *TriggerHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if metricsRegistry == nil {
		metricsRegistry = metrics.NewRegistry()
	}
	return &TriggerHandler{
		service:  service,
		logger:   logger.WithComponent("api"),
		metrics:  metricsRegistry,
		validate: validator.New(),
	}
}

// TriggerScan handles POST /scan.
// @Summary Trigger a network scan
// @Description Starts a port scan in the background. Returns 409 while a scan is already running.
// @Tags Jobs
// @Accept json
// @Produce json
// @Param request body TriggerRequest false "Optional target override"
// @Success 202 {object} TriggerResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /scan [post]
func (h *TriggerHandler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, r, registry.KindScan)
}

// TriggerTopology handles POST /topology.
// @Summary Trigger topology mapping
// @Description Starts a topology mapping in the background. Returns 409 while one is already running.
// @Tags Jobs
// @Accept json
// @Produce json
// @Param request body TriggerRequest false "Optional target override"
// @Success 202 {object} TriggerResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /topology [post]
func (h *TriggerHandler) TriggerTopology(w http.ResponseWriter, r *http.Request) {
	h.trigger(w, r, registry.KindTopology)
}

func (h *TriggerHandler) trigger(w http.ResponseWriter, r *http.Request, kind registry.Kind) {
	var req TriggerRequest
	if err := parseJSON(r, &req); err != nil && err != io.EOF {
		h.recordTrigger(kind, "invalid_body")
		writeError(w, r, err)
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		h.recordTrigger(kind, "invalid_target")
		h.metrics.Counter(metrics.MetricInvalidTargets, metrics.Labels{
			metrics.LabelKind: string(kind),
		})
		writeErrorStatus(w, r, http.StatusBadRequest, err)
		return
	}

	var (
		job registry.Job
		err error
	)
	switch kind {
	case registry.KindScan:
		job, err = h.service.SubmitScan(r.Context(), req.Network)
	case registry.KindTopology:
		job, err = h.service.SubmitTopology(r.Context(), req.Network)
	}
	if err != nil {
		h.recordTrigger(kind, "rejected")
		writeError(w, r, err)
		return
	}

	h.recordTrigger(kind, "accepted")
	h.metrics.Counter(metrics.MetricJobsSubmitted, metrics.Labels{
		metrics.LabelKind: string(kind),
	})

	writeJSON(w, r, http.StatusAccepted, TriggerResponse{
		Status:    string(kind) + "_started",
		JobID:     job.ID.String(),
		Network:   job.Target,
		Timestamp: job.SubmittedAt.UTC(),
		Message:   "job accepted and running in the background",
	})
}

func (h *TriggerHandler) recordTrigger(kind registry.Kind, outcome string) {
	if h.metrics == nil {
		return
	}
	h.metrics.Counter("trigger_requests_total", metrics.Labels{
		metrics.LabelKind:   string(kind),
		metrics.LabelStatus: outcome,
	})
}
