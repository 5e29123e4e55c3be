package handlers

import (
	"net/http"

	"github.com/scanward/scanward/internal/logging"
	"github.com/scanward/scanward/internal/metrics"
	"github.com/scanward/scanward/internal/orchestrator"
)

// HealthHandler serves the liveness endpoint.
type HealthHandler struct {
	service orchestrator.Service
	logger  *logging.Logger
	metrics metrics.MetricsRegistry
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(service orchestrator.Service, logger *logging.Logger,
	metricsRegistry metrics.MetricsRegistry) *HealthHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if metricsRegistry == nil {
		metricsRegistry = metrics.NewRegistry()
	}
	return &HealthHandler{
		service: service,
		logger:  logger.WithComponent("api"),
		metrics: metricsRegistry,
	}
}

// Health handles GET /health.
// @Summary Health check
// @Description Reports daemon liveness and the enabled services. Job failures do not affect health.
// @Tags System
// @Produce json
// @Success 200 {object} orchestrator.HealthReport
// @Router /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.metrics.Counter(metrics.MetricHealthRequests, nil)
	writeJSON(w, r, http.StatusOK, h.service.Health(r.Context()))
}
