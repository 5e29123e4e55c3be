package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/scanward/scanward/internal/errors"
	"github.com/scanward/scanward/internal/logging"
	"github.com/scanward/scanward/internal/metrics"
	"github.com/scanward/scanward/internal/storage"
)

// ResultsHandler serves stored scan and topology artifacts.
type ResultsHandler struct {
	store   *storage.Store
	logger  *logging.Logger
	metrics metrics.MetricsRegistry
}

// ResultEntry describes one stored artifact in listings.
type ResultEntry struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	Timestamp time.Time `json:"timestamp"`
}

// ResultListResponse answers GET /results.
type ResultListResponse struct {
	Scans             []ResultEntry `json:"scans"`
	TopologyAvailable bool          `json:"topology_available"`
	TopologyHistory   []ResultEntry `json:"topology_history,omitempty"`
}

// NewResultsHandler creates a results handler.
func NewResultsHandler(store *storage.Store, logger *logging.Logger,
	metricsRegistry metrics.MetricsRegistry) *ResultsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if metricsRegistry == nil {
		metricsRegistry = metrics.NewRegistry()
	}
	return &ResultsHandler{
		store:   store,
		logger:  logger.WithComponent("api"),
		metrics: metricsRegistry,
	}
}

// List handles GET /results.
// @Summary List stored artifacts
// @Description Lists scan artifacts newest first, plus topology availability and history.
// @Tags Results
// @Produce json
// @Success 200 {object} ResultListResponse
// @Failure 500 {object} ErrorResponse
// @Router /results [get]
func (h *ResultsHandler) List(w http.ResponseWriter, r *http.Request) {
	scans, err := h.store.ListScans()
	if err != nil {
		writeError(w, r, err)
		return
	}

	response := ResultListResponse{
		Scans:             toEntries(scans),
		TopologyAvailable: h.store.HasTopology(),
	}

	history, err := h.store.ListTopologyHistory()
	if err == nil {
		response.TopologyHistory = toEntries(history)
	}

	writeJSON(w, r, http.StatusOK, response)
}

// Get handles GET /results/{name}: it streams one stored artifact.
// @Summary Fetch an artifact
// @Description Returns a stored scan artifact by name.
// @Tags Results
// @Produce xml
// @Param name path string true "Artifact name"
// @Success 200 {string} string
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /results/{name} [get]
func (h *ResultsHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	data, err := h.store.ReadNamed(name)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.metrics.Counter(metrics.MetricArtifactsServed, metrics.Labels{
		metrics.LabelKind: "scan",
	})

	w.Header().Set("Content-Type", contentTypeFor(name))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Error("failed to write artifact response", "name", name, "error", err)
	}
}

// Topology handles GET /topology.json: the current topology document
// the visualization client polls.
// @Summary Current topology document
// @Description Returns the latest topology graph, or 404 before the first mapping completes.
// @Tags Results
// @Produce json
// @Success 200 {string} string
// @Failure 404 {object} ErrorResponse
// @Router /topology.json [get]
func (h *ResultsHandler) Topology(w http.ResponseWriter, r *http.Request) {
	data, err := h.store.ReadTopology()
	if err != nil {
		if errors.IsCode(err, errors.CodeNotFound) {
			writeError(w, r, errors.NewStorageError(errors.CodeNotFound,
				"no topology has been generated yet"))
			return
		}
		writeError(w, r, err)
		return
	}

	h.metrics.Counter(metrics.MetricArtifactsServed, metrics.Labels{
		metrics.LabelKind: "topology",
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Error("failed to write topology response", "error", err)
	}
}

func toEntries(refs []storage.Ref) []ResultEntry {
	entries := make([]ResultEntry, 0, len(refs))
	for _, ref := range refs {
		entries = append(entries, ResultEntry{
			Name:      ref.Name,
			Size:      ref.Size,
			Timestamp: ref.Timestamp(),
		})
	}
	return entries
}

func contentTypeFor(name string) string {
	switch {
	case strings.HasSuffix(name, ".xml"):
		return "application/xml"
	case strings.HasSuffix(name, ".json"):
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
