// Package api provides the HTTP trigger surface of the scanward daemon:
// endpoints to start scan and topology jobs, inspect status and stored
// artifacts, and stream job events.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	gorillahandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "github.com/scanward/scanward/docs/swagger" // generated swagger spec
	"github.com/scanward/scanward/internal/api/handlers"
	"github.com/scanward/scanward/internal/api/middleware"
	"github.com/scanward/scanward/internal/config"
	"github.com/scanward/scanward/internal/logging"
	"github.com/scanward/scanward/internal/metrics"
	"github.com/scanward/scanward/internal/orchestrator"
	"github.com/scanward/scanward/internal/registry"
	"github.com/scanward/scanward/internal/storage"
)

// Server timeout constants.
const (
	serverShutdownTimeout = 30 * time.Second
	readTimeout           = 15 * time.Second
	writeTimeout          = 30 * time.Second
	idleTimeout           = 60 * time.Second
	maxHeaderBytes        = 1 << 20
)

// Server is the trigger API server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	cfg        *config.Config
	service    orchestrator.Service
	logger     *logging.Logger
	metrics    *metrics.Registry

	trigger *handlers.TriggerHandler
	health  *handlers.HealthHandler
	status  *handlers.StatusHandler
	results *handlers.ResultsHandler
	events  *handlers.EventsHandler
}

// New creates the API server with all routes and middleware wired.
func New(cfg *config.Config, service orchestrator.Service, store *storage.Store,
	reg *registry.Registry, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.WithComponent("api")

	registryMetrics := metrics.NewRegistry()

	s := &Server{
		router:  mux.NewRouter(),
		cfg:     cfg,
		service: service,
		logger:  logger,
		metrics: registryMetrics,

		trigger: handlers.NewTriggerHandler(service, logger, registryMetrics),
		health:  handlers.NewHealthHandler(service, logger, registryMetrics),
		status:  handlers.NewStatusHandler(service, logger, registryMetrics),
		results: handlers.NewResultsHandler(store, logger, registryMetrics),
		events:  handlers.NewEventsHandler(reg, logger),
	}

	s.setupRoutes()
	s.setupMiddleware()

	s.httpServer = &http.Server{
		Addr:           cfg.GetAPIAddress(),
		Handler:        s.router,
		ReadTimeout:    readTimeout,
		WriteTimeout:   writeTimeout,
		IdleTimeout:    idleTimeout,
		MaxHeaderBytes: maxHeaderBytes,
	}

	return s
}

// Start runs the server until the context is canceled or the listener
// fails.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting API server", "address", s.httpServer.Addr)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("API server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errChan:
		return err
	}
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	s.logger.Info("stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) setupRoutes() {
	// Trigger endpoints: fire-and-forget job submission.
	s.router.HandleFunc("/scan", s.trigger.TriggerScan).Methods(http.MethodPost)
	s.router.HandleFunc("/topology", s.trigger.TriggerTopology).Methods(http.MethodPost)

	// Inspection endpoints.
	s.router.HandleFunc("/health", s.health.Health).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.status.Status).Methods(http.MethodGet)
	s.router.HandleFunc("/jobs", s.status.ListJobs).Methods(http.MethodGet)
	s.router.HandleFunc("/jobs/{id}", s.status.GetJob).Methods(http.MethodGet)

	// Artifact endpoints the visualization client polls.
	s.router.HandleFunc("/results", s.results.List).Methods(http.MethodGet)
	s.router.HandleFunc("/results/{name}", s.results.Get).Methods(http.MethodGet)
	s.router.HandleFunc("/topology.json", s.results.Topology).Methods(http.MethodGet)

	// Event stream and observability.
	s.router.HandleFunc("/events", s.events.Events).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(
		metrics.GetGlobalMetrics().GetRegistry(),
		promhttp.HandlerOpts{},
	)).Methods(http.MethodGet)

	// Swagger documentation.
	s.router.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	// Unknown paths and wrong methods answer JSON like everything else.
	s.router.NotFoundHandler = handlers.NotFound()
	s.router.MethodNotAllowedHandler = handlers.MethodNotAllowed()
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery(s.logger))

	if s.cfg.Logging.RequestLogging {
		s.router.Use(middleware.Logging(s.logger))
	}

	s.router.Use(middleware.Metrics(s.metrics))
	s.router.Use(middleware.SecurityHeaders())

	if s.cfg.API.CORS.Enabled {
		s.router.Use(gorillahandlers.CORS(
			gorillahandlers.AllowedOrigins(s.cfg.API.CORS.AllowedOrigins),
			gorillahandlers.AllowedHeaders(s.cfg.API.CORS.AllowedHeaders),
			gorillahandlers.AllowedMethods(s.cfg.API.CORS.AllowedMethods),
		))
	}

	s.router.Use(middleware.ContentType())

	if s.cfg.API.RequestTimeout > 0 {
		s.router.Use(middleware.RequestTimeout(s.cfg.API.RequestTimeout))
	}
	if s.cfg.API.MaxRequestSize > 0 {
		s.router.Use(middleware.MaxRequestSize(s.cfg.API.MaxRequestSize))
	}

	if s.cfg.API.Auth.Enabled {
		s.router.Use(middleware.Authentication(s.cfg.API.Auth.KeyHashes, s.logger))
	}
}

// Router exposes the configured router for tests.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Address returns the listen address.
func (s *Server) Address() string {
	return s.httpServer.Addr
}
