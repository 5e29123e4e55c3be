// Package metrics provides Prometheus-based metrics collection for scanward.
// Collectors cover job execution, the result store, the job archive, the
// HTTP API, and process runtime statistics.
package metrics

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	// Namespace for all scanward metrics
	namespace = "scanward"

	// Subsystems
	subsystemJob     = "job"
	subsystemStorage = "storage"
	subsystemArchive = "archive"
	subsystemAPI     = "api"
	subsystemSystem  = "system"
)

// PrometheusMetrics holds all Prometheus metric collectors
type PrometheusMetrics struct {
	// Job metrics
	jobsTotal      *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobErrors      *prometheus.CounterVec
	busyRejections *prometheus.CounterVec
	activeJobs     *prometheus.GaugeVec
	hostsScanned   *prometheus.CounterVec

	// Result store metrics
	artifactWrites *prometheus.CounterVec
	artifactBytes  *prometheus.HistogramVec
	prunedFiles    prometheus.Counter

	// Job archive metrics
	archiveQueries *prometheus.CounterVec
	archiveErrors  *prometheus.CounterVec

	// API metrics
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpErrors   *prometheus.CounterVec

	// System metrics
	memoryUsage prometheus.Gauge
	goroutines  prometheus.Gauge
	uptime      prometheus.Gauge

	startTime  time.Time
	lastUpdate time.Time
	mu         sync.RWMutex
	registry   *prometheus.Registry
}

// NewPrometheusMetrics creates a new Prometheus metrics instance with all collectors
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	pm := &PrometheusMetrics{
		startTime: time.Now(),
		registry:  registry,
	}

	pm.initJobMetrics()
	pm.initStorageMetrics()
	pm.initArchiveMetrics()
	pm.initAPIMetrics()
	pm.initSystemMetrics()

	pm.registerMetrics()

	// Register standard Go and process collectors for runtime visibility
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return pm
}

func (pm *PrometheusMetrics) initJobMetrics() {
	pm.jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemJob,
			Name:      "total",
			Help:      "Total number of jobs by kind and terminal status",
		},
		[]string{"kind", "status"},
	)

	pm.jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemJob,
			Name:      "duration_seconds",
			Help:      "Duration of job execution in seconds",
			Buckets:   []float64{1.0, 5.0, 10.0, 30.0, 60.0, 300.0, 600.0, 900.0, 1800.0},
		},
		[]string{"kind"},
	)

	pm.jobErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemJob,
			Name:      "errors_total",
			Help:      "Total number of failed jobs by kind and error code",
		},
		[]string{"kind", "code"},
	)

	pm.busyRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemJob,
			Name:      "busy_rejections_total",
			Help:      "Total number of submissions rejected while a job of the kind was active",
		},
		[]string{"kind"},
	)

	pm.activeJobs = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemJob,
			Name:      "active",
			Help:      "Whether a job of the kind is currently pending or running",
		},
		[]string{"kind"},
	)

	pm.hostsScanned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemJob,
			Name:      "hosts_total",
			Help:      "Total number of hosts observed by jobs",
		},
		[]string{"kind", "host_status"},
	)
}

func (pm *PrometheusMetrics) initStorageMetrics() {
	pm.artifactWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemStorage,
			Name:      "writes_total",
			Help:      "Total number of artifact writes by kind and status",
		},
		[]string{"kind", "status"},
	)

	pm.artifactBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemStorage,
			Name:      "artifact_bytes",
			Help:      "Size of written artifacts in bytes",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		},
		[]string{"kind"},
	)

	pm.prunedFiles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemStorage,
			Name:      "pruned_total",
			Help:      "Total number of history snapshots removed by retention",
		},
	)
}

func (pm *PrometheusMetrics) initArchiveMetrics() {
	pm.archiveQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemArchive,
			Name:      "queries_total",
			Help:      "Total number of job archive queries by operation and status",
		},
		[]string{"operation", "status"},
	)

	pm.archiveErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemArchive,
			Name:      "errors_total",
			Help:      "Total number of job archive errors by operation",
		},
		[]string{"operation"},
	)
}

func (pm *PrometheusMetrics) initAPIMetrics() {
	pm.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemAPI,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, path and status",
		},
		[]string{"method", "path", "status"},
	)

	pm.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemAPI,
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
		},
		[]string{"method", "path"},
	)

	pm.httpErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemAPI,
			Name:      "errors_total",
			Help:      "Total number of HTTP errors by method, path and error type",
		},
		[]string{"method", "path", "error_type"},
	)
}

func (pm *PrometheusMetrics) initSystemMetrics() {
	pm.memoryUsage = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "memory_bytes",
			Help:      "Current memory usage in bytes",
		},
	)

	pm.goroutines = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	pm.uptime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "uptime_seconds",
			Help:      "Application uptime in seconds",
		},
	)
}

func (pm *PrometheusMetrics) registerMetrics() {
	pm.registry.MustRegister(pm.jobsTotal)
	pm.registry.MustRegister(pm.jobDuration)
	pm.registry.MustRegister(pm.jobErrors)
	pm.registry.MustRegister(pm.busyRejections)
	pm.registry.MustRegister(pm.activeJobs)
	pm.registry.MustRegister(pm.hostsScanned)

	pm.registry.MustRegister(pm.artifactWrites)
	pm.registry.MustRegister(pm.artifactBytes)
	pm.registry.MustRegister(pm.prunedFiles)

	pm.registry.MustRegister(pm.archiveQueries)
	pm.registry.MustRegister(pm.archiveErrors)

	pm.registry.MustRegister(pm.httpRequests)
	pm.registry.MustRegister(pm.httpDuration)
	pm.registry.MustRegister(pm.httpErrors)

	pm.registry.MustRegister(pm.memoryUsage)
	pm.registry.MustRegister(pm.goroutines)
	pm.registry.MustRegister(pm.uptime)
}

// GetRegistry returns the Prometheus registry for the HTTP handler
func (pm *PrometheusMetrics) GetRegistry() *prometheus.Registry {
	return pm.registry
}

// Job Metrics Methods

// IncrementJobsTotal increments the terminal job counter
func (pm *PrometheusMetrics) IncrementJobsTotal(kind, status string) {
	pm.jobsTotal.WithLabelValues(kind, status).Inc()
}

// RecordJobDuration records a job execution duration
func (pm *PrometheusMetrics) RecordJobDuration(kind string, duration time.Duration) {
	pm.jobDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// IncrementJobErrors increments the failed job counter
func (pm *PrometheusMetrics) IncrementJobErrors(kind, code string) {
	pm.jobErrors.WithLabelValues(kind, code).Inc()
}

// IncrementBusyRejections increments the single-flight rejection counter
func (pm *PrometheusMetrics) IncrementBusyRejections(kind string) {
	pm.busyRejections.WithLabelValues(kind).Inc()
}

// SetJobActive marks whether a job of the kind is in flight
func (pm *PrometheusMetrics) SetJobActive(kind string, active bool) {
	value := 0.0
	if active {
		value = 1.0
	}
	pm.activeJobs.WithLabelValues(kind).Set(value)
}

// IncrementHostsScanned increments the hosts counter
func (pm *PrometheusMetrics) IncrementHostsScanned(kind, status string, count int) {
	pm.hostsScanned.WithLabelValues(kind, status).Add(float64(count))
}

// Result Store Metrics Methods

// IncrementArtifactWrites increments the artifact write counter
func (pm *PrometheusMetrics) IncrementArtifactWrites(kind, status string) {
	pm.artifactWrites.WithLabelValues(kind, status).Inc()
}

// RecordArtifactBytes records the size of a written artifact
func (pm *PrometheusMetrics) RecordArtifactBytes(kind string, bytes int) {
	pm.artifactBytes.WithLabelValues(kind).Observe(float64(bytes))
}

// IncrementPrunedFiles adds to the retention pruning counter
func (pm *PrometheusMetrics) IncrementPrunedFiles(count int) {
	pm.prunedFiles.Add(float64(count))
}

// Job Archive Metrics Methods

// IncrementArchiveQueries increments the archive query counter
func (pm *PrometheusMetrics) IncrementArchiveQueries(operation, status string) {
	pm.archiveQueries.WithLabelValues(operation, status).Inc()
}

// IncrementArchiveErrors increments the archive error counter
func (pm *PrometheusMetrics) IncrementArchiveErrors(operation string) {
	pm.archiveErrors.WithLabelValues(operation).Inc()
}

// API Metrics Methods

// IncrementHTTPRequests increments the HTTP request counter
func (pm *PrometheusMetrics) IncrementHTTPRequests(method, path, status string) {
	pm.httpRequests.WithLabelValues(method, path, status).Inc()
}

// RecordHTTPDuration records HTTP request duration
func (pm *PrometheusMetrics) RecordHTTPDuration(method, path string, duration time.Duration) {
	pm.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// IncrementHTTPErrors increments the HTTP error counter
func (pm *PrometheusMetrics) IncrementHTTPErrors(method, path, errorType string) {
	pm.httpErrors.WithLabelValues(method, path, errorType).Inc()
}

// System Metrics Methods

// UpdateSystemMetrics updates all system metrics with current values
func (pm *PrometheusMetrics) UpdateSystemMetrics() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	pm.memoryUsage.Set(float64(memStats.Alloc))
	pm.goroutines.Set(float64(runtime.NumGoroutine()))
	pm.uptime.Set(time.Since(pm.startTime).Seconds())

	pm.lastUpdate = time.Now()
}

// GetUptime returns the application uptime
func (pm *PrometheusMetrics) GetUptime() time.Duration {
	return time.Since(pm.startTime)
}

// GetLastUpdate returns the last metrics update time
func (pm *PrometheusMetrics) GetLastUpdate() time.Time {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.lastUpdate
}

// StartPeriodicUpdates starts a loop that periodically updates system
// metrics until the context is canceled.
func (pm *PrometheusMetrics) StartPeriodicUpdates(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pm.UpdateSystemMetrics()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pm.UpdateSystemMetrics()
		}
	}
}

// Global instance for easy access
var globalMetrics *PrometheusMetrics
var metricsOnce sync.Once

// GetGlobalMetrics returns the global Prometheus metrics instance
func GetGlobalMetrics() *PrometheusMetrics {
	metricsOnce.Do(func() {
		globalMetrics = NewPrometheusMetrics()
	})
	return globalMetrics
}
