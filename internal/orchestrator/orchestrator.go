// Package orchestrator coordinates scan and topology jobs: it validates
// targets, enforces single-flight per job kind through the registry,
// launches background runs, and answers status and health queries.
package orchestrator

import (
	"context"
	"database/sql"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scanward/scanward/internal/config"
	"github.com/scanward/scanward/internal/db"
	"github.com/scanward/scanward/internal/errors"
	"github.com/scanward/scanward/internal/logging"
	"github.com/scanward/scanward/internal/metrics"
	"github.com/scanward/scanward/internal/registry"
	"github.com/scanward/scanward/internal/scan"
	"github.com/scanward/scanward/internal/storage"
	"github.com/scanward/scanward/internal/topology"
)

//go:generate mockgen -destination=mocks/service_mock.go -package=mocks github.com/scanward/scanward/internal/orchestrator Service

const (
	// Deadline for any single archive database query.
	archiveQueryTimeout = 10 * time.Second
	// How many archived jobs Jobs pulls in beyond the in-memory history.
	archiveRecentLimit = 50
)

// Service is the operation surface exposed to the API and scheduler.
type Service interface {
	// SubmitScan starts a port scan in the background. An empty target
	// selects the configured network. Returns the accepted job, or
	// INVALID_TARGET / BUSY without side effects.
	SubmitScan(ctx context.Context, target string) (registry.Job, error)

	// SubmitTopology starts a topology mapping in the background, with
	// the same acceptance semantics as SubmitScan.
	SubmitTopology(ctx context.Context, target string) (registry.Job, error)

	// Status reports stored artifacts and schedule configuration.
	Status(ctx context.Context) (*StatusReport, error)

	// Health reports liveness and the set of enabled services.
	Health(ctx context.Context) *HealthReport

	// Job returns a single job by id.
	Job(id uuid.UUID) (registry.Job, error)

	// Jobs returns recent jobs for a kind, newest first.
	Jobs(kind registry.Kind) []registry.Job
}

// scanRunner and topologyMapper are the two background executors.
type scanRunner interface {
	Run(ctx context.Context, target string) (storage.Ref, *scan.Result, error)
}

type topologyMapper interface {
	Run(ctx context.Context, target string) (storage.Ref, *topology.Document, error)
}

// StatusReport is the getStatus payload.
type StatusReport struct {
	LastScanCount     int            `json:"last_scan_count"`
	TopologyAvailable bool           `json:"topology_available"`
	TargetNetwork     string         `json:"target_network"`
	ScanSchedule      string         `json:"scan_schedule"`
	TopologySchedule  string         `json:"topology_schedule"`
	LastScanFile      string         `json:"last_scan_file,omitempty"`
	LastScanTime      string         `json:"last_scan_time,omitempty"`
	ActiveJobs        []registry.Job `json:"active_jobs,omitempty"`

	// Lifetime per-kind totals from the job archive, present only when
	// the archive is enabled and reachable.
	ArchivedJobs map[string]int `json:"archived_jobs,omitempty"`
}

// HealthReport is the getHealth payload.
type HealthReport struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Services  []string  `json:"services"`
}

// Orchestrator implements Service.
type Orchestrator struct {
	cfg      *config.Config
	registry *registry.Registry
	store    *storage.Store
	scanner  scanRunner
	mapper   topologyMapper
	archive  *db.JobRepository
	logger   *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithArchive enables archiving of terminal jobs.
func WithArchive(archive *db.JobRepository) Option {
	return func(o *Orchestrator) {
		o.archive = archive
	}
}

// New creates an orchestrator. Background jobs run until Shutdown.
func New(cfg *config.Config, reg *registry.Registry, store *storage.Store,
	scanner scanRunner, mapper topologyMapper, logger *logging.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = logging.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		cfg:      cfg,
		registry: reg,
		store:    store,
		scanner:  scanner,
		mapper:   mapper,
		logger:   logger.WithComponent("orchestrator"),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SubmitScan accepts a scan job and runs it in the background.
func (o *Orchestrator) SubmitScan(ctx context.Context, target string) (registry.Job, error) {
	return o.submit(ctx, registry.KindScan, target)
}

// SubmitTopology accepts a topology job and runs it in the background.
func (o *Orchestrator) SubmitTopology(ctx context.Context, target string) (registry.Job, error) {
	return o.submit(ctx, registry.KindTopology, target)
}

func (o *Orchestrator) submit(_ context.Context, kind registry.Kind, target string) (registry.Job, error) {
	if target == "" {
		target = o.cfg.Scanning.TargetNetwork
	}

	// Target validation happens before any reservation, so a bad
	// target never occupies the single job slot.
	if _, _, err := net.ParseCIDR(target); err != nil {
		metrics.GetGlobalMetrics().IncrementJobErrors(string(kind), string(errors.CodeInvalidTarget))
		return registry.Job{}, errors.ErrInvalidTarget(target)
	}

	job, err := o.registry.TryReserve(kind, target)
	if err != nil {
		if errors.IsBusy(err) {
			metrics.GetGlobalMetrics().IncrementBusyRejections(string(kind))
			o.logger.Info("rejected job, kind busy", "kind", kind, "target", target)
		}
		return registry.Job{}, err
	}

	metrics.GetGlobalMetrics().IncrementJobsTotal(string(kind), "submitted")
	o.logger.InfoJob("accepted job", job.ID.String(), "kind", kind, "target", target)

	o.wg.Add(1)
	go o.execute(job)

	return job, nil
}

// execute drives one background job to a terminal state. It runs on the
// orchestrator's own context so request cancellation cannot interrupt an
// accepted job.
func (o *Orchestrator) execute(job registry.Job) {
	defer o.wg.Done()

	kind := string(job.Kind)
	metrics.GetGlobalMetrics().SetJobActive(kind, true)
	defer metrics.GetGlobalMetrics().SetJobActive(kind, false)

	if err := o.registry.MarkRunning(job.ID); err != nil {
		o.logger.ErrorJob("failed to mark job running", job.ID.String(), err, "kind", kind)
		return
	}

	var (
		ref storage.Ref
		err error
	)
	switch job.Kind {
	case registry.KindScan:
		ref, _, err = o.scanner.Run(o.ctx, job.Target)
	case registry.KindTopology:
		ref, _, err = o.mapper.Run(o.ctx, job.Target)
	}

	if err != nil {
		if markErr := o.registry.MarkFailed(job.ID, err); markErr != nil {
			o.logger.ErrorJob("failed to mark job failed", job.ID.String(), markErr, "kind", kind)
		}
		metrics.GetGlobalMetrics().IncrementJobsTotal(kind, "failed")
		o.logger.ErrorJob("job failed", job.ID.String(), err, "kind", kind)
	} else {
		if markErr := o.registry.MarkSucceeded(job.ID, ref.Name); markErr != nil {
			o.logger.ErrorJob("failed to mark job succeeded", job.ID.String(), markErr, "kind", kind)
		}
		metrics.GetGlobalMetrics().IncrementJobsTotal(kind, "succeeded")
		o.logger.InfoJob("job succeeded", job.ID.String(), "kind", kind, "artifact", ref.Name)
	}

	o.archiveJob(job.ID)
}

// archiveJob records the terminal job in the archive database, when one
// is configured. Archive failures never affect job outcomes.
func (o *Orchestrator) archiveJob(id uuid.UUID) {
	if o.archive == nil {
		return
	}

	job, err := o.registry.Get(id)
	if err != nil {
		return
	}

	record := &db.JobRecord{
		ID:          job.ID,
		Kind:        string(job.Kind),
		Target:      job.Target,
		Status:      string(job.Status),
		SubmittedAt: job.SubmittedAt,
	}
	if job.StartedAt != nil {
		record.StartedAt = sql.NullTime{Time: *job.StartedAt, Valid: true}
	}
	if job.CompletedAt != nil {
		record.CompletedAt = sql.NullTime{Time: *job.CompletedAt, Valid: true}
	}
	if job.ResultRef != "" {
		record.ResultRef = sql.NullString{String: job.ResultRef, Valid: true}
	}
	if job.ErrorCode != "" {
		record.ErrorCode = sql.NullString{String: string(job.ErrorCode), Valid: true}
		record.ErrorMessage = sql.NullString{String: job.ErrorMessage, Valid: true}
	}

	ctx, cancel := context.WithTimeout(context.Background(), archiveQueryTimeout)
	defer cancel()

	if err := o.archive.Insert(ctx, record); err != nil {
		metrics.GetGlobalMetrics().IncrementArchiveErrors("insert job")
		o.logger.ErrorJob("failed to archive job", job.ID.String(), err, "kind", job.Kind)
		return
	}
	metrics.GetGlobalMetrics().IncrementArchiveQueries("insert job", "success")
}

// Status assembles the status report from stored artifacts and the
// schedule configuration.
func (o *Orchestrator) Status(ctx context.Context) (*StatusReport, error) {
	count, err := o.store.ScanCount()
	if err != nil {
		return nil, err
	}

	report := &StatusReport{
		LastScanCount:     count,
		TopologyAvailable: o.store.HasTopology(),
		TargetNetwork:     o.cfg.Scanning.TargetNetwork,
		ScanSchedule:      o.cfg.Schedules.ScanSchedule,
		TopologySchedule:  o.cfg.Schedules.TopologySchedule,
	}

	latest, ok, err := o.store.LatestScan()
	if err != nil {
		return nil, err
	}
	if ok {
		report.LastScanFile = latest.Name
		report.LastScanTime = latest.Timestamp().UTC().Format(time.RFC3339)
	}

	for _, kind := range []registry.Kind{registry.KindScan, registry.KindTopology} {
		if job, found := o.registry.Latest(kind); found && !job.Status.Terminal() {
			report.ActiveJobs = append(report.ActiveJobs, job)
		}
	}

	if o.archive != nil {
		report.ArchivedJobs = o.archivedCounts(ctx)
	}

	return report, nil
}

// archivedCounts returns lifetime job totals per kind from the archive.
// An unreachable archive degrades to a missing field, never an error.
func (o *Orchestrator) archivedCounts(ctx context.Context) map[string]int {
	ctx, cancel := context.WithTimeout(ctx, archiveQueryTimeout)
	defer cancel()

	counts := make(map[string]int, 2)
	for _, kind := range []registry.Kind{registry.KindScan, registry.KindTopology} {
		count, err := o.archive.CountByKind(ctx, string(kind), "")
		if err != nil {
			metrics.GetGlobalMetrics().IncrementArchiveErrors("count jobs")
			o.logger.Error("failed to count archived jobs", "kind", kind, "error", err)
			return nil
		}
		counts[string(kind)] = count
	}
	metrics.GetGlobalMetrics().IncrementArchiveQueries("count jobs", "success")
	return counts
}

// Health reports the daemon as healthy with its enabled services. A
// process able to answer is healthy; job failures are job results, not
// health signals.
func (o *Orchestrator) Health(_ context.Context) *HealthReport {
	services := []string{"scanner", "topology-mapper"}
	if o.cfg.Schedules.Enabled {
		services = append(services, "scheduler")
	}
	if o.cfg.API.Enabled {
		services = append(services, "api")
	}

	return &HealthReport{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Services:  services,
	}
}

// Job returns a single job by id.
func (o *Orchestrator) Job(id uuid.UUID) (registry.Job, error) {
	return o.registry.Get(id)
}

// Jobs returns recent jobs for a kind, newest first. When the archive is
// enabled, jobs that have aged out of the in-memory history are merged in
// from the database.
func (o *Orchestrator) Jobs(kind registry.Kind) []registry.Job {
	jobs := o.registry.History(kind)
	if o.archive == nil {
		return jobs
	}

	ctx, cancel := context.WithTimeout(context.Background(), archiveQueryTimeout)
	defer cancel()

	records, err := o.archive.Recent(ctx, string(kind), archiveRecentLimit)
	if err != nil {
		metrics.GetGlobalMetrics().IncrementArchiveErrors("recent jobs")
		o.logger.Error("failed to read archived jobs", "kind", kind, "error", err)
		return jobs
	}
	metrics.GetGlobalMetrics().IncrementArchiveQueries("recent jobs", "success")

	seen := make(map[uuid.UUID]struct{}, len(jobs))
	for _, job := range jobs {
		seen[job.ID] = struct{}{}
	}
	for _, record := range records {
		if _, ok := seen[record.ID]; ok {
			continue
		}
		jobs = append(jobs, recordToJob(record))
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].SubmittedAt.After(jobs[j].SubmittedAt)
	})
	return jobs
}

// recordToJob converts an archived row back into the registry's job shape.
func recordToJob(record *db.JobRecord) registry.Job {
	job := registry.Job{
		ID:          record.ID,
		Kind:        registry.Kind(record.Kind),
		Target:      record.Target,
		Status:      registry.Status(record.Status),
		SubmittedAt: record.SubmittedAt,
	}
	if record.StartedAt.Valid {
		started := record.StartedAt.Time
		job.StartedAt = &started
	}
	if record.CompletedAt.Valid {
		completed := record.CompletedAt.Time
		job.CompletedAt = &completed
	}
	if record.ResultRef.Valid {
		job.ResultRef = record.ResultRef.String
	}
	if record.ErrorCode.Valid {
		job.ErrorCode = errors.ErrorCode(record.ErrorCode.String)
		job.ErrorMessage = record.ErrorMessage.String
	}
	return job
}

// Shutdown stops accepting work and waits for in-flight jobs, up to the
// context deadline.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.cancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ Service = (*Orchestrator)(nil)
