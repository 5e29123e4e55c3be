// Package scheduler triggers scan and topology jobs on cron schedules.
// It submits through the orchestrator, so scheduled runs obey the same
// single-flight rules as manual triggers: a tick that lands while a job
// of the same kind is running is skipped, never queued.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/scanward/scanward/internal/config"
	"github.com/scanward/scanward/internal/errors"
	"github.com/scanward/scanward/internal/logging"
	"github.com/scanward/scanward/internal/orchestrator"
	"github.com/scanward/scanward/internal/registry"
)

// Scheduler drives periodic job submission.
type Scheduler struct {
	cfg     config.ScheduleConfig
	service orchestrator.Service
	cron    *cron.Cron
	logger  *logging.Logger

	mu      sync.Mutex
	running bool
	entries map[registry.Kind]cron.EntryID
	lastRun map[registry.Kind]time.Time
}

// New creates a scheduler submitting jobs through service.
func New(cfg config.ScheduleConfig, service orchestrator.Service, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{
		cfg:     cfg,
		service: service,
		cron:    cron.New(),
		logger:  logger.WithComponent("scheduler"),
		entries: make(map[registry.Kind]cron.EntryID),
		lastRun: make(map[registry.Kind]time.Time),
	}
}

// Start registers the configured schedules and begins ticking. Cron
// expressions were validated with the configuration, so registration
// failures indicate a bug rather than bad input.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	if err := s.register(registry.KindScan, s.cfg.ScanSchedule); err != nil {
		return err
	}
	if err := s.register(registry.KindTopology, s.cfg.TopologySchedule); err != nil {
		return err
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("scheduler started",
		"scan_schedule", s.cfg.ScanSchedule,
		"topology_schedule", s.cfg.TopologySchedule)
	return nil
}

func (s *Scheduler) register(kind registry.Kind, expr string) error {
	if expr == "" {
		s.logger.Info("schedule disabled", "kind", kind)
		return nil
	}

	id, err := s.cron.AddFunc(expr, func() {
		s.trigger(kind)
	})
	if err != nil {
		return errors.WrapConfigError(errors.CodeConfiguration,
			fmt.Sprintf("invalid %s schedule", kind), err)
	}
	s.entries[kind] = id
	return nil
}

// trigger submits one scheduled job. A busy rejection means the
// previous run is still going and this tick is dropped.
func (s *Scheduler) trigger(kind registry.Kind) {
	s.mu.Lock()
	s.lastRun[kind] = time.Now()
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var (
		job registry.Job
		err error
	)
	switch kind {
	case registry.KindScan:
		job, err = s.service.SubmitScan(ctx, "")
	case registry.KindTopology:
		job, err = s.service.SubmitTopology(ctx, "")
	}

	switch {
	case err == nil:
		s.logger.InfoJob("scheduled job submitted", job.ID.String(), "kind", kind)
	case errors.IsBusy(err):
		s.logger.Info("skipping scheduled run, previous job still active", "kind", kind)
	default:
		s.logger.Error("scheduled submission failed", "kind", kind, "error", err)
	}
}

// Stop halts the cron loop. Jobs already submitted keep running under
// the orchestrator.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.cron.Stop()
	s.running = false
	s.logger.Info("scheduler stopped")
}

// Running reports whether the cron loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next tick for a kind, or false when the kind has
// no schedule.
func (s *Scheduler) NextRun(kind registry.Kind) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.entries[kind]
	if !ok {
		return time.Time{}, false
	}
	entry := s.cron.Entry(id)
	if entry.ID == 0 {
		return time.Time{}, false
	}
	return entry.Next, true
}

// LastRun returns the last trigger time for a kind, or false when the
// kind has not fired yet.
func (s *Scheduler) LastRun(kind registry.Kind) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, ok := s.lastRun[kind]
	return last, ok
}
