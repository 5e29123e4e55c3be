// Package daemon wires the scanward services together and manages the
// process lifecycle: PID file handling, signal handling, and ordered
// shutdown of the scheduler, API server, and running jobs.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/scanward/scanward/internal/api"
	"github.com/scanward/scanward/internal/config"
	"github.com/scanward/scanward/internal/db"
	"github.com/scanward/scanward/internal/logging"
	"github.com/scanward/scanward/internal/orchestrator"
	"github.com/scanward/scanward/internal/registry"
	"github.com/scanward/scanward/internal/scan"
	"github.com/scanward/scanward/internal/scheduler"
	"github.com/scanward/scanward/internal/storage"
	"github.com/scanward/scanward/internal/topology"
)

// File permission constants.
const (
	defaultDirPermissions  = 0o750
	defaultFilePermissions = 0o600
)

// Daemon is the long-running scanward process.
type Daemon struct {
	cfg    *config.Config
	logger *logging.Logger

	store        *storage.Store
	registry     *registry.Registry
	orchestrator *orchestrator.Orchestrator
	apiServer    *api.Server
	scheduler    *scheduler.Scheduler
	archiveDB    *db.DB

	pidFile string
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a daemon from configuration. Nothing is started until
// Start is called.
func New(cfg *config.Config) *Daemon {
	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		cfg:     cfg,
		pidFile: cfg.Daemon.PIDFile,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Start brings up all services and blocks until shutdown.
func (d *Daemon) Start() error {
	if err := d.cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	if err := d.initLogging(); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	d.logger.Info("starting scanward daemon",
		"target_network", d.cfg.Scanning.TargetNetwork,
		"results_dir", d.cfg.Storage.ResultsDir)

	if d.cfg.Daemon.WorkDir != "" {
		if err := os.MkdirAll(d.cfg.Daemon.WorkDir, defaultDirPermissions); err != nil {
			return fmt.Errorf("failed to create working directory: %w", err)
		}
		if err := os.Chdir(d.cfg.Daemon.WorkDir); err != nil {
			return fmt.Errorf("failed to change to working directory: %w", err)
		}
	}

	if err := d.createPIDFile(); err != nil {
		return fmt.Errorf("failed to create PID file: %w", err)
	}

	if err := d.initServices(); err != nil {
		d.cleanup()
		return err
	}

	d.setupSignalHandlers()

	d.logger.Info("daemon started")
	return d.run()
}

// Stop triggers a graceful shutdown and waits for it to complete.
func (d *Daemon) Stop() error {
	d.cancel()

	select {
	case <-d.done:
	case <-time.After(d.cfg.Daemon.ShutdownTimeout):
		d.logger.Warn("shutdown timeout reached, forcing exit")
	}
	return nil
}

// IsRunning reports whether the daemon has not been asked to stop.
func (d *Daemon) IsRunning() bool {
	select {
	case <-d.ctx.Done():
		return false
	default:
		return true
	}
}

func (d *Daemon) initLogging() error {
	logger, err := logging.New(logging.Config{
		Level:  logging.LogLevel(d.cfg.Logging.Level),
		Format: logging.LogFormat(d.cfg.Logging.Format),
		Output: d.cfg.Logging.Output,
	})
	if err != nil {
		return err
	}

	logging.SetDefault(logger)
	d.logger = logger.WithComponent("daemon")
	return nil
}

// initServices builds the service graph: storage and registry first,
// then the executors, orchestrator, API server, and scheduler.
func (d *Daemon) initServices() error {
	store, err := storage.New(d.cfg.Storage, d.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize result store: %w", err)
	}
	d.store = store
	d.registry = registry.New()

	scanner := scan.NewRunner(d.cfg.Scanning, store, d.logger)
	mapper := topology.NewMapper(d.cfg.Topology, store, d.logger)

	var opts []orchestrator.Option
	if d.cfg.Archive.Enabled {
		database, err := db.Connect(d.ctx, &d.cfg.Archive)
		if err != nil {
			// The archive is an optional sidecar. Scanning keeps
			// working without it.
			d.logger.Warn("job archive unavailable, continuing without it", "error", err)
		} else {
			d.archiveDB = database
			opts = append(opts, orchestrator.WithArchive(db.NewJobRepository(database)))
			d.logger.Info("job archive connected",
				"host", d.cfg.Archive.Host, "database", d.cfg.Archive.Database)
		}
	}

	d.orchestrator = orchestrator.New(d.cfg, d.registry, store, scanner, mapper, d.logger, opts...)

	if d.cfg.IsAPIEnabled() {
		d.apiServer = api.New(d.cfg, d.orchestrator, store, d.registry, d.logger)
		d.logger.Info("API server initialized", "address", d.cfg.GetAPIAddress())
	}

	if d.cfg.Schedules.Enabled {
		d.scheduler = scheduler.New(d.cfg.Schedules, d.orchestrator, d.logger)
		if err := d.scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	return nil
}

func (d *Daemon) setupSignalHandlers() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGUSR1)

	go func() {
		for sig := range sigChan {
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				d.logger.Info("received shutdown signal", "signal", sig.String())
				d.cancel()
				return
			case syscall.SIGUSR1:
				d.dumpStatus()
			}
		}
	}()
}

// run blocks until shutdown is requested, then tears services down in
// reverse dependency order.
func (d *Daemon) run() error {
	apiErr := make(chan error, 1)
	if d.apiServer != nil {
		go func() {
			if err := d.apiServer.Start(d.ctx); err != nil {
				apiErr <- err
			}
		}()
	}

	select {
	case <-d.ctx.Done():
		d.logger.Info("shutdown requested")
	case err := <-apiErr:
		d.logger.ErrorDaemon("API server failed", err)
		d.cancel()
	}

	d.cleanup()
	close(d.done)
	return nil
}

// cleanup stops services in reverse order: no new scheduled triggers,
// no new API triggers, then wait for in-flight jobs.
func (d *Daemon) cleanup() {
	if d.scheduler != nil {
		d.scheduler.Stop()
		d.scheduler = nil
	}

	if d.apiServer != nil {
		if err := d.apiServer.Stop(); err != nil {
			d.logger.ErrorDaemon("failed to stop API server", err)
		}
		d.apiServer = nil
	}

	if d.orchestrator != nil {
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Daemon.ShutdownTimeout)
		if err := d.orchestrator.Shutdown(ctx); err != nil {
			d.logger.ErrorDaemon("jobs did not drain before timeout", err)
		}
		cancel()
		d.orchestrator = nil
	}

	if d.archiveDB != nil {
		if err := d.archiveDB.Close(); err != nil {
			d.logger.ErrorDaemon("failed to close archive database", err)
		}
		d.archiveDB = nil
	}

	d.removePIDFile()
	d.logger.Info("daemon stopped")
}

func (d *Daemon) dumpStatus() {
	if d.orchestrator == nil {
		return
	}

	report, err := d.orchestrator.Status(d.ctx)
	if err != nil {
		d.logger.ErrorDaemon("failed to assemble status report", err)
		return
	}

	d.logger.Info("status dump",
		"pid", os.Getpid(),
		"scan_count", report.LastScanCount,
		"topology_available", report.TopologyAvailable,
		"active_jobs", len(report.ActiveJobs))
}

func (d *Daemon) createPIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(d.pidFile), defaultDirPermissions); err != nil {
		return fmt.Errorf("failed to create PID file directory: %w", err)
	}

	if err := d.checkExistingPID(); err != nil {
		return err
	}

	pid := os.Getpid()
	if err := os.WriteFile(d.pidFile, []byte(strconv.Itoa(pid)), defaultFilePermissions); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	d.logger.Info("created PID file", "path", d.pidFile, "pid", pid)
	return nil
}

// checkExistingPID refuses to start while another daemon holds the PID
// file, and clears stale files left by a crashed process.
func (d *Daemon) checkExistingPID() error {
	data, err := os.ReadFile(d.pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read existing PID file: %w", err)
	}

	pid, err := strconv.Atoi(string(data))
	if err != nil {
		_ = os.Remove(d.pidFile)
		return nil
	}

	if isProcessRunning(pid) {
		return fmt.Errorf("daemon already running with PID %d", pid)
	}

	_ = os.Remove(d.pidFile)
	return nil
}

func (d *Daemon) removePIDFile() {
	if d.pidFile == "" {
		return
	}
	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		d.logger.ErrorDaemon("failed to remove PID file", err)
	}
}

func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
