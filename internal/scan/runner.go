package scan

import (
	"context"
	"strings"
	"time"

	"github.com/Ullaakut/nmap/v3"

	"github.com/scanward/scanward/internal/config"
	"github.com/scanward/scanward/internal/errors"
	"github.com/scanward/scanward/internal/logging"
	"github.com/scanward/scanward/internal/metrics"
	"github.com/scanward/scanward/internal/storage"
)

// Timing selection boundaries, in seconds.
const (
	aggressiveTimingBelow = 60
	normalTimingBelow     = 300
)

// nmapRunner abstracts scanner execution so tests can substitute a fake.
type nmapRunner func(ctx context.Context, options []nmap.Option) (*nmap.Run, error)

// Runner executes port scan jobs: it drives nmap against a target
// network, converts the results, and stores the XML artifact.
type Runner struct {
	cfg    config.ScanningConfig
	store  *storage.Store
	logger *logging.Logger
	run    nmapRunner
}

// NewRunner creates a scan runner writing artifacts into store.
func NewRunner(cfg config.ScanningConfig, store *storage.Store, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.Default()
	}
	return &Runner{
		cfg:    cfg,
		store:  store,
		logger: logger.WithComponent("scan"),
		run:    runNmap,
	}
}

// Run scans the target network. It enforces the configured timeout,
// classifies failures, and persists the artifact on success. The
// returned ref names the stored artifact.
func (r *Runner) Run(ctx context.Context, target string) (storage.Ref, *Result, error) {
	start := time.Now()
	defer func() {
		metrics.GetGlobalMetrics().RecordJobDuration("scan", time.Since(start))
	}()

	r.logger.InfoScan("starting scan", target,
		"scan_type", r.cfg.ScanType, "ports", r.cfg.Ports, "timeout", r.cfg.Timeout)

	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	result := NewResult(target)

	raw, err := r.run(ctx, r.buildOptions(target))
	if err != nil {
		return storage.Ref{}, nil, r.classify(ctx, target, err)
	}
	result.Complete()

	convertRun(raw, result)
	metrics.GetGlobalMetrics().IncrementHostsScanned("scan", "up", result.Stats.Up)
	metrics.GetGlobalMetrics().IncrementHostsScanned("scan", "down", result.Stats.Down)

	data, err := MarshalResult(result)
	if err != nil {
		return storage.Ref{}, nil, err
	}

	ref, err := r.store.WriteScan(data)
	if err != nil {
		metrics.GetGlobalMetrics().IncrementArtifactWrites("scan", "error")
		r.logger.ErrorScan("failed to store scan artifact", target, err)
		return storage.Ref{}, nil, err
	}
	metrics.GetGlobalMetrics().IncrementArtifactWrites("scan", "success")
	metrics.GetGlobalMetrics().RecordArtifactBytes("scan", len(data))

	r.logger.InfoScan("scan complete", target,
		"artifact", ref.Name,
		"hosts_up", result.Stats.Up,
		"hosts_total", result.Stats.Total,
		"duration", result.Duration)

	return ref, result, nil
}

// classify maps an nmap execution error onto the job error taxonomy.
func (r *Runner) classify(ctx context.Context, target string, err error) error {
	switch {
	case ctx.Err() == context.DeadlineExceeded || strings.Contains(err.Error(), "timed out"):
		metrics.GetGlobalMetrics().IncrementJobErrors("scan", string(errors.CodeTimeout))
		r.logger.ErrorScan("scan timed out", target, err)
		return errors.WrapJobErrorWithTarget(errors.CodeTimeout,
			"scan exceeded its timeout and was terminated", target, err)
	case errors.IsCode(err, errors.CodeProcessLaunchFailed):
		metrics.GetGlobalMetrics().IncrementJobErrors("scan", string(errors.CodeProcessLaunchFailed))
		r.logger.ErrorScan("failed to launch nmap", target, err)
		return err
	default:
		metrics.GetGlobalMetrics().IncrementJobErrors("scan", string(errors.CodeProcessExitedNonzero))
		r.logger.ErrorScan("nmap exited with an error", target, err)
		return errors.WrapJobErrorWithTarget(errors.CodeProcessExitedNonzero,
			"scan process failed", target, err)
	}
}

// buildOptions creates nmap options for the configured scan type.
func (r *Runner) buildOptions(target string) []nmap.Option {
	options := []nmap.Option{
		nmap.WithTargets(target),
	}
	if r.cfg.Ports != "" {
		options = append(options, nmap.WithPorts(r.cfg.Ports))
	}

	switch r.cfg.ScanType {
	case "connect":
		options = append(options, nmap.WithConnectScan())
	case "syn":
		options = append(options, nmap.WithSYNScan())
	case "version":
		options = append(options,
			nmap.WithServiceInfo(),
			nmap.WithVersionAll(),
		)
	}

	if r.cfg.EnableServiceDetection && r.cfg.ScanType != "version" {
		options = append(options, nmap.WithServiceInfo())
	}

	// Pick timing from the deadline: short budgets scan harder.
	if seconds := int(r.cfg.Timeout.Seconds()); seconds > 0 {
		switch {
		case seconds <= aggressiveTimingBelow:
			options = append(options, nmap.WithTimingTemplate(nmap.TimingAggressive))
		case seconds <= normalTimingBelow:
			options = append(options, nmap.WithTimingTemplate(nmap.TimingNormal))
		default:
			options = append(options, nmap.WithTimingTemplate(nmap.TimingPolite))
		}
	}

	options = append(options,
		nmap.WithSkipHostDiscovery(),
		nmap.WithVerbosity(1),
	)

	return options
}

// runNmap creates the scanner subprocess and executes it.
func runNmap(ctx context.Context, options []nmap.Option) (*nmap.Run, error) {
	scanner, err := nmap.NewScanner(ctx, options...)
	if err != nil {
		return nil, errors.ErrLaunchFailed(err)
	}

	result, warnings, err := scanner.Run()
	if err != nil {
		return nil, err
	}

	if warnings != nil && len(*warnings) > 0 {
		logging.Warn("scan completed with warnings", "warnings", *warnings)
	}

	return result, nil
}

// convertRun converts nmap output to the internal result format.
func convertRun(raw *nmap.Run, result *Result) {
	result.Stats = HostStats{
		Up:    raw.Stats.Hosts.Up,
		Down:  raw.Stats.Hosts.Down,
		Total: raw.Stats.Hosts.Total,
	}

	result.Hosts = make([]Host, 0, len(raw.Hosts))
	for i := range raw.Hosts {
		if host := convertHost(&raw.Hosts[i]); host != nil {
			result.Hosts = append(result.Hosts, *host)
		}
	}
}

// convertHost converts a single nmap host, skipping entries without an
// address.
func convertHost(h *nmap.Host) *Host {
	if len(h.Addresses) == 0 {
		return nil
	}

	host := &Host{
		Address: h.Addresses[0].Addr,
		Status:  h.Status.State,
		Ports:   make([]Port, 0, len(h.Ports)),
	}
	if len(h.Hostnames) > 0 {
		host.Hostname = h.Hostnames[0].Name
	}

	for j := range h.Ports {
		p := &h.Ports[j]
		host.Ports = append(host.Ports, Port{
			Number:   p.ID,
			Protocol: p.Protocol,
			State:    p.State.State,
			Service:  p.Service.Name,
			Product:  p.Service.Product,
			Version:  p.Service.Version,
		})
	}

	return host
}
