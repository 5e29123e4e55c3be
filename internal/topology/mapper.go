package topology

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
	aggressiveTimingBelow = 120
	normalTimingBelow     = 600
)

// nmapRunner abstracts the sweep so tests can substitute a fake.
type nmapRunner func(ctx context.Context, options []nmap.Option) (*nmap.Run, error)

// Mapper runs topology jobs: an nmap ping sweep with traceroute over the
// target network, assembled into a graph document and stored as the
// current topology artifact.
type Mapper struct {
	cfg    config.TopologyConfig
	store  *storage.Store
	logger *logging.Logger
	run    nmapRunner
	dns    resolver
	snmp   snmpQuerier
	now    func() time.Time
}

// NewMapper creates a topology mapper writing artifacts into store.
func NewMapper(cfg config.TopologyConfig, store *storage.Store, logger *logging.Logger) *Mapper {
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.WithComponent("topology")

	m := &Mapper{
		cfg:    cfg,
		store:  store,
		logger: logger,
		run:    runNmap,
		now:    time.Now,
	}
	if cfg.DNS.Enabled {
		m.dns = newDNSResolver(cfg.DNS, logger)
	}
	if cfg.SNMP.Enabled {
		m.snmp = newSNMPClient(cfg.SNMP, logger)
	}
	return m
}

// Run maps the target network. The returned ref names the stored
// topology document.
func (m *Mapper) Run(ctx context.Context, target string) (storage.Ref, *Document, error) {
	start := time.Now()
	defer func() {
		metrics.GetGlobalMetrics().RecordJobDuration("topology", time.Since(start))
	}()

	m.logger.InfoScan("starting topology mapping", target, "timeout", m.cfg.Timeout)

	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.Timeout)
		defer cancel()
	}

	raw, err := m.run(ctx, m.buildOptions(target))
	if err != nil {
		return storage.Ref{}, nil, m.classify(ctx, target, err)
	}

	doc := m.build(ctx, target, raw)
	metrics.GetGlobalMetrics().IncrementHostsScanned("topology", "up", doc.Stats.HostsUp)

	data, err := doc.Marshal()
	if err != nil {
		return storage.Ref{}, nil, errors.WrapJobError(errors.CodeUnknown,
			"failed to encode topology document", err)
	}

	ref, err := m.store.WriteTopology(data)
	if err != nil {
		metrics.GetGlobalMetrics().IncrementArtifactWrites("topology", "error")
		m.logger.ErrorScan("failed to store topology document", target, err)
		return storage.Ref{}, nil, err
	}
	metrics.GetGlobalMetrics().IncrementArtifactWrites("topology", "success")
	metrics.GetGlobalMetrics().RecordArtifactBytes("topology", len(data))

	m.logger.InfoScan("topology mapping complete", target,
		"nodes", len(doc.Nodes), "edges", len(doc.Edges), "routers", doc.Stats.Routers)

	return ref, doc, nil
}

func (m *Mapper) classify(ctx context.Context, target string, err error) error {
	switch {
	case ctx.Err() == context.DeadlineExceeded || strings.Contains(err.Error(), "timed out"):
		metrics.GetGlobalMetrics().IncrementJobErrors("topology", string(errors.CodeTimeout))
		m.logger.ErrorScan("topology mapping timed out", target, err)
		return errors.WrapJobErrorWithTarget(errors.CodeTimeout,
			"topology mapping exceeded its timeout and was terminated", target, err)
	case errors.IsCode(err, errors.CodeProcessLaunchFailed):
		metrics.GetGlobalMetrics().IncrementJobErrors("topology", string(errors.CodeProcessLaunchFailed))
		m.logger.ErrorScan("failed to launch nmap", target, err)
		return err
	default:
		metrics.GetGlobalMetrics().IncrementJobErrors("topology", string(errors.CodeProcessExitedNonzero))
		m.logger.ErrorScan("nmap exited with an error", target, err)
		return errors.WrapJobErrorWithTarget(errors.CodeProcessExitedNonzero,
			"topology sweep failed", target, err)
	}
}

// buildOptions creates nmap options for a ping sweep with traceroute.
func (m *Mapper) buildOptions(target string) []nmap.Option {
	options := []nmap.Option{
		nmap.WithTargets(target),
		nmap.WithPingScan(),
		nmap.WithTraceRoute(),
	}

	if seconds := int(m.cfg.Timeout.Seconds()); seconds > 0 {
		switch {
		case seconds <= aggressiveTimingBelow:
			options = append(options, nmap.WithTimingTemplate(nmap.TimingAggressive))
		case seconds <= normalTimingBelow:
			options = append(options, nmap.WithTimingTemplate(nmap.TimingNormal))
		default:
			options = append(options, nmap.WithTimingTemplate(nmap.TimingPolite))
		}
	}

	return options
}

// build assembles the graph document from the sweep results.
func (m *Mapper) build(ctx context.Context, target string, raw *nmap.Run) *Document {
	g := newGraph()

	for i := range raw.Hosts {
		host := &raw.Hosts[i]
		if len(host.Addresses) == 0 || host.Status.State != "up" {
			continue
		}
		addr := host.Addresses[0].Addr

		node := Node{ID: addr, Type: NodeHost, Address: addr}
		if len(host.Hostnames) > 0 {
			node.Hostname = host.Hostnames[0].Name
		}
		if node.Hostname == "" && m.dns != nil {
			if name, ok := m.dns.reverse(ctx, addr); ok {
				node.Hostname = name
			}
		}
		g.addNode(node)

		m.addTrace(ctx, g, addr, host.Trace)
	}

	m.identifyRouters(g)

	doc := g.document(target, m.now().UTC())
	doc.Stats.HostsUp = raw.Stats.Hosts.Up
	doc.Stats.HostsTotal = raw.Stats.Hosts.Total
	return doc
}

// addTrace folds one host's traceroute path into the graph. The first
// hop is the default gateway, intermediate hops are routers, and
// consecutive hops are connected by route edges.
func (m *Mapper) addTrace(ctx context.Context, g *graph, hostAddr string, trace nmap.Trace) {
	prev := ""
	for _, hop := range trace.Hops {
		addr := hop.IPAddr
		if addr == "" {
			continue
		}

		if addr != hostAddr {
			nodeType := NodeRouter
			if hop.TTL == 1 {
				nodeType = NodeGateway
			}
			node := Node{ID: addr, Type: nodeType, Address: addr, Hostname: hop.Host}
			if node.Hostname == "" && m.dns != nil {
				if name, ok := m.dns.reverse(ctx, addr); ok {
					node.Hostname = name
				}
			}
			g.addNode(node)
		}

		if prev != "" {
			g.addEdge(prev, addr, EdgeRoute)
		}
		prev = addr
	}

	// Close the path to the scanned host when the trace stopped short.
	if prev != "" && prev != hostAddr {
		g.addEdge(prev, hostAddr, EdgeRoute)
	}
}

// identifyRouters enriches gateway and router nodes over SNMP.
func (m *Mapper) identifyRouters(g *graph) {
	if m.snmp == nil {
		return
	}
	for _, node := range g.nodes {
		if node.Type != NodeGateway && node.Type != NodeRouter {
			continue
		}
		if sysName, sysDescr, ok := m.snmp.identify(node.Address); ok {
			node.SysName = sysName
			node.SysDescr = sysDescr
		}
	}
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
		logging.Warn("topology sweep completed with warnings", "warnings", *warnings)
	}

	return result, nil
}
