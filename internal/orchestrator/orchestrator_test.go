package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanward/scanward/internal/config"
	"github.com/scanward/scanward/internal/errors"
	"github.com/scanward/scanward/internal/registry"
	"github.com/scanward/scanward/internal/scan"
	"github.com/scanward/scanward/internal/storage"
	"github.com/scanward/scanward/internal/topology"
)

type fakeScanner struct {
	mu      sync.Mutex
	targets []string
	ref     storage.Ref
	err     error
	block   chan struct{}
}

func (f *fakeScanner) Run(ctx context.Context, target string) (storage.Ref, *scan.Result, error) {
	f.mu.Lock()
	f.targets = append(f.targets, target)
	f.mu.Unlock()

	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return storage.Ref{}, nil, f.err
	}
	return f.ref, &scan.Result{Target: target}, nil
}

func (f *fakeScanner) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.targets...)
}

type fakeMapper struct {
	ref storage.Ref
	err error
}

func (f *fakeMapper) Run(_ context.Context, target string) (storage.Ref, *topology.Document, error) {
	if f.err != nil {
		return storage.Ref{}, nil, f.err
	}
	return f.ref, &topology.Document{Network: target}, nil
}

func newTestOrchestrator(t *testing.T, scanner scanRunner, mapper topologyMapper) (*Orchestrator, *storage.Store) {
	t.Helper()

	cfg := config.Default()
	cfg.Scanning.TargetNetwork = "192.168.1.0/24"
	cfg.Storage.ResultsDir = t.TempDir()

	store, err := storage.New(cfg.Storage, nil)
	require.NoError(t, err)

	o := New(cfg, registry.New(), store, scanner, mapper, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = o.Shutdown(ctx)
	})
	return o, store
}

func waitTerminal(t *testing.T, o *Orchestrator, id uuid.UUID) registry.Job {
	t.Helper()
	var job registry.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = o.Job(id)
		return err == nil && job.Status.Terminal()
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func TestSubmitScanSuccess(t *testing.T) {
	scanner := &fakeScanner{ref: storage.Ref{Name: "scan_20260828T120000Z.xml"}}
	o, _ := newTestOrchestrator(t, scanner, &fakeMapper{})

	job, err := o.SubmitScan(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusPending, job.Status)
	assert.Equal(t, "192.168.1.0/24", job.Target, "empty target selects the configured network")

	done := waitTerminal(t, o, job.ID)
	assert.Equal(t, registry.StatusSucceeded, done.Status)
	assert.Equal(t, "scan_20260828T120000Z.xml", done.ResultRef)
	assert.Equal(t, []string{"192.168.1.0/24"}, scanner.calls())
}

func TestSubmitScanExplicitTarget(t *testing.T) {
	scanner := &fakeScanner{ref: storage.Ref{Name: "scan_20260828T120000Z.xml"}}
	o, _ := newTestOrchestrator(t, scanner, &fakeMapper{})

	job, err := o.SubmitScan(context.Background(), "10.50.0.0/16")
	require.NoError(t, err)
	assert.Equal(t, "10.50.0.0/16", job.Target)

	waitTerminal(t, o, job.ID)
	assert.Equal(t, []string{"10.50.0.0/16"}, scanner.calls())
}

func TestSubmitScanInvalidTarget(t *testing.T) {
	scanner := &fakeScanner{}
	o, _ := newTestOrchestrator(t, scanner, &fakeMapper{})

	_, err := o.SubmitScan(context.Background(), "not-a-network")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidTarget))
	assert.Empty(t, scanner.calls(), "invalid targets never start a run")

	// The slot stays free after a rejected target.
	_, err = o.SubmitScan(context.Background(), "10.0.0.0/24")
	require.NoError(t, err)
}

func TestSubmitScanBusy(t *testing.T) {
	block := make(chan struct{})
	scanner := &fakeScanner{block: block, ref: storage.Ref{Name: "scan_x.xml"}}
	o, _ := newTestOrchestrator(t, scanner, &fakeMapper{})

	first, err := o.SubmitScan(context.Background(), "10.0.0.0/24")
	require.NoError(t, err)

	_, err = o.SubmitScan(context.Background(), "10.0.0.0/24")
	require.Error(t, err)
	assert.True(t, errors.IsBusy(err))

	// A topology job is not blocked by a running scan.
	topo, err := o.SubmitTopology(context.Background(), "10.0.0.0/24")
	require.NoError(t, err)

	close(block)
	waitTerminal(t, o, first.ID)
	waitTerminal(t, o, topo.ID)

	// Once the scan finishes the slot opens again.
	_, err = o.SubmitScan(context.Background(), "10.0.0.0/24")
	require.NoError(t, err)
}

func TestSubmitScanFailure(t *testing.T) {
	scanner := &fakeScanner{err: errors.ErrScanTimeout("10.0.0.0/24")}
	o, _ := newTestOrchestrator(t, scanner, &fakeMapper{})

	job, err := o.SubmitScan(context.Background(), "10.0.0.0/24")
	require.NoError(t, err, "submission is accepted; the failure is recorded on the job")

	done := waitTerminal(t, o, job.ID)
	assert.Equal(t, registry.StatusFailed, done.Status)
	assert.Equal(t, errors.CodeTimeout, done.ErrorCode)
	assert.NotEmpty(t, done.ErrorMessage)
}

func TestSubmitTopology(t *testing.T) {
	mapper := &fakeMapper{ref: storage.Ref{Name: "topology.json"}}
	o, _ := newTestOrchestrator(t, &fakeScanner{}, mapper)

	job, err := o.SubmitTopology(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, registry.KindTopology, job.Kind)

	done := waitTerminal(t, o, job.ID)
	assert.Equal(t, registry.StatusSucceeded, done.Status)
	assert.Equal(t, "topology.json", done.ResultRef)
}

func TestStatusEmptyStore(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeScanner{}, &fakeMapper{})

	report, err := o.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.LastScanCount)
	assert.False(t, report.TopologyAvailable)
	assert.Equal(t, "192.168.1.0/24", report.TargetNetwork)
	assert.NotEmpty(t, report.ScanSchedule)
	assert.Empty(t, report.LastScanFile, "absent until a scan artifact exists")
	assert.Empty(t, report.LastScanTime)
}

func TestStatusWithArtifacts(t *testing.T) {
	o, store := newTestOrchestrator(t, &fakeScanner{}, &fakeMapper{})

	ref, err := store.WriteScan([]byte("<scanresult/>"))
	require.NoError(t, err)
	_, err = store.WriteTopology([]byte("{}"))
	require.NoError(t, err)

	report, err := o.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.LastScanCount)
	assert.True(t, report.TopologyAvailable)
	assert.Equal(t, ref.Name, report.LastScanFile)
	assert.NotEmpty(t, report.LastScanTime)
}

func TestStatusReportsActiveJobs(t *testing.T) {
	block := make(chan struct{})
	scanner := &fakeScanner{block: block, ref: storage.Ref{Name: "scan_x.xml"}}
	o, _ := newTestOrchestrator(t, scanner, &fakeMapper{})

	job, err := o.SubmitScan(context.Background(), "10.0.0.0/24")
	require.NoError(t, err)

	report, err := o.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, report.ActiveJobs, 1)
	assert.Equal(t, job.ID, report.ActiveJobs[0].ID)

	close(block)
	waitTerminal(t, o, job.ID)

	report, err = o.Status(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.ActiveJobs)
}

func TestHealth(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeScanner{}, &fakeMapper{})

	health := o.Health(context.Background())
	assert.Equal(t, "healthy", health.Status)
	assert.False(t, health.Timestamp.IsZero())
	assert.Contains(t, health.Services, "scanner")
	assert.Contains(t, health.Services, "topology-mapper")
}

func TestJobNotFound(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeScanner{}, &fakeMapper{})

	_, err := o.Job(uuid.New())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func TestJobsHistory(t *testing.T) {
	scanner := &fakeScanner{ref: storage.Ref{Name: "scan_x.xml"}}
	o, _ := newTestOrchestrator(t, scanner, &fakeMapper{})

	job, err := o.SubmitScan(context.Background(), "10.0.0.0/24")
	require.NoError(t, err)
	waitTerminal(t, o, job.ID)

	jobs := o.Jobs(registry.KindScan)
	require.Len(t, jobs, 1)
	assert.Equal(t, job.ID, jobs[0].ID)
}

func TestShutdownWaitsForJobs(t *testing.T) {
	block := make(chan struct{})
	scanner := &fakeScanner{block: block, ref: storage.Ref{Name: "scan_x.xml"}}
	o, _ := newTestOrchestrator(t, scanner, &fakeMapper{})

	_, err := o.SubmitScan(context.Background(), "10.0.0.0/24")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, o.Shutdown(ctx), "shutdown times out while a job is blocked")

	close(block)
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	assert.NoError(t, o.Shutdown(ctx2))
}
