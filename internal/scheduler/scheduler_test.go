package scheduler

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
	"github.com/scanward/scanward/internal/orchestrator"
	"github.com/scanward/scanward/internal/registry"
)

type fakeService struct {
	mu        sync.Mutex
	scans     int
	topos     int
	submitErr error
}

func (f *fakeService) SubmitScan(_ context.Context, _ string) (registry.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return registry.Job{}, f.submitErr
	}
	f.scans++
	return registry.Job{ID: uuid.New(), Kind: registry.KindScan, Status: registry.StatusPending}, nil
}

func (f *fakeService) SubmitTopology(_ context.Context, _ string) (registry.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return registry.Job{}, f.submitErr
	}
	f.topos++
	return registry.Job{ID: uuid.New(), Kind: registry.KindTopology, Status: registry.StatusPending}, nil
}

func (f *fakeService) Status(_ context.Context) (*orchestrator.StatusReport, error) {
	return &orchestrator.StatusReport{}, nil
}

func (f *fakeService) Health(_ context.Context) *orchestrator.HealthReport {
	return &orchestrator.HealthReport{Status: "healthy"}
}

func (f *fakeService) Job(_ uuid.UUID) (registry.Job, error) {
	return registry.Job{}, errors.ErrJobNotFound("unknown")
}

func (f *fakeService) Jobs(_ registry.Kind) []registry.Job {
	return nil
}

func (f *fakeService) counts() (scans, topos int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scans, f.topos
}

func testScheduleConfig() config.ScheduleConfig {
	return config.ScheduleConfig{
		Enabled:          true,
		ScanSchedule:     "0 2 * * *",
		TopologySchedule: "30 * * * *",
	}
}

func TestStartStop(t *testing.T) {
	s := New(testScheduleConfig(), &fakeService{}, nil)

	require.NoError(t, s.Start())
	assert.True(t, s.Running())

	assert.Error(t, s.Start(), "double start is rejected")

	next, ok := s.NextRun(registry.KindScan)
	require.True(t, ok)
	assert.True(t, next.After(time.Now()))

	next, ok = s.NextRun(registry.KindTopology)
	require.True(t, ok)
	assert.True(t, next.After(time.Now()))

	s.Stop()
	assert.False(t, s.Running())
	s.Stop()
}

func TestStartInvalidSchedule(t *testing.T) {
	cfg := testScheduleConfig()
	cfg.ScanSchedule = "not a cron expression"

	s := New(cfg, &fakeService{}, nil)
	err := s.Start()
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeConfiguration))
}

func TestEmptyScheduleSkipsRegistration(t *testing.T) {
	cfg := testScheduleConfig()
	cfg.TopologySchedule = ""

	s := New(cfg, &fakeService{}, nil)
	require.NoError(t, s.Start())
	defer s.Stop()

	_, ok := s.NextRun(registry.KindTopology)
	assert.False(t, ok)

	_, ok = s.NextRun(registry.KindScan)
	assert.True(t, ok)
}

func TestTriggerSubmits(t *testing.T) {
	service := &fakeService{}
	s := New(testScheduleConfig(), service, nil)

	s.trigger(registry.KindScan)
	s.trigger(registry.KindTopology)
	s.trigger(registry.KindScan)

	scans, topos := service.counts()
	assert.Equal(t, 2, scans)
	assert.Equal(t, 1, topos)

	last, ok := s.LastRun(registry.KindScan)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now(), last, time.Second)
}

func TestTriggerSkipsWhenBusy(t *testing.T) {
	service := &fakeService{submitErr: errors.ErrBusy("scan")}
	s := New(testScheduleConfig(), service, nil)

	// A busy rejection is dropped silently; nothing is queued or retried.
	s.trigger(registry.KindScan)

	scans, _ := service.counts()
	assert.Equal(t, 0, scans)

	_, ok := s.LastRun(registry.KindScan)
	assert.True(t, ok, "the tick still counts as a run attempt")
}

func TestLastRunUnsetBeforeFirstTick(t *testing.T) {
	s := New(testScheduleConfig(), &fakeService{}, nil)

	_, ok := s.LastRun(registry.KindScan)
	assert.False(t, ok)
}
