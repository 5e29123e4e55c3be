// Package registry tracks scan jobs in memory. It is the single source of
// truth for job state and enforces the one-active-job-per-kind policy:
// TryReserve is the only way a job comes into existence, and it refuses a
// reservation while another job of the same kind is still pending or
// running.
package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scanward/scanward/internal/errors"
)

// Kind identifies a class of job. Jobs of different kinds run
// independently of each other.
type Kind string

const (
	KindScan     Kind = "scan"
	KindTopology Kind = "topology"
)

// Valid reports whether the kind is one scanward knows how to run.
func (k Kind) Valid() bool {
	return k == KindScan || k == KindTopology
}

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Job is a single unit of scan work.
type Job struct {
	ID           uuid.UUID        `json:"id"`
	Kind         Kind             `json:"kind"`
	Target       string           `json:"target"`
	Status       Status           `json:"status"`
	SubmittedAt  time.Time        `json:"submitted_at"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
	ResultRef    string           `json:"result_ref,omitempty"`
	ErrorCode    errors.ErrorCode `json:"error_code,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
}

// Duration returns the time the job spent running, zero until it started.
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	if j.CompletedAt != nil {
		return j.CompletedAt.Sub(*j.StartedAt)
	}
	return time.Since(*j.StartedAt)
}

const defaultHistoryLimit = 50

// Observer receives a snapshot of every job state transition.
type Observer func(job Job)

// Registry holds all known jobs and the per-kind active slot.
type Registry struct {
	mu           sync.Mutex
	active       map[Kind]*Job
	jobs         map[uuid.UUID]*Job
	history      map[Kind][]*Job
	historyLimit int
	observers    []Observer
	now          func() time.Time
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		active:       make(map[Kind]*Job),
		jobs:         make(map[uuid.UUID]*Job),
		history:      make(map[Kind][]*Job),
		historyLimit: defaultHistoryLimit,
		now:          time.Now,
	}
}

// Subscribe registers an observer that is invoked, outside the registry
// lock, with a copy of each job after every state transition.
func (r *Registry) Subscribe(obs Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, obs)
}

// TryReserve atomically creates a Pending job for the kind, or fails with
// a Busy error if a job of that kind is already pending or running. It
// never blocks on a running job.
func (r *Registry) TryReserve(kind Kind, target string) (Job, error) {
	r.mu.Lock()

	if existing, ok := r.active[kind]; ok {
		r.mu.Unlock()
		return *existing, errors.ErrBusy(string(kind))
	}

	job := &Job{
		ID:          uuid.New(),
		Kind:        kind,
		Target:      target,
		Status:      StatusPending,
		SubmittedAt: r.now().UTC(),
	}
	r.active[kind] = job
	r.jobs[job.ID] = job
	r.pushHistory(job)

	snapshot := *job
	observers := r.observers
	r.mu.Unlock()

	for _, obs := range observers {
		obs(snapshot)
	}
	return snapshot, nil
}

// MarkRunning transitions a pending job to Running.
func (r *Registry) MarkRunning(id uuid.UUID) error {
	return r.transition(id, func(job *Job) error {
		if job.Status != StatusPending {
			return errors.NewJobError(errors.CodeValidation,
				"job is not pending").WithKind(string(job.Kind))
		}
		now := r.now().UTC()
		job.Status = StatusRunning
		job.StartedAt = &now
		return nil
	})
}

// MarkSucceeded transitions a job to Succeeded and records the artifact
// it produced. The per-kind slot is released.
func (r *Registry) MarkSucceeded(id uuid.UUID, resultRef string) error {
	return r.transition(id, func(job *Job) error {
		if job.Status.Terminal() {
			return errors.NewJobError(errors.CodeValidation, "job already terminal")
		}
		now := r.now().UTC()
		job.Status = StatusSucceeded
		job.CompletedAt = &now
		job.ResultRef = resultRef
		delete(r.active, job.Kind)
		return nil
	})
}

// MarkFailed transitions a job to Failed with the classified cause. The
// per-kind slot is released.
func (r *Registry) MarkFailed(id uuid.UUID, cause error) error {
	return r.transition(id, func(job *Job) error {
		if job.Status.Terminal() {
			return errors.NewJobError(errors.CodeValidation, "job already terminal")
		}
		now := r.now().UTC()
		job.Status = StatusFailed
		job.CompletedAt = &now
		job.ErrorCode = errors.GetCode(cause)
		if cause != nil {
			job.ErrorMessage = cause.Error()
		}
		delete(r.active, job.Kind)
		return nil
	})
}

func (r *Registry) transition(id uuid.UUID, apply func(*Job) error) error {
	r.mu.Lock()

	job, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return errors.ErrJobNotFound(id.String())
	}
	if err := apply(job); err != nil {
		r.mu.Unlock()
		return err
	}

	snapshot := *job
	observers := r.observers
	r.mu.Unlock()

	for _, obs := range observers {
		obs(snapshot)
	}
	return nil
}

// Get returns a copy of the job with the given id.
func (r *Registry) Get(id uuid.UUID) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return Job{}, errors.ErrJobNotFound(id.String())
	}
	return *job, nil
}

// Latest returns a copy of the most recently submitted job of the kind.
func (r *Registry) Latest(kind Kind) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	jobs := r.history[kind]
	if len(jobs) == 0 {
		return Job{}, false
	}
	return *jobs[0], true
}

// Active reports whether a job of the kind is pending or running.
func (r *Registry) Active(kind Kind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[kind]
	return ok
}

// History returns copies of recent jobs of the kind, newest first.
func (r *Registry) History(kind Kind) []Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	jobs := r.history[kind]
	out := make([]Job, len(jobs))
	for i, job := range jobs {
		out[i] = *job
	}
	return out
}

// CountByStatus returns the number of recorded jobs of the kind in the
// given status.
func (r *Registry) CountByStatus(kind Kind, status Status) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, job := range r.history[kind] {
		if job.Status == status {
			count++
		}
	}
	return count
}

// pushHistory prepends the job to the kind's history, trimming the tail.
// Trimmed jobs are also dropped from the id index so the registry's
// memory stays bounded over the daemon's lifetime. Caller holds the lock.
func (r *Registry) pushHistory(job *Job) {
	jobs := append([]*Job{job}, r.history[job.Kind]...)
	if len(jobs) > r.historyLimit {
		for _, evicted := range jobs[r.historyLimit:] {
			if r.active[evicted.Kind] != evicted {
				delete(r.jobs, evicted.ID)
			}
		}
		jobs = jobs[:r.historyLimit]
	}
	r.history[job.Kind] = jobs
}
