package collector

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/blockedby/telememo/internal/models"
	"github.com/blockedby/telememo/internal/repository"
)

// errors
var (
	ErrAlreadyRunning = errors.New("a run is already in progress for this channel")
	ErrJobNotFound    = errors.New("job not found")
)

// maxSyncParallel bounds SyncAll.
const maxSyncParallel = 4

// keep this many finished jobs for status queries
const maxFinishedJobs = 50

// JobStatus is the state of a background job.
type JobStatus string

// JobStatus constants.
const (
	JobRunning   JobStatus = "RUNNING"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
)

// Job is a background sync started through the Manager.
type Job struct {
	ID         uuid.UUID      `json:"id"`
	ChannelID  int64          `json:"channel_id"`
	Channel    string         `json:"channel"`
	Kind       models.RunKind `json:"kind"`
	Status     JobStatus      `json:"status"`
	Progress   Progress       `json:"progress"`
	Result     *Result        `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// SyncOutcome is the per-channel result of SyncAll.
type SyncOutcome struct {
	Ref    string
	Result *Result
	Err    error
}

// Manager serializes runs per channel and runs background jobs.
// Runs on different channels proceed in parallel; a second run on a busy channel
// fails fast with ErrAlreadyRunning.
// thread-safe
type Manager struct {
	service *Service

	mu      sync.Mutex
	busy    map[int64]struct{}
	jobs    map[uuid.UUID]*Job
	cancels map[uuid.UUID]context.CancelFunc

	// background jobs outlive the request that started them
	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

// NewManager creates a manager and makes service runs go through its channel locks.
func NewManager(service *Service) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		service:    service,
		busy:       make(map[int64]struct{}),
		jobs:       make(map[uuid.UUID]*Job),
		cancels:    make(map[uuid.UUID]context.CancelFunc),
		baseCtx:    ctx,
		baseCancel: cancel,
	}
	service.guard = m.acquire
	return m
}

// Service returns the wrapped service.
func (m *Manager) Service() *Service {
	return m.service
}

func (m *Manager) acquire(channelID int64) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.busy[channelID]; ok {
		return nil, fmt.Errorf("channel %d: %w", channelID, ErrAlreadyRunning)
	}
	m.busy[channelID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.busy, channelID)
			m.mu.Unlock()
		})
	}, nil
}

// Busy reports whether a run holds the channel.
func (m *Manager) Busy(channelID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.busy[channelID]
	return ok
}

// Dump runs a backfill in the foreground.
func (m *Manager) Dump(ctx context.Context, opts DumpOptions) (*Result, error) {
	return m.service.Dump(ctx, opts)
}

// Sync runs an incremental sync in the foreground.
func (m *Manager) Sync(ctx context.Context, ref string) (*Result, error) {
	return m.service.Sync(ctx, ref)
}

// SyncAll syncs channels in parallel. Every channel runs to completion;
// the returned error is the first failure, outcomes keep the order of refs.
func (m *Manager) SyncAll(ctx context.Context, refs []string) ([]SyncOutcome, error) {
	outcomes := make([]SyncOutcome, len(refs))

	var g errgroup.Group
	g.SetLimit(maxSyncParallel)
	for i, ref := range refs {
		g.Go(func() error {
			res, err := m.service.Sync(ctx, ref)
			outcomes[i] = SyncOutcome{Ref: ref, Result: res, Err: err}
			if err != nil {
				return fmt.Errorf("%s: %w", ref, err)
			}
			return nil
		})
	}

	return outcomes, g.Wait()
}

// StartSync starts an incremental sync in the background.
// Unknown channels and busy channels are rejected before the job starts.
func (m *Manager) StartSync(ctx context.Context, ref string) (*Job, error) {
	ch, err := m.service.Lookup(ctx, ref)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", ref, ErrNoPriorDump)
	}
	if err != nil {
		return nil, err
	}

	release, err := m.acquire(ch.ID)
	if err != nil {
		return nil, err
	}

	jobCtx, cancel := context.WithCancel(m.baseCtx)
	job := &Job{
		ID:        uuid.New(),
		ChannelID: ch.ID,
		Channel:   ch.Handle(),
		Kind:      models.RunKindSync,
		Status:    JobRunning,
		Progress:  Progress{ChannelID: ch.ID, State: StateIdle},
		StartedAt: time.Now().UTC(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.cancels[job.ID] = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(jobCtx, job, ch, release)

	return m.snapshot(job), nil
}

// run executes the job, this is called in a goroutine
func (m *Manager) run(ctx context.Context, job *Job, ch *models.Channel, release func()) {
	defer m.wg.Done()
	defer release()

	res, err := m.service.syncChannel(ctx, ch, func(p Progress) {
		m.mu.Lock()
		job.Progress = p
		m.mu.Unlock()
	})

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	job.FinishedAt = &now
	job.Result = res
	job.Status = JobCompleted
	if err != nil {
		job.Status = JobFailed
		job.Error = err.Error()
	}
	if cancel, ok := m.cancels[job.ID]; ok {
		cancel()
		delete(m.cancels, job.ID)
	}
	m.pruneLocked()
}

// pruneLocked drops the oldest finished jobs beyond maxFinishedJobs.
func (m *Manager) pruneLocked() {
	var finished []*Job
	for _, j := range m.jobs {
		if j.FinishedAt != nil {
			finished = append(finished, j)
		}
	}
	if len(finished) <= maxFinishedJobs {
		return
	}
	slices.SortFunc(finished, func(a, b *Job) int { return a.FinishedAt.Compare(*b.FinishedAt) })
	for _, j := range finished[:len(finished)-maxFinishedJobs] {
		delete(m.jobs, j.ID)
	}
}

// Job returns a copy of a known job.
func (m *Manager) Job(id uuid.UUID) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return m.snapshotLocked(job), nil
}

// Jobs returns copies of all known jobs, newest first.
func (m *Manager) Jobs() []Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, *m.snapshotLocked(j))
	}
	slices.SortFunc(out, func(a, b Job) int { return b.StartedAt.Compare(a.StartedAt) })
	return out
}

func (m *Manager) snapshot(job *Job) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked(job)
}

func (m *Manager) snapshotLocked(job *Job) *Job {
	cp := *job
	return &cp
}

// Shutdown cancels running jobs and waits for them until ctx expires.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.baseCancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
