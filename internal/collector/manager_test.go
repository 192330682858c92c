package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/telememo/internal/repository"
)

// dumped prepares a service whose channels were dumped once.
func dumped(t *testing.T, src *fakeSource, usernames ...string) (*Manager, *Service) {
	t.Helper()
	svc, _ := newTestService(t, src, 100)
	m := NewManager(svc)
	for i, name := range usernames {
		id := int64(i + 1)
		src.addChannel(id, name)
		src.post(id, posts(1, 3)...)
		_, err := m.Dump(context.Background(), DumpOptions{Channel: name})
		require.NoError(t, err)
	}
	return m, svc
}

// blockHistory makes the next History calls wait until released.
func blockHistory(src *fakeSource) {
	src.entered = make(chan struct{})
	src.release = make(chan struct{})
}

func TestManager_SameChannelIsExclusive(t *testing.T) {
	// Arrange
	src := newFakeSource()
	m, _ := dumped(t, src, "news", "sport")
	blockHistory(src)

	done := make(chan error, 1)
	go func() {
		_, err := m.Sync(context.Background(), "news")
		done <- err
	}()
	<-src.entered

	// Act
	_, syncErr := m.Sync(context.Background(), "news")
	_, dumpErr := m.Dump(context.Background(), DumpOptions{Channel: "news"})

	// Assert
	assert.ErrorIs(t, syncErr, ErrAlreadyRunning)
	assert.ErrorIs(t, dumpErr, ErrAlreadyRunning)
	assert.True(t, m.Busy(1))
	assert.False(t, m.Busy(2))

	close(src.release)
	go func() {
		for range src.entered {
		}
	}()
	require.NoError(t, <-done)
	assert.False(t, m.Busy(1), "lock is released after the run")
}

func TestManager_DifferentChannelsRunInParallel(t *testing.T) {
	src := newFakeSource()
	m, _ := dumped(t, src, "news", "sport")
	blockHistory(src)

	errs := make(chan error, 2)
	for _, name := range []string{"news", "sport"} {
		go func() {
			_, err := m.Sync(context.Background(), name)
			errs <- err
		}()
	}

	// both runs reach the remote call at the same time
	<-src.entered
	<-src.entered
	assert.True(t, m.Busy(1))
	assert.True(t, m.Busy(2))

	close(src.release)
	go func() {
		for range src.entered {
		}
	}()
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)
}

func TestManager_SyncAll(t *testing.T) {
	src := newFakeSource()
	m, _ := dumped(t, src, "news", "sport")
	src.post(1, posts(4, 6)...)
	src.post(2, posts(4, 4)...)

	outcomes, err := m.SyncAll(context.Background(), []string{"news", "missing", "sport"})

	assert.ErrorIs(t, err, ErrNoPriorDump)
	require.Len(t, outcomes, 3)
	assert.Equal(t, "news", outcomes[0].Ref)
	require.NoError(t, outcomes[0].Err)
	assert.Equal(t, 3, outcomes[0].Result.Inserted)
	assert.ErrorIs(t, outcomes[1].Err, ErrNoPriorDump)
	require.NoError(t, outcomes[2].Err, "one failing channel does not stop the others")
	assert.Equal(t, 1, outcomes[2].Result.Inserted)
}

func TestManager_StartSync(t *testing.T) {
	// Arrange
	src := newFakeSource()
	m, _ := dumped(t, src, "news")
	src.post(1, posts(4, 5)...)

	// Act
	job, err := m.StartSync(context.Background(), "@news")

	// Assert
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, job.ID)
	assert.Equal(t, "@news", job.Channel)

	require.Eventually(t, func() bool {
		j, err := m.Job(job.ID)
		return err == nil && j.Status != JobRunning
	}, 2*time.Second, 5*time.Millisecond)

	finished, err := m.Job(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobCompleted, finished.Status)
	require.NotNil(t, finished.Result)
	assert.Equal(t, 2, finished.Result.Inserted)
	assert.Equal(t, StateIdle, finished.Progress.State)
	assert.False(t, m.Busy(1))
	assert.Len(t, m.Jobs(), 1)
}

func TestManager_StartSync_Rejections(t *testing.T) {
	src := newFakeSource()
	m, _ := dumped(t, src, "news")

	_, err := m.StartSync(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrNoPriorDump)

	_, err = m.StartSync(context.Background(), "bad ref")
	assert.ErrorIs(t, err, ErrInvalidChannelRef)

	blockHistory(src)
	first, err := m.StartSync(context.Background(), "news")
	require.NoError(t, err)
	<-src.entered

	_, err = m.StartSync(context.Background(), "news")
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	// Shutdown cancels the blocked job
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	j, err := m.Job(first.ID)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, j.Status)
	assert.Contains(t, j.Error, context.Canceled.Error())
}

func TestManager_Job_NotFound(t *testing.T) {
	svc, _ := newTestService(t, newFakeSource(), 100)
	m := NewManager(svc)

	_, err := m.Job(uuid.New())

	assert.True(t, errors.Is(err, ErrJobNotFound))
}

func TestManager_PrunesFinishedJobs(t *testing.T) {
	svc, _ := newTestService(t, newFakeSource(), 100)
	m := NewManager(svc)

	base := time.Now()
	for i := 0; i < maxFinishedJobs+5; i++ {
		finished := base.Add(time.Duration(i) * time.Second)
		id := uuid.New()
		m.jobs[id] = &Job{ID: id, Status: JobCompleted, StartedAt: finished, FinishedAt: &finished}
	}

	m.mu.Lock()
	m.pruneLocked()
	m.mu.Unlock()

	jobs := m.Jobs()
	assert.Len(t, jobs, maxFinishedJobs)
	assert.Equal(t, base.Add(time.Duration(maxFinishedJobs+4)*time.Second), jobs[0].StartedAt)
}

func TestService_LeaseRefusesSecondProcess(t *testing.T) {
	// Arrange: two services over one store stand in for two processes
	src := newFakeSource()
	src.addChannel(1, "news")
	src.post(1, posts(1, 3)...)
	store := newTestStore(t)
	first := NewService(src, store, nil, Config{PageSize: 100}, nil)
	second := NewService(src, store, nil, Config{PageSize: 100}, nil)
	_, err := first.Dump(context.Background(), DumpOptions{Channel: "news"})
	require.NoError(t, err)
	blockHistory(src)

	done := make(chan error, 1)
	go func() {
		_, err := first.Sync(context.Background(), "news")
		done <- err
	}()
	<-src.entered

	// Act
	_, syncErr := second.Sync(context.Background(), "news")
	_, dumpErr := second.Dump(context.Background(), DumpOptions{Channel: "news"})

	// Assert
	assert.ErrorIs(t, syncErr, ErrAlreadyRunning)
	assert.ErrorIs(t, syncErr, repository.ErrLeaseHeld)
	assert.ErrorIs(t, dumpErr, ErrAlreadyRunning)

	close(src.release)
	go func() {
		for range src.entered {
		}
	}()
	require.NoError(t, <-done)

	_, err = second.Sync(context.Background(), "news")
	assert.NoError(t, err, "lease is released after the run")
}

func TestService_ExpiredLeaseIsTakenOver(t *testing.T) {
	src := newFakeSource()
	src.addChannel(1, "news")
	src.post(1, posts(1, 3)...)
	store := newTestStore(t)
	svc := NewService(src, store, nil, Config{PageSize: 100}, nil)
	_, err := svc.Dump(context.Background(), DumpOptions{Channel: "news"})
	require.NoError(t, err)

	// a process that died mid-run
	require.NoError(t, store.Channels.AcquireLease(context.Background(), 1, "crashed", time.Now().Add(-time.Minute)))

	_, err = svc.Sync(context.Background(), "news")
	require.NoError(t, err)

	ch, err := store.Channels.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, ch.RunOwner)
	assert.Nil(t, ch.RunLeaseUntil)
}
