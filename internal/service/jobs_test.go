package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/streamscribe/internal/metrics"
	"github.com/raphaelgruber/streamscribe/internal/models"
)

// memStore records every saved job.
type memStore struct {
	mu         sync.Mutex
	saved      []models.JobRecord
	incomplete []models.JobRecord
	saveErr    error
}

func (s *memStore) SaveJob(_ context.Context, rec models.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, rec)
	return s.saveErr
}

func (s *memStore) GetIncompleteJobs(context.Context) ([]models.JobRecord, error) {
	return s.incomplete, nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) last() models.JobRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved[len(s.saved)-1]
}

// stepClock advances one second per call.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func newTestManager(store JobStore) *JobManager {
	m := NewJobManager(store, NewEventBus(100), metrics.NewCollector())
	m.now = stepClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return m
}

func TestJobLifecycle(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	m := newTestManager(store)

	job := m.CreateJob(ctx, models.SourceYouTubeVideo, "https://youtu.be/abc", nil)
	require.Len(t, job.ID, 8)
	assert.Equal(t, models.JobStatusPending, job.Status())
	assert.Same(t, job, m.GetJob(job.ID))

	require.NoError(t, m.SetRunning(ctx, job))
	m.UpdateProgress(ctx, job, 1, 2)
	require.NoError(t, m.Complete(ctx, job, "hello world", "results/result_x.json"))

	info := job.Snapshot()
	assert.Equal(t, models.JobStatusCompleted, info.Status)
	assert.Equal(t, "hello world", info.Result)
	assert.Equal(t, "results/result_x.json", info.ResultArtifact)
	require.NotNil(t, info.StartedAt)
	require.NotNil(t, info.CompletedAt)

	rec := store.last()
	assert.Equal(t, models.JobStatusCompleted, rec.Status)
	require.NotNil(t, rec.ResultArtifact)
	assert.Equal(t, "results/result_x.json", *rec.ResultArtifact)
	assert.Nil(t, rec.Error)
}

func TestInvalidTransitions(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(nil)

	job := m.CreateJob(ctx, models.SourceAudioFile, "a.wav", nil)
	err := m.Complete(ctx, job, "x", "")
	assert.ErrorIs(t, err, ErrInvalidTransition, "pending cannot complete")

	require.NoError(t, m.SetRunning(ctx, job))
	assert.ErrorIs(t, m.SetRunning(ctx, job), ErrInvalidTransition)

	require.NoError(t, m.Fail(ctx, job, errors.New("boom")))
	assert.ErrorIs(t, m.Fail(ctx, job, errors.New("again")), ErrInvalidTransition)
	assert.ErrorIs(t, m.Complete(ctx, job, "x", ""), ErrInvalidTransition)

	info := job.Snapshot()
	assert.Equal(t, models.JobStatusFailed, info.Status)
	assert.Equal(t, "boom", info.Error)
}

func TestUpdateProgressMonotonic(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(nil)
	job := m.CreateJob(ctx, models.SourceAudioFile, "a.wav", nil)

	m.UpdateProgress(ctx, job, 1, 3)
	assert.Zero(t, job.Snapshot().SegmentsDone, "ignored while pending")

	require.NoError(t, m.SetRunning(ctx, job))
	m.UpdateProgress(ctx, job, 2, 3)
	m.UpdateProgress(ctx, job, 1, 3)

	info := job.Snapshot()
	assert.Equal(t, 2, info.SegmentsDone)
	assert.Equal(t, 3, info.SegmentsTotal)
}

func TestElapsedFrozenAtCompletion(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(nil)
	job := m.CreateJob(ctx, models.SourceAudioFile, "a.wav", nil)

	assert.Zero(t, job.Snapshot().Elapsed(time.Now()))

	require.NoError(t, m.SetRunning(ctx, job))
	require.NoError(t, m.Complete(ctx, job, "done", ""))

	info := job.Snapshot()
	first := info.Elapsed(info.CompletedAt.Add(time.Hour))
	second := info.Elapsed(info.CompletedAt.Add(48 * time.Hour))
	assert.Equal(t, time.Second, first)
	assert.Equal(t, first, second)
}

func TestListJobsOrdering(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(nil)

	a := m.CreateJob(ctx, models.SourceAudioFile, "a.wav", nil)
	b := m.CreateJob(ctx, models.SourceAudioFile, "b.wav", nil)
	c := m.CreateJob(ctx, models.SourceAudioFile, "c.wav", nil)

	// b starts after a; c never starts but was submitted last.
	require.NoError(t, m.SetRunning(ctx, a))
	require.NoError(t, m.SetRunning(ctx, b))

	infos := m.ListJobs(0)
	require.Len(t, infos, 3)
	assert.Equal(t, []string{b.ID, a.ID, c.ID}, []string{infos[0].ID, infos[1].ID, infos[2].ID})

	assert.Len(t, m.ListJobs(2), 2)
}

func TestRecoverInterrupted(t *testing.T) {
	ctx := context.Background()
	started := time.Date(2026, 2, 28, 9, 0, 0, 0, time.UTC)
	store := &memStore{incomplete: []models.JobRecord{
		{JobID: "deadbeef", SourceKind: models.SourceYouTubeLive, SourceRef: "https://youtu.be/live", Status: models.JobStatusRunning, SubmittedAt: started, StartedAt: &started},
	}}
	m := newTestManager(store)

	n, err := m.RecoverInterrupted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	job := m.GetJob("deadbeef")
	require.NotNil(t, job)
	info := job.Snapshot()
	assert.Equal(t, models.JobStatusFailed, info.Status)
	assert.Equal(t, "interrupted by restart", info.Error)

	rec := store.last()
	assert.Equal(t, models.JobStatusFailed, rec.Status)
}

func TestStoreFailureKeepsMemoryState(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(&memStore{saveErr: errors.New("disk full")})

	job := m.CreateJob(ctx, models.SourceAudioFile, "a.wav", nil)
	require.NoError(t, m.SetRunning(ctx, job))
	assert.Equal(t, models.JobStatusRunning, job.Status())
}

func TestTransitionsPublishEvents(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(nil)

	job := m.CreateJob(ctx, models.SourceAudioFile, "a.wav", nil)
	require.NoError(t, m.SetRunning(ctx, job))
	m.LogCommand(job, "ffmpeg -i a.wav")
	require.NoError(t, m.Complete(ctx, job, "text", ""))

	events := m.Events().Since(0)
	require.Len(t, events, 4)
	assert.Equal(t, EventTypeStatus, events[0].Type)
	assert.Equal(t, models.JobStatusPending, events[0].Status)
	assert.Equal(t, EventTypeLog, events[2].Type)
	assert.Equal(t, "ffmpeg -i a.wav", events[2].Message)
	assert.Equal(t, models.JobStatusCompleted, events[3].Status)
	for _, e := range events {
		assert.Equal(t, job.ID, e.JobID)
	}
}
