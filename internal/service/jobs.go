// Package service runs transcription jobs: the job registry, its event
// stream, and the orchestrator that drives each job through the pipeline.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/streamscribe/internal/metrics"
	"github.com/raphaelgruber/streamscribe/internal/models"
)

var (
	// ErrInvalidTransition is returned for a state change the job
	// lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid job transition")

	// ErrJobNotFound is returned for an unknown job id.
	ErrJobNotFound = errors.New("job not found")
)

// JobStore persists job records. Implemented by the SQLite and SurrealDB
// stores.
type JobStore interface {
	SaveJob(ctx context.Context, rec models.JobRecord) error
	GetIncompleteJobs(ctx context.Context) ([]models.JobRecord, error)
	Close() error
}

// JobInfo is a consistent copy of a job's state.
type JobInfo struct {
	ID             string
	Kind           models.SourceKind
	SourceRef      string
	DurationHint   *int
	Status         models.JobStatus
	Result         string
	ResultArtifact string
	Error          string
	SegmentsDone   int
	SegmentsTotal  int
	SubmittedAt    time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

// Elapsed is the running time of the job: zero before it starts, frozen
// once it finishes.
func (j JobInfo) Elapsed(now time.Time) time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	end := now
	if j.CompletedAt != nil {
		end = *j.CompletedAt
	}
	if end.Before(*j.StartedAt) {
		return 0
	}
	return end.Sub(*j.StartedAt)
}

// Record converts the snapshot into its persisted form.
func (j JobInfo) Record() models.JobRecord {
	rec := models.JobRecord{
		JobID:         j.ID,
		SourceKind:    j.Kind,
		SourceRef:     j.SourceRef,
		DurationHint:  j.DurationHint,
		Status:        j.Status,
		SegmentsDone:  j.SegmentsDone,
		SegmentsTotal: j.SegmentsTotal,
		SubmittedAt:   j.SubmittedAt,
		StartedAt:     j.StartedAt,
		CompletedAt:   j.CompletedAt,
	}
	if j.ResultArtifact != "" {
		s := j.ResultArtifact
		rec.ResultArtifact = &s
	}
	if j.Error != "" {
		s := j.Error
		rec.Error = &s
	}
	return rec
}

// Job is one transcription request. Identity fields are immutable; the rest
// is guarded by mu and read through Snapshot.
type Job struct {
	ID           string
	Kind         models.SourceKind
	SourceRef    string
	DurationHint *int
	SubmittedAt  time.Time

	mu            sync.RWMutex
	status        models.JobStatus
	result        string
	artifact      string
	errMsg        string
	segmentsDone  int
	segmentsTotal int
	startedAt     *time.Time
	completedAt   *time.Time
}

// Snapshot returns a thread-safe copy of job state.
func (j *Job) Snapshot() JobInfo {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return JobInfo{
		ID:             j.ID,
		Kind:           j.Kind,
		SourceRef:      j.SourceRef,
		DurationHint:   j.DurationHint,
		Status:         j.status,
		Result:         j.result,
		ResultArtifact: j.artifact,
		Error:          j.errMsg,
		SegmentsDone:   j.segmentsDone,
		SegmentsTotal:  j.segmentsTotal,
		SubmittedAt:    j.SubmittedAt,
		StartedAt:      j.startedAt,
		CompletedAt:    j.completedAt,
	}
}

// Status returns the current status.
func (j *Job) Status() models.JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

// JobManager is the job registry.
type JobManager struct {
	jobs    map[string]*Job
	mu      sync.RWMutex
	store   JobStore
	events  *EventBus
	metrics *metrics.Collector
	now     func() time.Time
}

// NewJobManager creates a registry. store and events may be nil.
func NewJobManager(store JobStore, events *EventBus, m *metrics.Collector) *JobManager {
	return &JobManager{
		jobs:    make(map[string]*Job),
		store:   store,
		events:  events,
		metrics: m,
		now:     time.Now,
	}
}

// Events returns the bus transitions are published on.
func (m *JobManager) Events() *EventBus {
	return m.events
}

// CreateJob registers a new pending job.
func (m *JobManager) CreateJob(ctx context.Context, kind models.SourceKind, ref string, durationHint *int) *Job {
	job := &Job{
		ID:           uuid.New().String()[:8],
		Kind:         kind,
		SourceRef:    ref,
		DurationHint: durationHint,
		SubmittedAt:  m.now(),
		status:       models.JobStatusPending,
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	slog.Info("job created", "job_id", job.ID, "type", kind, "source", ref)
	m.publish(ctx, job, EventTypeStatus, "submitted")
	return job
}

// RegisterJob adds a job restored from a store.
func (m *JobManager) RegisterJob(job *Job) {
	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()
}

// GetJob retrieves a job by ID, or nil.
func (m *JobManager) GetJob(id string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// ListJobs returns up to limit jobs, most recently started first. Jobs that
// have not started sort by submission time. limit <= 0 returns all.
func (m *JobManager) ListJobs(limit int) []JobInfo {
	m.mu.RLock()
	infos := make([]JobInfo, 0, len(m.jobs))
	for _, job := range m.jobs {
		infos = append(infos, job.Snapshot())
	}
	m.mu.RUnlock()

	slices.SortFunc(infos, func(a, b JobInfo) int {
		if c := sortTime(b).Compare(sortTime(a)); c != 0 {
			return c
		}
		return b.SubmittedAt.Compare(a.SubmittedAt)
	})
	if limit > 0 && len(infos) > limit {
		infos = infos[:limit]
	}
	return infos
}

func sortTime(j JobInfo) time.Time {
	if j.StartedAt != nil {
		return *j.StartedAt
	}
	return j.SubmittedAt
}

// SetRunning moves a pending job to running.
func (m *JobManager) SetRunning(ctx context.Context, job *Job) error {
	job.mu.Lock()
	if job.status != models.JobStatusPending {
		from := job.status
		job.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, models.JobStatusRunning)
	}
	now := m.now()
	job.status = models.JobStatusRunning
	job.startedAt = &now
	job.mu.Unlock()

	m.publish(ctx, job, EventTypeStatus, "started")
	return nil
}

// UpdateProgress records finished segments of a running job.
func (m *JobManager) UpdateProgress(ctx context.Context, job *Job, done, total int) {
	job.mu.Lock()
	if job.status != models.JobStatusRunning {
		job.mu.Unlock()
		return
	}
	// Progress callbacks can arrive out of order from concurrent segments.
	if done > job.segmentsDone {
		job.segmentsDone = done
	}
	job.segmentsTotal = total
	job.mu.Unlock()

	m.publish(ctx, job, EventTypeProgress, "")
}

// Complete moves a running job to completed with its transcript and the
// reference to the persisted artifact.
func (m *JobManager) Complete(ctx context.Context, job *Job, text, artifact string) error {
	job.mu.Lock()
	if job.status != models.JobStatusRunning {
		from := job.status
		job.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, models.JobStatusCompleted)
	}
	now := m.now()
	job.status = models.JobStatusCompleted
	job.result = text
	job.artifact = artifact
	job.completedAt = &now
	job.mu.Unlock()

	m.metrics.RecordJob(string(models.JobStatusCompleted))
	slog.Info("job completed", "job_id", job.ID, "chars", len(text), "artifact", artifact)
	m.publish(ctx, job, EventTypeStatus, "completed")
	return nil
}

// Fail moves a pending or running job to failed.
func (m *JobManager) Fail(ctx context.Context, job *Job, cause error) error {
	job.mu.Lock()
	if job.status.IsTerminal() {
		from := job.status
		job.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, models.JobStatusFailed)
	}
	now := m.now()
	job.status = models.JobStatusFailed
	job.errMsg = cause.Error()
	job.completedAt = &now
	job.mu.Unlock()

	m.metrics.RecordJob(string(models.JobStatusFailed))
	slog.Error("job failed", "job_id", job.ID, "error", cause)
	m.publish(ctx, job, EventTypeStatus, cause.Error())
	return nil
}

// LogCommand publishes an external command line for a job.
func (m *JobManager) LogCommand(job *Job, line string) {
	if m.events == nil {
		return
	}
	m.events.Publish(Event{JobID: job.ID, Type: EventTypeLog, Message: line})
}

// RecoverInterrupted marks jobs a previous process left unfinished as
// failed and registers them so they stay queryable.
func (m *JobManager) RecoverInterrupted(ctx context.Context) (int, error) {
	if m.store == nil {
		return 0, nil
	}
	recs, err := m.store.GetIncompleteJobs(ctx)
	if err != nil {
		return 0, fmt.Errorf("load incomplete jobs: %w", err)
	}

	for _, rec := range recs {
		now := m.now()
		job := &Job{
			ID:            rec.JobID,
			Kind:          rec.SourceKind,
			SourceRef:     rec.SourceRef,
			DurationHint:  rec.DurationHint,
			SubmittedAt:   rec.SubmittedAt,
			status:        models.JobStatusFailed,
			errMsg:        "interrupted by restart",
			segmentsDone:  rec.SegmentsDone,
			segmentsTotal: rec.SegmentsTotal,
			startedAt:     rec.StartedAt,
			completedAt:   &now,
		}
		m.RegisterJob(job)
		m.persist(ctx, job)
		slog.Warn("marked interrupted job failed", "job_id", job.ID, "previous_status", rec.Status)
	}
	return len(recs), nil
}

func (m *JobManager) publish(ctx context.Context, job *Job, typ EventType, msg string) {
	info := job.Snapshot()
	if m.events != nil {
		m.events.Publish(Event{
			JobID:         info.ID,
			Type:          typ,
			Status:        info.Status,
			Message:       msg,
			SegmentsDone:  info.SegmentsDone,
			SegmentsTotal: info.SegmentsTotal,
		})
	}
	if typ == EventTypeStatus || info.SegmentsDone == info.SegmentsTotal {
		m.persist(ctx, job)
	}
}

// persist writes the job to the store. Store failures never affect the
// in-memory state.
func (m *JobManager) persist(ctx context.Context, job *Job) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveJob(context.WithoutCancel(ctx), job.Snapshot().Record()); err != nil {
		slog.Warn("failed to persist job", "job_id", job.ID, "error", err)
	}
}
