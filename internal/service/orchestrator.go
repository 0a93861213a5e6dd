package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/raphaelgruber/streamscribe/internal/acquire"
	"github.com/raphaelgruber/streamscribe/internal/media"
	"github.com/raphaelgruber/streamscribe/internal/metrics"
	"github.com/raphaelgruber/streamscribe/internal/models"
	"github.com/raphaelgruber/streamscribe/internal/source"
	"github.com/raphaelgruber/streamscribe/internal/store"
	"github.com/raphaelgruber/streamscribe/internal/transcribe"
)

// Pipeline stages, used in StageError.
const (
	StageClassify   = "classify"
	StageAcquire    = "acquire"
	StageTranscribe = "transcribe"
	StagePersist    = "persist"
)

// ErrShuttingDown is returned by Submit after Shutdown has begun.
var ErrShuttingDown = errors.New("orchestrator is shutting down")

// StageError tags a pipeline failure with the stage it happened in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return e.Stage + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error { return e.Err }

// Output selects how a finished transcript is persisted.
type Output string

const (
	OutputText   Output = "text"   // plain text file
	OutputJSON   Output = "json"   // CLI metadata document
	OutputResult Output = "result" // job service result document
)

// Request is one transcription request.
type Request struct {
	Ref          string
	Kind         models.SourceKind // empty: classify Ref
	Live         bool              // only with an empty Kind
	DurationHint int               // capture seconds, 0 for the default

	Output     Output
	OutputPath string // OutputText and OutputJSON

	// KeepArtifacts disables removal of downloaded and intermediate audio.
	KeepArtifacts bool
	// TransientFiles are removed with the job's artifacts, e.g. uploads.
	TransientFiles []string
}

// Result is the outcome of a pipeline run. On a persistence failure Text
// is still set.
type Result struct {
	JobID        string
	Text         string
	ArtifactPath string
	Segments     int
	Chunked      bool
}

// Transcriber is the transcription stage.
type Transcriber interface {
	Transcribe(ctx context.Context, req transcribe.Request) (*transcribe.Result, error)
}

// Orchestrator drives jobs through classify, acquire, transcribe and
// persist.
type Orchestrator struct {
	jobs     *JobManager
	acquirer acquire.Acquirer
	engine   Transcriber
	results  *store.ResultStore
	tempDir  string
	metrics  *metrics.Collector
	now      func() time.Time

	mu      sync.Mutex
	wg      sync.WaitGroup
	cancels map[string]context.CancelFunc
	closed  bool
}

// NewOrchestrator wires the pipeline. results may be nil when only the
// CLI outputs are used.
func NewOrchestrator(jobs *JobManager, acq acquire.Acquirer, engine Transcriber, results *store.ResultStore, tempDir string, m *metrics.Collector) *Orchestrator {
	return &Orchestrator{
		jobs:     jobs,
		acquirer: acq,
		engine:   engine,
		results:  results,
		tempDir:  tempDir,
		metrics:  m,
		now:      time.Now,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Jobs returns the registry.
func (o *Orchestrator) Jobs() *JobManager {
	return o.jobs
}

// RunSync classifies req, registers a job for it and runs the job on the
// caller's goroutine. A source that fails classification creates no job.
func (o *Orchestrator) RunSync(ctx context.Context, req Request) (*Job, *Result, error) {
	src, err := classify(req)
	if err != nil {
		return nil, nil, &StageError{Stage: StageClassify, Err: err}
	}
	req.Kind, req.Ref, req.Live = src.Kind, src.Ref, false

	job := o.jobs.CreateJob(ctx, req.Kind, req.Ref, hintPtr(req.DurationHint))
	res, err := o.Run(ctx, job, req)
	return job, res, err
}

// Submit validates req, registers a job and runs it in the background.
// Validation failures return an error wrapping source.ErrInvalidSource and
// create no job.
func (o *Orchestrator) Submit(req Request) (*Job, error) {
	if req.Kind == "" {
		return nil, fmt.Errorf("%w: source type is required", source.ErrInvalidSource)
	}
	if _, err := source.ClassifyKind(req.Kind, req.Ref); err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, ErrShuttingDown
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := o.jobs.CreateJob(ctx, req.Kind, req.Ref, hintPtr(req.DurationHint))
	o.cancels[job.ID] = cancel
	o.wg.Add(1)

	go func() {
		defer o.wg.Done()
		defer func() {
			o.mu.Lock()
			delete(o.cancels, job.ID)
			o.mu.Unlock()
			cancel()
		}()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("job goroutine panicked", "job_id", job.ID, "panic", r)
				_ = o.jobs.Fail(context.Background(), job, fmt.Errorf("internal panic: %v", r))
			}
		}()

		_, _ = o.Run(ctx, job, req)
	}()
	return job, nil
}

// Cancel stops a background job. It reports whether the job was running.
func (o *Orchestrator) Cancel(id string) bool {
	o.mu.Lock()
	cancel, ok := o.cancels[id]
	o.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Shutdown cancels background jobs and waits for them to finish or for ctx
// to expire.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	for _, cancel := range o.cancels {
		cancel()
	}
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives job through the pipeline and records its terminal state.
// Transient artifacts are removed on every path unless req.KeepArtifacts.
func (o *Orchestrator) Run(ctx context.Context, job *Job, req Request) (*Result, error) {
	if err := o.jobs.SetRunning(ctx, job); err != nil {
		return nil, err
	}

	workDir := filepath.Join(o.tempDir, job.ID)
	defer o.cleanup(job, workDir, req)

	res, err := o.pipeline(ctx, job, req, workDir)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		_ = o.jobs.Fail(ctx, job, err)
		if ctx.Err() != nil {
			// A cancelled job exposes no partial transcript.
			return nil, err
		}
		return res, err
	}

	if err := o.jobs.Complete(ctx, job, res.Text, res.ArtifactPath); err != nil {
		return res, err
	}
	return res, nil
}

func (o *Orchestrator) pipeline(ctx context.Context, job *Job, req Request, workDir string) (*Result, error) {
	log := slog.With("job_id", job.ID)

	src, err := classify(req)
	if err != nil {
		return nil, &StageError{Stage: StageClassify, Err: err}
	}

	var art models.AudioArtifact
	err = o.metrics.Time(metrics.OpAcquire, func() error {
		var err error
		art, err = o.acquirer.Acquire(ctx, acquire.Request{
			Kind:         src.Kind,
			Ref:          src.Ref,
			DurationHint: req.DurationHint,
			WorkDir:      workDir,
			OnLog: func(l media.CommandLog) {
				log.Debug("command finished", "command", l.String(), "exit_code", l.ExitCode)
				o.jobs.LogCommand(job, l.String())
			},
		})
		return err
	})
	if err != nil {
		return nil, &StageError{Stage: StageAcquire, Err: err}
	}
	log.Info("audio acquired", "path", art.Path, "format", art.Format)

	tr, err := o.engine.Transcribe(ctx, transcribe.Request{
		JobID:     job.ID,
		Kind:      src.Kind,
		Artifact:  art,
		Requested: requested(src.Kind, req.DurationHint),
		WorkDir:   workDir,
		OnProgress: func(done, total int) {
			o.jobs.UpdateProgress(ctx, job, done, total)
		},
	})
	if err != nil {
		return nil, &StageError{Stage: StageTranscribe, Err: err}
	}

	res := &Result{JobID: job.ID, Text: tr.Text, Segments: len(tr.Segments), Chunked: tr.Chunked}
	err = o.metrics.Time(metrics.OpPersist, func() error {
		var err error
		res.ArtifactPath, err = o.persist(job, src, req, tr.Text)
		return err
	})
	if err != nil {
		return res, &StageError{Stage: StagePersist, Err: err}
	}
	return res, nil
}

// persist writes text in the form req.Output selects and returns the
// artifact path.
func (o *Orchestrator) persist(job *Job, src source.Source, req Request, text string) (string, error) {
	var duration *int
	if src.Kind.IsCapture() {
		d := captureSeconds(req.DurationHint)
		duration = &d
	}

	switch req.Output {
	case OutputText:
		return req.OutputPath, store.WriteText(req.OutputPath, text)
	case OutputJSON:
		// The CLI metadata records a capture length for live YouTube only.
		var metaDuration *int
		if src.Kind == models.SourceYouTubeLive {
			metaDuration = duration
		}
		return req.OutputPath, store.WriteMetadata(req.OutputPath, models.Metadata{
			Source:                 src.Ref,
			Duration:               metaDuration,
			TranscriptionTimestamp: o.now(),
			Text:                   text,
		})
	case OutputResult, "":
		if o.results == nil {
			return "", fmt.Errorf("%w: no result store configured", store.ErrPersistenceFailed)
		}
		return o.results.Save(models.TranscriptDocument{
			JobID:          job.ID,
			Source:         src.Ref,
			Type:           src.Kind,
			CompletionTime: o.now(),
			Duration:       duration,
			Text:           text,
		})
	default:
		return "", fmt.Errorf("%w: unknown output %q", store.ErrPersistenceFailed, req.Output)
	}
}

func (o *Orchestrator) cleanup(job *Job, workDir string, req Request) {
	if req.KeepArtifacts {
		slog.Info("keeping job artifacts", "job_id", job.ID, "dir", workDir)
		return
	}
	if err := os.RemoveAll(workDir); err != nil {
		slog.Warn("failed to remove job workspace", "job_id", job.ID, "dir", workDir, "error", err)
	}
	for _, path := range req.TransientFiles {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to remove transient file", "job_id", job.ID, "path", path, "error", err)
		}
	}
}

func classify(req Request) (source.Source, error) {
	if req.Kind == "" {
		return source.Classify(req.Ref, req.Live)
	}
	return source.ClassifyKind(req.Kind, req.Ref)
}

func requested(kind models.SourceKind, hint int) time.Duration {
	if !kind.IsCapture() {
		return 0
	}
	return time.Duration(captureSeconds(hint)) * time.Second
}

func captureSeconds(hint int) int {
	if hint > 0 {
		return hint
	}
	return models.DefaultCaptureSeconds
}

func hintPtr(hint int) *int {
	if hint <= 0 {
		return nil
	}
	return &hint
}
