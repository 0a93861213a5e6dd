// Package transcribe turns an acquired audio artifact into text, splitting
// long audio into independently recognized segments.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/raphaelgruber/streamscribe/internal/audio"
	"github.com/raphaelgruber/streamscribe/internal/chunking"
	"github.com/raphaelgruber/streamscribe/internal/media"
	"github.com/raphaelgruber/streamscribe/internal/metrics"
	"github.com/raphaelgruber/streamscribe/internal/models"
	"github.com/raphaelgruber/streamscribe/internal/speech"
)

// ErrNoTranscript is returned when recognition produced no text at all.
var ErrNoTranscript = errors.New("no transcript produced")

// calibrationSample is the leading audio used for ambient calibration.
const calibrationSample = time.Second

// Request describes one transcription.
type Request struct {
	JobID     string
	Kind      models.SourceKind
	Artifact  models.AudioArtifact
	Requested time.Duration // capture length asked for, capture kinds only
	WorkDir   string        // job-owned scratch directory

	// OnProgress is called after each segment concludes, possibly from
	// several goroutines at once.
	OnProgress func(done, total int)
}

// Result is a finished transcription.
type Result struct {
	Text     string
	Artifact models.AudioArtifact // decode-ready artifact with measured duration
	Segments []models.Segment
	Chunked  bool
}

// Engine transcribes audio artifacts.
type Engine struct {
	transcoder  media.Transcoder
	service     speech.Service
	settings    speech.Settings
	chunking    chunking.Config
	concurrency int
	metrics     *metrics.Collector
}

// Option customizes an Engine.
type Option func(*Engine)

// WithChunking overrides chunk thresholds and width.
func WithChunking(cfg chunking.Config) Option {
	return func(e *Engine) { e.chunking = cfg }
}

// WithConcurrency bounds how many segments are recognized at once.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithMetrics records stage timings and segment outcomes.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = c }
}

// NewEngine creates an engine.
func NewEngine(t media.Transcoder, svc speech.Service, s speech.Settings, opts ...Option) *Engine {
	e := &Engine{
		transcoder:  t,
		service:     svc,
		settings:    s,
		chunking:    chunking.DefaultConfig(),
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Transcribe normalizes, decodes, segments and recognizes req.Artifact.
// Transcoding failures and a missing transcript are returned as errors;
// individual segment failures are logged and skipped.
func (e *Engine) Transcribe(ctx context.Context, req Request) (*Result, error) {
	art, pcm, err := e.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	measured := pcm.Duration()
	art.Duration = &measured

	log := slog.With("job_id", req.JobID)
	chunked := chunking.ShouldChunk(req.Kind, req.Requested, measured, e.chunking)

	var segments []models.Segment
	if chunked {
		segments = chunking.Split(measured, e.chunking)
		log.Info("transcribing in segments", "segments", len(segments), "duration", measured)
		if err := e.recognizeSegments(ctx, req, pcm, segments); err != nil {
			return nil, err
		}
	} else {
		segments = chunking.Whole(measured)
		log.Info("transcribing whole file", "duration", measured)
		if err := e.recognizeWhole(ctx, req, pcm, segments); err != nil {
			return nil, err
		}
	}

	text := Aggregate(segments)
	if text == "" {
		return nil, fmt.Errorf("%w: all %d segments failed", ErrNoTranscript, len(segments))
	}
	return &Result{Text: text, Artifact: art, Segments: segments, Chunked: chunked}, nil
}

// prepare returns a decode-ready artifact and its samples. Raw input that
// fails to decode is transcoded like compressed input.
func (e *Engine) prepare(ctx context.Context, req Request) (models.AudioArtifact, *audio.PCM, error) {
	art := req.Artifact
	if art.Format == models.FormatRaw {
		pcm, err := audio.ReadFile(art.Path)
		if err == nil {
			return art, pcm, nil
		}
		if !errors.Is(err, audio.ErrNotWAV) {
			return art, nil, fmt.Errorf("read audio: %w", err)
		}
		slog.Debug("raw audio not decodable, transcoding", "job_id", req.JobID, "path", art.Path, "error", err)
	}

	if err := os.MkdirAll(req.WorkDir, 0o755); err != nil {
		return art, nil, fmt.Errorf("create work directory: %w", err)
	}
	out := filepath.Join(req.WorkDir, "normalized.wav")
	err := e.metrics.Time(metrics.OpTranscode, func() error {
		return e.transcoder.ToWAV(ctx, art.Path, out)
	})
	if err != nil {
		return art, nil, err
	}

	pcm, err := audio.ReadFile(out)
	if err != nil {
		return art, nil, fmt.Errorf("%w: decode transcoded audio: %w", media.ErrTranscodeFailed, err)
	}
	return models.AudioArtifact{Path: out, Format: models.FormatRaw}, pcm, nil
}

// recognizeWhole calibrates once and recognizes the full buffer. A failed
// outcome fails the job.
func (e *Engine) recognizeWhole(ctx context.Context, req Request, pcm *audio.PCM, segments []models.Segment) error {
	rec := speech.NewRecognizer(e.service, e.settings)
	rec.AdjustForAmbientNoise(pcm, calibrationSample)
	slog.Debug("calibrated recognizer", "job_id", req.JobID, "energy_threshold", rec.EnergyThreshold())

	out := e.recognize(ctx, rec, pcm)
	segments[0].Outcome = &out
	report(req.OnProgress, 1, 1)

	if err := ctx.Err(); err != nil {
		return err
	}
	if !out.Succeeded() {
		return fmt.Errorf("%w: %s: %s", ErrNoTranscript, out.Kind, out.Detail)
	}
	return nil
}

// recognizeSegments writes each segment to the work directory and
// recognizes them concurrently. Results land at their own index.
func (e *Engine) recognizeSegments(ctx context.Context, req Request, pcm *audio.PCM, segments []models.Segment) error {
	segDir := filepath.Join(req.WorkDir, "segments")
	if err := os.MkdirAll(segDir, 0o755); err != nil {
		return fmt.Errorf("create segment directory: %w", err)
	}

	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for i := range segments {
		seg := &segments[i]
		slice := pcm.Slice(seg.Start, seg.Length)
		seg.Path = filepath.Join(segDir, fmt.Sprintf("segment_%04d.wav", seg.Index))

		g.Go(func() error {
			out := e.recognizeSegment(gctx, req.JobID, seg, slice)
			seg.Outcome = &out

			mu.Lock()
			done++
			n := done
			mu.Unlock()
			report(req.OnProgress, n, len(segments))
			return nil
		})
	}
	_ = g.Wait()

	// Cancellation is the only condition that aborts the whole fan-out.
	return ctx.Err()
}

func (e *Engine) recognizeSegment(ctx context.Context, jobID string, seg *models.Segment, slice *audio.PCM) models.Outcome {
	log := slog.With("job_id", jobID, "segment", seg.Index)

	if err := slice.WriteFile(seg.Path); err != nil {
		log.Warn("could not write segment audio", "error", err)
		seg.Path = ""
	}

	out := e.recognize(ctx, speech.NewRecognizer(e.service, e.settings), slice)
	if out.Succeeded() {
		log.Debug("segment recognized", "chars", len(out.Text))
	} else {
		log.Warn("segment skipped", "outcome", out.Kind, "detail", out.Detail)
	}
	return out
}

func (e *Engine) recognize(ctx context.Context, rec *speech.Recognizer, pcm *audio.PCM) models.Outcome {
	start := time.Now()
	out := rec.Recognize(ctx, pcm)
	if out.Kind == models.OutcomeServiceError {
		e.metrics.RecordFailure(metrics.OpRecognize, time.Since(start))
	} else {
		e.metrics.RecordTiming(metrics.OpRecognize, time.Since(start))
	}
	e.metrics.RecordSegment(string(out.Kind))
	return out
}

// Aggregate joins successful segment texts with single spaces in index
// order.
func Aggregate(segments []models.Segment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg.Outcome == nil || !seg.Outcome.Succeeded() {
			continue
		}
		if t := strings.TrimSpace(seg.Outcome.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

func report(fn func(done, total int), done, total int) {
	if fn != nil {
		fn(done, total)
	}
}
