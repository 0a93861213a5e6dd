package service

import (
	"github.com/raphaelgruber/streamscribe/internal/acquire"
	"github.com/raphaelgruber/streamscribe/internal/config"
	"github.com/raphaelgruber/streamscribe/internal/media"
	"github.com/raphaelgruber/streamscribe/internal/metrics"
	"github.com/raphaelgruber/streamscribe/internal/speech"
	"github.com/raphaelgruber/streamscribe/internal/store"
	"github.com/raphaelgruber/streamscribe/internal/transcribe"
)

// NewPipeline builds an orchestrator backed by yt-dlp, ffmpeg and the
// hosted speech service described by cfg.
func NewPipeline(cfg config.Config, jobs *JobManager, results *store.ResultStore, m *metrics.Collector) *Orchestrator {
	acq := acquire.NewToolAcquirer(cfg.YtDLPath, cfg.FFmpegPath)
	svc := speech.NewGoogleClient(cfg.SpeechEndpoint, cfg.SpeechAPIKey, cfg.SpeechLanguage, cfg.SpeechRatePerSec)

	settings := speech.DefaultSettings()
	settings.EnergyThreshold = cfg.EnergyThreshold
	settings.PauseThreshold = cfg.PauseThreshold

	engine := transcribe.NewEngine(media.NewFFmpeg(cfg.FFmpegPath), svc, settings,
		transcribe.WithConcurrency(cfg.SegmentConcurrency),
		transcribe.WithMetrics(m),
	)
	return NewOrchestrator(jobs, acq, engine, results, cfg.TempDir, m)
}
