package speech

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/raphaelgruber/streamscribe/internal/audio"
	"github.com/raphaelgruber/streamscribe/internal/models"
)

const (
	frameWidth = 100 * time.Millisecond

	// Ambient calibration moves the threshold toward ratio times the
	// observed energy, damped per second of audio.
	ambientDamping = 0.15
	ambientRatio   = 1.5
)

// Settings configures a Recognizer.
type Settings struct {
	EnergyThreshold float64       // RMS on the 16-bit scale
	PauseThreshold  time.Duration // silence that ends a phrase
}

// DefaultSettings returns fixed thresholds with no per-file tuning.
func DefaultSettings() Settings {
	return Settings{
		EnergyThreshold: 300,
		PauseThreshold:  800 * time.Millisecond,
	}
}

// Recognizer is a single-use recognizer. Each segment gets its own so
// concurrent segments never share a mutable threshold.
type Recognizer struct {
	service   Service
	settings  Settings
	threshold float64
}

// NewRecognizer creates a recognizer backed by svc.
func NewRecognizer(svc Service, s Settings) *Recognizer {
	return &Recognizer{service: svc, settings: s, threshold: s.EnergyThreshold}
}

// EnergyThreshold returns the current voice energy threshold.
func (r *Recognizer) EnergyThreshold() float64 {
	return r.threshold
}

// AdjustForAmbientNoise calibrates the threshold against the leading sample
// of pcm.
func (r *Recognizer) AdjustForAmbientNoise(pcm *audio.PCM, sample time.Duration) {
	lead := pcm.Slice(0, sample)
	damping := math.Pow(ambientDamping, frameWidth.Seconds())
	for _, energy := range lead.FrameRMS(frameWidth) {
		target := energy * ambientRatio
		r.threshold = r.threshold*damping + target*(1-damping)
	}
}

// Recognize sends pcm to the service and returns the tagged outcome. Only
// an empty or unintelligible service result counts as no speech. Errors
// never escape.
func (r *Recognizer) Recognize(ctx context.Context, pcm *audio.PCM) models.Outcome {
	text, err := r.service.Recognize(ctx, pcm)
	switch {
	case errors.Is(err, ErrNoSpeech):
		return models.Outcome{Kind: models.OutcomeNoSpeech, Detail: err.Error()}
	case err != nil:
		return models.Outcome{Kind: models.OutcomeServiceError, Detail: err.Error()}
	case text == "":
		return models.Outcome{Kind: models.OutcomeNoSpeech, Detail: "empty transcript"}
	default:
		return models.Outcome{Kind: models.OutcomeSuccess, Text: text}
	}
}
