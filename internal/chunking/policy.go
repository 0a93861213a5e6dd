// Package chunking decides whether audio is split for recognition and
// computes the fixed-width segment boundaries.
package chunking

import (
	"time"

	"github.com/raphaelgruber/streamscribe/internal/models"
)

// Config holds the chunking thresholds.
type Config struct {
	CaptureThreshold time.Duration // live and stream captures
	VideoThreshold   time.Duration // downloaded videos
	Width            time.Duration
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		CaptureThreshold: 60 * time.Second,
		VideoThreshold:   300 * time.Second,
		Width:            30 * time.Second,
	}
}

// ShouldChunk reports whether audio of the given kind is split. Captures are
// judged by the requested duration, videos by the measured one. Local files
// are always split.
func ShouldChunk(kind models.SourceKind, requested, measured time.Duration, cfg Config) bool {
	switch {
	case kind.IsCapture():
		return requested > cfg.CaptureThreshold
	case kind == models.SourceYouTubeVideo:
		return measured > cfg.VideoThreshold
	case kind == models.SourceAudioFile:
		return true
	default:
		return false
	}
}

// Split returns consecutive segments of cfg.Width covering total. The last
// segment may be shorter.
func Split(total time.Duration, cfg Config) []models.Segment {
	if total <= 0 || cfg.Width <= 0 {
		return nil
	}
	n := int((total + cfg.Width - 1) / cfg.Width)
	segments := make([]models.Segment, 0, n)
	for i := range n {
		start := time.Duration(i) * cfg.Width
		segments = append(segments, models.Segment{
			Index:  i,
			Start:  start,
			Length: min(cfg.Width, total-start),
		})
	}
	return segments
}

// Whole returns the single segment covering total.
func Whole(total time.Duration) []models.Segment {
	return []models.Segment{{Index: 0, Length: total}}
}
