// Package models defines the data structures shared across the streamscribe
// pipeline: source kinds, job state, audio artifacts, and result documents.
package models

import "fmt"

// SourceKind identifies where job audio comes from.
type SourceKind string

const (
	SourceYouTubeVideo SourceKind = "youtube_video"
	SourceYouTubeLive  SourceKind = "youtube_live"
	SourceDirectStream SourceKind = "direct_stream"
	SourceAudioFile    SourceKind = "audio_file"
)

// DefaultCaptureSeconds bounds live and stream captures when no duration is given.
const DefaultCaptureSeconds = 120

// ParseSourceKind converts a wire name into a SourceKind.
func ParseSourceKind(s string) (SourceKind, error) {
	switch k := SourceKind(s); k {
	case SourceYouTubeVideo, SourceYouTubeLive, SourceDirectStream, SourceAudioFile:
		return k, nil
	default:
		return "", fmt.Errorf("unknown source type %q", s)
	}
}

// IsCapture reports whether the kind is a time-boxed capture.
func (k SourceKind) IsCapture() bool {
	return k == SourceYouTubeLive || k == SourceDirectStream
}

// IsYouTube reports whether the reference must be a YouTube URL.
func (k SourceKind) IsYouTube() bool {
	return k == SourceYouTubeVideo || k == SourceYouTubeLive
}

func (k SourceKind) String() string { return string(k) }
