package models

import "time"

// AudioFormat distinguishes encoded containers from decode-ready PCM.
type AudioFormat string

const (
	FormatCompressed AudioFormat = "compressed"
	FormatRaw        AudioFormat = "raw"
)

// AudioArtifact is a locally stored audio file owned by one job.
type AudioArtifact struct {
	Path     string
	Format   AudioFormat
	Duration *time.Duration // known once decoded
}

// OutcomeKind tags the result of recognizing one segment.
type OutcomeKind string

const (
	OutcomeSuccess      OutcomeKind = "success"
	OutcomeNoSpeech     OutcomeKind = "no_speech"
	OutcomeServiceError OutcomeKind = "service_error"
)

// Outcome is the per-segment recognition result.
type Outcome struct {
	Kind   OutcomeKind
	Text   string
	Detail string
}

// Succeeded reports whether the segment produced usable text.
func (o Outcome) Succeeded() bool {
	return o.Kind == OutcomeSuccess && o.Text != ""
}

// Segment is a fixed-width time slice of a job's audio.
type Segment struct {
	Index   int
	Start   time.Duration
	Length  time.Duration
	Path    string
	Outcome *Outcome // nil until recognition concludes
}

// End returns the exclusive end offset of the segment.
func (s Segment) End() time.Duration {
	return s.Start + s.Length
}
