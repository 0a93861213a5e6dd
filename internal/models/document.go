package models

import "time"

// TranscriptDocument is the job service's persisted result.
type TranscriptDocument struct {
	JobID          string     `json:"job_id"`
	Source         string     `json:"source"`
	Type           SourceKind `json:"type"`
	CompletionTime time.Time  `json:"completion_time"`
	Duration       *int       `json:"duration,omitempty"` // capture kinds only
	Text           string     `json:"text"`
}

// Metadata is the JSON document written by the CLI with --json.
type Metadata struct {
	Source                 string    `json:"source"`
	Duration               *int      `json:"duration,omitempty"`
	TranscriptionTimestamp time.Time `json:"transcriptionTimestamp"`
	Text                   string    `json:"text"`
}
