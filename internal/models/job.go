package models

import "time"

// JobStatus is the lifecycle state of a transcription job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// APIStatus is the status reported over HTTP: pending and running jobs are
// both "processing".
func (s JobStatus) APIStatus() string {
	if s.IsTerminal() {
		return string(s)
	}
	return "processing"
}

// JobRecord is the persisted form of a job.
type JobRecord struct {
	JobID          string     `json:"job_id"`
	SourceKind     SourceKind `json:"source_kind"`
	SourceRef      string     `json:"source_ref"`
	DurationHint   *int       `json:"duration_hint,omitempty"`
	Status         JobStatus  `json:"status"`
	ResultArtifact *string    `json:"result_artifact,omitempty"`
	Error          *string    `json:"error,omitempty"`
	SegmentsDone   int        `json:"segments_done"`
	SegmentsTotal  int        `json:"segments_total"`
	SubmittedAt    time.Time  `json:"submitted_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}
