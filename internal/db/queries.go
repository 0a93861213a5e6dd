package db

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/raphaelgruber/streamscribe/internal/models"
)

// jobRow is the stored shape of a job record.
type jobRow struct {
	ID             surrealmodels.RecordID `json:"id"`
	SourceKind     string                 `json:"source_kind"`
	SourceRef      string                 `json:"source_ref"`
	DurationHint   *int                   `json:"duration_hint,omitempty"`
	Status         string                 `json:"status"`
	ResultArtifact *string                `json:"result_artifact,omitempty"`
	Error          *string                `json:"error,omitempty"`
	SegmentsDone   int                    `json:"segments_done"`
	SegmentsTotal  int                    `json:"segments_total"`
	SubmittedAt    time.Time              `json:"submitted_at"`
	StartedAt      *time.Time             `json:"started_at,omitempty"`
	CompletedAt    *time.Time             `json:"completed_at,omitempty"`
}

func (r jobRow) record() (models.JobRecord, error) {
	id, ok := r.ID.ID.(string)
	if !ok {
		return models.JobRecord{}, fmt.Errorf("unexpected job id type %T", r.ID.ID)
	}
	return models.JobRecord{
		JobID:          id,
		SourceKind:     models.SourceKind(r.SourceKind),
		SourceRef:      r.SourceRef,
		DurationHint:   r.DurationHint,
		Status:         models.JobStatus(r.Status),
		ResultArtifact: r.ResultArtifact,
		Error:          r.Error,
		SegmentsDone:   r.SegmentsDone,
		SegmentsTotal:  r.SegmentsTotal,
		SubmittedAt:    r.SubmittedAt,
		StartedAt:      r.StartedAt,
		CompletedAt:    r.CompletedAt,
	}, nil
}

// content builds the UPSERT body. Nil fields are left out so they are
// stored as NONE rather than NULL.
func content(rec models.JobRecord) map[string]any {
	c := map[string]any{
		"source_kind":    string(rec.SourceKind),
		"source_ref":     rec.SourceRef,
		"status":         string(rec.Status),
		"segments_done":  rec.SegmentsDone,
		"segments_total": rec.SegmentsTotal,
		"submitted_at":   rec.SubmittedAt.UTC(),
	}
	if rec.DurationHint != nil {
		c["duration_hint"] = *rec.DurationHint
	}
	if rec.ResultArtifact != nil {
		c["result_artifact"] = *rec.ResultArtifact
	}
	if rec.Error != nil {
		c["error"] = *rec.Error
	}
	if rec.StartedAt != nil {
		c["started_at"] = rec.StartedAt.UTC()
	}
	if rec.CompletedAt != nil {
		c["completed_at"] = rec.CompletedAt.UTC()
	}
	return c
}

// SaveJob upserts rec.
func (c *Client) SaveJob(ctx context.Context, rec models.JobRecord) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("transcription_job", $id) CONTENT $content
	`, map[string]any{"id": rec.JobID, "content": content(rec)})
	if err != nil {
		return fmt.Errorf("save job %s: %w", rec.JobID, wrapQueryError(err))
	}
	return nil
}

// GetJob returns the record for id, or nil if none exists.
func (c *Client) GetJob(ctx context.Context, id string) (*models.JobRecord, error) {
	rows, err := c.selectJobs(ctx, `SELECT * FROM type::record("transcription_job", $id)`, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// GetIncompleteJobs returns jobs left pending or running, oldest first.
func (c *Client) GetIncompleteJobs(ctx context.Context) ([]models.JobRecord, error) {
	return c.selectJobs(ctx, `
		SELECT * FROM transcription_job
		WHERE status IN ["pending", "running"]
		ORDER BY submitted_at ASC
	`, nil)
}

// ListJobs returns up to limit jobs, most recently submitted first.
func (c *Client) ListJobs(ctx context.Context, limit int) ([]models.JobRecord, error) {
	return c.selectJobs(ctx, `
		SELECT * FROM transcription_job ORDER BY submitted_at DESC LIMIT $limit
	`, map[string]any{"limit": limit})
}

func (c *Client) selectJobs(ctx context.Context, sql string, vars map[string]any) ([]models.JobRecord, error) {
	results, err := surrealdb.Query[[]jobRow](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}

	rows := (*results)[0].Result
	out := make([]models.JobRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			c.logger.Warn("skipping job with unexpected id", "error", err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
