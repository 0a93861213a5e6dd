package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/raphaelgruber/streamscribe/internal/models"
)

const jobsSchema = `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		source_kind TEXT NOT NULL,
		source_ref TEXT NOT NULL,
		duration_hint INTEGER,
		status TEXT NOT NULL,
		result_artifact TEXT,
		error TEXT,
		segments_done INTEGER NOT NULL DEFAULT 0,
		segments_total INTEGER NOT NULL DEFAULT 0,
		submitted_at INTEGER NOT NULL,
		started_at INTEGER,
		completed_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS jobs_status ON jobs(status);
`

// SQLiteJobStore persists job records in an embedded SQLite database.
type SQLiteJobStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteJobStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, jobsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteJobStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteJobStore) Close() error {
	return s.db.Close()
}

// SaveJob inserts or replaces rec.
func (s *SQLiteJobStore) SaveJob(ctx context.Context, rec models.JobRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, source_kind, source_ref, duration_hint, status, result_artifact, error,
			segments_done, segments_total, submitted_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			result_artifact = excluded.result_artifact,
			error = excluded.error,
			segments_done = excluded.segments_done,
			segments_total = excluded.segments_total,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at
	`,
		rec.JobID, string(rec.SourceKind), rec.SourceRef, nullInt(rec.DurationHint), string(rec.Status),
		nullString(rec.ResultArtifact), nullString(rec.Error), rec.SegmentsDone, rec.SegmentsTotal,
		rec.SubmittedAt.UnixMilli(), nullTime(rec.StartedAt), nullTime(rec.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("save job %s: %w", rec.JobID, err)
	}
	return nil
}

// GetJob returns the record for id, or nil if none exists.
func (s *SQLiteJobStore) GetJob(ctx context.Context, id string) (*models.JobRecord, error) {
	rows, err := s.query(ctx, "WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// GetIncompleteJobs returns records not in a terminal state.
func (s *SQLiteJobStore) GetIncompleteJobs(ctx context.Context) ([]models.JobRecord, error) {
	return s.query(ctx, "WHERE status IN (?, ?) ORDER BY submitted_at ASC",
		string(models.JobStatusPending), string(models.JobStatusRunning))
}

// ListJobs returns up to limit records, newest first.
func (s *SQLiteJobStore) ListJobs(ctx context.Context, limit int) ([]models.JobRecord, error) {
	return s.query(ctx, "ORDER BY COALESCE(started_at, submitted_at) DESC LIMIT ?", limit)
}

func (s *SQLiteJobStore) query(ctx context.Context, clause string, args ...any) ([]models.JobRecord, error) {
	q := strings.TrimSpace(`
		SELECT id, source_kind, source_ref, duration_hint, status, result_artifact, error,
			segments_done, segments_total, submitted_at, started_at, completed_at
		FROM jobs ` + clause)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var out []models.JobRecord
	for rows.Next() {
		var (
			rec                  models.JobRecord
			kind, status         string
			hint                 sql.NullInt64
			artifact, errText    sql.NullString
			submitted            int64
			started, completedAt sql.NullInt64
		)
		if err := rows.Scan(&rec.JobID, &kind, &rec.SourceRef, &hint, &status, &artifact, &errText,
			&rec.SegmentsDone, &rec.SegmentsTotal, &submitted, &started, &completedAt); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		rec.SourceKind = models.SourceKind(kind)
		rec.Status = models.JobStatus(status)
		rec.SubmittedAt = time.UnixMilli(submitted)
		if hint.Valid {
			v := int(hint.Int64)
			rec.DurationHint = &v
		}
		if artifact.Valid {
			rec.ResultArtifact = &artifact.String
		}
		if errText.Valid {
			rec.Error = &errText.String
		}
		rec.StartedAt = timeFromMillis(started)
		rec.CompletedAt = timeFromMillis(completedAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func timeFromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}
