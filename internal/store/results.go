// Package store persists transcription output: job result documents, CLI
// text and metadata files, and job records in SQLite.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/raphaelgruber/streamscribe/internal/models"
)

// ErrPersistenceFailed marks a failure to write output.
var ErrPersistenceFailed = errors.New("persistence failed")

// ErrResultNotFound is returned when no result document exists for a job.
var ErrResultNotFound = errors.New("result not found")

// ResultStore writes job result documents under a results directory.
type ResultStore struct {
	dir string
}

// NewResultStore creates the directory if needed.
func NewResultStore(dir string) (*ResultStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create results directory: %w", err)
	}
	return &ResultStore{dir: dir}, nil
}

// Path returns where the result for jobID is stored.
func (s *ResultStore) Path(jobID string) string {
	return filepath.Join(s.dir, "result_"+jobID+".json")
}

// Save writes doc and returns its path.
func (s *ResultStore) Save(doc models.TranscriptDocument) (string, error) {
	path := s.Path(doc.JobID)
	if err := writeJSON(path, doc); err != nil {
		return "", err
	}
	return path, nil
}

// Open returns the stored document for jobID.
func (s *ResultStore) Open(jobID string) (*models.TranscriptDocument, error) {
	data, err := os.ReadFile(s.Path(jobID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, err
	}
	var doc models.TranscriptDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode result %s: %w", jobID, err)
	}
	return &doc, nil
}

// WriteText writes the transcript as a plain text file.
func WriteText(path, text string) error {
	if err := ensureParent(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}
	return nil
}

// WriteMetadata writes the CLI metadata document.
func WriteMetadata(path string, meta models.Metadata) error {
	return writeJSON(path, meta)
}

// DefaultOutputName returns transcription_<timestamp>.txt or .json.
func DefaultOutputName(now time.Time, asJSON bool) string {
	ext := ".txt"
	if asJSON {
		ext = ".json"
	}
	return "transcription_" + now.Format("20060102_150405") + ext
}

// JSONPath forces a .json extension: .txt is replaced, anything else gets
// .json appended.
func JSONPath(path string) string {
	switch {
	case strings.HasSuffix(path, ".json"):
		return path
	case strings.HasSuffix(path, ".txt"):
		return strings.TrimSuffix(path, ".txt") + ".json"
	default:
		return path + ".json"
	}
}

func writeJSON(path string, v any) error {
	if err := ensureParent(path); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrPersistenceFailed, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}
	return nil
}

func ensureParent(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}
	return nil
}
