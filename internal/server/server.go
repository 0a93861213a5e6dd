// Package server exposes the job service over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/streamscribe/internal/metrics"
	"github.com/raphaelgruber/streamscribe/internal/models"
	"github.com/raphaelgruber/streamscribe/internal/service"
	"github.com/raphaelgruber/streamscribe/internal/source"
	"github.com/raphaelgruber/streamscribe/internal/store"
)

// listLimit is how many jobs GET /api/jobs returns.
const listLimit = 10

// multipartOverhead is allowed on top of the upload cap for multipart
// boundaries and headers.
const multipartOverhead = 1 << 20

// uploadField is the multipart form field carrying the audio file.
const uploadField = "audio_file"

// Config holds the HTTP layer settings.
type Config struct {
	UploadDir      string
	MaxUploadBytes int64
}

// Server serves the job service API.
type Server struct {
	orch     *service.Orchestrator
	results  *store.ResultStore
	metrics  *metrics.Collector
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader
	now      func() time.Time
}

// New creates the HTTP server.
func New(orch *service.Orchestrator, results *store.ResultStore, m *metrics.Collector, cfg Config, logger *slog.Logger) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 50 * 1024 * 1024
	}
	return &Server{
		orch:    orch,
		results: results,
		metrics: m,
		cfg:     cfg,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		now: time.Now,
	}
}

// Handler returns the routed handler wrapped in recovery and request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/transcribe", s.handleTranscribe)
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("GET /api/job/{id}", s.handleJob)
	mux.HandleFunc("GET /api/jobs", s.handleJobs)
	mux.HandleFunc("GET /api/result/{id}", s.handleResult)
	mux.HandleFunc("GET /api/download/{id}", s.handleDownload)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	return Recover(s.logger, LoggingMiddleware(s.logger, mux))
}

// TranscribeRequest is the body of POST /api/transcribe.
type TranscribeRequest struct {
	URL      string `json:"url"`
	Type     string `json:"type"`
	Duration int    `json:"duration,omitempty"`
}

// SubmitResponse acknowledges a submitted job.
type SubmitResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// JobResponse is the public view of a job.
type JobResponse struct {
	JobID          string  `json:"job_id"`
	Type           string  `json:"type"`
	Source         string  `json:"source"`
	Status         string  `json:"status"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	ResultFile     string  `json:"result_file,omitempty"`
	Error          string  `json:"error,omitempty"`
	SegmentsDone   int     `json:"segments_done"`
	SegmentsTotal  int     `json:"segments_total"`
}

// JobsResponse wraps the job listing.
type JobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	var req TranscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if req.Type == "" {
		req.Type = string(models.SourceYouTubeVideo)
	}
	kind, err := models.ParseSourceKind(req.Type)
	if err != nil || kind == models.SourceAudioFile {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid type %q", req.Type))
		return
	}
	if req.Duration < 0 {
		writeError(w, http.StatusBadRequest, "duration must be positive")
		return
	}

	job, err := s.orch.Submit(service.Request{
		Ref:          req.URL,
		Kind:         kind,
		DurationHint: req.Duration,
		Output:       service.OutputResult,
	})
	if err != nil {
		s.submitError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SubmitResponse{
		JobID:   job.ID,
		Status:  models.JobStatusPending.APIStatus(),
		Message: fmt.Sprintf("Transcription started for %s", kind),
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+multipartOverhead)

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, s.tooLargeMessage())
			return
		}
		writeError(w, http.StatusBadRequest, "no audio_file part in request")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if name == "" || name == "." || name == string(filepath.Separator) {
		writeError(w, http.StatusBadRequest, "no file selected")
		return
	}
	if header.Size > s.cfg.MaxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, s.tooLargeMessage())
		return
	}

	path, err := s.saveUpload(file, name)
	if err != nil {
		s.logger.Error("failed to save upload", "file", name, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save upload")
		return
	}

	job, err := s.orch.Submit(service.Request{
		Ref:            path,
		Kind:           models.SourceAudioFile,
		Output:         service.OutputResult,
		TransientFiles: []string{path},
	})
	if err != nil {
		_ = os.Remove(path)
		s.submitError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SubmitResponse{
		JobID:   job.ID,
		Status:  models.JobStatusPending.APIStatus(),
		Message: fmt.Sprintf("Transcription started for %s", name),
	})
}

func (s *Server) saveUpload(src io.Reader, name string) (string, error) {
	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload directory: %w", err)
	}
	path := filepath.Join(s.cfg.UploadDir, uuid.New().String()[:8]+"_"+name)
	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", err
	}
	return path, dst.Close()
}

func (s *Server) tooLargeMessage() string {
	return fmt.Sprintf("file exceeds the %dMB upload limit", s.cfg.MaxUploadBytes/(1024*1024))
}

func (s *Server) submitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, source.ErrInvalidSource):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrShuttingDown):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("submit failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start job")
	}
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	job := s.orch.Jobs().GetJob(r.PathValue("id"))
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, s.jobResponse(job.Snapshot()))
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	infos := s.orch.Jobs().ListJobs(listLimit)
	resp := JobsResponse{Jobs: make([]JobResponse, 0, len(infos))}
	for _, info := range infos {
		resp.Jobs = append(resp.Jobs, s.jobResponse(info))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.completedJob(w, id) == nil {
		return
	}
	doc, err := s.results.Open(id)
	if errors.Is(err, store.ErrResultNotFound) {
		writeError(w, http.StatusNotFound, "result file not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to read result", "job_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read result")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	info := s.completedJob(w, r.PathValue("id"))
	if info == nil {
		return
	}
	if info.ResultArtifact == "" {
		writeError(w, http.StatusNotFound, "no result file for job")
		return
	}
	if _, err := os.Stat(info.ResultArtifact); err != nil {
		writeError(w, http.StatusNotFound, "result file not found")
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(info.ResultArtifact)))
	w.Header().Set("Content-Type", "application/json")
	http.ServeFile(w, r, info.ResultArtifact)
}

// completedJob writes a 404 and returns nil unless id names a completed job.
func (s *Server) completedJob(w http.ResponseWriter, id string) *service.JobInfo {
	job := s.orch.Jobs().GetJob(id)
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return nil
	}
	info := job.Snapshot()
	if info.Status != models.JobStatusCompleted {
		writeError(w, http.StatusNotFound, "job not completed")
		return nil
	}
	return &info
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) jobResponse(info service.JobInfo) JobResponse {
	elapsed := info.Elapsed(s.now()).Seconds()
	return JobResponse{
		JobID:          info.ID,
		Type:           string(info.Kind),
		Source:         info.SourceRef,
		Status:         info.Status.APIStatus(),
		ElapsedSeconds: math.Round(elapsed*100) / 100,
		ResultFile:     info.ResultArtifact,
		Error:          info.Error,
		SegmentsDone:   info.SegmentsDone,
		SegmentsTotal:  info.SegmentsTotal,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
