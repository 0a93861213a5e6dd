// Package client provides an HTTP client for the streamscribe job service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrNotFound is returned when the server has no such job or result.
var ErrNotFound = errors.New("not found")

// Client talks to a streamscribe-server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client.
// If baseURL is empty, uses STREAMSCRIBE_SERVER_URL or http://localhost:5000.
// Timeout can be configured via STREAMSCRIBE_CLIENT_TIMEOUT (default 5m, uploads can be large).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("STREAMSCRIBE_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:5000"
	}

	timeout := 5 * time.Minute
	if t := os.Getenv("STREAMSCRIBE_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// =============================================================================
// TYPES (matching the server's JSON)
// =============================================================================

// SubmitResponse acknowledges a submitted job.
type SubmitResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Job is the server's view of a job.
type Job struct {
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

// Done reports whether the job reached a terminal status.
func (j Job) Done() bool {
	return j.Status == "completed" || j.Status == "failed"
}

// Result is a stored transcript document.
type Result struct {
	JobID          string    `json:"job_id"`
	Source         string    `json:"source"`
	Type           string    `json:"type"`
	CompletionTime time.Time `json:"completion_time"`
	Duration       *int      `json:"duration,omitempty"`
	Text           string    `json:"text"`
}

// Event is one job event from the server's stream.
type Event struct {
	Seq           int64     `json:"seq"`
	Timestamp     time.Time `json:"timestamp"`
	JobID         string    `json:"job_id"`
	Type          string    `json:"type"`
	Status        string    `json:"status,omitempty"`
	Message       string    `json:"message,omitempty"`
	SegmentsDone  int       `json:"segments_done,omitempty"`
	SegmentsTotal int       `json:"segments_total,omitempty"`
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error: %d %s", e.StatusCode, e.Message)
}

// Is makes 404 responses match ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// =============================================================================
// OPERATIONS
// =============================================================================

// SubmitURL starts a job for a URL source. kind is one of youtube_video,
// youtube_live or direct_stream; duration applies to captures.
func (c *Client) SubmitURL(ctx context.Context, sourceURL, kind string, duration int) (*SubmitResponse, error) {
	body, err := json.Marshal(map[string]any{
		"url":      sourceURL,
		"type":     kind,
		"duration": duration,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var resp SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/api/transcribe", "application/json", bytes.NewReader(body), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Upload sends a local audio file and starts a job for it.
func (c *Client) Upload(ctx context.Context, path string) (*SubmitResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("audio_file", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	var resp SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/api/upload", mw.FormDataContentType(), pr, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetJob fetches one job.
func (c *Client) GetJob(ctx context.Context, id string) (*Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodGet, "/api/job/"+url.PathEscape(id), "", nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs returns the most recent jobs.
func (c *Client) ListJobs(ctx context.Context) ([]Job, error) {
	var resp struct {
		Jobs []Job `json:"jobs"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/jobs", "", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// GetResult fetches the transcript document of a completed job.
func (c *Client) GetResult(ctx context.Context, id string) (*Result, error) {
	var res Result
	if err := c.do(ctx, http.MethodGet, "/api/result/"+url.PathEscape(id), "", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Download writes the result file of a completed job to w and returns the
// filename the server suggested.
func (c *Client) Download(ctx context.Context, id string, w io.Writer) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/download/"+url.PathEscape(id), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", readAPIError(resp)
	}

	name := "result_" + id + ".json"
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = params["filename"]
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return name, nil
}

// WaitForJob polls until the job is terminal or ctx ends.
func (c *Client) WaitForJob(ctx context.Context, id string, interval time.Duration) (*Job, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := c.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Done() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

// WatchEvents streams job events until onEvent returns false, the server
// closes the stream, or ctx ends. An empty jobID streams all jobs.
func (c *Client) WatchEvents(ctx context.Context, jobID string, since int64, onEvent func(Event) bool) error {
	u, err := url.Parse(c.baseURL + "/api/events")
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("since", strconv.FormatInt(since, 10))
	if jobID != "" {
		q.Set("job_id", jobID)
	}
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("websocket connect: %w", err)
	}

	var once sync.Once
	closeConn := func() { once.Do(func() { conn.Close() }) }
	defer closeConn()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()

	for {
		var e Event
		if err := conn.ReadJSON(&e); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read event: %w", err)
		}
		if !onEvent(e) {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return nil
		}
	}
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, result any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readAPIError(resp)
	}
	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func readAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var body struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}
