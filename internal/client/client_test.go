package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestSubmitURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/transcribe", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "https://youtu.be/abc", body["url"])
		assert.Equal(t, "youtube_live", body["type"])
		assert.Equal(t, float64(60), body["duration"])
		writeJSON(w, http.StatusOK, SubmitResponse{JobID: "abcd1234", Status: "processing"})
	}))
	defer srv.Close()

	resp, err := New(srv.URL).SubmitURL(context.Background(), "https://youtu.be/abc", "youtube_live", 60)
	require.NoError(t, err)
	assert.Equal(t, "abcd1234", resp.JobID)
	assert.Equal(t, "processing", resp.Status)
}

func TestAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/job/missing":
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		default:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "url is required"})
		}
	}))
	defer srv.Close()
	c := New(srv.URL)

	_, err := c.GetJob(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.SubmitURL(context.Background(), "", "youtube_video", 0)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "url is required", apiErr.Message)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestUpload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "talk.mp3")
	require.NoError(t, os.WriteFile(path, []byte("audio-bytes"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("audio_file")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "talk.mp3", header.Filename)
		assert.Equal(t, "audio-bytes", string(data))
		writeJSON(w, http.StatusOK, SubmitResponse{JobID: "up123456", Status: "processing"})
	}))
	defer srv.Close()

	resp, err := New(srv.URL).Upload(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "up123456", resp.JobID)
}

func TestListJobsAndWait(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/jobs":
			writeJSON(w, http.StatusOK, map[string]any{"jobs": []Job{{JobID: "a"}, {JobID: "b"}}})
		case "/api/job/a":
			status := "processing"
			if calls.Add(1) >= 3 {
				status = "completed"
			}
			writeJSON(w, http.StatusOK, Job{JobID: "a", Status: status})
		}
	}))
	defer srv.Close()
	c := New(srv.URL)

	jobs, err := c.ListJobs(context.Background())
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	job, err := c.WaitForJob(context.Background(), "a", 5*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, job.Done())
	assert.Equal(t, int32(3), calls.Load())
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="result_abc.json"`)
		_, _ = w.Write([]byte(`{"text":"hi"}`))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	name, err := New(srv.URL).Download(context.Background(), "abc", &buf)
	require.NoError(t, err)
	assert.Equal(t, "result_abc.json", name)
	assert.JSONEq(t, `{"text":"hi"}`, buf.String())
}

func TestWatchEvents(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/events", r.URL.Path)
		assert.Equal(t, "job1", r.URL.Query().Get("job_id"))
		assert.Equal(t, "0", r.URL.Query().Get("since"))
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for i, status := range []string{"pending", "running", "completed"} {
			_ = conn.WriteJSON(Event{Seq: int64(i + 1), JobID: "job1", Type: "status", Status: status})
		}
		// Wait for the client's close frame.
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	var seen []string
	err := New(srv.URL).WatchEvents(context.Background(), "job1", 0, func(e Event) bool {
		seen = append(seen, e.Status)
		return e.Status != "completed"
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"pending", "running", "completed"}, seen)
}
