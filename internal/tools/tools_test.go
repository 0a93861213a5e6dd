package tools

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/streamscribe/internal/client"
)

// fakeJobs is an in-memory JobAPI.
type fakeJobs struct {
	submitted []string
	jobs      map[string]*client.Job
	results   map[string]*client.Result
	submitErr error
}

func (f *fakeJobs) SubmitURL(_ context.Context, url, kind string, _ int) (*client.SubmitResponse, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = append(f.submitted, kind+" "+url)
	return &client.SubmitResponse{JobID: "job00001", Status: "processing"}, nil
}

func (f *fakeJobs) GetJob(_ context.Context, id string) (*client.Job, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, &client.APIError{StatusCode: 404, Message: "job not found"}
	}
	return job, nil
}

func (f *fakeJobs) ListJobs(context.Context) ([]client.Job, error) {
	out := make([]client.Job, 0, len(f.jobs))
	for _, j := range f.jobs {
		out = append(out, *j)
	}
	return out, nil
}

func (f *fakeJobs) GetResult(_ context.Context, id string) (*client.Result, error) {
	res, ok := f.results[id]
	if !ok {
		return nil, &client.APIError{StatusCode: 404, Message: "result not found"}
	}
	return res, nil
}

func (f *fakeJobs) WaitForJob(ctx context.Context, id string, _ time.Duration) (*client.Job, error) {
	return f.GetJob(ctx, id)
}

func connect(t *testing.T, jobs JobAPI) (context.Context, *mcp.ClientSession) {
	t.Helper()
	deps := &Dependencies{
		Jobs:   jobs,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	srv := NewServer("0.0.1-test", deps)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	go func() {
		_ = srv.MCPServer().Run(ctx, serverTransport)
	}()

	c := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := c.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return ctx, session
}

func callText(t *testing.T, ctx context.Context, session *mcp.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	result, err := session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok, "content should be text")
	return text.Text, result.IsError
}

func TestToolsRegistered(t *testing.T) {
	ctx, session := connect(t, &fakeJobs{})

	result, err := session.ListTools(ctx, nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"transcribe", "job_status", "list_jobs"}, names)

	initResult := session.InitializeResult()
	require.NotNil(t, initResult)
	assert.Equal(t, "streamscribe", initResult.ServerInfo.Name)
}

func TestTranscribeTool(t *testing.T) {
	jobs := &fakeJobs{
		jobs: map[string]*client.Job{
			"job00001": {JobID: "job00001", Status: "completed", Type: "youtube_video"},
		},
		results: map[string]*client.Result{
			"job00001": {JobID: "job00001", Text: "hello world"},
		},
	}
	ctx, session := connect(t, jobs)

	t.Run("submit only", func(t *testing.T) {
		text, isErr := callText(t, ctx, session, "transcribe", map[string]any{"url": "https://youtu.be/abc"})
		assert.False(t, isErr)
		assert.Contains(t, text, "job00001")
		assert.Equal(t, "youtube_video https://youtu.be/abc", jobs.submitted[len(jobs.submitted)-1])
	})

	t.Run("wait returns transcript", func(t *testing.T) {
		text, isErr := callText(t, ctx, session, "transcribe", map[string]any{
			"url":  "https://example.com/live.mp3",
			"type": "direct_stream",
			"wait": true,
		})
		assert.False(t, isErr)
		assert.Contains(t, text, "hello world")
	})

	t.Run("missing url", func(t *testing.T) {
		text, isErr := callText(t, ctx, session, "transcribe", map[string]any{"url": " "})
		assert.True(t, isErr)
		assert.Contains(t, text, "url is required")
	})
}

func TestTranscribeToolServerRejects(t *testing.T) {
	jobs := &fakeJobs{submitErr: &client.APIError{StatusCode: 400, Message: "invalid type \"podcast\""}}
	ctx, session := connect(t, jobs)

	text, isErr := callText(t, ctx, session, "transcribe", map[string]any{"url": "https://youtu.be/abc", "type": "podcast"})
	assert.True(t, isErr)
	assert.Contains(t, text, "invalid type")
}

func TestJobStatusTool(t *testing.T) {
	jobs := &fakeJobs{jobs: map[string]*client.Job{
		"run": {JobID: "run", Status: "processing", Type: "youtube_live", SegmentsDone: 1, SegmentsTotal: 4},
		"bad": {JobID: "bad", Status: "failed", Error: "acquire: acquisition failed"},
	}}
	ctx, session := connect(t, jobs)

	text, isErr := callText(t, ctx, session, "job_status", map[string]any{"job_id": "run"})
	assert.False(t, isErr)
	assert.Contains(t, text, "segments 1/4")

	text, isErr = callText(t, ctx, session, "job_status", map[string]any{"job_id": "bad"})
	assert.True(t, isErr)
	assert.Contains(t, text, "acquisition failed")

	text, isErr = callText(t, ctx, session, "job_status", map[string]any{"job_id": "nope"})
	assert.True(t, isErr)
	assert.Contains(t, text, "not found")
}

func TestListJobsTool(t *testing.T) {
	ctx, session := connect(t, &fakeJobs{})
	text, isErr := callText(t, ctx, session, "list_jobs", map[string]any{})
	assert.False(t, isErr)
	assert.Equal(t, "No jobs yet.", text)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdefgh", 5))
	assert.Equal(t, "ab", truncate("abcdefgh", 2))
}
