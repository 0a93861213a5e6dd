package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/streamscribe/internal/client"
)

// maxWait caps how long transcribe with wait blocks.
const maxWait = 15 * time.Minute

// TranscribeInput defines the input schema for the transcribe tool.
type TranscribeInput struct {
	URL            string `json:"url" jsonschema:"YouTube or direct audio stream URL"`
	Type           string `json:"type,omitempty" jsonschema:"youtube_video (default), youtube_live or direct_stream"`
	Duration       int    `json:"duration,omitempty" jsonschema:"Seconds to capture for live and direct streams (default 120)"`
	Wait           bool   `json:"wait,omitempty" jsonschema:"Block until the job finishes and return the transcript"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" jsonschema:"Maximum seconds to wait (default 900)"`
}

// NewTranscribeHandler submits a URL job and optionally waits for it.
func NewTranscribeHandler(deps *Dependencies) mcp.ToolHandlerFor[TranscribeInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input TranscribeInput) (*mcp.CallToolResult, any, error) {
		url := strings.TrimSpace(input.URL)
		if url == "" {
			return ErrorResult("url is required", "Pass a YouTube or http(s) stream URL"), nil, nil
		}
		kind := input.Type
		if kind == "" {
			kind = "youtube_video"
		}

		sub, err := deps.Jobs.SubmitURL(ctx, url, kind, input.Duration)
		if err != nil {
			var apiErr *client.APIError
			if errors.As(err, &apiErr) {
				return ErrorResult(apiErr.Message, "Check the url and type"), nil, nil
			}
			return ErrorResult("failed to submit job: "+err.Error(), "Is streamscribe-server running?"), nil, nil
		}
		deps.Logger.Info("transcription submitted", "job_id", sub.JobID, "type", kind)

		if !input.Wait {
			return TextResult(fmt.Sprintf("Job %s submitted (%s). Use job_status to follow it.", sub.JobID, sub.Status)), nil, nil
		}

		timeout := maxWait
		if input.TimeoutSeconds > 0 {
			timeout = time.Duration(input.TimeoutSeconds) * time.Second
		}
		waitCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		job, err := deps.Jobs.WaitForJob(waitCtx, sub.JobID, deps.pollInterval())
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return TextResult(fmt.Sprintf("Job %s still running after %s. Use job_status to follow it.", sub.JobID, timeout)), nil, nil
			}
			return ErrorResult("failed to wait for job: "+err.Error(), ""), nil, nil
		}
		return jobReport(ctx, deps, job), nil, nil
	}
}

// jobReport formats a job and, when completed, its transcript.
func jobReport(ctx context.Context, deps *Dependencies, job *client.Job) *mcp.CallToolResult {
	if job.Status == "failed" {
		return ErrorResult(fmt.Sprintf("Job %s failed: %s", job.JobID, job.Error), "")
	}
	if job.Status != "completed" {
		return TextResult(formatJob(*job))
	}

	res, err := deps.Jobs.GetResult(ctx, job.JobID)
	if err != nil {
		return ErrorResult("job completed but the transcript could not be read: "+err.Error(), "")
	}
	return TextResult(formatJob(*job) + "\n\n" + res.Text)
}
