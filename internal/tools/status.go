package tools

import (
	"context"
	"errors"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/streamscribe/internal/client"
)

// JobStatusInput defines the input schema for the job_status tool.
type JobStatusInput struct {
	JobID string `json:"job_id" jsonschema:"The job id returned by transcribe"`
}

// NewJobStatusHandler reports one job.
func NewJobStatusHandler(deps *Dependencies) mcp.ToolHandlerFor[JobStatusInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input JobStatusInput) (*mcp.CallToolResult, any, error) {
		id := strings.TrimSpace(input.JobID)
		if id == "" {
			return ErrorResult("job_id is required", "Use list_jobs to find job ids"), nil, nil
		}

		job, err := deps.Jobs.GetJob(ctx, id)
		if errors.Is(err, client.ErrNotFound) {
			return ErrorResult("job "+id+" not found", "Use list_jobs to find job ids"), nil, nil
		}
		if err != nil {
			return ErrorResult("failed to fetch job: "+err.Error(), ""), nil, nil
		}
		return jobReport(ctx, deps, job), nil, nil
	}
}

// ListJobsInput defines the input schema for the list_jobs tool.
type ListJobsInput struct{}

// NewListJobsHandler lists recent jobs, newest first.
func NewListJobsHandler(deps *Dependencies) mcp.ToolHandlerFor[ListJobsInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListJobsInput) (*mcp.CallToolResult, any, error) {
		jobs, err := deps.Jobs.ListJobs(ctx)
		if err != nil {
			return ErrorResult("failed to list jobs: "+err.Error(), "Is streamscribe-server running?"), nil, nil
		}
		if len(jobs) == 0 {
			return TextResult("No jobs yet."), nil, nil
		}

		lines := make([]string, 0, len(jobs))
		for _, j := range jobs {
			lines = append(lines, formatJob(j))
		}
		return TextResult(strings.Join(lines, "\n")), nil, nil
	}
}
