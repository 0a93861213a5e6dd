// Package tools provides MCP tool handlers and registration.
package tools

import (
	"context"
	"log/slog"
	"time"

	"github.com/raphaelgruber/streamscribe/internal/client"
)

// JobAPI is the part of the job service the tools use. Implemented by
// *client.Client.
type JobAPI interface {
	SubmitURL(ctx context.Context, sourceURL, kind string, duration int) (*client.SubmitResponse, error)
	GetJob(ctx context.Context, id string) (*client.Job, error)
	ListJobs(ctx context.Context) ([]client.Job, error)
	GetResult(ctx context.Context, id string) (*client.Result, error)
	WaitForJob(ctx context.Context, id string, interval time.Duration) (*client.Job, error)
}

// Dependencies holds shared services for tool handlers.
// Passed to handler factories via closure capture.
type Dependencies struct {
	Jobs   JobAPI
	Logger *slog.Logger

	// PollInterval is how often transcribe with wait checks the job.
	PollInterval time.Duration
}

func (d *Dependencies) pollInterval() time.Duration {
	if d.PollInterval > 0 {
		return d.PollInterval
	}
	return 2 * time.Second
}
