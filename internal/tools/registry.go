package tools

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterAll registers all tools with the MCP server.
// This is called from main after server creation but before Run().
func RegisterAll(server *mcp.Server, deps *Dependencies) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "transcribe",
		Description: "Start transcribing a YouTube video, YouTube live stream or direct audio stream URL. Set wait to block until the transcript is ready",
	}, NewTranscribeHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "job_status",
		Description: "Show a transcription job's status, and its transcript once completed",
	}, NewJobStatusHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_jobs",
		Description: "List the most recent transcription jobs",
	}, NewListJobsHandler(deps))
}
