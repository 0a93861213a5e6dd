package tools

import (
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/streamscribe/internal/client"
)

// ErrorResult creates a tool error result with optional recovery hint.
// If hint is non-empty, formats as "{msg}. {hint}".
func ErrorResult(msg, hint string) *mcp.CallToolResult {
	text := msg
	if hint != "" {
		text = msg + ". " + hint
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
		IsError: true,
	}
}

// TextResult creates a success result with text content.
func TextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// formatJob renders one job as a single line.
func formatJob(j client.Job) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %-10s  %-13s  %.1fs", j.JobID, j.Status, j.Type, j.ElapsedSeconds)
	if j.SegmentsTotal > 0 {
		fmt.Fprintf(&b, "  segments %d/%d", j.SegmentsDone, j.SegmentsTotal)
	}
	if j.Source != "" {
		fmt.Fprintf(&b, "  %s", j.Source)
	}
	if j.Error != "" {
		fmt.Fprintf(&b, "  error: %s", j.Error)
	}
	return b.String()
}
