package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// maxArgLogLen is the maximum length for logged arguments before truncation.
	maxArgLogLen = 200

	// slowRequestThreshold is the duration above which requests are logged at WARN level.
	// Waiting transcribe calls are expected to exceed it.
	slowRequestThreshold = 5 * time.Second
)

// Server wraps the MCP server with its logger.
type Server struct {
	mcp    *mcp.Server
	logger *slog.Logger
}

// NewServer creates an MCP server with logging middleware and all tools
// registered.
func NewServer(version string, deps *Dependencies) *Server {
	impl := &mcp.Implementation{
		Name:    "streamscribe",
		Version: version,
	}
	s := &Server{
		mcp:    mcp.NewServer(impl, nil),
		logger: deps.Logger,
	}
	s.mcp.AddReceivingMiddleware(LoggingMiddleware(deps.Logger))
	RegisterAll(s.mcp, deps)
	return s
}

// Run serves on stdio until disconnect or context cancellation.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server", "transport", "stdio")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// LoggingMiddleware logs all requests with timing.
func LoggingMiddleware(logger *slog.Logger) mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			start := time.Now()
			result, err := next(ctx, method, req)
			duration := time.Since(start)

			attrs := []any{
				"method", method,
				"duration_ms", duration.Milliseconds(),
			}
			if params := req.GetParams(); params != nil {
				attrs = append(attrs, "params", truncate(fmt.Sprintf("%+v", params), maxArgLogLen))
			}

			switch {
			case err != nil:
				attrs = append(attrs, "error", err.Error())
				logger.Error("request failed", attrs...)
			case duration > slowRequestThreshold:
				logger.Warn("slow request", attrs...)
			default:
				logger.Debug("request completed", attrs...)
			}
			return result, err
		}
	}
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
