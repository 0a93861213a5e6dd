// Package main provides the streamscribe MCP server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/raphaelgruber/streamscribe/internal/client"
	"github.com/raphaelgruber/streamscribe/internal/config"
	"github.com/raphaelgruber/streamscribe/internal/tools"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// stdout belongs to the protocol; SetupLogger writes to stderr and the log file.
	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer cleanup()

	logger.Info("streamscribe-mcp starting",
		"version", version,
		"server_url", cfg.ServerURL,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	srv := tools.NewServer(version, &tools.Dependencies{
		Jobs:   client.New(cfg.ServerURL),
		Logger: logger,
	})
	logger.Info("server ready, awaiting connections")

	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
