// Package main provides the streamscribe HTTP job service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/streamscribe/internal/config"
	"github.com/raphaelgruber/streamscribe/internal/db"
	"github.com/raphaelgruber/streamscribe/internal/metrics"
	"github.com/raphaelgruber/streamscribe/internal/server"
	"github.com/raphaelgruber/streamscribe/internal/service"
	"github.com/raphaelgruber/streamscribe/internal/store"
)

func main() {
	wipeDB := flag.Bool("wipe", false, "wipe all job records on startup (testing only)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer closeLog()
	slog.SetDefault(logger)

	slog.Info("starting streamscribe-server", "port", cfg.ServerPort, "job_store", cfg.JobStore)

	for _, dir := range []string{cfg.TempDir, cfg.UploadDir, cfg.ResultDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("failed to create directory", "dir", dir, "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	jobStore, err := openJobStore(ctx, cfg, logger, *wipeDB)
	cancel()
	if err != nil {
		slog.Error("failed to open job store", "error", err)
		os.Exit(1)
	}
	if jobStore != nil {
		defer func() {
			if err := jobStore.Close(); err != nil {
				slog.Error("failed to close job store", "error", err)
			}
		}()
	}

	results, err := store.NewResultStore(cfg.ResultDir)
	if err != nil {
		slog.Error("failed to open result store", "error", err)
		os.Exit(1)
	}

	m := metrics.NewCollector()
	jobs := service.NewJobManager(jobStore, service.NewEventBus(1000), m)

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	recovered, err := jobs.RecoverInterrupted(ctx)
	cancel()
	if err != nil {
		slog.Warn("failed to recover interrupted jobs", "error", err)
	} else if recovered > 0 {
		slog.Info("marked interrupted jobs failed", "count", recovered)
	}

	orch := service.NewPipeline(cfg, jobs, results, m)
	srv := server.New(orch, results, m, server.Config{
		UploadDir:      cfg.UploadDir,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}, logger)

	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("job service available", "url", fmt.Sprintf("http://localhost:%s/", cfg.ServerPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	if err := orch.Shutdown(ctx); err != nil {
		slog.Error("jobs did not stop in time", "error", err)
	}

	slog.Info("server stopped")
}

// openJobStore returns the configured job store, or nil for memory only.
func openJobStore(ctx context.Context, cfg config.Config, logger *slog.Logger, wipe bool) (service.JobStore, error) {
	switch cfg.JobStore {
	case config.StoreSQLite:
		s, err := store.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil

	case config.StoreSurrealDB:
		client, err := db.NewClient(ctx, db.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to surrealdb: %w", err)
		}
		if err := client.InitSchema(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("initialize schema: %w", err)
		}
		if wipe || os.Getenv("STREAMSCRIBE_WIPE_DB") == "true" {
			if err := client.WipeJobs(ctx); err != nil {
				_ = client.Close()
				return nil, fmt.Errorf("wipe jobs: %w", err)
			}
			slog.Warn("job records wiped")
		}
		return client, nil

	default:
		return nil, nil
	}
}
