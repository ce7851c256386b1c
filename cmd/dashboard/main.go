// Package main provides the entry point for the read-only stats dashboard API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/helixir/paper-etl/internal/config"
	"github.com/helixir/paper-etl/internal/database"
	"github.com/helixir/paper-etl/internal/observability"
	"github.com/helixir/paper-etl/internal/repository"
	httpserver "github.com/helixir/paper-etl/internal/server/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "dashboard").Logger()
	logger.Info().Msg("paper-etl dashboard starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	if cfg.Database.MigrationAutoRun {
		if err := database.NewSchemaManager(db, cfg.Database.MigrationPath, logger).EnsureSchema(ctx); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	statsRepo := repository.NewPgStatsRepository(db, cfg.Database.Table)
	paperRepo := repository.NewPgPaperRepository(db, cfg.Database.Table)

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	srv := httpserver.NewServer(httpserver.Config{
		Address:         cfg.Dashboard.Address(),
		ReadTimeout:     cfg.Dashboard.ReadTimeout,
		WriteTimeout:    cfg.Dashboard.WriteTimeout,
		IdleTimeout:     2 * cfg.Dashboard.ReadTimeout,
		ShutdownTimeout: cfg.Dashboard.ShutdownTimeout,
		MetricsPath:     cfg.Metrics.Path,
	}, statsRepo, paperRepo, db, metricsHandler, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server failed")
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Dashboard.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}
	logger.Info().Msg("dashboard stopped")
	return nil
}
