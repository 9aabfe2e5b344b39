// Package main provides the entry point for the bulk-operations HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sigagent/docrouter-go/internal/bulk"
	"github.com/sigagent/docrouter-go/internal/config"
	"github.com/sigagent/docrouter-go/internal/database"
	"github.com/sigagent/docrouter-go/internal/docrouter"
	"github.com/sigagent/docrouter-go/internal/events"
	"github.com/sigagent/docrouter-go/internal/observability"
	httpserver "github.com/sigagent/docrouter-go/internal/server/http"
	"github.com/sigagent/docrouter-go/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("docrouter bulk service starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL.
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	// Run migrations if configured.
	if cfg.Database.MigrationAutoRun {
		migrator, err := database.NewMigrator(db, cfg.Database.MigrationPath, logger)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		defer func() {
			if closeErr := migrator.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close migrator")
			}
		}()

		if err := migrator.Up(); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	// Set up Prometheus metrics.
	var metrics *observability.Metrics
	var gatherer prometheus.Gatherer
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics("docrouter")
		gatherer = prometheus.DefaultGatherer
	}

	// Create the DocRouter backend client.
	apiClient, err := docrouter.New(docrouter.Config{
		BaseURL:    cfg.DocRouter.BaseURL,
		Token:      cfg.DocRouter.Token,
		Timeout:    cfg.DocRouter.Timeout,
		RateLimit:  cfg.DocRouter.RateLimit,
		BurstSize:  cfg.DocRouter.BurstSize,
		MaxRetries: cfg.DocRouter.MaxRetries,
		RetryDelay: cfg.DocRouter.RetryDelay,
		Metrics:    metrics,
	})
	if err != nil {
		return fmt.Errorf("create docrouter client: %w", err)
	}

	// Create the run store.
	runStore := store.NewPgRunStore(db.Pool())

	// Create the Kafka event publisher if enabled.
	var publisher bulk.EventPublisher
	var publisherCloser interface{ Close() error }
	if cfg.Kafka.Enabled {
		kafkaPublisher := events.NewPublisher(events.Config{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			BatchSize:    cfg.Kafka.BatchSize,
			BatchTimeout: cfg.Kafka.BatchTimeout,
		}, logger)
		publisher = kafkaPublisher
		publisherCloser = kafkaPublisher
		logger.Info().
			Strs("brokers", cfg.Kafka.Brokers).
			Str("topic", cfg.Kafka.Topic).
			Msg("kafka event publisher enabled")
	}

	// Create the bulk-run service.
	service := bulk.NewService(apiClient, bulk.ServiceConfig{
		PageSize:           cfg.Bulk.PageSize,
		ChunkSize:          cfg.Bulk.ChunkSize,
		DownloadChunkDelay: cfg.Bulk.DownloadChunkDelay,
		RunChunkDelay:      cfg.Bulk.RunChunkDelay,
		DownloadDir:        cfg.Bulk.DownloadDir,
	}, runStore, publisher, logger, metrics)

	// Create the HTTP REST API server.
	httpCfg := httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MetricsPath:     cfg.Metrics.Path,
	}
	httpSrv := httpserver.NewServer(httpCfg, service, db, gatherer, logger)

	// Channel to collect server errors.
	errCh := make(chan error, 1)

	// Start HTTP REST API server in background.
	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	logger.Info().
		Str("http_address", httpCfg.Address).
		Msg("docrouter bulk service is ready")

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	// Graceful shutdown.
	logger.Info().Msg("shutting down docrouter bulk service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new requests first, then wait for in-flight runs.
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	if err := service.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("in-flight runs did not finish before the deadline")
	}

	if publisherCloser != nil {
		if err := publisherCloser.Close(); err != nil {
			logger.Error().Err(err).Msg("event publisher close error")
		}
	}

	logger.Info().Msg("docrouter bulk service stopped")
	return nil
}
