package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/NamanArora/pay-proxy/internal/config"
	"github.com/NamanArora/pay-proxy/internal/logging"
	"github.com/NamanArora/pay-proxy/internal/router"
	"github.com/NamanArora/pay-proxy/internal/storage"
	"github.com/NamanArora/pay-proxy/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the proxy server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config file: %w", err)
	}

	logger := logging.NewLogger(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}

	logWriter, err := setupLogWriter(cfg, logger)
	if err != nil {
		return err
	}

	r, err := router.New(cfg, router.Options{LogWriter: logWriter, Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r.Handler(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	if logWriter != nil {
		retention := storage.NewRetentionScheduler(logWriter.Backend(), storage.RetentionConfig{
			RetentionDays: cfg.Logging.RetentionDays,
			Schedule:      cfg.Logging.PruneSchedule,
		}, logger)
		if err := retention.Start(gctx); err != nil {
			return err
		}
	}

	g.Go(func() error {
		logger.Info("pay proxy starting",
			"addr", cfg.Server.Port,
			"proxy_enabled", cfg.Proxy.Enabled,
			"route_prefix", cfg.Proxy.RoutePrefix,
			"providers", len(r.Providers()),
			"call_logging", logWriter != nil,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("error during server shutdown", "error", err)
		}
		if logWriter != nil {
			if err := logWriter.Close(); err != nil {
				logger.Error("error closing log writer", "error", err)
			}
		}
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Error("error flushing traces", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server shutdown complete")
	return nil
}

// setupLogWriter starts call-log capture when enabled. With skip_on_error a
// storage failure disables capture instead of aborting start-up.
func setupLogWriter(cfg *config.Config, logger *slog.Logger) (*storage.AsyncLogWriter, error) {
	if !cfg.Logging.Enabled {
		return nil, nil
	}

	backend, err := setupStorage(cfg, logger)
	if err != nil {
		if cfg.Logging.SkipOnError {
			logger.Warn("failed to set up storage, call logging disabled", "error", err)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to set up storage: %w", err)
	}

	flushInterval, err := time.ParseDuration(cfg.Logging.FlushInterval)
	if err != nil {
		logger.Warn("invalid flush interval, using default 1s", "error", err)
		flushInterval = time.Second
	}

	logger.Info("call logging enabled", "storage", cfg.Storage.Type, "workers", cfg.Logging.Workers, "buffer", cfg.Logging.BufferSize)
	return storage.NewAsyncLogWriter(storage.AsyncLogWriterConfig{
		Backend:       backend,
		BufferSize:    cfg.Logging.BufferSize,
		BatchSize:     cfg.Logging.BatchSize,
		FlushInterval: flushInterval,
		Workers:       cfg.Logging.Workers,
		Enabled:       true,
		SkipOnError:   cfg.Logging.SkipOnError,
		Logger:        logger,
	}), nil
}

// setupStorage initializes the storage backend based on configuration
func setupStorage(cfg *config.Config, logger *slog.Logger) (storage.StorageBackend, error) {
	switch cfg.Storage.Type {
	case "postgres":
		pg := cfg.Storage.Postgres
		return storage.NewPostgreSQLStorage(storage.PostgreSQLConfig{
			ConnectionURL:   pg.ConnectionURL(),
			MaxConnections:  pg.MaxConnections,
			MaxIdleConns:    pg.MaxIdleConns,
			ConnMaxLifetime: time.Duration(pg.ConnMaxLifetime) * time.Minute,
			Logger:          logger,
		})
	case "sqlite":
		return storage.NewSQLiteStorage(cfg.Storage.SQLite.Path)
	case "memory", "":
		return storage.NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
}
