package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/bulkio/internal/catalog"
	"github.com/JonMunkholm/bulkio/internal/config"
	"github.com/JonMunkholm/bulkio/internal/core"
	"github.com/JonMunkholm/bulkio/internal/database"
	"github.com/JonMunkholm/bulkio/internal/filestore"
	"github.com/JonMunkholm/bulkio/internal/history"
	"github.com/JonMunkholm/bulkio/internal/logging"
	"github.com/JonMunkholm/bulkio/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	closeLog := logging.Setup(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	defer closeLog()

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"jobs_max_concurrent", cfg.Jobs.MaxConcurrent,
		"storage_dir", cfg.Storage.Dir,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(cfg.Database.URL); err != nil {
			slog.Error("failed to apply migrations", "error", err)
			os.Exit(1)
		}
	}

	files, err := filestore.Open(cfg.Storage.Dir, filestore.Options{
		CacheSize:           cfg.Storage.CacheSize,
		CacheTTL:            cfg.Storage.CacheTTL,
		CacheMaxObjectBytes: cfg.Storage.CacheMaxObjectBytes,
	})
	if err != nil {
		slog.Error("failed to open artifact store", "error", err)
		os.Exit(1)
	}

	registry := core.NewRegistry()
	if err := catalog.New(catalog.NewPostgresStore(pool)).Register(registry); err != nil {
		slog.Error("failed to register entities", "error", err)
		os.Exit(1)
	}
	slog.Info("entities registered", "names", registry.Names())

	service := core.NewService(registry, files, history.NewPostgresLedger(pool), core.OptionsFromConfig(cfg))
	server := web.NewServer(service, cfg, database.NewReadinessChecker(pool))

	// Create cancellable context for background jobs
	bgCtx, cancelBackground := context.WithCancel(context.Background())
	go filestore.NewSweeper(files, cfg.Storage.SweepInterval).Run(bgCtx)

	// Graceful shutdown
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelBackground()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Stop taking requests first so no job is submitted mid-drain.
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		limits := service.Limits()
		if limits.Active > 0 {
			slog.Info("waiting for jobs to complete", "active", limits.Active)
		}
		if err := service.Wait(shutdownCtx); err != nil {
			slog.Warn("jobs did not complete in time", "error", err)
		} else {
			slog.Info("all jobs completed")
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		cancelBackground()
		os.Exit(1)
	}
	<-stopped
}
