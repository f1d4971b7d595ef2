package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"form-intake/internal/config"
	"form-intake/internal/db"
	"form-intake/internal/ingest"
	"form-intake/internal/server"
	"form-intake/internal/storage"
	"form-intake/internal/submission"
)

func main() {
	// A local .env is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Error("failed to read .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := server.NewLogger(server.LogConfig{
		Env:     cfg.Env,
		Version: cfg.Build.Version,
		Format:  cfg.LogFormat,
		Level:   cfg.LogLevel,
	})
	log := logger.Logger
	slog.SetDefault(log)

	for _, w := range cfg.Warnings() {
		log.Warn("configuration warning", "warning", w)
	}

	ctx := context.Background()
	store, database, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open submission store", "store", cfg.Store, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	hooks := submission.NewHooks()
	observed := submission.Observe(store, hooks)
	files := storage.NewLazy(storage.NewFactory(cfg.Storage))
	metrics := server.NewMetrics()

	if cfg.Webhook.Enabled() {
		wh := server.NewWebhook(server.WebhookConfig{
			URL:     cfg.Webhook.URL,
			Secret:  cfg.Webhook.Secret,
			Retries: cfg.Webhook.Retries,
		}, log, metrics)
		hooks.Register(wh.Hook())
		defer wh.Close()
	}

	pipeline := ingest.NewPipeline(files, observed, ingest.Options{
		UploadConcurrency: cfg.UploadConcurrency,
		CleanupOnFailure:  cfg.CleanupOnFailure,
		OnUpload:          metrics.RecordFileUploaded,
		Logger:            log,
	})

	srv := server.New(server.Config{
		Addr:            cfg.Addr,
		Build:           server.BuildInfo{Version: cfg.Build.Version, Commit: cfg.Build.Commit},
		Logger:          logger,
		CORSOrigins:     cfg.CORSOrigins,
		MaxUploadBytes:  cfg.MaxUploadBytes,
		SubmitRate:      cfg.SubmitRate,
		SubmitWindow:    cfg.SubmitWindow,
		StreamKeepAlive: cfg.StreamKeepAlive,
		StreamBuffer:    cfg.StreamBuffer,
		Submitter:       pipeline,
		Store:           observed,
		Hooks:           hooks,
		Files:           files,
		DB:              database,
		Metrics:         metrics,
	})

	// Start the HTTP server in a background goroutine so signals can be
	// handled while it runs.
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting",
			"addr", cfg.Addr,
			"store", cfg.Store,
			"storage", cfg.Storage.Backend,
			"commit", cfg.Build.Commit)
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutting down", "signal", sig.String())
		// Open streams end immediately; uploads in flight get the rest.
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error("shutdown error", "error", err)
			os.Exit(1)
		}
		log.Info("shutdown complete")
	case err := <-errCh:
		if err != nil {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

// openStore returns the configured submission store. The Database is nil
// for the in-memory store so health checks skip it.
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (submission.Store, server.Database, func(), error) {
	switch cfg.Store {
	case config.StoreMemory:
		log.Warn("submissions are kept in memory and lost on restart")
		return submission.NewMemStore(), nil, func() {}, nil

	case config.StorePostgres:
		log.Info("running migrations")
		if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
			return nil, nil, nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info("migrations complete")

		pool, err := db.OpenPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		return submission.NewPgStore(pool), pool, pool.Close, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
