// Package app wires configuration, storage, dispatch and the HTTP API
// into one runnable service.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fernmail/fern/internal/config"
	"github.com/fernmail/fern/internal/db"
	"github.com/fernmail/fern/internal/dispatch"
	"github.com/fernmail/fern/internal/httpapi"
	"github.com/fernmail/fern/internal/mailer"
	"github.com/fernmail/fern/internal/metrics"
	"github.com/fernmail/fern/internal/repository"
	"github.com/fernmail/fern/internal/spool"
)

// App is the main application
type App struct {
	config     *config.Config
	database   *db.DB
	spool      *spool.BoltStorage
	apiServer  *httpapi.Server
	dispatcher *dispatch.Dispatcher
	processor  *dispatch.Processor
	logger     *slog.Logger
}

// New creates a new application
func New(cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg.Logging)

	m := metrics.New()
	metrics.SetGlobal(m)

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	storage, err := spool.NewBoltStorage(cfg.Spool.Path)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to open spool: %w", err)
	}

	apiServer := httpapi.NewServer(httpapi.Config{
		ListenAddr: cfg.Server.ListenAddr,
		SessionTTL: cfg.Wizard.SessionTTL,
	}, database.DB, storage, m, logger.With("component", "api"))

	a := &App{
		config:    cfg,
		database:  database,
		spool:     storage,
		apiServer: apiServer,
		logger:    logger,
	}

	if cfg.Dispatch.Enabled {
		client := mailer.NewClient(
			cfg.SMTP.Address,
			cfg.SMTP.Username,
			cfg.SMTP.Password,
			cfg.SMTP.STARTTLS,
			logger.With("component", "mailer"),
		)
		if cfg.DKIM.Enabled {
			signer, err := mailer.NewDKIMSignerFromFile(cfg.DKIM.KeyFile, cfg.DKIM.Domain, cfg.DKIM.Selector)
			if err != nil {
				storage.Close()
				database.Close()
				return nil, fmt.Errorf("failed to set up DKIM: %w", err)
			}
			client.SetDKIMSigner(signer)
			logger.Info("DKIM signing enabled", "domain", cfg.DKIM.Domain, "selector", cfg.DKIM.Selector)
		}

		a.dispatcher = dispatch.NewDispatcher(
			repository.NewCampaignRepository(database.DB),
			repository.NewTemplateRepository(database.DB),
			repository.NewSubscriberRepository(database.DB),
			storage,
			dispatch.Config{
				PollInterval: cfg.Dispatch.PollInterval,
				CompanyName:  cfg.Sender.CompanyName,
			},
			logger,
		)

		a.processor = dispatch.NewProcessor(
			storage,
			client,
			repository.NewSendLogRepository(database.DB),
			dispatch.ProcessorConfig{
				Workers:         cfg.Dispatch.Workers,
				RetryInterval:   cfg.Dispatch.RetryInterval,
				MaxRetries:      cfg.Dispatch.MaxRetries,
				ProcessInterval: cfg.Dispatch.PollInterval,
				FromAddress:     cfg.Sender.FromAddress,
				FromName:        cfg.Sender.FromName,
			},
			logger,
		)
	}

	return a, nil
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting fern",
		"api_addr", a.config.Server.ListenAddr,
		"dispatch", a.config.Dispatch.Enabled,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if a.dispatcher != nil {
		a.dispatcher.Start()
	}
	if a.processor != nil {
		a.processor.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.apiServer.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
	}

	return a.Shutdown(context.Background())
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// stop producing and delivering work before closing storage
	if a.dispatcher != nil {
		a.dispatcher.Stop()
	}
	if a.processor != nil {
		a.processor.Stop()
	}

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	if err := a.spool.Close(); err != nil {
		a.logger.Error("spool close error", "error", err)
	}
	if err := a.database.Close(); err != nil {
		a.logger.Error("database close error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

// setupLogger creates a logger based on configuration
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
