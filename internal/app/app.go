package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/foxzi/fundry/internal/api"
	"github.com/foxzi/fundry/internal/config"
	"github.com/foxzi/fundry/internal/events"
	"github.com/foxzi/fundry/internal/ledger"
	"github.com/foxzi/fundry/internal/metrics"
	"github.com/foxzi/fundry/internal/payout"
)

// App is the main application
type App struct {
	config        *config.Config
	ledger        *ledger.Ledger
	archive       *events.Archive
	apiServer     *api.Server
	metricsServer *metrics.Server
	collector     *metrics.Collector
	logger        *slog.Logger
}

// Options tweak how the application is assembled.
type Options struct {
	// Version is reported by the health endpoint.
	Version string
}

// New creates a new application
func New(cfg *config.Config, opts Options) (*App, error) {
	logger := setupLogger(cfg.Logging)

	archive, err := events.Open(cfg.Events.Path, logger.With("component", "events"))
	if err != nil {
		return nil, fmt.Errorf("failed to open event archive: %w", err)
	}

	sender := payout.NewHTTPSender(
		cfg.Payout.Endpoint,
		cfg.Payout.Token,
		cfg.Payout.Timeout,
		logger.With("component", "payout"),
	)

	l, err := ledger.Open(cfg.Storage.Path, ledger.Options{
		Authority:        ledger.Address(cfg.Authority.Address),
		AuthorityKeyHash: cfg.Authority.KeyHash,
		Sender:           sender,
		Events:           archive,
		Logger:           logger.With("component", "ledger"),
	})
	if err != nil {
		archive.Close()
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	a := &App{
		config:  cfg,
		ledger:  l,
		archive: archive,
		logger:  logger,
	}

	if cfg.Metrics.Enabled {
		m := metrics.New()
		metrics.SetGlobal(m)
		a.metricsServer = metrics.NewServer(
			m,
			cfg.Metrics.ListenAddr,
			cfg.Metrics.Path,
			cfg.Metrics.AllowedIPs,
			logger.With("component", "metrics"),
		)
		a.collector = metrics.NewCollector(
			m,
			l,
			cfg.Storage.Path,
			cfg.Metrics.CollectInterval,
			logger.With("component", "metrics_collector"),
		)
		logger.Info("metrics enabled", "addr", cfg.Metrics.ListenAddr)
	}

	a.apiServer = api.NewServer(api.ServerOptions{
		Ledger:  l,
		Archive: archive,
		Config:  &cfg.API,
		Logger:  logger.With("component", "api"),
		Version: opts.Version,
	})

	return a, nil
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting fundry",
		"api_addr", a.config.API.ListenAddr,
		"storage", a.config.Storage.Path,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if a.collector != nil {
		a.collector.Start(ctx)
	}

	errCh := make(chan error, 2)

	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	if a.metricsServer != nil {
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

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

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}

	if a.collector != nil {
		a.collector.Stop()
	}

	if err := a.ledger.Close(); err != nil {
		a.logger.Error("ledger close error", "error", err)
	}

	if err := a.archive.Close(); err != nil {
		a.logger.Error("event archive close error", "error", err)
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
