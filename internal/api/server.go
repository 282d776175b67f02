package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/foxzi/fundry/internal/config"
	"github.com/foxzi/fundry/internal/events"
	"github.com/foxzi/fundry/internal/ledger"
	"github.com/foxzi/fundry/internal/metrics"
)

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	ledger     *ledger.Ledger
	archive    *events.Archive
	config     *config.APIConfig
	logger     *slog.Logger
	version    string
	startTime  time.Time
}

// ServerOptions configure the API server
type ServerOptions struct {
	Ledger  *ledger.Ledger
	Archive *events.Archive
	Config  *config.APIConfig
	Logger  *slog.Logger
	Version string
}

// NewServer creates a new API server
func NewServer(opts ServerOptions) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	s := &Server{
		router:    chi.NewRouter(),
		ledger:    opts.Ledger,
		archive:   opts.Archive,
		config:    opts.Config,
		logger:    opts.Logger,
		version:   opts.Version,
		startTime: time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(metrics.HTTPMiddleware)

	// Health check (no auth required)
	s.router.Get("/health", s.handleHealth)

	// API v1 routes (auth required)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/campaigns", s.handleCreateCampaign)
		r.Get("/campaigns", s.handleListCampaigns)
		r.Get("/campaigns/{id}", s.handleGetCampaign)
		r.Post("/campaigns/{id}/donations", s.handleDonate)
		r.Post("/campaigns/{id}/end", s.handleEndCampaign)

		r.Get("/pool", s.handlePool)
		r.Post("/pool/deposits", s.handleDeposit)
		r.Post("/pool/withdrawals", s.handleWithdraw)

		r.Get("/events", s.handleEvents)
	})
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	s.logger.Info("starting HTTP API server", "addr", s.config.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
