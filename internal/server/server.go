// Package server sets up the HTTP server, router, and route definitions.
//
// The bot's HTTP surface is small:
//
//	GET  /healthz           → store ping (handler.HealthHandler)
//	GET  /metrics           → Prometheus scrape
//	POST /telegram/webhook  → update deliveries, webhook mode only
//
// Dependencies are built in cmd/bot and handed in; the server owns only the
// router and the listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/rpg-bot/internal/handler"
	"github.com/sakif/rpg-bot/internal/middleware"
)

// WebhookPath is where Telegram delivers updates in webhook mode.
const WebhookPath = "/telegram/webhook"

// Config holds server configuration.
type Config struct {
	Addr        string
	Timeout     time.Duration
	IdleTimeout time.Duration
	// Mode is reported by the health probe.
	Mode string
}

// Server is the HTTP server.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
}

// New builds the router. webhook may be nil, in which case the webhook route
// is not registered (polling mode).
func New(cfg Config, db handler.Pinger, webhook http.Handler, logger *slog.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
	}
	s.setupRoutes(db, webhook)
	return s
}

// setupRoutes installs middleware and the probe, metrics and webhook routes.
// Middleware runs outermost first: RequestID, RealIP, Recoverer, Logger.
func (s *Server) setupRoutes(db handler.Pinger, webhook http.Handler) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	health := handler.NewHealthHandler(db, s.config.Mode, s.logger)
	s.router.Get("/healthz", health.HandleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	if webhook != nil {
		s.router.Post(WebhookPath, webhook.ServeHTTP)
	}
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx ends, then shuts down gracefully, giving in-flight
// requests 30 seconds to complete.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.router,
		ReadTimeout:  s.config.Timeout,
		WriteTimeout: s.config.Timeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", slog.String("addr", s.config.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("http server stopped gracefully")
	}
	return nil
}
