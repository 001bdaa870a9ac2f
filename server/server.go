// Package server wires the HTTP router, its middleware chain and the server
// lifecycle.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/giygas/medicaments-search/config"
	"github.com/giygas/medicaments-search/interfaces"
	"github.com/giygas/medicaments-search/logging"
	"github.com/giygas/medicaments-search/metrics"
)

// Server represents the HTTP server
type Server struct {
	server  *http.Server
	router  chi.Router
	handler interfaces.HTTPHandler
	limiter *RateLimiter
	config  *config.Config
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, handler interfaces.HTTPHandler) *Server {
	router := chi.NewRouter()

	server := &Server{
		server: &http.Server{
			Handler:        router,
			Addr:           cfg.Address + ":" + cfg.Port,
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
			IdleTimeout:    60 * time.Second,
			MaxHeaderBytes: 2 * maxHeaderBytes,
		},
		router:  router,
		handler: handler,
		limiter: NewRateLimiter(defaultFillRate, defaultCapacity),
		config:  cfg,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures all middleware
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(logging.LoggingMiddleware(logging.Logger()))
	s.router.Use(middleware.Recoverer)
	s.router.Use(metrics.Metrics)
	s.router.Use(requestSizeMiddleware)
	s.router.Use(s.limiter.Middleware)
	s.router.Use(middleware.Compress(5, "application/json"))
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/search", s.handler.Search)
	s.router.Get("/medications/{id}", s.handler.GetMedication)
	s.router.Get("/stats", s.handler.GetStats)
	s.router.Get("/health", s.handler.HealthCheck)
	s.router.Handle("/metrics", promhttp.Handler())
}

// Handler returns the root handler, middleware included
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the server and blocks until it stops
func (s *Server) Start() error {
	s.limiter.StartCleanup(bucketCleanupPeriod)

	logging.Info(fmt.Sprintf("Starting server at: %s:%s", s.config.Address, s.config.Port))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down server...")
	defer s.limiter.Stop()

	if err := s.server.Shutdown(ctx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
		// If graceful shutdown fails, force close
		if err := s.server.Close(); err != nil {
			logging.Error("Server close error", "error", err)
			return err
		}
	}

	logging.Info("Server shutdown complete")
	return nil
}
