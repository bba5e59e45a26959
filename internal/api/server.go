// Package api exposes the document pipeline over HTTP REST.
//
// Endpoints:
//
//	POST   /api/v1/documents              register a file and start ingestion
//	GET    /api/v1/documents              list documents
//	GET    /api/v1/documents/{id}         document detail
//	GET    /api/v1/documents/{id}/status  ingestion progress
//	DELETE /api/v1/documents/{id}         delete a document and its chunks
//	GET    /api/v1/search                 similarity search
//	POST   /api/v1/generate               grounded question answering
//	GET    /api/v1/status                 model host health
//	GET    /api/v1/models                 available models
//	GET    /healthz                       liveness probe
//	GET    /readyz                        readiness probe (database ping)
//
// File structure:
//   - server.go: server setup and lifecycle
//   - middleware.go: recovery, request id, logging, rate limiting
//   - documents.go: document and ingestion endpoints
//   - search.go: search and generate endpoints
//   - health.go: probes and model host status
//   - response.go: JSON response helpers
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:8080"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout bounds header reads to resist slowloris clients.
	ReadHeaderTimeout = 10 * time.Second

	ReadTimeout  = 30 * time.Second
	WriteTimeout = 3 * time.Minute // generation can be slow on CPU-only hosts
	IdleTimeout  = 2 * time.Minute
)

// ServerConfig carries the tunables NewServer needs.
type ServerConfig struct {
	// RateRPS and RateBurst configure the per-client rate limit. Zero
	// values disable limiting.
	RateRPS   float64
	RateBurst int

	Logger *slog.Logger
}

// Server is the HTTP server for the document pipeline REST API.
type Server struct {
	mux    *http.ServeMux
	cfg    ServerConfig
	logger *slog.Logger

	documents *DocumentHandler
	search    *SearchHandler
	health    *HealthHandler
}

// NewServer creates a server with all routes registered.
func NewServer(documents *DocumentHandler, search *SearchHandler, health *HealthHandler, cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	mux := http.NewServeMux()

	s := &Server{
		mux:       mux,
		cfg:       cfg,
		logger:    cfg.Logger,
		documents: documents,
		search:    search,
		health:    health,
	}

	s.documents.RegisterRoutes(mux)
	s.search.RegisterRoutes(mux)
	s.health.RegisterRoutes(mux)

	return s
}

// Handler returns the mux with middleware applied.
// Order: recovery → request id → logging → rate limit → handler.
func (s *Server) Handler() http.Handler {
	middlewares := []func(http.Handler) http.Handler{
		recoveryMiddleware(s.logger),
		requestIDMiddleware,
		loggingMiddleware(s.logger),
	}
	if s.cfg.RateRPS > 0 {
		middlewares = append(middlewares, rateLimitMiddleware(s.cfg.RateRPS, s.cfg.RateBurst))
	}
	return chain(s.mux, middlewares...)
}

// Run starts the server and blocks until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
