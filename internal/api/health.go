package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/kagaj-ai/kagaj/internal/ollama"
)

// ModelHost reports the model host's health and available models.
// Satisfied by *ollama.Client.
type ModelHost interface {
	CheckHealth(ctx context.Context) ollama.Health
	ListModels(ctx context.Context) ([]ollama.ModelInfo, error)
}

// Pinger verifies database connectivity. Satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves probes and model host status.
type HealthHandler struct {
	models ModelHost
	db     Pinger
	logger *slog.Logger
}

// NewHealthHandler creates a health handler. db may be nil when the server
// runs without a database (memory-backed store), in which case readyz
// always succeeds.
func NewHealthHandler(models ModelHost, db Pinger, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{models: models, db: db, logger: logger}
}

// RegisterRoutes registers health routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.healthz)
	mux.HandleFunc("GET /readyz", h.readyz)
	mux.HandleFunc("GET /api/v1/status", h.status)
	mux.HandleFunc("GET /api/v1/models", h.listModels)
}

// healthz is a liveness probe: the process is up and serving.
func (h *HealthHandler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyz is a readiness probe: the database is reachable.
func (h *HealthHandler) readyz(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			h.logger.Warn("readiness check failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "not_ready", "database unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// status reports the model host's health. A degraded host still returns
// 200: the service itself is fine, the payload carries the host state.
func (h *HealthHandler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.models.CheckHealth(r.Context()))
}

func (h *HealthHandler) listModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.models.ListModels(r.Context())
	if err != nil {
		h.logger.Error("failed to list models", "error", err)
		writeError(w, http.StatusBadGateway, "models_unavailable", "failed to list models")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models})
}
