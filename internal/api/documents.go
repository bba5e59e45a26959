package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/kagaj-ai/kagaj/internal/document"
	"github.com/kagaj-ai/kagaj/internal/ingest"
)

// Document request validation constants.
const (
	MaxTitleLength   = 200
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// DocumentStore is the document persistence surface the handler needs.
// Satisfied by *document.Store.
type DocumentStore interface {
	Create(ctx context.Context, doc document.Document) (document.Document, error)
	Get(ctx context.Context, id string) (document.Document, error)
	List(ctx context.Context, limit int) ([]document.Document, error)
	Delete(ctx context.Context, id string) error
}

// Ingestor starts and cancels background ingestion runs. Satisfied by
// *ingest.Manager.
type Ingestor interface {
	Enqueue(ctx context.Context, doc document.Document) error
	Cancel(documentID string) bool
}

// DocumentHandler handles document registration and lifecycle endpoints.
type DocumentHandler struct {
	store    DocumentStore
	ingestor Ingestor
	logger   *slog.Logger
}

// NewDocumentHandler creates a document handler.
func NewDocumentHandler(store DocumentStore, ingestor Ingestor, logger *slog.Logger) *DocumentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentHandler{store: store, ingestor: ingestor, logger: logger}
}

// RegisterRoutes registers document routes on the given mux.
func (h *DocumentHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/documents", h.create)
	mux.HandleFunc("GET /api/v1/documents", h.list)
	mux.HandleFunc("GET /api/v1/documents/{id}", h.get)
	mux.HandleFunc("GET /api/v1/documents/{id}/status", h.status)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", h.delete)
}

type createDocumentRequest struct {
	Path  string `json:"path"`
	Title string `json:"title"`
}

type documentResponse struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	FilePath        string  `json:"file_path"`
	FileSize        int64   `json:"file_size"`
	Status          string  `json:"status"`
	ProcessingError string  `json:"processing_error,omitempty"`
	TotalChunks     int     `json:"total_chunks"`
	ProcessedChunks int     `json:"processed_chunks"`
	PageCount       int     `json:"page_count"`
	TextLength      int     `json:"text_length"`
	Progress        float64 `json:"progress"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

func toDocumentResponse(doc document.Document) documentResponse {
	return documentResponse{
		ID:              doc.ID,
		Title:           doc.Title,
		FilePath:        doc.FilePath,
		FileSize:        doc.FileSize,
		Status:          string(doc.Status),
		ProcessingError: doc.ProcessingError,
		TotalChunks:     doc.TotalChunks,
		ProcessedChunks: doc.ProcessedChunks,
		PageCount:       doc.PageCount,
		TextLength:      doc.TextLength,
		Progress:        doc.Progress(),
		CreatedAt:       doc.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       doc.UpdatedAt.Format(time.RFC3339),
	}
}

// create registers a file and starts ingestion in the background. The
// response is 202 Accepted with the document record in status processing;
// clients poll the status endpoint for progress.
func (h *DocumentHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "path is required")
		return
	}
	if req.Title == "" || len(req.Title) > MaxTitleLength {
		writeError(w, http.StatusBadRequest, "invalid_request",
			"title is required and must be at most "+strconv.Itoa(MaxTitleLength)+" characters")
		return
	}

	info, err := os.Stat(req.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "file is not readable: "+err.Error())
		return
	}
	if info.IsDir() {
		writeError(w, http.StatusBadRequest, "invalid_request", "path is a directory")
		return
	}

	doc, err := h.store.Create(r.Context(), document.Document{
		Title:    req.Title,
		FilePath: req.Path,
		FileSize: info.Size(),
	})
	if err != nil {
		h.logger.Error("failed to create document", "error", err, "request_id", RequestID(r.Context()))
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create document")
		return
	}

	if err := h.ingestor.Enqueue(r.Context(), doc); err != nil {
		if errors.Is(err, ingest.ErrAlreadyProcessing) {
			writeError(w, http.StatusConflict, "already_processing", err.Error())
			return
		}
		h.logger.Error("failed to start ingestion", "document_id", doc.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to start ingestion")
		return
	}

	writeJSON(w, http.StatusAccepted, toDocumentResponse(doc))
}

func (h *DocumentHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", DefaultListLimit, 1, MaxListLimit)

	docs, err := h.store.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list documents", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list documents")
		return
	}

	resp := make([]documentResponse, len(docs))
	for i, doc := range docs {
		resp[i] = toDocumentResponse(doc)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents": resp,
		"total":     len(resp),
		"limit":     limit,
	})
}

// get returns the full document record. The status route serves the same
// payload; it exists so poll loops read as intent at the call site.
func (h *DocumentHandler) get(w http.ResponseWriter, r *http.Request) {
	h.status(w, r)
}

func (h *DocumentHandler) status(w http.ResponseWriter, r *http.Request) {
	doc, err := h.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, document.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		h.logger.Error("failed to get document", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to get document")
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

// delete removes the document and its chunks. An in-flight ingestion for
// the document is canceled first so it cannot repopulate chunks after the
// delete.
func (h *DocumentHandler) delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	h.ingestor.Cancel(id)

	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, document.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		h.logger.Error("failed to delete document", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to delete document")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseIntParam parses an integer query parameter with bounds checking.
func parseIntParam(r *http.Request, name string, defaultVal, min, max int) int {
	str := r.URL.Query().Get(name)
	if str == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(str)
	if err != nil || val < min {
		return defaultVal
	}
	if val > max {
		return max
	}
	return val
}
