package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kagaj-ai/kagaj/internal/answer"
	"github.com/kagaj-ai/kagaj/internal/retriever"
)

const (
	// MaxQueryLength caps query text so a pathological request cannot be
	// shipped to the embedding model wholesale.
	MaxQueryLength = 4000

	DefaultSearchK = 5
	MaxSearchK     = 50
)

// Searcher runs similarity search. Satisfied by *retriever.Retriever.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]retriever.Match, error)
}

// Answerer produces grounded answers. Satisfied by *answer.Composer.
type Answerer interface {
	Answer(ctx context.Context, query string, contextLimit int) (answer.Answer, error)
}

// SearchHandler handles search and generation endpoints.
type SearchHandler struct {
	searcher Searcher
	answerer Answerer
	logger   *slog.Logger
}

// NewSearchHandler creates a search handler.
func NewSearchHandler(searcher Searcher, answerer Answerer, logger *slog.Logger) *SearchHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchHandler{searcher: searcher, answerer: answerer, logger: logger}
}

// RegisterRoutes registers search routes on the given mux.
func (h *SearchHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.search)
	mux.HandleFunc("POST /api/v1/generate", h.generate)
}

type matchResponse struct {
	Content       string  `json:"content"`
	DocumentID    string  `json:"document_id"`
	DocumentTitle string  `json:"document_title"`
	Score         float64 `json:"score"`
	PageNumber    int     `json:"page_number"`
	Section       string  `json:"section"`
}

// search runs a similarity query. Query parameters:
//   - query: query text (required)
//   - limit: result count (default 5, max 50)
func (h *SearchHandler) search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" || len(query) > MaxQueryLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is required and bounded")
		return
	}
	k := parseIntParam(r, "limit", DefaultSearchK, 1, MaxSearchK)

	matches, err := h.searcher.Search(r.Context(), query, k)
	if err != nil {
		var dimErr *retriever.DimensionError
		if errors.As(err, &dimErr) {
			h.logger.Error("dimension mismatch during search", "error", err)
			writeError(w, http.StatusConflict, "dimension_mismatch", dimErr.Error())
			return
		}
		h.logger.Error("search failed", "error", err, "request_id", RequestID(r.Context()))
		writeError(w, http.StatusBadGateway, "search_failed", "search failed")
		return
	}

	resp := make([]matchResponse, len(matches))
	for i, m := range matches {
		resp[i] = matchResponse{
			Content:       m.Content,
			DocumentID:    m.DocumentID,
			DocumentTitle: m.DocumentTitle,
			Score:         m.Score,
			PageNumber:    m.Metadata.PageNumber,
			Section:       m.Metadata.Section,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"matches": resp,
		"total":   len(resp),
	})
}

type generateRequest struct {
	Query        string `json:"query"`
	ContextLimit int    `json:"context_limit"`
}

// generate answers a question grounded in the document store.
func (h *SearchHandler) generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}
	if req.Query == "" || len(req.Query) > MaxQueryLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is required and bounded")
		return
	}
	if req.ContextLimit < 0 || req.ContextLimit > MaxSearchK {
		writeError(w, http.StatusBadRequest, "invalid_request", "context_limit out of range")
		return
	}

	ans, err := h.answerer.Answer(r.Context(), req.Query, req.ContextLimit)
	if err != nil {
		h.logger.Error("generation failed", "error", err, "request_id", RequestID(r.Context()))
		writeError(w, http.StatusBadGateway, "generation_failed", "generation failed")
		return
	}
	writeJSON(w, http.StatusOK, ans)
}
