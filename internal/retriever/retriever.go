// Package retriever ranks stored chunks against a query by exact cosine
// similarity.
//
// The scan is deliberately brute force: every chunk is loaded and scored on
// each call. That makes the ranking exact and fully deterministic, which is
// the correctness baseline any approximate index would have to be verified
// against. Cost is O(N) in the number of chunks ever ingested.
package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/kagaj-ai/kagaj/internal/chunk"
)

// DefaultTopK is the result count when the caller passes k <= 0.
const DefaultTopK = 5

// Embedder turns query text into a vector. Satisfied by *ollama.Client.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ChunkLister loads the full chunk set with parent document titles.
// Satisfied by both *chunk.Store and *chunk.Memory.
type ChunkLister interface {
	ListAll(ctx context.Context) ([]chunk.Stored, error)
}

// DimensionError reports vectors of unequal length. This is a deployment
// misconfiguration (chunks embedded with mixed models), never something to
// paper over with truncation or padding.
type DimensionError struct {
	Want, Got int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: query has %d dimensions, chunk has %d", e.Want, e.Got)
}

// Match is one retrieval result.
type Match struct {
	Content       string
	DocumentID    string
	DocumentTitle string
	Score         float64
	Metadata      chunk.Metadata
}

// Retriever embeds queries and ranks the chunk store against them.
//
// Retriever is stateless per call and safe for concurrent use.
type Retriever struct {
	embedder Embedder
	chunks   ChunkLister
	logger   *slog.Logger
}

// New creates a Retriever.
func New(embedder Embedder, chunks ChunkLister, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{embedder: embedder, chunks: chunks, logger: logger}
}

// Search returns the k chunks most similar to query, ordered by score
// descending. Ties keep storage order (stable sort). Fewer than k stored
// chunks returns all of them; an empty store returns no matches and no
// error.
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]Match, error) {
	if k <= 0 {
		k = DefaultTopK
	}

	queryVector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	stored, err := r.chunks.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading chunks: %w", err)
	}
	if len(stored) == 0 {
		return nil, nil
	}

	matches := make([]Match, 0, len(stored))
	for _, st := range stored {
		score, err := Cosine(queryVector, st.Embedding)
		if err != nil {
			return nil, fmt.Errorf("scoring chunk %d of document %q: %w", st.Index, st.DocumentID, err)
		}
		matches = append(matches, Match{
			Content:       st.Content,
			DocumentID:    st.DocumentID,
			DocumentTitle: st.DocumentTitle,
			Score:         score,
			Metadata:      st.Metadata,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if k > len(matches) {
		k = len(matches)
	}

	r.logger.Debug("search scored chunks",
		"total", len(stored),
		"returned", k,
		"top_score", matches[0].Score)
	return matches[:k], nil
}

// Cosine computes the cosine similarity dot(a,b)/(‖a‖·‖b‖), accumulating in
// float64. A zero-norm vector yields similarity 0 rather than dividing by
// zero; unequal lengths return a *DimensionError.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, &DimensionError{Want: len(a), Got: len(b)}
	}

	var dot, normA, normB float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
