// Package answer composes grounded answers from retrieved chunks.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kagaj-ai/kagaj/internal/chunk"
	"github.com/kagaj-ai/kagaj/internal/ollama"
	"github.com/kagaj-ai/kagaj/internal/retriever"
)

// Fallback is the fixed reply when retrieval finds nothing to ground an
// answer on. Returning it verbatim keeps the no-context case honest
// instead of letting the model improvise.
const Fallback = "I don't have enough information in my knowledge base to answer this question accurately. Please try rephrasing your question or contact support for assistance."

// Grounded generation runs cooler and shorter than open-ended chat: the
// answer should restate the provided context, not elaborate on it.
const (
	generationTemperature float32 = 0.3
	generationMaxTokens           = 1024
)

// DefaultConfidenceThreshold separates high confidence from medium on the
// top retrieval score.
const DefaultConfidenceThreshold = 0.7

// DefaultContextLimit is how many chunks feed the prompt when the caller
// passes a non-positive limit.
const DefaultContextLimit = 5

// Confidence labels how well-supported an answer is.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Searcher retrieves the chunks most similar to a query. Satisfied by
// *retriever.Retriever.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]retriever.Match, error)
}

// Generator produces a completion for a prompt. Satisfied by
// *ollama.Client.
type Generator interface {
	Complete(ctx context.Context, prompt string, opts ollama.CompleteOptions) (string, error)
}

// Source identifies one chunk that grounded an answer.
type Source struct {
	DocumentID    string         `json:"document_id"`
	DocumentTitle string         `json:"document_title"`
	Score         float64        `json:"score"`
	Metadata      chunk.Metadata `json:"metadata"`
}

// Answer is a generated reply with its supporting evidence.
type Answer struct {
	Text       string     `json:"text"`
	Sources    []Source   `json:"sources"`
	Confidence Confidence `json:"confidence"`
}

// Composer wires retrieval and generation into one question-answering
// call.
type Composer struct {
	searcher  Searcher
	generator Generator
	threshold float64
	logger    *slog.Logger
}

// NewComposer creates a Composer. A non-positive threshold uses the
// default.
func NewComposer(searcher Searcher, generator Generator, threshold float64, logger *slog.Logger) *Composer {
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{searcher: searcher, generator: generator, threshold: threshold, logger: logger}
}

// Answer retrieves up to contextLimit chunks for query and generates a
// reply grounded in them. With no retrieved chunks the generator is never
// called: the result is the fixed Fallback text, no sources, and low
// confidence. Otherwise confidence is high when the top score exceeds the
// threshold and medium below it.
func (c *Composer) Answer(ctx context.Context, query string, contextLimit int) (Answer, error) {
	if contextLimit <= 0 {
		contextLimit = DefaultContextLimit
	}

	matches, err := c.searcher.Search(ctx, query, contextLimit)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieving context: %w", err)
	}
	if len(matches) == 0 {
		c.logger.Info("no context retrieved, returning fallback", "query_length", len(query))
		// Sources stays an empty slice, not nil, so the JSON shape is a
		// stable [] for clients on both paths.
		return Answer{Text: Fallback, Sources: []Source{}, Confidence: ConfidenceLow}, nil
	}

	text, err := c.generator.Complete(ctx, buildPrompt(query, matches), ollama.CompleteOptions{
		Temperature: generationTemperature,
		MaxTokens:   generationMaxTokens,
	})
	if err != nil {
		return Answer{}, fmt.Errorf("generating answer: %w", err)
	}

	sources := make([]Source, len(matches))
	for i, m := range matches {
		sources[i] = Source{
			DocumentID:    m.DocumentID,
			DocumentTitle: m.DocumentTitle,
			Score:         m.Score,
			Metadata:      m.Metadata,
		}
	}

	confidence := ConfidenceMedium
	if matches[0].Score > c.threshold {
		confidence = ConfidenceHigh
	}

	return Answer{Text: text, Sources: sources, Confidence: confidence}, nil
}

// buildPrompt assembles the grounded-generation prompt. Each chunk appears
// as a titled block so the model can attribute statements to documents.
func buildPrompt(query string, matches []retriever.Match) string {
	blocks := make([]string, len(matches))
	for i, m := range matches {
		blocks[i] = fmt.Sprintf("Document: %s\nContent: %s", m.DocumentTitle, m.Content)
	}

	var b strings.Builder
	b.WriteString("You are a helpful assistant. Answer the question using only the context below. ")
	b.WriteString("If the context does not contain the answer, say so plainly.\n\n")
	b.WriteString("Context:\n")
	b.WriteString(strings.Join(blocks, "\n\n"))
	b.WriteString("\n\nQuestion: ")
	b.WriteString(query)
	b.WriteString("\n\nAnswer:")
	return b.String()
}
