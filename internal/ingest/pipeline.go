// Package ingest turns source files into embedded, queryable chunks.
//
// The pipeline distinguishes fatal failures from per-chunk ones: if the
// text of a document cannot be extracted there is nothing to ingest and the
// run fails, but a single chunk failing to embed only loses that chunk. A
// document with most of its content indexed is more useful than no document
// at all, and the processed/total counts in the result expose the gap.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/kagaj-ai/kagaj/internal/chunk"
	"github.com/kagaj-ai/kagaj/internal/document"
	"github.com/kagaj-ai/kagaj/internal/extract"
	"github.com/kagaj-ai/kagaj/internal/splitter"
)

// Extractor pulls plain text out of a source file. Satisfied by
// *extract.PDF.
type Extractor interface {
	Extract(ctx context.Context, path string) (extract.Result, error)
}

// Embedder converts chunk text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ChunkWriter persists embedded chunks.
type ChunkWriter interface {
	Append(ctx context.Context, c chunk.Chunk) error
}

// Result summarizes one pipeline run.
type Result struct {
	TotalChunks     int
	ProcessedChunks int
	PageCount       int
	TextLength      int
}

// Pipeline runs extract, split, embed and persist for one document.
type Pipeline struct {
	extractor Extractor
	splitter  *splitter.Splitter
	embedder  Embedder
	chunks    ChunkWriter
	workers   int
	logger    *slog.Logger
}

// NewPipeline creates a Pipeline. workers bounds concurrent embedding
// calls; values below 1 mean sequential embedding, which is the safe
// default for a single-node Ollama host.
func NewPipeline(extractor Extractor, sp *splitter.Splitter, embedder Embedder, chunks ChunkWriter, workers int, logger *slog.Logger) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		extractor: extractor,
		splitter:  sp,
		embedder:  embedder,
		chunks:    chunks,
		workers:   workers,
		logger:    logger,
	}
}

// Run ingests the document's file and returns chunk counts. Extraction
// failure is fatal and returned as an error. Embed or persist failures for
// individual chunks are logged, skipped, and reflected only in the gap
// between TotalChunks and ProcessedChunks. A document that yields zero
// chunks after splitting succeeds with zeroed counts.
//
// Chunk indexes follow split order regardless of how embedding
// interleaves, so re-running ingestion always assigns the same index to
// the same text.
func (p *Pipeline) Run(ctx context.Context, doc document.Document) (Result, error) {
	extracted, err := p.extractor.Extract(ctx, doc.FilePath)
	if err != nil {
		return Result{}, fmt.Errorf("extracting %q: %w", doc.FilePath, err)
	}

	pieces := p.splitter.Split(extracted.Text)
	res := Result{
		TotalChunks: len(pieces),
		PageCount:   extracted.PageCount,
		TextLength:  len(extracted.Text),
	}
	if len(pieces) == 0 {
		p.logger.Warn("document produced no chunks",
			"document_id", doc.ID,
			"text_length", res.TextLength)
		return res, nil
	}

	var processed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i, text := range pieces {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			embedding, err := p.embedder.Embed(gctx, text)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				p.logger.Warn("skipping chunk after embed failure",
					"document_id", doc.ID,
					"chunk_index", i,
					"error", err)
				return nil
			}

			c := chunk.Chunk{
				DocumentID: doc.ID,
				Index:      i,
				Content:    text,
				Embedding:  embedding,
				Metadata:   p.metadata(doc, i, len(pieces), len(text), extracted.PageCount),
				TokenCount: len(strings.Fields(text)),
			}
			if err := p.chunks.Append(gctx, c); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				p.logger.Warn("skipping chunk after store failure",
					"document_id", doc.ID,
					"chunk_index", i,
					"error", err)
				return nil
			}
			processed.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Result{}, fmt.Errorf("ingestion canceled: %w", err)
	}

	res.ProcessedChunks = int(processed.Load())
	p.logger.Info("document ingested",
		"document_id", doc.ID,
		"total_chunks", res.TotalChunks,
		"processed_chunks", res.ProcessedChunks,
		"pages", res.PageCount)
	return res, nil
}

// metadata estimates where chunk i sits in the source document. Page
// numbers are proportional estimates, not exact text positions: extraction
// flattens page boundaries away, so the best available mapping spreads
// chunks evenly across the page count.
func (p *Pipeline) metadata(doc document.Document, i, total, length, pages int) chunk.Metadata {
	page := 1
	if total > 0 && pages > 0 {
		page = int(float64(i)/float64(total)*float64(pages)) + 1
	}
	start := i * p.splitter.ChunkSize()
	return chunk.Metadata{
		PageNumber: page,
		StartChar:  start,
		EndChar:    start + length,
		Section:    fmt.Sprintf("Chunk %d", i+1),
		Heading:    doc.Title,
	}
}
