package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"github.com/kagaj-ai/kagaj/internal/chunk"
	"github.com/kagaj-ai/kagaj/internal/document"
	"github.com/kagaj-ai/kagaj/internal/extract"
	"github.com/kagaj-ai/kagaj/internal/log"
	"github.com/kagaj-ai/kagaj/internal/splitter"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubExtractor struct {
	result extract.Result
	err    error
}

func (s *stubExtractor) Extract(_ context.Context, _ string) (extract.Result, error) {
	if s.err != nil {
		return extract.Result{}, s.err
	}
	return s.result, nil
}

// stubEmbedder fails the calls whose 1-based sequence numbers appear in
// failOn, and can park callers on block until it is closed.
type stubEmbedder struct {
	mu     sync.Mutex
	calls  int
	failOn map[int]bool
	block  chan struct{}
}

func (s *stubEmbedder) Embed(ctx context.Context, _ string) ([]float32, error) {
	s.mu.Lock()
	s.calls++
	n := s.calls
	s.mu.Unlock()

	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.failOn[n] {
		return nil, errors.New("embedding model unavailable")
	}
	return []float32{1, 0, 0}, nil
}

// fiveChunkText splits into exactly 5 chunks of 100 characters under a
// 100/0 splitter: each segment ends in a period past the boundary
// threshold.
func fiveChunkText() string {
	segment := strings.Repeat("a", 99) + "."
	return strings.Repeat(segment, 5)
}

func newTestPipeline(ex Extractor, em Embedder, store ChunkWriter, workers int) *Pipeline {
	return NewPipeline(ex, splitter.New(100, 0), em, store, workers, log.NewNop())
}

func TestPipelinePartialIngestion(t *testing.T) {
	store := chunk.NewMemory()
	extractor := &stubExtractor{result: extract.Result{Text: fiveChunkText(), PageCount: 2}}
	embedder := &stubEmbedder{failOn: map[int]bool{3: true}}
	p := newTestPipeline(extractor, embedder, store, 1)

	res, err := p.Run(context.Background(), document.Document{ID: "doc-1", Title: "Part"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.TotalChunks != 5 || res.ProcessedChunks != 4 {
		t.Errorf("Run() = {Total: %d, Processed: %d}, want {5, 4}", res.TotalChunks, res.ProcessedChunks)
	}
	if res.PageCount != 2 || res.TextLength != 500 {
		t.Errorf("Run() = {Pages: %d, TextLength: %d}, want {2, 500}", res.PageCount, res.TextLength)
	}

	stored, _ := store.ListByDocument(context.Background(), "doc-1")
	if len(stored) != 4 {
		t.Fatalf("stored %d chunks, want 4", len(stored))
	}
	// The failed chunk (third embed call) leaves a gap, it is never
	// renumbered.
	indexes := map[int]bool{}
	for _, c := range stored {
		indexes[c.Index] = true
	}
	if indexes[2] {
		t.Error("failed chunk index 2 was stored")
	}
}

func TestPipelineExtractFailureFatal(t *testing.T) {
	extractErr := errors.New("file is encrypted")
	p := newTestPipeline(&stubExtractor{err: extractErr}, &stubEmbedder{}, chunk.NewMemory(), 1)

	_, err := p.Run(context.Background(), document.Document{ID: "doc-1"})
	if !errors.Is(err, extractErr) {
		t.Fatalf("Run() error = %v, want wrapped %v", err, extractErr)
	}
}

func TestPipelineZeroChunks(t *testing.T) {
	embedder := &stubEmbedder{}
	p := newTestPipeline(&stubExtractor{result: extract.Result{Text: "too short", PageCount: 1}}, embedder, chunk.NewMemory(), 1)

	res, err := p.Run(context.Background(), document.Document{ID: "doc-1"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.TotalChunks != 0 || res.ProcessedChunks != 0 {
		t.Errorf("Run() = {Total: %d, Processed: %d}, want {0, 0}", res.TotalChunks, res.ProcessedChunks)
	}
	if embedder.calls != 0 {
		t.Errorf("embedder called %d times, want 0", embedder.calls)
	}
}

func TestPipelineParallelWorkersKeepIndexes(t *testing.T) {
	store := chunk.NewMemory()
	extractor := &stubExtractor{result: extract.Result{Text: fiveChunkText(), PageCount: 1}}
	p := newTestPipeline(extractor, &stubEmbedder{}, store, 4)

	res, err := p.Run(context.Background(), document.Document{ID: "doc-1"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ProcessedChunks != 5 {
		t.Fatalf("ProcessedChunks = %d, want 5", res.ProcessedChunks)
	}

	stored, _ := store.ListByDocument(context.Background(), "doc-1")
	for i, c := range stored {
		if c.Index != i {
			t.Errorf("stored[%d].Index = %d, want %d", i, c.Index, i)
		}
	}
}

func TestPipelineMetadata(t *testing.T) {
	store := chunk.NewMemory()
	extractor := &stubExtractor{result: extract.Result{Text: fiveChunkText(), PageCount: 5}}
	p := newTestPipeline(extractor, &stubEmbedder{}, store, 1)

	if _, err := p.Run(context.Background(), document.Document{ID: "doc-1", Title: "Guide"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	stored, _ := store.ListByDocument(context.Background(), "doc-1")
	if len(stored) != 5 {
		t.Fatalf("stored %d chunks, want 5", len(stored))
	}
	third := stored[2]
	if third.Metadata.PageNumber != 3 {
		t.Errorf("PageNumber = %d, want 3", third.Metadata.PageNumber)
	}
	if third.Metadata.StartChar != 200 || third.Metadata.EndChar != 300 {
		t.Errorf("char range = [%d, %d], want [200, 300]", third.Metadata.StartChar, third.Metadata.EndChar)
	}
	if third.Metadata.Section != "Chunk 3" {
		t.Errorf("Section = %q, want %q", third.Metadata.Section, "Chunk 3")
	}
	if third.Metadata.Heading != "Guide" {
		t.Errorf("Heading = %q, want %q", third.Metadata.Heading, "Guide")
	}
	if third.TokenCount != 1 {
		t.Errorf("TokenCount = %d, want 1", third.TokenCount)
	}
}

func TestPipelineCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	extractor := &stubExtractor{result: extract.Result{Text: fiveChunkText(), PageCount: 1}}
	p := newTestPipeline(extractor, &stubEmbedder{}, chunk.NewMemory(), 1)

	_, err := p.Run(ctx, document.Document{ID: "doc-1"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
}
