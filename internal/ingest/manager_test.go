package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kagaj-ai/kagaj/internal/chunk"
	"github.com/kagaj-ai/kagaj/internal/document"
	"github.com/kagaj-ai/kagaj/internal/extract"
	"github.com/kagaj-ai/kagaj/internal/log"
	"github.com/kagaj-ai/kagaj/internal/splitter"
)

// stubStatusStore records lifecycle transitions and signals terminal ones.
type stubStatusStore struct {
	mu         sync.Mutex
	processing []string
	busy       map[string]bool

	processed    map[string]Result
	errored      map[string]string
	terminalDone chan string
}

func newStubStatusStore() *stubStatusStore {
	return &stubStatusStore{
		busy:         make(map[string]bool),
		processed:    make(map[string]Result),
		errored:      make(map[string]string),
		terminalDone: make(chan string, 8),
	}
}

func (s *stubStatusStore) TryMarkProcessing(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy[id] {
		return false, nil
	}
	s.busy[id] = true
	s.processing = append(s.processing, id)
	return true, nil
}

func (s *stubStatusStore) MarkProcessed(_ context.Context, id string, totalChunks, processedChunks, pageCount, textLength int) error {
	s.mu.Lock()
	s.busy[id] = false
	s.processed[id] = Result{TotalChunks: totalChunks, ProcessedChunks: processedChunks, PageCount: pageCount, TextLength: textLength}
	s.mu.Unlock()
	s.terminalDone <- id
	return nil
}

func (s *stubStatusStore) MarkError(_ context.Context, id, message string) error {
	s.mu.Lock()
	s.busy[id] = false
	s.errored[id] = message
	s.mu.Unlock()
	s.terminalDone <- id
	return nil
}

func (s *stubStatusStore) waitTerminal(t *testing.T) string {
	t.Helper()
	select {
	case id := <-s.terminalDone:
		return id
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a terminal status transition")
		return ""
	}
}

func newTestManager(statuses StatusStore, store *chunk.Memory, embedder Embedder, extractor Extractor) *Manager {
	p := NewPipeline(extractor, splitter.New(100, 0), embedder, store, 1, log.NewNop())
	return NewManager(p, statuses, store, log.NewNop())
}

func TestManagerMarksProcessed(t *testing.T) {
	statuses := newStubStatusStore()
	store := chunk.NewMemory()
	extractor := &stubExtractor{result: extract.Result{Text: fiveChunkText(), PageCount: 2}}
	m := newTestManager(statuses, store, &stubEmbedder{}, extractor)
	defer m.Close()

	if err := m.Enqueue(context.Background(), document.Document{ID: "doc-1", Title: "T"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	statuses.waitTerminal(t)

	res, ok := statuses.processed["doc-1"]
	if !ok {
		t.Fatal("document was not marked processed")
	}
	if res.TotalChunks != 5 || res.ProcessedChunks != 5 {
		t.Errorf("processed result = %+v, want 5/5 chunks", res)
	}
}

func TestManagerMarksErrorOnExtractFailure(t *testing.T) {
	statuses := newStubStatusStore()
	store := chunk.NewMemory()
	extractor := &stubExtractor{err: errors.New("unreadable file")}
	m := newTestManager(statuses, store, &stubEmbedder{}, extractor)
	defer m.Close()

	if err := m.Enqueue(context.Background(), document.Document{ID: "doc-1"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	statuses.waitTerminal(t)

	msg, ok := statuses.errored["doc-1"]
	if !ok {
		t.Fatal("document was not marked errored")
	}
	if !strings.Contains(msg, "unreadable file") {
		t.Errorf("error message = %q, want it to mention the extraction failure", msg)
	}
}

func TestManagerSingleFlight(t *testing.T) {
	statuses := newStubStatusStore()
	store := chunk.NewMemory()
	extractor := &stubExtractor{result: extract.Result{Text: fiveChunkText(), PageCount: 1}}
	embedder := &stubEmbedder{block: make(chan struct{})}
	m := newTestManager(statuses, store, embedder, extractor)
	defer m.Close()

	if err := m.Enqueue(context.Background(), document.Document{ID: "doc-1"}); err != nil {
		t.Fatalf("first Enqueue() error = %v", err)
	}
	if err := m.Enqueue(context.Background(), document.Document{ID: "doc-1"}); !errors.Is(err, ErrAlreadyProcessing) {
		t.Fatalf("second Enqueue() error = %v, want ErrAlreadyProcessing", err)
	}
	if got := m.InFlight(); got != 1 {
		t.Errorf("InFlight() = %d, want 1", got)
	}

	// A different document is not blocked.
	if err := m.Enqueue(context.Background(), document.Document{ID: "doc-2"}); err != nil {
		t.Fatalf("Enqueue(doc-2) error = %v", err)
	}

	close(embedder.block)
	statuses.waitTerminal(t)
	statuses.waitTerminal(t)
}

func TestManagerReingestReplacesChunks(t *testing.T) {
	statuses := newStubStatusStore()
	store := chunk.NewMemory()
	extractor := &stubExtractor{result: extract.Result{Text: fiveChunkText(), PageCount: 1}}
	m := newTestManager(statuses, store, &stubEmbedder{}, extractor)
	defer m.Close()

	doc := document.Document{ID: "doc-1", Title: "T"}
	if err := m.Enqueue(context.Background(), doc); err != nil {
		t.Fatalf("first Enqueue() error = %v", err)
	}
	statuses.waitTerminal(t)

	if err := m.Enqueue(context.Background(), doc); err != nil {
		t.Fatalf("second Enqueue() error = %v", err)
	}
	statuses.waitTerminal(t)

	count, _ := store.Count(context.Background())
	if count != 5 {
		t.Errorf("chunk count after re-ingestion = %d, want 5", count)
	}
}

func TestManagerCancel(t *testing.T) {
	statuses := newStubStatusStore()
	store := chunk.NewMemory()
	extractor := &stubExtractor{result: extract.Result{Text: fiveChunkText(), PageCount: 1}}
	embedder := &stubEmbedder{block: make(chan struct{})}
	m := newTestManager(statuses, store, embedder, extractor)
	defer m.Close()

	if err := m.Enqueue(context.Background(), document.Document{ID: "doc-1"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if !m.Cancel("doc-1") {
		t.Fatal("Cancel() = false, want true")
	}
	statuses.waitTerminal(t)

	if _, ok := statuses.errored["doc-1"]; !ok {
		t.Error("canceled document was not marked errored")
	}
	if m.Cancel("doc-2") {
		t.Error("Cancel() of unknown document = true, want false")
	}
}

func TestManagerCloseRejectsNewWork(t *testing.T) {
	statuses := newStubStatusStore()
	store := chunk.NewMemory()
	extractor := &stubExtractor{result: extract.Result{Text: fiveChunkText(), PageCount: 1}}
	m := newTestManager(statuses, store, &stubEmbedder{}, extractor)
	m.Close()

	if err := m.Enqueue(context.Background(), document.Document{ID: "doc-1"}); err == nil {
		t.Fatal("Enqueue() after Close succeeded, want error")
	}
}

type stubOrphanDeleter struct {
	mu      sync.Mutex
	deleted int64
	calls   int
	swept   chan struct{}
}

func (s *stubOrphanDeleter) DeleteOrphans(_ context.Context) (int64, error) {
	s.mu.Lock()
	s.calls++
	n := s.deleted
	s.mu.Unlock()
	select {
	case s.swept <- struct{}{}:
	default:
	}
	return n, nil
}

func TestReconcilerSweeps(t *testing.T) {
	deleter := &stubOrphanDeleter{deleted: 3, swept: make(chan struct{}, 1)}
	r := NewReconciler(deleter, 10*time.Millisecond, log.NewNop())
	r.Start(context.Background())
	defer r.Stop()

	select {
	case <-deleter.swept:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a sweep")
	}
}

func TestReconcilerStopBeforeStart(t *testing.T) {
	r := NewReconciler(&stubOrphanDeleter{swept: make(chan struct{}, 1)}, time.Minute, log.NewNop())
	r.Stop()
}
