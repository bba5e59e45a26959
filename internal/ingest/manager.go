package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kagaj-ai/kagaj/internal/document"
)

// ErrAlreadyProcessing is returned when ingestion is requested for a
// document that already has a run in flight.
var ErrAlreadyProcessing = errors.New("document is already being processed")

// StatusStore records document lifecycle transitions. Satisfied by
// *document.Store.
type StatusStore interface {
	TryMarkProcessing(ctx context.Context, id string) (bool, error)
	MarkProcessed(ctx context.Context, id string, totalChunks, processedChunks, pageCount, textLength int) error
	MarkError(ctx context.Context, id, message string) error
}

// ChunkDeleter removes a document's previous chunks before re-ingestion.
type ChunkDeleter interface {
	DeleteByDocument(ctx context.Context, documentID string) (int64, error)
}

// Manager serializes ingestion per document and tracks in-flight runs.
//
// Two guards enforce the one-run-per-document rule. The in-process registry
// catches concurrent requests to the same instance without a database round
// trip, and the conditional status update in TryMarkProcessing catches
// races across instances sharing one database.
type Manager struct {
	pipeline *Pipeline
	statuses StatusStore
	chunks   ChunkDeleter
	logger   *slog.Logger

	mu       sync.Mutex
	inFlight map[string]context.CancelFunc
	wg       sync.WaitGroup
	closed   bool
}

// NewManager creates a Manager.
func NewManager(pipeline *Pipeline, statuses StatusStore, chunks ChunkDeleter, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		pipeline: pipeline,
		statuses: statuses,
		chunks:   chunks,
		logger:   logger,
		inFlight: make(map[string]context.CancelFunc),
	}
}

// Enqueue starts ingestion for doc in the background and returns once the
// run is registered. Re-ingesting a document replaces its chunks: any
// previously stored chunks are deleted before the new run starts, so a
// completed re-ingestion never leaves stale vectors behind. Returns
// ErrAlreadyProcessing if a run for the same document is already in
// flight.
//
// The run itself is detached from ctx; ctx only bounds the setup work
// (status transition and old-chunk cleanup). Use Cancel to stop a running
// ingestion.
func (m *Manager) Enqueue(ctx context.Context, doc document.Document) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errors.New("ingestion manager is closed")
	}
	if _, running := m.inFlight[doc.ID]; running {
		m.mu.Unlock()
		return fmt.Errorf("document %q: %w", doc.ID, ErrAlreadyProcessing)
	}
	// Reserve the slot before releasing the lock so a concurrent Enqueue
	// for the same document fails fast even while setup is in progress.
	runCtx, cancel := context.WithCancel(context.Background())
	m.inFlight[doc.ID] = cancel
	m.wg.Add(1)
	m.mu.Unlock()

	release := func() {
		m.mu.Lock()
		delete(m.inFlight, doc.ID)
		m.mu.Unlock()
		cancel()
		m.wg.Done()
	}

	ok, err := m.statuses.TryMarkProcessing(ctx, doc.ID)
	if err != nil {
		release()
		return fmt.Errorf("marking document %q processing: %w", doc.ID, err)
	}
	if !ok {
		release()
		return fmt.Errorf("document %q: %w", doc.ID, ErrAlreadyProcessing)
	}

	if deleted, err := m.chunks.DeleteByDocument(ctx, doc.ID); err != nil {
		m.failDocument(doc.ID, fmt.Errorf("clearing previous chunks: %w", err))
		release()
		return fmt.Errorf("clearing previous chunks for %q: %w", doc.ID, err)
	} else if deleted > 0 {
		m.logger.Info("replaced previous ingestion",
			"document_id", doc.ID,
			"chunks_deleted", deleted)
	}

	go func() {
		defer release()
		m.run(runCtx, doc)
	}()
	return nil
}

func (m *Manager) run(ctx context.Context, doc document.Document) {
	res, err := m.pipeline.Run(ctx, doc)
	if err != nil {
		m.failDocument(doc.ID, err)
		return
	}

	if err := m.statuses.MarkProcessed(context.Background(), doc.ID, res.TotalChunks, res.ProcessedChunks, res.PageCount, res.TextLength); err != nil {
		m.logger.Error("failed to mark document processed",
			"document_id", doc.ID,
			"error", err)
	}
}

// failDocument records a fatal ingestion error on the document. Status
// writes use a fresh context so a canceled run still lands in the error
// state instead of sticking at processing forever.
func (m *Manager) failDocument(id string, runErr error) {
	m.logger.Error("ingestion failed",
		"document_id", id,
		"error", runErr)
	if err := m.statuses.MarkError(context.Background(), id, runErr.Error()); err != nil {
		m.logger.Error("failed to mark document errored",
			"document_id", id,
			"error", err)
	}
}

// Cancel stops the in-flight run for documentID, if any. Reports whether a
// run was found. The canceled run transitions the document to the error
// state on its own goroutine before releasing the slot.
func (m *Manager) Cancel(documentID string) bool {
	m.mu.Lock()
	cancel, ok := m.inFlight[documentID]
	m.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// InFlight reports how many ingestion runs are currently active.
func (m *Manager) InFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inFlight)
}

// Close cancels all in-flight runs and blocks until their goroutines
// finish. The manager rejects new work after Close.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	for _, cancel := range m.inFlight {
		cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
}
