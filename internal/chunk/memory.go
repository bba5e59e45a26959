package chunk

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-memory chunk store with the same surface as Store. It
// backs unit tests and small indexless deployments; ordering semantics
// (insertion order from ListAll) match the PostgreSQL store exactly so
// retrieval tie-breaking behaves identically against either.
type Memory struct {
	mu     sync.RWMutex
	nextID int64
	chunks []Stored
	titles map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{titles: make(map[string]string)}
}

// RegisterDocument records a document title for the ListAll join.
func (m *Memory) RegisterDocument(id, title string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.titles[id] = title
}

// Append stores one chunk.
func (m *Memory) Append(_ context.Context, c Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	c.ID = m.nextID
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	m.chunks = append(m.chunks, Stored{Chunk: c, DocumentTitle: m.titles[c.DocumentID]})
	return nil
}

// ListAll returns all chunks in insertion order.
func (m *Memory) ListAll(_ context.Context) ([]Stored, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Stored, len(m.chunks))
	copy(out, m.chunks)
	return out, nil
}

// ListByDocument returns a document's chunks ordered by chunk index.
func (m *Memory) ListByDocument(_ context.Context, documentID string) ([]Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Chunk
	for _, st := range m.chunks {
		if st.DocumentID == documentID {
			out = append(out, st.Chunk)
		}
	}
	// Insertion already follows chunk index for a single document, but a
	// replacement ingestion can interleave; sort to honor the contract.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Index < out[j-1].Index; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

// DeleteByDocument removes all chunks of one document.
func (m *Memory) DeleteByDocument(_ context.Context, documentID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.chunks[:0]
	var removed int64
	for _, st := range m.chunks {
		if st.DocumentID == documentID {
			removed++
			continue
		}
		kept = append(kept, st)
	}
	m.chunks = kept
	return removed, nil
}

// Count returns the number of stored chunks.
func (m *Memory) Count(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.chunks)), nil
}
