package chunk

import (
	"context"
	"testing"
)

func TestMemoryAppendListAll(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.RegisterDocument("doc-1", "Civil Code")

	for i := range 3 {
		err := m.Append(ctx, Chunk{
			DocumentID: "doc-1",
			Index:      i,
			Content:    "chunk content long enough to matter",
			Embedding:  []float32{float32(i), 1, 0},
		})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	stored, err := m.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(stored) != 3 {
		t.Fatalf("got %d chunks, want 3", len(stored))
	}
	for i, st := range stored {
		if st.Index != i {
			t.Errorf("chunk %d has index %d, want insertion order preserved", i, st.Index)
		}
		if st.DocumentTitle != "Civil Code" {
			t.Errorf("chunk %d title = %q, want Civil Code", i, st.DocumentTitle)
		}
		if st.ID == 0 {
			t.Errorf("chunk %d did not receive an id", i)
		}
	}
}

func TestMemoryListByDocumentSorted(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	// Out-of-order append, as a parallel embedding run would produce.
	for _, idx := range []int{2, 0, 1} {
		if err := m.Append(ctx, Chunk{DocumentID: "doc-1", Index: idx}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := m.Append(ctx, Chunk{DocumentID: "doc-2", Index: 0}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	chunks, err := m.ListByDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("ListByDocument: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("position %d has chunk index %d, want sorted by index", i, c.Index)
		}
	}
}

func TestMemoryDeleteByDocument(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_ = m.Append(ctx, Chunk{DocumentID: "doc-1", Index: 0})
	_ = m.Append(ctx, Chunk{DocumentID: "doc-2", Index: 0})
	_ = m.Append(ctx, Chunk{DocumentID: "doc-1", Index: 1})

	removed, err := m.DeleteByDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("DeleteByDocument: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	count, err := m.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}

	stored, _ := m.ListAll(ctx)
	if len(stored) != 1 || stored[0].DocumentID != "doc-2" {
		t.Errorf("surviving chunks = %+v, want only doc-2", stored)
	}
}
