package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kagaj-ai/kagaj/internal/document"
	"github.com/kagaj-ai/kagaj/internal/ingest"
	"github.com/kagaj-ai/kagaj/internal/log"
)

type stubDocumentStore struct {
	docs      map[string]document.Document
	createErr error
	deleted   []string
}

func newStubDocumentStore() *stubDocumentStore {
	return &stubDocumentStore{docs: make(map[string]document.Document)}
}

func (s *stubDocumentStore) Create(_ context.Context, doc document.Document) (document.Document, error) {
	if s.createErr != nil {
		return document.Document{}, s.createErr
	}
	if doc.ID == "" {
		doc.ID = "doc-1"
	}
	doc.Status = document.StatusProcessing
	s.docs[doc.ID] = doc
	return doc, nil
}

func (s *stubDocumentStore) Get(_ context.Context, id string) (document.Document, error) {
	doc, ok := s.docs[id]
	if !ok {
		return document.Document{}, document.ErrNotFound
	}
	return doc, nil
}

func (s *stubDocumentStore) List(_ context.Context, _ int) ([]document.Document, error) {
	var docs []document.Document
	for _, d := range s.docs {
		docs = append(docs, d)
	}
	return docs, nil
}

func (s *stubDocumentStore) Delete(_ context.Context, id string) error {
	if _, ok := s.docs[id]; !ok {
		return document.ErrNotFound
	}
	delete(s.docs, id)
	s.deleted = append(s.deleted, id)
	return nil
}

type stubIngestor struct {
	enqueueErr error
	enqueued   []string
	canceled   []string
}

func (s *stubIngestor) Enqueue(_ context.Context, doc document.Document) error {
	if s.enqueueErr != nil {
		return s.enqueueErr
	}
	s.enqueued = append(s.enqueued, doc.ID)
	return nil
}

func (s *stubIngestor) Cancel(id string) bool {
	s.canceled = append(s.canceled, id)
	return false
}

func newDocumentTestServer(store *stubDocumentStore, ingestor *stubIngestor) *httptest.Server {
	h := NewDocumentHandler(store, ingestor, log.NewNop())
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return httptest.NewServer(mux)
}

func tempPDF(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4"), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCreateDocumentAccepted(t *testing.T) {
	store := newStubDocumentStore()
	ingestor := &stubIngestor{}
	srv := newDocumentTestServer(store, ingestor)
	defer srv.Close()

	body := `{"path": "` + tempPDF(t) + `", "title": "Employee Handbook"}`
	resp, err := http.Post(srv.URL+"/api/v1/documents", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	var got documentResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Status != "processing" {
		t.Errorf("Status = %q, want processing", got.Status)
	}
	if len(ingestor.enqueued) != 1 || ingestor.enqueued[0] != got.ID {
		t.Errorf("ingestion not enqueued for %q: %v", got.ID, ingestor.enqueued)
	}
}

func TestCreateDocumentValidation(t *testing.T) {
	srv := newDocumentTestServer(newStubDocumentStore(), &stubIngestor{})
	defer srv.Close()

	tests := []struct {
		name string
		body string
	}{
		{"not json", "not-json"},
		{"missing path", `{"title": "T"}`},
		{"missing title", `{"path": "/tmp/x.pdf"}`},
		{"missing file", `{"path": "/nonexistent/file.pdf", "title": "T"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/api/v1/documents", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestCreateDocumentConflict(t *testing.T) {
	ingestor := &stubIngestor{enqueueErr: ingest.ErrAlreadyProcessing}
	srv := newDocumentTestServer(newStubDocumentStore(), ingestor)
	defer srv.Close()

	body := `{"path": "` + tempPDF(t) + `", "title": "T"}`
	resp, err := http.Post(srv.URL+"/api/v1/documents", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestDocumentStatus(t *testing.T) {
	store := newStubDocumentStore()
	store.docs["doc-1"] = document.Document{
		ID: "doc-1", Title: "T", Status: document.StatusProcessed,
		TotalChunks: 10, ProcessedChunks: 8,
	}
	srv := newDocumentTestServer(store, &stubIngestor{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/documents/doc-1/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got documentResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Progress != 80 {
		t.Errorf("Progress = %v, want 80", got.Progress)
	}
}

func TestDocumentDetail(t *testing.T) {
	store := newStubDocumentStore()
	store.docs["doc-1"] = document.Document{
		ID: "doc-1", Title: "Handbook", Status: document.StatusProcessed,
	}
	srv := newDocumentTestServer(store, &stubIngestor{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/documents/doc-1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got documentResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Title != "Handbook" {
		t.Errorf("Title = %q, want Handbook", got.Title)
	}
}

func TestDocumentStatusNotFound(t *testing.T) {
	srv := newDocumentTestServer(newStubDocumentStore(), &stubIngestor{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/documents/missing/status")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestDeleteDocument(t *testing.T) {
	store := newStubDocumentStore()
	store.docs["doc-1"] = document.Document{ID: "doc-1"}
	ingestor := &stubIngestor{}
	srv := newDocumentTestServer(store, ingestor)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/documents/doc-1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if len(ingestor.canceled) != 1 || ingestor.canceled[0] != "doc-1" {
		t.Errorf("in-flight run not canceled before delete: %v", ingestor.canceled)
	}
	if len(store.deleted) != 1 {
		t.Errorf("document not deleted")
	}
}
