package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kagaj-ai/kagaj/internal/log"
)

func TestExtractMissingFile(t *testing.T) {
	p := NewPDF(0, log.NewNop())

	_, err := p.Extract(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))

	var extractErr *Error
	if !errors.As(err, &extractErr) {
		t.Fatalf("error = %v, want *Error", err)
	}
	if extractErr.Path == "" {
		t.Error("error does not carry the file path")
	}
}

func TestExtractMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a.pdf")
	if err := os.WriteFile(path, []byte("plain text, not a pdf"), 0o600); err != nil {
		t.Fatal(err)
	}

	p := NewPDF(0, log.NewNop())
	_, err := p.Extract(context.Background(), path)

	var extractErr *Error
	if !errors.As(err, &extractErr) {
		t.Fatalf("error = %v, want *Error for malformed input", err)
	}
}

func TestExtractCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPDF(0, log.NewNop())
	_, err := p.Extract(ctx, filepath.Join(t.TempDir(), "any.pdf"))

	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled in chain", err)
	}
}
