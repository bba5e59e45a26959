// Package extract turns source files into plain text for the ingestion
// pipeline. Only PDF is supported; other formats would slot in as further
// extractor implementations behind the same contract.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ledongthuc/pdf"
)

// Result is the extracted content of a source file.
type Result struct {
	Text      string
	PageCount int
}

// Error reports a failed extraction. Extraction failure is fatal for the
// document: the caller records the message and marks the document errored.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("failed to extract text from %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

const defaultTimeout = 60 * time.Second

// PDF extracts plain text and page counts from PDF files.
type PDF struct {
	timeout time.Duration
	logger  *slog.Logger
}

// NewPDF creates a PDF extractor. A non-positive timeout takes the default.
func NewPDF(timeout time.Duration, logger *slog.Logger) *PDF {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PDF{timeout: timeout, logger: logger}
}

// Extract parses the PDF at path. The parse runs in its own goroutine so a
// malformed file cannot hold the pipeline past the timeout or past ctx
// cancellation.
func (p *PDF) Extract(ctx context.Context, path string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := ctx.Err(); err != nil {
		return Result{}, &Error{Path: path, Err: err}
	}

	type outcome struct {
		result Result
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		res, err := extractFile(path)
		done <- outcome{result: res, err: err}
	}()

	select {
	case <-ctx.Done():
		return Result{}, &Error{Path: path, Err: ctx.Err()}
	case out := <-done:
		if out.err != nil {
			return Result{}, &Error{Path: path, Err: out.err}
		}
		p.logger.Debug("extracted pdf",
			"path", path,
			"pages", out.result.PageCount,
			"text_length", len(out.result.Text))
		return out.result, nil
	}
}

func extractFile(path string) (Result, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("opening pdf: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	var buf bytes.Buffer
	content, err := reader.GetPlainText()
	if err != nil {
		return Result{}, fmt.Errorf("reading pdf text: %w", err)
	}
	if _, err := buf.ReadFrom(content); err != nil {
		return Result{}, fmt.Errorf("reading pdf text: %w", err)
	}

	return Result{
		Text:      buf.String(),
		PageCount: reader.NumPage(),
	}, nil
}
