// Package document holds the document model and its processing lifecycle.
//
// A document is created in status "processing" when a file is accepted,
// and the ingestion pipeline is the only writer of its status and counts.
// The rest of the system observes progress through this record, never
// through errors crossing the ingestion boundary.
package document

import (
	"errors"
	"time"
)

// Status is a document's position in the processing lifecycle.
type Status string

const (
	// StatusProcessing marks a document whose ingestion is in flight.
	StatusProcessing Status = "processing"

	// StatusProcessed marks a document whose ingestion completed. A
	// processed document may still have processed_chunks < total_chunks
	// when individual chunks failed to embed.
	StatusProcessed Status = "processed"

	// StatusError marks a document whose extraction failed. The cause is
	// kept in ProcessingError.
	StatusError Status = "error"
)

// ErrNotFound is returned when a document id has no row.
var ErrNotFound = errors.New("document not found")

// Document is a source file registered for ingestion.
type Document struct {
	ID              string
	Title           string
	FilePath        string
	FileSize        int64
	Status          Status
	ProcessingError string // set only when Status is StatusError
	TotalChunks     int
	ProcessedChunks int
	PageCount       int
	TextLength      int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Progress returns the ingestion completion percentage for status polling.
func (d Document) Progress() float64 {
	if d.TotalChunks == 0 {
		return 0
	}
	return float64(d.ProcessedChunks) / float64(d.TotalChunks) * 100
}
