// Package chunk stores the embedded text chunks that retrieval searches
// over. A chunk belongs to exactly one document, is written once during
// ingestion and never updated; it disappears only when its document is
// deleted.
package chunk

import "time"

// Metadata is the positional context recorded with each chunk, used for
// citation display alongside search results.
type Metadata struct {
	PageNumber int    `json:"page_number"`
	StartChar  int    `json:"start_char"`
	EndChar    int    `json:"end_char"`
	Section    string `json:"section"`
	Heading    string `json:"heading"`
}

// Chunk is one embedded slice of a document.
type Chunk struct {
	ID         int64
	DocumentID string
	Index      int // 0-based position in the document's split order
	Content    string
	Embedding  []float32
	Metadata   Metadata
	TokenCount int // approximate, whitespace-split word count
	CreatedAt  time.Time
}

// Stored pairs a chunk with its parent document's title, as loaded for
// retrieval scoring.
type Stored struct {
	Chunk
	DocumentTitle string
}
