package chunk

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Store persists chunks in PostgreSQL with their embeddings in a pgvector
// column.
//
// Store is safe for concurrent use by multiple goroutines; concurrent
// ingestions of different documents only ever touch their own rows.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a chunk Store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Append inserts one chunk. Chunks are persisted one at a time as each
// embedding arrives, never batched, so a crash mid-ingestion loses at most
// the in-flight chunk.
func (s *Store) Append(ctx context.Context, c Chunk) error {
	metadata, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata for chunk %d of document %q: %w", c.Index, c.DocumentID, err)
	}

	embedding := pgvector.NewVector(c.Embedding)
	_, err = s.pool.Exec(ctx, `INSERT INTO chunks
		(document_id, chunk_index, content, embedding, metadata, token_count)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		c.DocumentID, c.Index, c.Content, embedding, metadata, c.TokenCount)
	if err != nil {
		return fmt.Errorf("appending chunk %d of document %q: %w", c.Index, c.DocumentID, err)
	}

	s.logger.Debug("appended chunk",
		"document_id", c.DocumentID,
		"chunk_index", c.Index,
		"content_length", len(c.Content))
	return nil
}

// ListAll returns every chunk joined with its document title, in insertion
// order. Retrieval scores this full set; storage order is the tie-break
// order for equal similarity scores.
func (s *Store) ListAll(ctx context.Context) ([]Stored, error) {
	rows, err := s.pool.Query(ctx, `SELECT
			c.id, c.document_id, c.chunk_index, c.content, c.embedding,
			c.metadata, c.token_count, c.created_at, d.title
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		ORDER BY c.id`)
	if err != nil {
		return nil, fmt.Errorf("listing chunks: %w", err)
	}
	defer rows.Close()

	var stored []Stored
	for rows.Next() {
		var (
			st           Stored
			embedding    pgvector.Vector
			metadataJSON []byte
		)
		err := rows.Scan(&st.ID, &st.DocumentID, &st.Index, &st.Content,
			&embedding, &metadataJSON, &st.TokenCount, &st.CreatedAt, &st.DocumentTitle)
		if err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		st.Embedding = embedding.Slice()
		if err := json.Unmarshal(metadataJSON, &st.Metadata); err != nil {
			s.logger.Warn("unparseable chunk metadata", "chunk_id", st.ID, "error", err)
		}
		stored = append(stored, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing chunks: %w", err)
	}
	return stored, nil
}

// ListByDocument returns a document's chunks ordered by chunk index.
func (s *Store) ListByDocument(ctx context.Context, documentID string) ([]Chunk, error) {
	rows, err := s.pool.Query(ctx, `SELECT
			id, document_id, chunk_index, content, embedding,
			metadata, token_count, created_at
		FROM chunks
		WHERE document_id = $1
		ORDER BY chunk_index`, documentID)
	if err != nil {
		return nil, fmt.Errorf("listing chunks of document %q: %w", documentID, err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var (
			c            Chunk
			embedding    pgvector.Vector
			metadataJSON []byte
		)
		err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Content,
			&embedding, &metadataJSON, &c.TokenCount, &c.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		c.Embedding = embedding.Slice()
		if err := json.Unmarshal(metadataJSON, &c.Metadata); err != nil {
			s.logger.Warn("unparseable chunk metadata", "chunk_id", c.ID, "error", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing chunks of document %q: %w", documentID, err)
	}
	return chunks, nil
}

// DeleteByDocument removes all chunks of one document. Used when a document
// is re-ingested (replacement) and as part of cascade delete.
func (s *Store) DeleteByDocument(ctx context.Context, documentID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks of document %q: %w", documentID, err)
	}
	return tag.RowsAffected(), nil
}

// DeleteOrphans removes chunks whose document row no longer exists. An
// ingestion racing a document delete can land a chunk after the cascade
// ran; the reconciler calls this periodically to mop those up.
func (s *Store) DeleteOrphans(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chunks c
		WHERE NOT EXISTS (SELECT 1 FROM documents d WHERE d.id = c.document_id)`)
	if err != nil {
		return 0, fmt.Errorf("deleting orphaned chunks: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Count returns the total number of stored chunks.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return count, nil
}
