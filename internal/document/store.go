package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// documentCols is the standard SELECT column list for scanDocument.
const documentCols = `id, title, file_path, file_size, status,
	COALESCE(processing_error, ''), total_chunks, processed_chunks,
	page_count, text_length, created_at, updated_at`

// Store persists documents in PostgreSQL.
//
// Store is safe for concurrent use by multiple goroutines. Writes for one
// document always come from a single ingestion run (the ingest manager
// guarantees single-flight), so no row-level locking is needed here.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a document Store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Create inserts a new document. A missing ID gets a fresh UUID and a
// missing status defaults to StatusProcessing. The stored row is returned.
func (s *Store) Create(ctx context.Context, doc Document) (Document, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.Status == "" {
		doc.Status = StatusProcessing
	}

	row := s.pool.QueryRow(ctx, `INSERT INTO documents (id, title, file_path, file_size, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+documentCols,
		doc.ID, doc.Title, doc.FilePath, doc.FileSize, doc.Status)

	created, err := scanDocument(row)
	if err != nil {
		return Document{}, fmt.Errorf("creating document %q: %w", doc.Title, err)
	}

	s.logger.Debug("created document", "id", created.ID, "title", created.Title)
	return created, nil
}

// Get returns the document with the given id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (Document, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+documentCols+` FROM documents WHERE id = $1`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("getting document %q: %w", id, err)
	}
	return doc, nil
}

// List returns documents ordered newest first, capped at limit.
func (s *Store) List(ctx context.Context, limit int) ([]Document, error) {
	const maxListLimit = 1000
	if limit <= 0 || limit > maxListLimit {
		return nil, fmt.Errorf("limit must be between 1 and %d, got %d", maxListLimit, limit)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+documentCols+` FROM documents ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	return docs, nil
}

// TryMarkProcessing transitions a document to StatusProcessing, but only if
// it is not already processing. Returns false when another ingestion run
// holds the document. This conditional update is the cross-process half of
// the double-ingestion guard; the ingest manager's registry is the
// in-process half.
func (s *Store) TryMarkProcessing(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE documents
		SET status = $1, processing_error = NULL, updated_at = now()
		WHERE id = $2 AND status <> $1`,
		StatusProcessing, id)
	if err != nil {
		return false, fmt.Errorf("marking document %q processing: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		// Either the row is missing or it is already processing.
		if _, err := s.Get(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// MarkProcessed records the final ingestion counts and flips the document
// to StatusProcessed.
func (s *Store) MarkProcessed(ctx context.Context, id string, totalChunks, processedChunks, pageCount, textLength int) error {
	tag, err := s.pool.Exec(ctx, `UPDATE documents
		SET status = $1, processing_error = NULL,
			total_chunks = $2, processed_chunks = $3,
			page_count = $4, text_length = $5, updated_at = now()
		WHERE id = $6`,
		StatusProcessed, totalChunks, processedChunks, pageCount, textLength, id)
	if err != nil {
		return fmt.Errorf("marking document %q processed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	s.logger.Debug("document processed",
		"id", id,
		"total_chunks", totalChunks,
		"processed_chunks", processedChunks)
	return nil
}

// MarkError records a fatal ingestion failure.
func (s *Store) MarkError(ctx context.Context, id, message string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE documents
		SET status = $1, processing_error = $2, updated_at = now()
		WHERE id = $3`,
		StatusError, message, id)
	if err != nil {
		return fmt.Errorf("marking document %q errored: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a document and all of its chunks in one transaction, so
// a delete can never leave orphaned vectors behind to pollute retrieval.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning delete of document %q: %w", id, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, id); err != nil {
		return fmt.Errorf("deleting chunks of document %q: %w", id, err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting document %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing delete of document %q: %w", id, err)
	}

	s.logger.Debug("deleted document", "id", id)
	return nil
}

// scanDocument reads one row in documentCols order.
func scanDocument(row pgx.Row) (Document, error) {
	var doc Document
	err := row.Scan(
		&doc.ID, &doc.Title, &doc.FilePath, &doc.FileSize, &doc.Status,
		&doc.ProcessingError, &doc.TotalChunks, &doc.ProcessedChunks,
		&doc.PageCount, &doc.TextLength, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}
