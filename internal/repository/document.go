package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/moats-ai/moats-backend/internal/model"
)

// DocumentRepo persists document metadata.
type DocumentRepo struct {
	pool *pgxpool.Pool
}

// NewDocumentRepo creates a DocumentRepo.
func NewDocumentRepo(pool *pgxpool.Pool) *DocumentRepo {
	return &DocumentRepo{pool: pool}
}

// Create inserts a new document row for a library.
func (r *DocumentRepo) Create(ctx context.Context, libraryID, title, sourceType string) (*model.Document, error) {
	doc := &model.Document{
		ID:         uuid.New().String(),
		LibraryID:  libraryID,
		Title:      title,
		SourceType: sourceType,
		CreatedAt:  time.Now().UTC(),
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO documents (id, library_id, title, source_type, chunk_count, created_at)
		VALUES ($1, $2, $3, $4, 0, $5)`,
		doc.ID, doc.LibraryID, doc.Title, doc.SourceType, doc.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("repository.Create document: %w", err)
	}
	return doc, nil
}

// GetByID fetches one document.
func (r *DocumentRepo) GetByID(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	err := r.pool.QueryRow(ctx, `
		SELECT id, library_id, title, source_type, chunk_count, created_at
		FROM documents WHERE id = $1`, id,
	).Scan(&doc.ID, &doc.LibraryID, &doc.Title, &doc.SourceType, &doc.ChunkCount, &doc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repository.GetByID document: %w", err)
	}
	return &doc, nil
}

// ListByLibrary returns a library's documents, newest first.
func (r *DocumentRepo) ListByLibrary(ctx context.Context, libraryID string) ([]model.Document, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, library_id, title, source_type, chunk_count, created_at
		FROM documents WHERE library_id = $1 ORDER BY created_at DESC`, libraryID)
	if err != nil {
		return nil, fmt.Errorf("repository.ListByLibrary: %w", err)
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		var doc model.Document
		if err := rows.Scan(&doc.ID, &doc.LibraryID, &doc.Title, &doc.SourceType, &doc.ChunkCount, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("repository.ListByLibrary: scan: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// UpdateChunkCount sets the chunk counter after ingestion. Implements
// service.DocumentStore.
func (r *DocumentRepo) UpdateChunkCount(ctx context.Context, docID string, count int) error {
	_, err := r.pool.Exec(ctx, `UPDATE documents SET chunk_count = $2 WHERE id = $1`, docID, count)
	if err != nil {
		return fmt.Errorf("repository.UpdateChunkCount: %w", err)
	}
	return nil
}

// Delete removes a document and its chunks.
func (r *DocumentRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("repository.Delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
