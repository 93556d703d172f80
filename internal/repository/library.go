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

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// LibraryRepo persists libraries.
type LibraryRepo struct {
	pool *pgxpool.Pool
}

// NewLibraryRepo creates a LibraryRepo.
func NewLibraryRepo(pool *pgxpool.Pool) *LibraryRepo {
	return &LibraryRepo{pool: pool}
}

const libraryColumns = `id, name, description, is_active, doc_count, chunk_count, created_at, updated_at`

// Create inserts a new library. The first library ever created is activated
// automatically.
func (r *LibraryRepo) Create(ctx context.Context, name, description string) (*model.Library, error) {
	now := time.Now().UTC()
	lib := &model.Library{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository.Create library: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var existing int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM libraries`).Scan(&existing); err != nil {
		return nil, fmt.Errorf("repository.Create library: count: %w", err)
	}
	lib.IsActive = existing == 0

	_, err = tx.Exec(ctx, `
		INSERT INTO libraries (id, name, description, is_active, doc_count, chunk_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, 0, $5, $5)`,
		lib.ID, lib.Name, lib.Description, lib.IsActive, now,
	)
	if err != nil {
		return nil, fmt.Errorf("repository.Create library: insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("repository.Create library: commit: %w", err)
	}
	return lib, nil
}

// GetByID fetches one library.
func (r *LibraryRepo) GetByID(ctx context.Context, id string) (*model.Library, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+libraryColumns+` FROM libraries WHERE id = $1`, id)
	return scanLibrary(row)
}

// GetActive fetches the active library, or ErrNotFound when none is active.
func (r *LibraryRepo) GetActive(ctx context.Context) (*model.Library, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+libraryColumns+` FROM libraries WHERE is_active = true LIMIT 1`)
	return scanLibrary(row)
}

// List returns all libraries, newest first.
func (r *LibraryRepo) List(ctx context.Context) ([]model.Library, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+libraryColumns+` FROM libraries ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("repository.List libraries: %w", err)
	}
	defer rows.Close()

	var libs []model.Library
	for rows.Next() {
		lib, err := scanLibrary(rows)
		if err != nil {
			return nil, err
		}
		libs = append(libs, *lib)
	}
	return libs, rows.Err()
}

// Update changes name and/or description. Empty values leave the column
// untouched.
func (r *LibraryRepo) Update(ctx context.Context, id, name, description string) (*model.Library, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE libraries SET
			name = COALESCE(NULLIF($2, ''), name),
			description = CASE WHEN $3 = '' THEN description ELSE $3 END,
			updated_at = $4
		WHERE id = $1`,
		id, name, description, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("repository.Update library: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

// Activate marks one library active and deactivates the rest.
func (r *LibraryRepo) Activate(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository.Activate library: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE libraries SET is_active = false WHERE is_active = true`); err != nil {
		return fmt.Errorf("repository.Activate library: deactivate: %w", err)
	}

	tag, err := tx.Exec(ctx, `UPDATE libraries SET is_active = true, updated_at = $2 WHERE id = $1`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("repository.Activate library: activate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return tx.Commit(ctx)
}

// Delete removes a library and, via cascades, its documents, chunks, and
// verifications.
func (r *LibraryRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM libraries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("repository.Delete library: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddCounts adjusts the denormalized document and chunk counters.
// Implements service.LibraryCounter.
func (r *LibraryRepo) AddCounts(ctx context.Context, libraryID string, docDelta, chunkDelta int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE libraries
		SET doc_count = doc_count + $2, chunk_count = chunk_count + $3, updated_at = $4
		WHERE id = $1`,
		libraryID, docDelta, chunkDelta, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("repository.AddCounts: %w", err)
	}
	return nil
}

func scanLibrary(row pgx.Row) (*model.Library, error) {
	var lib model.Library
	err := row.Scan(&lib.ID, &lib.Name, &lib.Description, &lib.IsActive,
		&lib.DocCount, &lib.ChunkCount, &lib.CreatedAt, &lib.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repository.scanLibrary: %w", err)
	}
	return &lib, nil
}
