package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/moats-ai/moats-backend/internal/model"
)

// VerificationRepo persists completed verification runs. Claims are stored
// as a JSONB document since they are only ever read back whole.
type VerificationRepo struct {
	pool *pgxpool.Pool
}

// NewVerificationRepo creates a VerificationRepo.
func NewVerificationRepo(pool *pgxpool.Pool) *VerificationRepo {
	return &VerificationRepo{pool: pool}
}

// VerificationSummary is a history listing row.
type VerificationSummary struct {
	ID         string    `json:"id"`
	LibraryID  string    `json:"libraryId"`
	InputText  string    `json:"inputText"`
	TrustScore float64   `json:"trustScore"`
	ClaimCount int       `json:"claimCount"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Save stores a completed verification and returns its id. Persistence
// happens only after the pipeline returned a full result.
func (r *VerificationRepo) Save(ctx context.Context, libraryID, inputText string, result *model.VerificationResult) (string, error) {
	claims, err := json.Marshal(result.Claims)
	if err != nil {
		return "", fmt.Errorf("repository.Save verification: marshal claims: %w", err)
	}

	id := uuid.New().String()
	_, err = r.pool.Exec(ctx, `
		INSERT INTO verifications (id, library_id, input_text, trust_score, claims, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		id, libraryID, inputText, result.TrustScore, claims, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("repository.Save verification: %w", err)
	}
	return id, nil
}

// GetByID fetches one stored verification with its full claim list.
func (r *VerificationRepo) GetByID(ctx context.Context, id string) (*model.Verification, error) {
	var v model.Verification
	var claims []byte

	err := r.pool.QueryRow(ctx, `
		SELECT id, library_id, input_text, trust_score, claims, created_at
		FROM verifications WHERE id = $1`, id,
	).Scan(&v.ID, &v.LibraryID, &v.InputText, &v.TrustScore, &claims, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repository.GetByID verification: %w", err)
	}

	if err := json.Unmarshal(claims, &v.Claims); err != nil {
		return nil, fmt.Errorf("repository.GetByID verification: unmarshal claims: %w", err)
	}
	return &v, nil
}

// History lists recent verifications, optionally scoped to a library. Input
// text is truncated to 200 characters for listing.
func (r *VerificationRepo) History(ctx context.Context, libraryID string, limit int) ([]VerificationSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, library_id, left(input_text, 200), trust_score, jsonb_array_length(claims), created_at
		FROM verifications`
	args := []any{limit}
	if libraryID != "" {
		query += ` WHERE library_id = $2`
		args = append(args, libraryID)
	}
	query += ` ORDER BY created_at DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository.History: %w", err)
	}
	defer rows.Close()

	var out []VerificationSummary
	for rows.Next() {
		var s VerificationSummary
		if err := rows.Scan(&s.ID, &s.LibraryID, &s.InputText, &s.TrustScore, &s.ClaimCount, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("repository.History: scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Delete removes a stored verification.
func (r *VerificationRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM verifications WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("repository.Delete verification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
