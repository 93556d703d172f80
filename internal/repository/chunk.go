package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/moats-ai/moats-backend/internal/service"
)

// ChunkRepo implements service.ChunkStore and service.VectorSearcher over
// Postgres with pgvector.
type ChunkRepo struct {
	pool *pgxpool.Pool
}

// NewChunkRepo creates a ChunkRepo.
func NewChunkRepo(pool *pgxpool.Pool) *ChunkRepo {
	return &ChunkRepo{pool: pool}
}

// Compile-time checks.
var (
	_ service.ChunkStore     = (*ChunkRepo)(nil)
	_ service.VectorSearcher = (*ChunkRepo)(nil)
)

// BulkInsert stores chunks with their embedding vectors using pgx batching.
func (r *ChunkRepo) BulkInsert(ctx context.Context, chunks []service.Chunk, vectors [][]float32) error {
	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("repository.BulkInsert: chunk count (%d) != vector count (%d)", len(chunks), len(vectors))
	}

	batch := &pgx.Batch{}
	now := time.Now().UTC()

	for i, c := range chunks {
		id := uuid.New().String()
		embedding := pgvector.NewVector(vectors[i])

		batch.Queue(`
			INSERT INTO document_chunks (id, document_id, chunk_index, content, content_hash, token_count, start_page, embedding, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			id, c.DocumentID, c.Index, c.Content, c.ContentHash, c.TokenCount, c.StartPage, embedding, now,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < len(chunks); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("repository.BulkInsert: chunk %d: %w", i, err)
		}
	}

	return nil
}

// SimilaritySearch finds the n chunks nearest to queryVec by cosine distance,
// scoped to one library. Similarity is 1 - distance, clamped to [0,1];
// ordering is by distance ascending.
func (r *ChunkRepo) SimilaritySearch(ctx context.Context, libraryID string, queryVec []float32, n int) ([]service.SearchHit, error) {
	embedding := pgvector.NewVector(queryVec)

	rows, err := r.pool.Query(ctx, `
		SELECT
			dc.content, dc.chunk_index, dc.start_page,
			1 - (dc.embedding <=> $1::vector) AS similarity,
			d.id, d.title
		FROM document_chunks dc
		JOIN documents d ON dc.document_id = d.id
		WHERE d.library_id = $2
		ORDER BY dc.embedding <=> $1::vector
		LIMIT $3`,
		embedding, libraryID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("repository.SimilaritySearch: %w", err)
	}
	defer rows.Close()

	var hits []service.SearchHit
	for rows.Next() {
		var h service.SearchHit
		if err := rows.Scan(&h.Text, &h.ChunkIndex, &h.StartPage, &h.Similarity, &h.DocumentID, &h.DocumentTitle); err != nil {
			return nil, fmt.Errorf("repository.SimilaritySearch: scan: %w", err)
		}
		if h.Similarity < 0 {
			h.Similarity = 0
		}
		if h.Similarity > 1 {
			h.Similarity = 1
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
