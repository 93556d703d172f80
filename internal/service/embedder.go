package service

import (
	"context"
	"fmt"
	"math"
)

const (
	// maxEmbedBatch is the maximum texts per embedding API call.
	maxEmbedBatch = 96
)

// EmbeddingClient abstracts the document-side embedding API.
type EmbeddingClient interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// ChunkStore abstracts bulk insertion of chunks with their vectors.
type ChunkStore interface {
	BulkInsert(ctx context.Context, chunks []Chunk, vectors [][]float32) error
}

// Embedder generates embeddings for document chunks and persists them.
// Query and chunk vectors come from the same model, so retrieval compares
// like with like.
type Embedder struct {
	client     EmbeddingClient
	chunkStore ChunkStore
	dimensions int
}

// NewEmbedder creates an Embedder expecting vectors of the given
// dimensionality.
func NewEmbedder(client EmbeddingClient, chunkStore ChunkStore, dimensions int) *Embedder {
	if dimensions <= 0 {
		dimensions = 768
	}
	return &Embedder{
		client:     client,
		chunkStore: chunkStore,
		dimensions: dimensions,
	}
}

// EmbedTexts generates one L2-normalized vector per input text, batching as
// needed.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("service.EmbedTexts: no texts provided")
	}

	all := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += maxEmbedBatch {
		end := min(i+maxEmbedBatch, len(texts))

		vectors, err := e.client.EmbedTexts(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("service.EmbedTexts: batch %d-%d: %w", i, end, err)
		}

		for j, vec := range vectors {
			if len(vec) != e.dimensions {
				return nil, fmt.Errorf("service.EmbedTexts: vector %d has %d dimensions, want %d", i+j, len(vec), e.dimensions)
			}
			vectors[j] = l2Normalize(vec)
		}
		all = append(all, vectors...)
	}

	if len(all) != len(texts) {
		return nil, fmt.Errorf("service.EmbedTexts: got %d vectors for %d texts", len(all), len(texts))
	}

	return all, nil
}

// EmbedAndStore embeds chunks and persists them with their vectors.
func (e *Embedder) EmbedAndStore(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := e.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("service.EmbedAndStore: %w", err)
	}

	if err := e.chunkStore.BulkInsert(ctx, chunks, vectors); err != nil {
		return fmt.Errorf("service.EmbedAndStore: store: %w", err)
	}

	return nil
}

// l2Normalize scales a vector to unit length.
func l2Normalize(vec []float32) []float32 {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return vec
	}

	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}
