package service

import (
	"context"
	"fmt"
	"testing"
)

// mockQueryEmbedder implements QueryEmbedder for testing.
type mockQueryEmbedder struct {
	err   error
	calls int
}

func (m *mockQueryEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	result := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, 768)
		vec[0] = 1.0
		result[i] = vec
	}
	return result, nil
}

// mockVectorSearcher implements VectorSearcher for testing.
type mockVectorSearcher struct {
	hits        []SearchHit
	err         error
	capturedN   int
	capturedLib string
}

func (m *mockVectorSearcher) SimilaritySearch(ctx context.Context, libraryID string, queryVec []float32, n int) ([]SearchHit, error) {
	m.capturedN = n
	m.capturedLib = libraryID
	if m.err != nil {
		return nil, m.err
	}
	return m.hits, nil
}

// mockCrossEncoder implements CrossEncoder for testing.
type mockCrossEncoder struct {
	scores []RerankScore
	err    error
	calls  int
}

func (m *mockCrossEncoder) Rerank(ctx context.Context, query string, texts []string) ([]RerankScore, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.scores, nil
}

// mapVectorCache implements VectorCache for testing.
type mapVectorCache struct {
	entries map[string][]float32
}

func newMapVectorCache() *mapVectorCache {
	return &mapVectorCache{entries: make(map[string][]float32)}
}

func (m *mapVectorCache) Get(key string) ([]float32, bool) {
	vec, ok := m.entries[key]
	return vec, ok
}

func (m *mapVectorCache) Set(key string, vec []float32) {
	m.entries[key] = vec
}

func makeHit(doc string, sim float64) SearchHit {
	return SearchHit{
		Text:          "chunk from " + doc,
		DocumentID:    doc,
		DocumentTitle: doc + ".pdf",
		Similarity:    sim,
	}
}

func TestRetrieve_SimilarityOrderWithoutReranker(t *testing.T) {
	searcher := &mockVectorSearcher{hits: []SearchHit{
		makeHit("doc-low", 0.40),
		makeHit("doc-high", 0.90),
		makeHit("doc-mid", 0.70),
	}}
	r := NewEvidenceRetriever(&mockQueryEmbedder{}, searcher)

	passages := r.Retrieve(context.Background(), "some claim", "lib-1")
	if len(passages) != 3 {
		t.Fatalf("passages = %d, want 3", len(passages))
	}
	if passages[0].Source != "doc-high.pdf" || passages[1].Source != "doc-mid.pdf" {
		t.Errorf("wrong order: %v, %v", passages[0].Source, passages[1].Source)
	}
	if searcher.capturedN != 10 {
		t.Errorf("searched for %d candidates, want 2*topK = 10", searcher.capturedN)
	}
	if searcher.capturedLib != "lib-1" {
		t.Errorf("library = %q, want lib-1", searcher.capturedLib)
	}
}

func TestRetrieve_EmbedFailureReturnsEmpty(t *testing.T) {
	r := NewEvidenceRetriever(
		&mockQueryEmbedder{err: fmt.Errorf("provider down")},
		&mockVectorSearcher{hits: []SearchHit{makeHit("doc", 0.9)}},
	)

	if passages := r.Retrieve(context.Background(), "claim", "lib-1"); passages != nil {
		t.Errorf("passages = %v, want nil on embed failure", passages)
	}
}

func TestRetrieve_SearchFailureReturnsEmpty(t *testing.T) {
	r := NewEvidenceRetriever(
		&mockQueryEmbedder{},
		&mockVectorSearcher{err: fmt.Errorf("store unavailable")},
	)

	if passages := r.Retrieve(context.Background(), "claim", "lib-1"); passages != nil {
		t.Errorf("passages = %v, want nil on search failure", passages)
	}
}

func TestRetrieve_RerankReordersAndReplacesScores(t *testing.T) {
	searcher := &mockVectorSearcher{hits: []SearchHit{
		makeHit("doc-a", 0.9),
		makeHit("doc-b", 0.8),
	}}
	reranker := &mockCrossEncoder{scores: []RerankScore{
		{Index: 1, Score: 0.95},
		{Index: 0, Score: 0.60},
	}}

	r := NewEvidenceRetriever(&mockQueryEmbedder{}, searcher)
	r.SetReranker(reranker)

	passages := r.Retrieve(context.Background(), "claim", "lib-1")
	if len(passages) != 2 {
		t.Fatalf("passages = %d, want 2", len(passages))
	}
	if passages[0].Source != "doc-b.pdf" {
		t.Errorf("top passage = %v, want reranked doc-b.pdf", passages[0].Source)
	}
	if !almostEqual(passages[0].Similarity, 0.95) {
		t.Errorf("top similarity = %v, want rerank score 0.95", passages[0].Similarity)
	}
}

func TestRetrieve_RerankGate(t *testing.T) {
	searcher := &mockVectorSearcher{hits: []SearchHit{
		makeHit("doc-a", 0.9),
		makeHit("doc-b", 0.8),
	}}
	reranker := &mockCrossEncoder{scores: []RerankScore{
		{Index: 0, Score: 0.25},
		{Index: 1, Score: 0.10},
	}}

	r := NewEvidenceRetriever(&mockQueryEmbedder{}, searcher)
	r.SetReranker(reranker)

	if passages := r.Retrieve(context.Background(), "claim", "lib-1"); passages != nil {
		t.Errorf("passages = %v, want nil when best rerank score < 0.3", passages)
	}
}

func TestRetrieve_GateNotAppliedWithoutReranker(t *testing.T) {
	// Similarities below the gate threshold still come back when no
	// reranker ran.
	searcher := &mockVectorSearcher{hits: []SearchHit{makeHit("doc-a", 0.1)}}
	r := NewEvidenceRetriever(&mockQueryEmbedder{}, searcher)

	passages := r.Retrieve(context.Background(), "claim", "lib-1")
	if len(passages) != 1 {
		t.Errorf("passages = %d, want 1 (gate only applies after reranking)", len(passages))
	}
}

func TestRetrieve_GateNotAppliedWhenRerankFails(t *testing.T) {
	searcher := &mockVectorSearcher{hits: []SearchHit{makeHit("doc-a", 0.1)}}
	r := NewEvidenceRetriever(&mockQueryEmbedder{}, searcher)
	r.SetReranker(&mockCrossEncoder{err: fmt.Errorf("reranker down")})

	passages := r.Retrieve(context.Background(), "claim", "lib-1")
	if len(passages) != 1 {
		t.Errorf("passages = %d, want 1 via similarity fallback", len(passages))
	}
}

func TestRetrieve_RerankTieBreaksOnRetrievalPosition(t *testing.T) {
	searcher := &mockVectorSearcher{hits: []SearchHit{
		makeHit("doc-first", 0.9),
		makeHit("doc-second", 0.8),
	}}
	reranker := &mockCrossEncoder{scores: []RerankScore{
		{Index: 1, Score: 0.5},
		{Index: 0, Score: 0.5},
	}}

	r := NewEvidenceRetriever(&mockQueryEmbedder{}, searcher)
	r.SetReranker(reranker)

	passages := r.Retrieve(context.Background(), "claim", "lib-1")
	if len(passages) != 2 {
		t.Fatalf("passages = %d, want 2", len(passages))
	}
	if passages[0].Source != "doc-first.pdf" {
		t.Errorf("tie should break on retrieval position: got %v first", passages[0].Source)
	}
}

func TestRetrieve_TruncatesToTopK(t *testing.T) {
	var hits []SearchHit
	for i := 0; i < 8; i++ {
		hits = append(hits, makeHit(fmt.Sprintf("doc-%d", i), 0.9-float64(i)*0.05))
	}
	r := NewEvidenceRetriever(&mockQueryEmbedder{}, &mockVectorSearcher{hits: hits})
	r.SetTopK(3)

	passages := r.Retrieve(context.Background(), "claim", "lib-1")
	if len(passages) != 3 {
		t.Errorf("passages = %d, want topK = 3", len(passages))
	}
}

func TestRetrieve_EmbeddingCacheHitSkipsProvider(t *testing.T) {
	embedder := &mockQueryEmbedder{}
	searcher := &mockVectorSearcher{hits: []SearchHit{makeHit("doc", 0.9)}}

	r := NewEvidenceRetriever(embedder, searcher)
	r.SetCache(newMapVectorCache())

	r.Retrieve(context.Background(), "same claim", "lib-1")
	r.Retrieve(context.Background(), "same claim", "lib-1")

	if embedder.calls != 1 {
		t.Errorf("embed calls = %d, want 1 (second retrieve should hit cache)", embedder.calls)
	}
}
