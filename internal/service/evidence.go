package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sort"
	"time"
)

const (
	defaultTopK           = 5
	defaultMinRerankScore = 0.3
	defaultEmbedTimeout   = 180 * time.Second
)

// EvidencePassage is a text chunk from the library annotated with source
// attribution and a relevance score. Similarity is the retrieval cosine
// similarity; when a cross-encoder reranks, the rerank score replaces it.
type EvidencePassage struct {
	Text       string `json:"text"`
	Source     string `json:"source"`
	Page       *int   `json:"page,omitempty"`
	Similarity float64 `json:"similarity"`
	DocumentID string `json:"documentId"`
}

// SearchHit mirrors the repository's vector search result without importing
// the repository package.
type SearchHit struct {
	Text          string
	DocumentID    string
	DocumentTitle string
	StartPage     *int
	ChunkIndex    int
	Similarity    float64
}

// QueryEmbedder abstracts query embedding for testability.
type QueryEmbedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorSearcher abstracts nearest-neighbor search scoped to one library.
type VectorSearcher interface {
	SimilaritySearch(ctx context.Context, libraryID string, queryVec []float32, n int) ([]SearchHit, error)
}

// RerankScore is one cross-encoder score for a passage, by original index.
type RerankScore struct {
	Index int
	Score float64
}

// CrossEncoder abstracts the reranker service.
type CrossEncoder interface {
	Rerank(ctx context.Context, query string, texts []string) ([]RerankScore, error)
}

// VectorCache abstracts the query-embedding cache. Keys are hashes of the
// query text.
type VectorCache interface {
	Get(key string) ([]float32, bool)
	Set(key string, vec []float32)
}

// EvidenceRetriever embeds a claim, searches the library, reranks with a
// cross-encoder when one is configured, and gates weak results. Transient
// downstream failures yield an empty passage list, never an error: the
// pipeline interprets emptiness as no evidence.
type EvidenceRetriever struct {
	embedder QueryEmbedder
	searcher VectorSearcher
	reranker CrossEncoder // nil = similarity ordering, gate not applied
	cache    VectorCache  // nil = no caching

	topK           int
	minRerankScore float64
	embedTimeout   time.Duration
}

// NewEvidenceRetriever creates an EvidenceRetriever.
func NewEvidenceRetriever(embedder QueryEmbedder, searcher VectorSearcher) *EvidenceRetriever {
	return &EvidenceRetriever{
		embedder:       embedder,
		searcher:       searcher,
		topK:           defaultTopK,
		minRerankScore: defaultMinRerankScore,
		embedTimeout:   defaultEmbedTimeout,
	}
}

// SetReranker attaches a cross-encoder. When nil (default), passages are
// ordered by retrieval similarity and the rerank gate is skipped.
func (r *EvidenceRetriever) SetReranker(re CrossEncoder) {
	r.reranker = re
}

// SetCache attaches a query-embedding cache.
func (r *EvidenceRetriever) SetCache(c VectorCache) {
	r.cache = c
}

// SetTopK overrides the number of passages returned.
func (r *EvidenceRetriever) SetTopK(k int) {
	if k > 0 {
		r.topK = k
	}
}

// SetMinRerankScore overrides the rerank gate threshold. The default is
// calibrated for cross-encoders producing roughly [0,1] relevance scores.
func (r *EvidenceRetriever) SetMinRerankScore(s float64) {
	r.minRerankScore = s
}

// SetEmbedTimeout overrides the embedding call deadline.
func (r *EvidenceRetriever) SetEmbedTimeout(d time.Duration) {
	if d > 0 {
		r.embedTimeout = d
	}
}

// Retrieve returns the top-k evidence passages for a claim from the library,
// ordered by reranked score (or retrieval similarity when no reranker is
// available) with stable tie-breaking on retrieval position.
func (r *EvidenceRetriever) Retrieve(ctx context.Context, claim, libraryID string) []EvidencePassage {
	queryVec, err := r.embedQuery(ctx, claim)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		slog.Warn("evidence retrieval: embedding failed", "error", err)
		return nil
	}

	hits, err := r.searcher.SimilaritySearch(ctx, libraryID, queryVec, r.topK*2)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		slog.Warn("evidence retrieval: vector search failed", "library_id", libraryID, "error", err)
		return nil
	}
	if len(hits) == 0 {
		return nil
	}

	passages := make([]EvidencePassage, len(hits))
	for i, h := range hits {
		passages[i] = EvidencePassage{
			Text:       h.Text,
			Source:     h.DocumentTitle,
			Page:       h.StartPage,
			Similarity: h.Similarity,
			DocumentID: h.DocumentID,
		}
	}

	ranked, reranked := r.rerank(ctx, claim, passages)

	// If the cross-encoder says even the best passage is weak, treat the
	// whole retrieval as yielding no evidence.
	if reranked && len(ranked) > 0 && ranked[0].Similarity < r.minRerankScore {
		slog.Info("evidence retrieval: rerank gate triggered",
			"best_score", ranked[0].Similarity,
			"min_rerank_score", r.minRerankScore,
		)
		return nil
	}

	return ranked
}

// embedQuery embeds the claim text with its own deadline, consulting the
// cache first.
func (r *EvidenceRetriever) embedQuery(ctx context.Context, claim string) ([]float32, error) {
	key := queryHash(claim)
	if r.cache != nil {
		if vec, ok := r.cache.Get(key); ok {
			return vec, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.embedTimeout)
	defer cancel()

	vecs, err := r.embedder.Embed(ctx, []string{claim})
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache.Set(key, vecs[0])
	}
	return vecs[0], nil
}

// rerank orders passages with the cross-encoder, replacing similarity with
// the rerank score. Reports whether reranking actually ran; on any failure it
// falls back to similarity ordering.
func (r *EvidenceRetriever) rerank(ctx context.Context, query string, passages []EvidencePassage) ([]EvidencePassage, bool) {
	if r.reranker == nil {
		return similarityOrder(passages, r.topK), false
	}

	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}

	scores, err := r.reranker.Rerank(ctx, query, texts)
	if err != nil {
		slog.Warn("evidence retrieval: rerank failed, falling back to similarity order", "error", err)
		return similarityOrder(passages, r.topK), false
	}

	// Stable order by (score desc, original retrieval position asc).
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].Index < scores[j].Index
	})

	var ranked []EvidencePassage
	for _, s := range scores {
		if s.Index < 0 || s.Index >= len(passages) {
			continue
		}
		p := passages[s.Index]
		p.Similarity = s.Score
		ranked = append(ranked, p)
		if len(ranked) == r.topK {
			break
		}
	}
	return ranked, true
}

// similarityOrder stable-sorts passages by retrieval similarity descending
// and truncates to k.
func similarityOrder(passages []EvidencePassage, k int) []EvidencePassage {
	out := make([]EvidencePassage, len(passages))
	copy(out, passages)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Similarity > out[j].Similarity
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// queryHash keys the embedding cache by the SHA-256 of the claim text as given.
func queryHash(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:])
}
