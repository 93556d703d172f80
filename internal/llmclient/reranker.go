package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/moats-ai/moats-backend/internal/service"
)

// Reranker calls a cross-encoder reranking service over HTTP
// (text-embeddings-inference style: POST /rerank with query and texts).
// Implements service.CrossEncoder.
type Reranker struct {
	baseURL    string
	httpClient *http.Client
}

// NewReranker creates a Reranker against the given base URL.
func NewReranker(baseURL string) *Reranker {
	return &Reranker{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

var _ service.CrossEncoder = (*Reranker)(nil)

type rerankRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type rerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Rerank scores each passage against the query. The service returns results
// ordered by relevance; score scale is model-defined (the ms-marco family
// produces roughly [0,1]).
func (r *Reranker) Rerank(ctx context.Context, query string, texts []string) ([]service.RerankScore, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	bodyBytes, err := json.Marshal(rerankRequest{Query: query, Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("llmclient: marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("llmclient: create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llmclient: rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("llmclient: read rerank response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("llmclient: rerank status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var parsed []rerankResult
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("llmclient: decode rerank response: %w", err)
	}

	scores := make([]service.RerankScore, len(parsed))
	for i, p := range parsed {
		scores[i] = service.RerankScore{Index: p.Index, Score: p.Score}
	}
	return scores, nil
}
