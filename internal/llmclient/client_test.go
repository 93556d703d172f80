package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestChat_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Temperature != 0.0 || req.MaxTokens != 300 {
			t.Errorf("temperature/max_tokens = %v/%v", req.Temperature, req.MaxTokens)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("messages = %+v", req.Messages)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "VERDICT: SUPPORTED"}},
			},
		})
	}))
	defer srv.Close()

	c := NewClient("test-key", srv.URL, "test-model", "embed-model")
	got, err := c.Chat(context.Background(), "system", "user", 0.0, 300)
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}
	if got != "VERDICT: SUPPORTED" {
		t.Errorf("Chat() = %q", got)
	}
}

func TestChat_RetriesOn429(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "ok"}},
			},
		})
	}))
	defer srv.Close()

	c := NewClient("k", srv.URL, "m", "e")
	got, err := c.Chat(context.Background(), "s", "u", 0.0, 100)
	if err != nil {
		t.Fatalf("Chat() error after retry: %v", err)
	}
	if got != "ok" {
		t.Errorf("Chat() = %q", got)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("calls = %d, want 2 (one retry)", calls)
	}
}

func TestChat_AuthFailureNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient("bad-key", srv.URL, "m", "e")
	if _, err := c.Chat(context.Background(), "s", "u", 0.0, 100); err == nil {
		t.Fatal("expected auth error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("calls = %d, want 1 (auth errors are terminal)", calls)
	}
}

func TestEmbed_OrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("path = %q, want /embeddings", r.URL.Path)
		}
		// Return data out of order; the client must reassemble by index.
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 1, "embedding": []float32{2, 2}},
				{"index": 0, "embedding": []float32{1, 1}},
			},
		})
	}))
	defer srv.Close()

	c := NewClient("k", srv.URL, "m", "e")
	vecs, err := c.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}
	if vecs[0][0] != 1 || vecs[1][0] != 2 {
		t.Errorf("vectors out of order: %v", vecs)
	}
}

func TestEmbed_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 0, "embedding": []float32{1}},
			},
		})
	}))
	defer srv.Close()

	c := NewClient("k", srv.URL, "m", "e")
	if _, err := c.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected count mismatch error")
	}
}

func TestReranker_Rerank(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rerank" {
			t.Errorf("path = %q, want /rerank", r.URL.Path)
		}
		var req rerankRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Query == "" || len(req.Texts) != 2 {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode([]map[string]any{
			{"index": 1, "score": 0.92},
			{"index": 0, "score": 0.41},
		})
	}))
	defer srv.Close()

	re := NewReranker(srv.URL)
	scores, err := re.Rerank(context.Background(), "query", []string{"a", "b"})
	if err != nil {
		t.Fatalf("Rerank() error: %v", err)
	}
	if len(scores) != 2 || scores[0].Index != 1 || scores[0].Score != 0.92 {
		t.Errorf("scores = %+v", scores)
	}
}

func TestReranker_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	re := NewReranker(srv.URL)
	if _, err := re.Rerank(context.Background(), "q", []string{"a"}); err == nil {
		t.Fatal("expected error on 500")
	}
}
