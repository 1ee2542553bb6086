package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"github.com/arthmitra/arthmitra/internal/config"
	"github.com/arthmitra/arthmitra/internal/errs"
)

func newTestClient(baseURL, provider string) *Client {
	return NewClient(config.EmbeddingConfig{
		Provider:  provider,
		BaseURL:   baseURL,
		APIKey:    "test-key",
		Model:     "test-model",
		TimeoutMs: 2000,
		CacheSize: 8,
	}, zerolog.Nop())
}

func TestEmbedOpenAIProvider(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/v1/embeddings" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("auth header = %q", got)
		}

		var body struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body.Model != "test-model" {
			t.Fatalf("model = %q", body.Model)
		}
		if len(body.Input) != 1 || body.Input[0] != "hello there" {
			t.Fatalf("input = %v", body.Input)
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"index": 0, "embedding": []float32{0.1, 0.2, 0.3}}},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, ProviderOpenAI)

	vec, err := c.Embed(context.Background(), "  hello there  ")
	if err != nil {
		t.Fatalf("Embed error: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Fatalf("vec = %v", vec)
	}

	// Second call for the same text must hit the memo.
	if _, err := c.Embed(context.Background(), "hello there"); err != nil {
		t.Fatalf("Embed (cached) error: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("provider calls = %d, want 1", got)
	}
}

func TestEmbedWorkersAIProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/test-model" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		var body struct {
			Text []string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(body.Text) != 2 {
			t.Fatalf("text = %v", body.Text)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{
				"data": []map[string]any{
					{"embedding": []float32{1, 0}},
					{"embedding": []float32{0, 1}},
				},
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, ProviderWorkersAI)

	vecs, err := c.EmbedBatch(context.Background(), []string{"one", "two"})
	if err != nil {
		t.Fatalf("EmbedBatch error: %v", err)
	}
	if len(vecs) != 2 || vecs[1][1] != 1 {
		t.Fatalf("vecs = %v", vecs)
	}
}

func TestEmbedRetriesOnceOnServerError(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "upstream hiccup", http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{0.5}}},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, ProviderOpenAI)

	vec, err := c.Embed(context.Background(), "flaky")
	if err != nil {
		t.Fatalf("Embed error: %v", err)
	}
	if vec[0] != 0.5 {
		t.Fatalf("vec = %v", vec)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("provider calls = %d, want 2", got)
	}
}

func TestEmbedDoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad model", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, ProviderOpenAI)

	_, err := c.Embed(context.Background(), "rejected")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, errs.ErrProvider) {
		t.Fatalf("error kind = %v, want ErrProvider", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("provider calls = %d, want 1", got)
	}
}

func TestEmbedMalformedResponseIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"surprise": true}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, ProviderOpenAI)

	_, err := c.Embed(context.Background(), "odd shape")
	if !errors.Is(err, errs.ErrProvider) {
		t.Fatalf("error kind = %v, want ErrProvider", err)
	}
}

func TestEmbedRejectsBlankText(t *testing.T) {
	c := newTestClient("http://unused.invalid", ProviderOpenAI)

	_, err := c.Embed(context.Background(), "   ")
	if !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("error kind = %v, want ErrValidation", err)
	}
}

func TestEmbedDimensionGuard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{1, 2, 3}}},
		})
	}))
	defer srv.Close()

	c := NewClient(config.EmbeddingConfig{
		Provider:  ProviderOpenAI,
		BaseURL:   srv.URL,
		Model:     "test-model",
		Dimension: 2,
		TimeoutMs: 2000,
		CacheSize: 8,
	}, zerolog.Nop())

	_, err := c.Embed(context.Background(), "wrong dim")
	if !errors.Is(err, errs.ErrProvider) {
		t.Fatalf("error kind = %v, want ErrProvider", err)
	}
}
