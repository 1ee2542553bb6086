// Package embedding turns text into fixed-length vectors via a remote
// provider. Responses are normalized across provider JSON layouts, distinct
// inputs are memoized in a bounded LRU, and concurrent requests for the same
// input collapse into one provider call.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/arthmitra/arthmitra/internal/config"
	"github.com/arthmitra/arthmitra/internal/errs"
)

const (
	ProviderOpenAI    = "openai"
	ProviderWorkersAI = "workers-ai"

	retryInterval = 200 * time.Millisecond
	// Transient transport failures are retried at most once.
	maxAttempts = 2
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type Client struct {
	provider    string
	baseURL     string
	apiKey      string
	model       string
	expectedDim int
	httpClient  *http.Client
	cache       *lruCache
	flight      singleflight.Group
	log         zerolog.Logger
}

func NewClient(cfg config.EmbeddingConfig, log zerolog.Logger) *Client {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = ProviderOpenAI
	}

	return &Client{
		provider:    provider,
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       cfg.Model,
		expectedDim: cfg.Dimension,
		httpClient:  &http.Client{Timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond},
		cache:       newLRUCache(cfg.CacheSize),
		log:         log,
	}
}

// Embed returns the vector for a single input text, memoized per distinct
// input string.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, errs.Markf(errs.ErrValidation, "embed: empty text")
	}

	if vec, ok := c.cache.get(trimmed); ok {
		return vec, nil
	}

	result, err, _ := c.flight.Do(trimmed, func() (any, error) {
		vectors, err := c.requestEmbeddings(ctx, []string{trimmed})
		if err != nil {
			return nil, err
		}
		c.cache.put(trimmed, vectors[0])
		return vectors[0], nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]float32), nil
}

// EmbedBatch embeds several texts in one provider call. Used for exemplar
// precomputation; batch results bypass the per-input memo.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errs.Markf(errs.ErrValidation, "embed batch: empty input")
	}

	normalized := make([]string, len(texts))
	for i, text := range texts {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil, errs.Markf(errs.ErrValidation, "embed batch: empty text at index %d", i)
		}
		normalized[i] = trimmed
	}

	return c.requestEmbeddings(ctx, normalized)
}

func (c *Client) requestEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	endpoint, payload, err := c.buildRequest(texts)
	if err != nil {
		return nil, errs.Mark(errs.ErrProvider, err)
	}

	operation := func() ([][]float32, error) {
		return c.doRequest(ctx, endpoint, payload, len(texts))
	}

	vectors, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(retryInterval)),
		backoff.WithMaxTries(maxAttempts))
	if err != nil {
		return nil, errs.Mark(errs.ErrProvider, fmt.Errorf("embed %d texts: %w", len(texts), err))
	}

	return vectors, nil
}

func (c *Client) buildRequest(texts []string) (string, []byte, error) {
	if c.baseURL == "" {
		return "", nil, fmt.Errorf("missing embedding base url")
	}
	if c.model == "" {
		return "", nil, fmt.Errorf("missing embedding model")
	}

	switch c.provider {
	case ProviderOpenAI:
		payload, err := json.Marshal(map[string]any{"model": c.model, "input": texts})
		if err != nil {
			return "", nil, fmt.Errorf("marshal request: %w", err)
		}
		return c.baseURL + "/v1/embeddings", payload, nil
	case ProviderWorkersAI:
		payload, err := json.Marshal(map[string]any{"text": texts})
		if err != nil {
			return "", nil, fmt.Errorf("marshal request: %w", err)
		}
		return c.baseURL + "/" + c.model, payload, nil
	default:
		return "", nil, fmt.Errorf("unsupported embedding provider: %s", c.provider)
	}
}

func (c *Client) doRequest(ctx context.Context, endpoint string, payload []byte, expectedCount int) ([][]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Msg("embedding request failed, may retry")
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		httpErr := fmt.Errorf("embedding http %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			c.log.Warn().Int("status", resp.StatusCode).Msg("embedding provider error, may retry")
			return nil, httpErr
		}
		return nil, backoff.Permanent(httpErr)
	}

	vectors, err := normalizeResponse(respBody, expectedCount)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("normalize response: %w", err))
	}

	if c.expectedDim > 0 {
		for i, vec := range vectors {
			if len(vec) != c.expectedDim {
				return nil, backoff.Permanent(fmt.Errorf("dimension at index %d: got %d want %d", i, len(vec), c.expectedDim))
			}
		}
	}

	return vectors, nil
}
