package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/arthmitra/arthmitra/internal/config"
	"github.com/arthmitra/arthmitra/internal/errs"
	"github.com/arthmitra/arthmitra/internal/store"
)

// stubEmbedder maps text onto a tiny keyword-keyed vector space so
// classification is deterministic without a provider.
type stubEmbedder struct {
	batchCalls int
}

func vecFor(text string) []float32 {
	switch {
	case strings.Contains(text, "zzz"):
		return []float32{0, 0, -1}
	case strings.Contains(text, "budget"):
		return []float32{1, 0, 0}
	case strings.Contains(text, "hello") || strings.Contains(text, "hi"):
		return []float32{0, 1, 0}
	default:
		return []float32{0, 0, 1}
	}
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return vecFor(text), nil
}

func (s *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	s.batchCalls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = vecFor(t)
	}
	return out, nil
}

type stubVerifier struct {
	uid string
}

func (s *stubVerifier) Verify(_ context.Context, token string) (string, error) {
	if token != "good-token" {
		return "", errs.Markf(errs.ErrAuth, "token rejected")
	}
	return s.uid, nil
}

type stubLLM struct{}

func (stubLLM) Generate(_ context.Context, _, userPrompt string) (string, error) {
	return "reply: " + userPrompt, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Store.DBPath = filepath.Join(t.TempDir(), "gateway.db")
	cfg.Logging.Level = "error"
	return cfg
}

func newTestGateway(t *testing.T) (*Gateway, *stubEmbedder) {
	t.Helper()
	embedder := &stubEmbedder{}
	g, err := NewWithOptions(testConfig(t), Options{
		Verifier: &stubVerifier{uid: "u1"},
		Embedder: embedder,
		LLM:      stubLLM{},
	})
	if err != nil {
		t.Fatalf("NewWithOptions: %v", err)
	}
	t.Cleanup(func() { _ = g.store.Close() })
	return g, embedder
}

func doJSON(t *testing.T, srv *httptest.Server, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out bytes.Buffer
	if _, err := out.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, out.Bytes()
}

func TestChatEndToEnd(t *testing.T) {
	g, _ := newTestGateway(t)
	srv := httptest.NewServer(g.routes())
	defer srv.Close()

	resp, body := doJSON(t, srv, http.MethodPost, "/chat", "good-token",
		chatRequest{Prompt: "what's my budget"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(cr.Response, "reply: ") {
		t.Errorf("response = %q, want generated reply", cr.Response)
	}
}

func TestChatUnknownIntentHelp(t *testing.T) {
	g, _ := newTestGateway(t)
	srv := httptest.NewServer(g.routes())
	defer srv.Close()

	resp, body := doJSON(t, srv, http.MethodPost, "/chat", "good-token",
		chatRequest{Prompt: "zzz"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if strings.HasPrefix(cr.Response, "reply: ") {
		t.Errorf("unresolved intent must not reach the model, got %q", cr.Response)
	}
}

func TestChatStatusMapping(t *testing.T) {
	g, _ := newTestGateway(t)
	srv := httptest.NewServer(g.routes())
	defer srv.Close()

	cases := []struct {
		name   string
		token  string
		prompt string
		status int
	}{
		{"bad token", "bad-token", "what's my budget", http.StatusUnauthorized},
		{"empty prompt", "good-token", "   ", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := doJSON(t, srv, http.MethodPost, "/chat", tc.token,
				chatRequest{Prompt: tc.prompt})
			if resp.StatusCode != tc.status {
				t.Fatalf("status = %d, want %d, body %s", resp.StatusCode, tc.status, body)
			}
			var er errorResponse
			if err := json.Unmarshal(body, &er); err != nil || er.Error == "" {
				t.Errorf("error body = %s", body)
			}
		})
	}
}

func TestProfileRoundTrip(t *testing.T) {
	g, _ := newTestGateway(t)
	srv := httptest.NewServer(g.routes())
	defer srv.Close()

	budget := 500.0
	goal := "buy a house"
	resp, body := doJSON(t, srv, http.MethodPut, "/profile", "good-token",
		profileRequest{Budget: &budget, Goal: &goal})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put status = %d, body %s", resp.StatusCode, body)
	}

	income := 90000.0
	resp, _ = doJSON(t, srv, http.MethodPut, "/profile", "good-token",
		profileRequest{Income: &income})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second put status = %d", resp.StatusCode)
	}

	resp, body = doJSON(t, srv, http.MethodGet, "/profile", "good-token", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// Merge-writes preserve fields set by earlier updates.
	if doc["budget"] != 500.0 || doc["goal"] != "buy a house" || doc["income"] != 90000.0 {
		t.Errorf("profile = %v", doc)
	}
}

func TestProfileValidation(t *testing.T) {
	g, _ := newTestGateway(t)
	srv := httptest.NewServer(g.routes())
	defer srv.Close()

	neg := -10.0
	resp, _ := doJSON(t, srv, http.MethodPut, "/profile", "good-token",
		profileRequest{Budget: &neg})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("negative budget status = %d, want 400", resp.StatusCode)
	}

	resp, _ = doJSON(t, srv, http.MethodPut, "/profile", "good-token", profileRequest{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty update status = %d, want 400", resp.StatusCode)
	}
}

func TestDashboardSummary(t *testing.T) {
	g, _ := newTestGateway(t)
	srv := httptest.NewServer(g.routes())
	defer srv.Close()

	now := time.Now()
	seed := []store.Transaction{
		{Type: store.TxExpense, Category: "food", Amount: 200, OccurredAt: now.AddDate(0, 0, -1)},
		{Type: store.TxExpense, Category: "food", Amount: 100, OccurredAt: now.AddDate(0, 0, -2)},
		{Type: store.TxExpense, Category: "travel", Amount: 50, OccurredAt: now.AddDate(0, 0, -3)},
		{Type: store.TxIncome, Category: "salary", Amount: 5000, OccurredAt: now.AddDate(0, 0, -4)},
		{Type: store.TxExpense, Category: "rent", Amount: 999, OccurredAt: now.AddDate(0, 0, -60)},
	}
	for i, tx := range seed {
		if err := g.store.AddTransaction(context.Background(), "u1", tx); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	resp, body := doJSON(t, srv, http.MethodGet, "/dashboard", "good-token", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	var dr dashboardResponse
	if err := json.Unmarshal(body, &dr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dr.Income != 5000 || dr.Expense != 350 {
		t.Errorf("totals = %+v, want income 5000 expense 350", dr)
	}
	if dr.ByCategory["food"] != 300 || dr.ByCategory["travel"] != 50 {
		t.Errorf("by category = %v", dr.ByCategory)
	}
	if _, ok := dr.ByCategory["rent"]; ok {
		t.Error("transaction outside the window must not be counted")
	}
}

func TestHealthz(t *testing.T) {
	g, _ := newTestGateway(t)
	srv := httptest.NewServer(g.routes())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestExemplarIndexPersistedAcrossStarts(t *testing.T) {
	cfg := testConfig(t)

	first := &stubEmbedder{}
	g1, err := NewWithOptions(cfg, Options{
		Verifier: &stubVerifier{uid: "u1"},
		Embedder: first,
		LLM:      stubLLM{},
	})
	if err != nil {
		t.Fatalf("first start: %v", err)
	}
	if first.batchCalls == 0 {
		t.Fatal("first start must embed the exemplars")
	}
	if err := g1.store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second := &stubEmbedder{}
	g2, err := NewWithOptions(cfg, Options{
		Verifier: &stubVerifier{uid: "u1"},
		Embedder: second,
		LLM:      stubLLM{},
	})
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	defer g2.store.Close()
	if second.batchCalls != 0 {
		t.Fatalf("second start embedded %d batches, want reuse of the persisted index", second.batchCalls)
	}
}

func TestRunStopsOnSignal(t *testing.T) {
	cfg := testConfig(t)
	cfg.Gateway.Port = 0

	sigCh := make(chan os.Signal, 1)
	g, err := NewWithOptions(cfg, Options{
		Verifier:   &stubVerifier{uid: "u1"},
		Embedder:   &stubEmbedder{},
		LLM:        stubLLM{},
		SignalChan: sigCh,
	})
	if err != nil {
		t.Fatalf("NewWithOptions: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- g.Run(context.Background()) }()

	time.Sleep(100 * time.Millisecond)
	sigCh <- syscall.SIGTERM

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after signal")
	}
}
