package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arthmitra/arthmitra/internal/config"
	"github.com/arthmitra/arthmitra/internal/errs"
)

func newVerifier(url string) *HTTPVerifier {
	return NewHTTPVerifier(config.AuthConfig{VerifyURL: url, TimeoutMs: 2000})
}

func TestVerifyResolvesUID(t *testing.T) {
	cases := []struct {
		name string
		body map[string]any
	}{
		{"flat uid", map[string]any{"uid": "user-1"}},
		{"snake user_id", map[string]any{"user_id": "user-1"}},
		{"identity toolkit shape", map[string]any{"users": []map[string]any{{"localId": "user-1"}}}},
		{"jwt sub", map[string]any{"sub": "user-1"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var req map[string]string
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					t.Fatalf("decode request: %v", err)
				}
				if req["token"] != "tok-abc" {
					t.Fatalf("token = %q", req["token"])
				}
				_ = json.NewEncoder(w).Encode(tc.body)
			}))
			defer srv.Close()

			uid, err := newVerifier(srv.URL).Verify(context.Background(), "tok-abc")
			if err != nil {
				t.Fatalf("Verify error: %v", err)
			}
			if uid != "user-1" {
				t.Fatalf("uid = %q, want user-1", uid)
			}
		})
	}
}

func TestVerifyRejectedTokenIsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "expired", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newVerifier(srv.URL).Verify(context.Background(), "stale")
	if !errors.Is(err, errs.ErrAuth) {
		t.Fatalf("error kind = %v, want ErrAuth", err)
	}
}

func TestVerifyEmptyTokenIsAuthError(t *testing.T) {
	_, err := newVerifier("http://unused.invalid").Verify(context.Background(), "  ")
	if !errors.Is(err, errs.ErrAuth) {
		t.Fatalf("error kind = %v, want ErrAuth", err)
	}
}

func TestVerifyBackendDownIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newVerifier(srv.URL).Verify(context.Background(), "tok")
	if !errors.Is(err, errs.ErrProvider) {
		t.Fatalf("error kind = %v, want ErrProvider", err)
	}
}

func TestVerifyMissingUIDIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	_, err := newVerifier(srv.URL).Verify(context.Background(), "tok")
	if !errors.Is(err, errs.ErrProvider) {
		t.Fatalf("error kind = %v, want ErrProvider", err)
	}
}
