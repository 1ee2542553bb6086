// Package auth validates bearer credentials against a remote identity
// service and resolves them to a stable user id.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/arthmitra/arthmitra/internal/config"
	"github.com/arthmitra/arthmitra/internal/errs"
)

type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// Different identity backends name the user id differently; probes run in
// order and the first hit wins.
var uidProbes = []string{"uid", "user_id", "userId", "users.0.localId", "sub"}

// HTTPVerifier posts the token to a verification endpoint and extracts the
// user id from the response.
type HTTPVerifier struct {
	url        string
	httpClient *http.Client
}

func NewHTTPVerifier(cfg config.AuthConfig) *HTTPVerifier {
	return &HTTPVerifier{
		url:        cfg.VerifyURL,
		httpClient: &http.Client{Timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond},
	}
}

// Verify resolves the token to a user id. A rejected token is ErrAuth; an
// unreachable or malformed verifier is ErrProvider.
func (v *HTTPVerifier) Verify(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errs.Markf(errs.ErrAuth, "empty token")
	}

	payload, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return "", errs.Mark(errs.ErrProvider, fmt.Errorf("marshal verify request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(payload))
	if err != nil {
		return "", errs.Mark(errs.ErrProvider, fmt.Errorf("create verify request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return "", errs.Mark(errs.ErrProvider, fmt.Errorf("verify token: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errs.Mark(errs.ErrProvider, fmt.Errorf("read verify response: %w", err))
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusBadRequest:
		return "", errs.Markf(errs.ErrAuth, "invalid or expired token")
	default:
		return "", errs.Markf(errs.ErrProvider, "verifier http %d", resp.StatusCode)
	}

	parsed := gjson.ParseBytes(body)
	for _, probe := range uidProbes {
		if uid := parsed.Get(probe); uid.Type == gjson.String && uid.Str != "" {
			return uid.Str, nil
		}
	}

	return "", errs.Markf(errs.ErrProvider, "verifier response has no user id")
}
