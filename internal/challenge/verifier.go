// Package challenge talks to the external challenge verification service.
// A failed verification is inconclusive, not hostile: callers re-present the
// challenge rather than escalating.
package challenge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrVerifierUnavailable marks transport-level failures, as opposed to a
// clean "token rejected" outcome.
var ErrVerifierUnavailable = errors.New("challenge verifier unavailable")

// Verifier checks a solved challenge token for a client IP.
type Verifier interface {
	Verify(ctx context.Context, token, ip string) (bool, error)
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(ctx context.Context, token, ip string) (bool, error)

// Verify implements Verifier.
func (f VerifierFunc) Verify(ctx context.Context, token, ip string) (bool, error) {
	return f(ctx, token, ip)
}

// HTTPVerifier validates tokens against a Turnstile-compatible siteverify
// endpoint.
type HTTPVerifier struct {
	endpoint string
	secret   string
	client   *http.Client
}

// NewHTTPVerifier builds a verifier for the given endpoint and shared secret.
func NewHTTPVerifier(endpoint, secret string) *HTTPVerifier {
	return &HTTPVerifier{
		endpoint: endpoint,
		secret:   secret,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Verify posts the token and remote IP and reports the service's judgment.
func (v *HTTPVerifier) Verify(ctx context.Context, token, ip string) (bool, error) {
	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	form.Set("remoteip", ip)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrVerifierUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("%w: status %d", ErrVerifierUnavailable, resp.StatusCode)
	}

	var body struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("%w: decode response: %v", ErrVerifierUnavailable, err)
	}

	return body.Success, nil
}
