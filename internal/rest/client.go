// Package rest implements the HTTP client for the chat backend API:
// URL table, bearer-token injection and the single refresh-and-retry
// pass for expired access tokens.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"
)

// ErrUnauthorized is returned when a request failed with 401 and the
// token refresh could not recover it.
var ErrUnauthorized = errors.New("unauthorized")

// AuthError reports a credential failure (bad username/password).
type AuthError struct {
	Detail string
}

func (e *AuthError) Error() string {
	if e.Detail == "" {
		return "invalid username or password"
	}
	return e.Detail
}

// APIError carries a non-2xx server response. The detail is the server's
// own message and is surfaced to the user verbatim.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Detail)
}

// TokenStore is the session-side surface the client needs: read the
// current token pair, hot-swap it after a refresh, and wipe it when the
// refresh itself is rejected.
type TokenStore interface {
	AccessToken() string
	RefreshToken() string
	SetTokens(access, refresh string)
	ForceLogout()
}

type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenStore

	// Serializes refresh attempts so a burst of 401s performs one
	// refresh round-trip instead of racing.
	refreshMu sync.Mutex
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// SetTokenStore wires the session store in after construction. The session
// store itself needs the client for its network calls, so the two are
// connected in this order.
func (c *Client) SetTokenStore(tokens TokenStore) {
	c.tokens = tokens
}

type requestSpec struct {
	method      string
	url         string
	payload     []byte
	contentType string
	authed      bool
}

// do executes a request and decodes the JSON response into out (when out
// is non-nil). An authenticated request that comes back 401 triggers
// exactly one token refresh followed by one retry; a second 401, or a
// failed refresh, clears the session and returns ErrUnauthorized.
func (c *Client) do(ctx context.Context, spec requestSpec, out interface{}) error {
	status, body, err := c.roundTrip(ctx, spec)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized && spec.authed {
		if err := c.refreshAccessToken(ctx); err != nil {
			if c.tokens != nil {
				c.tokens.ForceLogout()
			}
			return fmt.Errorf("failed to refresh token: %w", ErrUnauthorized)
		}

		status, body, err = c.roundTrip(ctx, spec)
		if err != nil {
			return err
		}
		if status == http.StatusUnauthorized {
			if c.tokens != nil {
				c.tokens.ForceLogout()
			}
			return ErrUnauthorized
		}
	}

	if status < 200 || status >= 300 {
		return &APIError{StatusCode: status, Detail: errorDetail(body)}
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, spec requestSpec) (int, []byte, error) {
	var reader io.Reader
	if spec.payload != nil {
		reader = bytes.NewReader(spec.payload)
	}

	req, err := http.NewRequestWithContext(ctx, spec.method, spec.url, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	if spec.contentType != "" {
		req.Header.Set("Content-Type", spec.contentType)
	}
	if spec.authed && c.tokens != nil {
		if token := c.tokens.AccessToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func (c *Client) refreshAccessToken(ctx context.Context) error {
	if c.tokens == nil {
		return errors.New("no token store configured")
	}

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	refresh := c.tokens.RefreshToken()
	if refresh == "" {
		return errors.New("no refresh token available")
	}

	payload, _ := json.Marshal(map[string]string{"refresh": refresh})
	status, body, err := c.roundTrip(ctx, requestSpec{
		method:      http.MethodPost,
		url:         c.refreshTokenURL(),
		payload:     payload,
		contentType: "application/json",
	})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return &APIError{StatusCode: status, Detail: errorDetail(body)}
	}

	var parsed struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if parsed.Access == "" {
		return errors.New("refresh response missing access token")
	}

	// Rotation is optional on the server side; keep the old refresh
	// token unless a new one came back.
	if parsed.Refresh == "" {
		parsed.Refresh = refresh
	}
	c.tokens.SetTokens(parsed.Access, parsed.Refresh)
	log.Printf("[rest] access token refreshed")
	return nil
}

func (c *Client) getJSON(ctx context.Context, url string, out interface{}) error {
	return c.do(ctx, requestSpec{method: http.MethodGet, url: url, authed: true}, out)
}

func (c *Client) postJSON(ctx context.Context, url string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	return c.do(ctx, requestSpec{
		method:      http.MethodPost,
		url:         url,
		payload:     payload,
		contentType: "application/json",
		authed:      true,
	}, out)
}

func (c *Client) patchJSON(ctx context.Context, url string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	return c.do(ctx, requestSpec{
		method:      http.MethodPatch,
		url:         url,
		payload:     payload,
		contentType: "application/json",
		authed:      true,
	}, out)
}

func (c *Client) delete(ctx context.Context, url string) error {
	return c.do(ctx, requestSpec{method: http.MethodDelete, url: url, authed: true}, nil)
}

func (c *Client) postMultipart(ctx context.Context, url string, body []byte, contentType string, out interface{}) error {
	return c.do(ctx, requestSpec{
		method:      http.MethodPost,
		url:         url,
		payload:     body,
		contentType: contentType,
		authed:      true,
	}, out)
}

func mustJSON(in interface{}) []byte {
	payload, err := json.Marshal(in)
	if err != nil {
		// Only reachable with unmarshalable values, which would be a
		// programming error in this package.
		panic(err)
	}
	return payload
}

// errorDetail digs the human-readable message out of the error body.
// The backend is not consistent about the key it uses.
func errorDetail(body []byte) string {
	var parsed map[string]interface{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	for _, key := range []string{"error", "detail", "message"} {
		if value, ok := parsed[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}
