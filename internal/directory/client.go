// Package directory is the client for the external token service: list,
// create, and delete private-room tokens. Failures are logged and
// surfaced as empty or false results, never raised past the boundary; a
// failed list means "no tokens", not a fatal condition.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

const maxResponseBytes = 1 << 20

const defaultTimeout = 10 * time.Second

// Client talks to the token service over HTTP.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New returns a client for the service at baseURL, e.g.
// "http://192.168.1.10:8000".
func New(baseURL string) *Client {
	return &Client{BaseURL: baseURL}
}

type tokenListResponse struct {
	Tokens []string `json:"tokens"`
}

type createTokenResponse struct {
	Token string `json:"token"`
}

// List returns the known tokens. Any failure yields nil.
func (c *Client) List(ctx context.Context) []string {
	var payload tokenListResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/tokens", &payload); err != nil {
		log.Printf("list tokens: %v", err)
		return nil
	}
	return payload.Tokens
}

// Create asks the service to mint a fresh token. Any failure yields "".
func (c *Client) Create(ctx context.Context) string {
	var payload createTokenResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/create_token", &payload); err != nil {
		log.Printf("create token: %v", err)
		return ""
	}
	return payload.Token
}

// Delete removes a token. It returns false on any non-success response,
// including deleting a token the service does not know.
func (c *Client) Delete(ctx context.Context, token string) bool {
	path := "/api/tokens/" + url.PathEscape(token)
	if err := c.doJSON(ctx, http.MethodDelete, path, nil); err != nil {
		log.Printf("delete token %s: %v", token, err)
		return false
	}
	return true
}

// doJSON performs one request and decodes the body into out when out is
// non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, out any) error {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}
