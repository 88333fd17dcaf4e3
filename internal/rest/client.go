// Package rest implements the posts repository against a remote REST
// backend. It abstracts the backend's pagination flavor (offset skip/limit
// with totals in the body, or page numbers with header-derived totals) so
// the stores only ever see pages, totals and page counts.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ZayatsMaxim/news-project/internal/core/posts"
)

// Style selects the backend's pagination dialect.
type Style string

const (
	// StyleOffset paginates with skip/limit query params; list responses
	// carry {posts, total, skip, limit}.
	StyleOffset Style = "offset"

	// StylePage paginates with _page/_limit query params; list responses
	// are bare arrays and the total arrives in the X-Total-Count header.
	StylePage Style = "page"
)

// ParseStyle validates a configured style string.
func ParseStyle(s string) (Style, bool) {
	switch Style(s) {
	case StyleOffset, StylePage:
		return Style(s), true
	}
	return "", false
}

// TokenSource supplies the current bearer token, or "" when unauthenticated.
type TokenSource func() string

// Client talks to the posts backend. It also owns the full-list cache that
// backs client-side title search.
type Client struct {
	base   string
	style  Style
	http   *http.Client
	token  TokenSource
	logger *slog.Logger

	mu         sync.Mutex
	titleCache []posts.Post
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTokenSource attaches bearer authentication to every request.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.token = ts }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a repository client for the backend at baseURL.
func NewClient(baseURL string, style Style, opts ...Option) *Client {
	c := &Client{
		base:   strings.TrimRight(baseURL, "/"),
		style:  style,
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ensure Client implements the repository contract.
var _ posts.Repository = (*Client)(nil)

// do executes one request and decodes the response into out (when non-nil).
// Non-2xx statuses are wrapped into the typed error taxonomy so stores can
// use errors.Is; a canceled context surfaces as a cancellation.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) (http.Header, error) {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		if tok := c.token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, wrapStatus(op, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("%s: decode response: %w", op, err)
		}
	}
	return resp.Header, nil
}

// wrapStatus maps HTTP statuses onto the shared error sentinels so callers
// detect conditions with errors.Is instead of string matching.
func wrapStatus(op string, status int, msg string) error {
	switch status {
	case http.StatusBadRequest:
		return fmt.Errorf("%s: %w: %s", op, posts.ErrBadRequest, msg)
	case http.StatusUnauthorized:
		return fmt.Errorf("%s: %w: %s", op, posts.ErrUnauthorized, msg)
	case http.StatusForbidden:
		return fmt.Errorf("%s: %w: %s", op, posts.ErrForbidden, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w: %s", op, posts.ErrNotFound, msg)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w: %s", op, posts.ErrRateLimited, msg)
	}
	return fmt.Errorf("%s: unexpected status %d: %s", op, status, msg)
}
