// Package client is a typed HTTP client for the registrar API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/starford/virt/internal/apperr"
	"github.com/starford/virt/internal/registrar"
)

const (
	// DefaultTimeout bounds every request unless overridden.
	DefaultTimeout = 10 * time.Second
	// DefaultRetries is how many times a failed read is repeated.
	DefaultRetries = 1
)

// Client talks to a registrar over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	retries int
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRetries sets how many extra attempts follow a failed GET. Writes are
// never repeated.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retries = n
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New creates a client for the registrar at baseURL, for example
// "http://localhost:8080/api".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		retries: DefaultRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check asks whether label.tag is free.
func (c *Client) Check(ctx context.Context, label, tag string) (*registrar.Availability, error) {
	var out registrar.Availability
	path := "/check/" + url.PathEscape(label) + "?tag=" + url.QueryEscape(tag)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Register creates a name and returns the one-time secret.
func (c *Client) Register(ctx context.Context, req registrar.RegisterRequest) (*registrar.Registration, error) {
	var out registrar.Registration
	if err := c.do(ctx, http.MethodPost, "/register", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update applies a partial update.
func (c *Client) Update(ctx context.Context, req registrar.UpdateRequest) (*registrar.RecordSummary, error) {
	var out registrar.RecordSummary
	if err := c.do(ctx, http.MethodPut, "/update", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a name.
func (c *Client) Delete(ctx context.Context, req registrar.DeleteRequest) error {
	return c.do(ctx, http.MethodDelete, "/delete", req, nil)
}

// Lookup resolves label.tag to its target and raw base.
func (c *Client) Lookup(ctx context.Context, label, tag string) (*registrar.LookupResult, error) {
	var out registrar.LookupResult
	path := "/lookup/" + url.PathEscape(label) + "/" + url.PathEscape(tag)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Search runs a weighted search. A limit of 0 uses the server default.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]registrar.SearchHit, error) {
	q := url.Values{"q": {query}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []registrar.SearchHit
	if err := c.do(ctx, http.MethodGet, "/search?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// do sends one API call. GETs that fail on the network, time out or get a
// 5xx are retried; a cancelled ctx stops at once.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var data []byte
	if in != nil {
		var err error
		if data, err = json.Marshal(in); err != nil {
			return fmt.Errorf("client: encode request: %w", err)
		}
	}

	attempts := 1
	if method == http.MethodGet {
		attempts += c.retries
	}
	var err error
	for i := 0; i < attempts; i++ {
		var retry bool
		retry, err = c.send(ctx, method, path, data, out)
		if err == nil || !retry || ctx.Err() != nil {
			break
		}
	}
	return err
}

func (c *Client) send(ctx context.Context, method, path string, data []byte, out any) (bool, error) {
	var body io.Reader
	if data != nil {
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return false, fmt.Errorf("client: create request: %w", err)
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return true, fmt.Errorf("%w: registrar %s %s: %v", apperr.ErrUpstreamFetch, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resp.StatusCode >= 500, statusError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return false, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("client: decode response: %w", err)
	}
	return false, nil
}

// statusError maps a registrar error response back onto the apperr
// sentinels so callers can match it with errors.Is.
func statusError(resp *http.Response) error {
	var eb errorBody
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&eb)
	msg := eb.Error
	if msg == "" {
		msg = resp.Status
	}

	var sentinel error
	switch resp.StatusCode {
	case http.StatusBadRequest:
		sentinel = apperr.ErrInvalidInput
		if eb.Code == apperr.Code(apperr.ErrInvalidTag) {
			sentinel = apperr.ErrInvalidTag
		}
	case http.StatusUnauthorized:
		sentinel = apperr.ErrUnauthorized
	case http.StatusNotFound:
		sentinel = apperr.ErrNotFound
	case http.StatusConflict:
		sentinel = apperr.ErrConflict
	case http.StatusTooManyRequests:
		sentinel = apperr.ErrRateLimited
	default:
		if s := apperr.FromCode(eb.Code); s != nil {
			sentinel = s
		} else {
			sentinel = apperr.ErrUpstreamFetch
		}
	}
	if strings.HasPrefix(msg, sentinel.Error()) {
		return fmt.Errorf("%w%s", sentinel, strings.TrimPrefix(msg, sentinel.Error()))
	}
	return fmt.Errorf("%w: %s", sentinel, msg)
}
