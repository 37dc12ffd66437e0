// Package fetch retrieves remote site content for the resolver and the
// content indexer with a bounded timeout, body size and retry count.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/starford/virt/internal/apperr"
)

// Defaults used when an option is left at its zero value.
const (
	DefaultTimeout = 5 * time.Second
	DefaultRetries = 1
	DefaultMaxBody = 10 << 20
)

// Page is a successfully fetched document.
type Page struct {
	URL         string
	ContentType string
	Body        []byte
}

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Status)
}

// Unwrap makes every StatusError match apperr.ErrUpstreamFetch.
func (e *StatusError) Unwrap() error { return apperr.ErrUpstreamFetch }

// Client fetches documents over HTTP.
type Client struct {
	http    *http.Client
	retries int
	maxBody int64
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRetries sets how many extra attempts follow a retryable failure.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retries = n
		}
	}
}

// WithMaxBody caps the body size. Larger bodies fail the fetch.
func WithMaxBody(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// WithHTTPClient replaces the underlying client. Its Timeout is kept.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New returns a Client with the default timeout, one retry and a 10 MiB
// body cap unless overridden.
func New(opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{Timeout: DefaultTimeout},
		retries: DefaultRetries,
		maxBody: DefaultMaxBody,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get fetches url. Network errors, timeouts and 5xx responses are retried
// up to the configured count; a cancelled ctx is never retried. Every
// failure wraps apperr.ErrUpstreamFetch.
func (c *Client) Get(ctx context.Context, url string) (*Page, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		page, retry, err := c.get(ctx, url)
		if err == nil {
			return page, nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			break
		}
		if attempt < c.retries {
			c.logger.Warn("fetch failed, retrying",
				slog.String("url", url),
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()))
		}
	}
	return nil, lastErr
}

func (c *Client) get(ctx context.Context, url string) (*Page, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("%w: create request: %v", apperr.ErrUpstreamFetch, err)
	}
	req.Header.Set("User-Agent", "virt-resolver/1")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, false, fmt.Errorf("%w: %v", apperr.ErrUpstreamFetch, err)
		}
		return nil, true, fmt.Errorf("%w: do request: %v", apperr.ErrUpstreamFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, resp.StatusCode >= 500, &StatusError{URL: url, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, true, fmt.Errorf("%w: read body: %v", apperr.ErrUpstreamFetch, err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, false, fmt.Errorf("%w: %s: body exceeds %d bytes", apperr.ErrUpstreamFetch, url, c.maxBody)
	}
	return &Page{
		URL:         url,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, false, nil
}
