// Package crawler fetches the content behind registered targets and stores
// the derived keywords and body text in the search index.
package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/virt/internal/checksum"
	"github.com/starford/virt/internal/fetch"
	"github.com/starford/virt/internal/models"
	"github.com/starford/virt/internal/names"
	"github.com/starford/virt/internal/parser"
	"github.com/starford/virt/internal/registrar"
)

// Store is the part of the registry the crawler reads and writes.
type Store interface {
	List(ctx context.Context) ([]models.NameRecord, error)
	SetContent(ctx context.Context, id int64, keywords, body, checksum string, at time.Time) error
}

// Fetcher retrieves one document.
type Fetcher interface {
	Get(ctx context.Context, url string) (*fetch.Page, error)
}

// Stats summarises one Sync pass.
type Stats struct {
	Indexed   int
	Unchanged int
	Skipped   int
	Failed    int
}

// EventIndexed is published after a record's content was re-indexed.
const EventIndexed = "indexed"

// Crawler indexes target content for search.
type Crawler struct {
	store   Store
	fetcher Fetcher
	logger  *slog.Logger
	now     func() time.Time
	events  registrar.Publisher
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithPublisher announces every re-indexed name to p.
func WithPublisher(p registrar.Publisher) Option {
	return func(c *Crawler) {
		c.events = p
	}
}

// New creates a Crawler.
func New(store Store, fetcher Fetcher, logger *slog.Logger, opts ...Option) *Crawler {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Crawler{store: store, fetcher: fetcher, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SourceURL returns the document fetched for a target: the README at the
// raw base for rewritten source-host targets, the target itself for other
// https targets, and "" for targets that are not fetchable over https.
func SourceURL(target string) string {
	if raw := registrar.RawBase(target); raw != target {
		return raw + "README.md"
	}
	if names.IsSecureWebURL(target) {
		return target
	}
	return ""
}

// Sync walks every record once. Per-record failures are logged and counted
// but never abort the pass; only a failure to list records is returned.
func (c *Crawler) Sync(ctx context.Context) (Stats, error) {
	var st Stats
	recs, err := c.store.List(ctx)
	if err != nil {
		return st, fmt.Errorf("crawler: list records: %w", err)
	}

	for i := range recs {
		if ctx.Err() != nil {
			return st, ctx.Err()
		}
		rec := &recs[i]
		switch err := c.indexOne(ctx, rec); err {
		case nil:
			st.Indexed++
			if c.events != nil {
				c.events.PublishNameEvent(EventIndexed, rec.Name())
			}
		case errUnchanged:
			st.Unchanged++
		case errNotFetchable:
			st.Skipped++
		default:
			st.Failed++
			c.logger.Warn("index failed", slog.String("name", rec.Name()), slog.String("error", err.Error()))
		}
	}

	c.logger.Info("crawl complete",
		slog.Int("indexed", st.Indexed),
		slog.Int("unchanged", st.Unchanged),
		slog.Int("skipped", st.Skipped),
		slog.Int("failed", st.Failed))
	return st, nil
}

type sentinel string

func (s sentinel) Error() string { return string(s) }

const (
	errUnchanged    = sentinel("content unchanged")
	errNotFetchable = sentinel("target not fetchable")
)

func (c *Crawler) indexOne(ctx context.Context, rec *models.NameRecord) error {
	src := SourceURL(rec.Target)
	if src == "" {
		return errNotFetchable
	}

	page, err := c.fetcher.Get(ctx, src)
	if err != nil {
		return err
	}

	sum := checksum.Sum(page.Body)
	if sum == rec.Checksum {
		return errUnchanged
	}

	res, err := parser.Sniff(page.ContentType, page.Body)
	if err != nil {
		return fmt.Errorf("parse %s: %w", src, err)
	}
	return c.store.SetContent(ctx, rec.ID, res.KeywordString(), res.Text, sum, c.now())
}

// Run calls Sync immediately and then every interval until ctx is done.
func (c *Crawler) Run(ctx context.Context, interval time.Duration) error {
	if _, err := c.Sync(ctx); err != nil && ctx.Err() == nil {
		c.logger.Error("crawl failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := c.Sync(ctx); err != nil && ctx.Err() == nil {
				c.logger.Error("crawl failed", slog.String("error", err.Error()))
			}
		}
	}
}
