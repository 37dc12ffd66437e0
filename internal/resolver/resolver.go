// Package resolver turns virt:// names into document bytes: bundled assets
// for system names, registry-backed fetches for reserved names, and direct
// fetches for plain https URLs.
package resolver

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/starford/virt/internal/apperr"
	"github.com/starford/virt/internal/fetch"
	"github.com/starford/virt/internal/names"
	"github.com/starford/virt/internal/registrar"
	"github.com/starford/virt/internal/storage"
)

//go:embed assets
var bundled embed.FS

// Assets returns the bundled system-name files rooted at their hosts.
func Assets() fs.FS {
	sub, err := fs.Sub(bundled, "assets")
	if err != nil {
		panic(err)
	}
	return sub
}

// State is the branch a name takes after classification.
type State int

const (
	StateUnrecognized State = iota
	StateSystemName
	StateReservedName
)

func (s State) String() string {
	switch s {
	case StateSystemName:
		return "system"
	case StateReservedName:
		return "reserved"
	default:
		return "unrecognized"
	}
}

// Outcome is the terminal state of a resolution.
type Outcome int

const (
	Resolved Outcome = iota
	Fallback
	Denied
	NotFound
)

func (o Outcome) String() string {
	switch o {
	case Resolved:
		return "resolved"
	case Fallback:
		return "fallback"
	case Denied:
		return "denied"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Result is what a resolution produced. Err is set for every outcome
// other than Resolved and explains it.
type Result struct {
	Name        string
	State       State
	Outcome     Outcome
	Status      int
	ContentType string
	Body        []byte
	Source      string
	Err         error
}

// Lookuper answers registry lookups. Both the in-process registrar and the
// HTTP client satisfy it.
type Lookuper interface {
	Lookup(ctx context.Context, label, tag string) (*registrar.LookupResult, error)
}

// Fetcher retrieves one remote document.
type Fetcher interface {
	Get(ctx context.Context, url string) (*fetch.Page, error)
}

// Resolver resolves names. It is safe for concurrent use.
type Resolver struct {
	lookup  Lookuper
	fetcher Fetcher
	assets  storage.Provider
	cache   *gocache.Cache
	logger  *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithAssets replaces the bundled asset provider.
func WithAssets(p storage.Provider) Option {
	return func(r *Resolver) {
		r.assets = p
	}
}

// WithCacheTTL caches successful lookups for ttl. Zero disables caching.
// Cached names miss updates and deletes until they expire.
func WithCacheTTL(ttl time.Duration) Option {
	return func(r *Resolver) {
		if ttl > 0 {
			r.cache = gocache.New(ttl, 2*ttl)
		} else {
			r.cache = nil
		}
	}
}

// WithLogger sets the resolver logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

// New creates a Resolver backed by lookup and fetcher.
func New(lookup Lookuper, fetcher Fetcher, opts ...Option) *Resolver {
	r := &Resolver{
		lookup:  lookup,
		fetcher: fetcher,
		assets:  storage.NewEmbedded(Assets()),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Classify reports which branch name takes. The boolean is false when the
// name must be denied.
func Classify(name string) (State, bool) {
	switch {
	case names.IsSystemName(name):
		return StateSystemName, true
	case names.HasReservedTag(name):
		return StateReservedName, true
	case names.IsSecureWebURL(name):
		return StateUnrecognized, true
	default:
		return StateUnrecognized, false
	}
}

// Resolve runs one resolution. Resolutions are bound to ctx; cancelling it
// aborts any in-flight fetch.
func (r *Resolver) Resolve(ctx context.Context, name string) *Result {
	name = strings.TrimSpace(name)
	state, ok := Classify(name)
	var res *Result
	switch {
	case !ok:
		res = &Result{
			Outcome: Denied,
			Status:  http.StatusForbidden,
			Err:     fmt.Errorf("%w: %q is neither a virt name nor an https URL", apperr.ErrDenied, name),
		}
	case state == StateSystemName:
		res = r.resolveSystem(name)
	case state == StateReservedName:
		res = r.resolveReserved(ctx, name)
	default:
		res = r.resolveWeb(ctx, name)
	}
	res.Name = name
	res.State = state

	attrs := []any{
		slog.String("name", name),
		slog.String("state", state.String()),
		slog.String("outcome", res.Outcome.String()),
	}
	if res.Err != nil {
		attrs = append(attrs, slog.String("error", res.Err.Error()))
	}
	r.logger.Debug("resolve", attrs...)
	return res
}

func (r *Resolver) resolveSystem(name string) *Result {
	host, sub, _ := names.SplitSystem(name)
	if sub == "" || strings.HasSuffix(sub, "/") {
		sub += "index.html"
	}
	asset := host + "/" + sub

	data, err := r.assets.Read(asset)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return &Result{Outcome: NotFound, Status: http.StatusNotFound, Source: asset, Err: err}
	case errors.Is(err, apperr.ErrDenied):
		return &Result{Outcome: Denied, Status: http.StatusForbidden, Source: asset, Err: err}
	case err != nil:
		return &Result{Outcome: NotFound, Status: http.StatusInternalServerError, Source: asset, Err: err}
	}
	return &Result{
		Outcome:     Resolved,
		Status:      http.StatusOK,
		ContentType: mediaType(asset, "", data),
		Body:        data,
		Source:      asset,
	}
}

func (r *Resolver) resolveReserved(ctx context.Context, name string) *Result {
	label, tag, sub, _ := names.Split(name)
	full := names.Compose(label, tag)

	lr, err := r.cachedLookup(ctx, label, tag)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, apperr.ErrNotFound) {
			status = http.StatusNotFound
		}
		return fallback(full, status, err)
	}

	src := lr.Target
	if sub != "" {
		src = joinPath(lr.RawBase, sub)
	}
	src = fetchURL(src)

	page, err := r.fetcher.Get(ctx, src)
	if err != nil {
		return fallback(full, http.StatusBadGateway, err)
	}
	return &Result{
		Outcome:     Resolved,
		Status:      http.StatusOK,
		ContentType: mediaType(sub, page.ContentType, page.Body),
		Body:        page.Body,
		Source:      src,
	}
}

func (r *Resolver) resolveWeb(ctx context.Context, url string) *Result {
	page, err := r.fetcher.Get(ctx, url)
	if err != nil {
		return unreachable(url, err)
	}
	return &Result{
		Outcome:     Resolved,
		Status:      http.StatusOK,
		ContentType: mediaType("", page.ContentType, page.Body),
		Body:        page.Body,
		Source:      url,
	}
}

func (r *Resolver) cachedLookup(ctx context.Context, label string, tag names.Tag) (*registrar.LookupResult, error) {
	key := names.Compose(label, tag)
	if r.cache != nil {
		if v, ok := r.cache.Get(key); ok {
			return v.(*registrar.LookupResult), nil
		}
	}
	lr, err := r.lookup.Lookup(ctx, label, string(tag))
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache.SetDefault(key, lr)
	}
	return lr, nil
}

// joinPath appends sub to base with exactly one slash between them.
func joinPath(base, sub string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(sub, "/")
}

// fetchURL gives bare IPv4 targets an http scheme; everything else is
// already a full URL.
func fetchURL(target string) string {
	if strings.Contains(target, "://") {
		return target
	}
	return "http://" + target
}

func mediaType(name, header string, body []byte) string {
	if header != "" {
		return header
	}
	if ext := path.Ext(name); ext != "" {
		if t := mime.TypeByExtension(ext); t != "" {
			return t
		}
	}
	return http.DetectContentType(body)
}
