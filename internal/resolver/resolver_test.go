package resolver

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/starford/virt/internal/apperr"
	"github.com/starford/virt/internal/fetch"
	"github.com/starford/virt/internal/registrar"
	"github.com/starford/virt/internal/storage"
	"github.com/starford/virt/internal/testutil"
)

type fakeLookup struct {
	mu      sync.Mutex
	records map[string]*registrar.LookupResult
	calls   int
}

func (f *fakeLookup) Lookup(_ context.Context, label, tag string) (*registrar.LookupResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if lr, ok := f.records[label+"."+tag]; ok {
		return lr, nil
	}
	return nil, apperr.ErrNotFound
}

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]*fetch.Page
	urls  []string
}

func (f *fakeFetcher) Get(_ context.Context, url string) (*fetch.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	if p, ok := f.pages[url]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: no route to %s", apperr.ErrUpstreamFetch, url)
}

func newFixture() (*fakeLookup, *fakeFetcher) {
	lk := &fakeLookup{records: map[string]*registrar.LookupResult{
		"myapp.vc": {Label: "myapp", Tag: "vc", Target: "https://example.com/app", RawBase: "https://example.com/app"},
		"repo.org": {Label: "repo", Tag: "org", Target: "https://github.com/u/r", RawBase: "https://raw.githubusercontent.com/u/r/"},
		"down.biz": {Label: "down", Tag: "biz", Target: "https://down.example", RawBase: "https://down.example"},
		"lan.lit":  {Label: "lan", Tag: "lit", Target: "10.0.0.5:8080", RawBase: "10.0.0.5:8080"},
	}}
	ft := &fakeFetcher{pages: map[string]*fetch.Page{
		"https://example.com/app":                             {Body: []byte("<p>app</p>"), ContentType: "text/html"},
		"https://example.com/app/style.css":                   {Body: []byte("b{}"), ContentType: "text/css"},
		"https://github.com/u/r":                              {Body: []byte("repo page"), ContentType: "text/html"},
		"https://raw.githubusercontent.com/u/r/docs/guide.md": {Body: []byte("# Guide"), ContentType: "text/plain; charset=utf-8"},
		"http://10.0.0.5:8080":                                {Body: []byte("lan")},
		"https://plain.example/x":                             {Body: []byte("web"), ContentType: "text/plain"},
	}}
	return lk, ft
}

func TestResolve_Denied(t *testing.T) {
	lk, ft := newFixture()
	r := New(lk, ft)

	for _, name := range []string{"virt://abc.com", "http://example.com", "ftp://x", "", "virt://"} {
		res := r.Resolve(context.Background(), name)
		require.Equal(t, Denied, res.Outcome, name)
		require.True(t, errors.Is(res.Err, apperr.ErrDenied), name)
	}
	require.Zero(t, lk.calls)
	require.Empty(t, ft.urls)
}

func TestResolve_SystemAssets(t *testing.T) {
	lk, ft := newFixture()
	r := New(lk, ft)
	ctx := context.Background()

	res := r.Resolve(ctx, "virt://lookin.at")
	require.Equal(t, Resolved, res.Outcome)
	require.Equal(t, StateSystemName, res.State)
	require.Equal(t, "lookin.at/index.html", res.Source)
	require.Contains(t, string(res.Body), "lookin.at")
	require.True(t, strings.HasPrefix(res.ContentType, "text/html"))

	res = r.Resolve(ctx, "virt://register.at?name=foo.vc")
	require.Equal(t, Resolved, res.Outcome)
	require.Equal(t, "register.at/index.html", res.Source)

	res = r.Resolve(ctx, "virt://lookin.at/style.css")
	require.Equal(t, Resolved, res.Outcome)
	require.True(t, strings.HasPrefix(res.ContentType, "text/css"))

	res = r.Resolve(ctx, "virt://about.at/missing.js")
	require.Equal(t, NotFound, res.Outcome)
	require.Equal(t, http.StatusNotFound, res.Status)

	res = r.Resolve(ctx, "virt://about.at/../../etc/passwd")
	require.NotEqual(t, Resolved, res.Outcome)

	require.Zero(t, lk.calls)
	require.Empty(t, ft.urls)
}

func TestResolve_AssetOverride(t *testing.T) {
	lk, ft := newFixture()
	override := storage.NewEmbedded(fstest.MapFS{"about.at/index.html": {Data: []byte("custom about")}})
	r := New(lk, ft, WithAssets(storage.Layered{override, storage.NewEmbedded(Assets())}))

	res := r.Resolve(context.Background(), "virt://about.at")
	require.Equal(t, "custom about", string(res.Body))
	res = r.Resolve(context.Background(), "virt://lookin.at")
	require.Equal(t, Resolved, res.Outcome)
}

func TestResolve_ReservedName(t *testing.T) {
	lk, ft := newFixture()
	r := New(lk, ft)
	ctx := context.Background()

	res := r.Resolve(ctx, "virt://myapp.vc")
	require.Equal(t, Resolved, res.Outcome)
	require.Equal(t, StateReservedName, res.State)
	require.Equal(t, "<p>app</p>", string(res.Body))
	require.Equal(t, "text/html", res.ContentType)

	res = r.Resolve(ctx, "virt://myapp.vc/style.css")
	require.Equal(t, Resolved, res.Outcome)
	require.Equal(t, "https://example.com/app/style.css", res.Source)

	// Empty path hits the target; a sub-path goes through the raw base.
	res = r.Resolve(ctx, "virt://repo.org")
	require.Equal(t, "https://github.com/u/r", res.Source)
	res = r.Resolve(ctx, "virt://repo.org/docs/guide.md")
	require.Equal(t, "https://raw.githubusercontent.com/u/r/docs/guide.md", res.Source)
	require.Equal(t, "text/plain; charset=utf-8", res.ContentType)

	res = r.Resolve(ctx, "virt://lan.lit")
	require.Equal(t, Resolved, res.Outcome)
	require.Equal(t, "lan", string(res.Body))
}

func TestResolve_FallbackOnMiss(t *testing.T) {
	lk, ft := newFixture()
	r := New(lk, ft)

	res := r.Resolve(context.Background(), "virt://nobody.vc")
	require.Equal(t, Fallback, res.Outcome)
	require.Equal(t, http.StatusNotFound, res.Status)
	require.True(t, errors.Is(res.Err, apperr.ErrNotFound))
	require.Contains(t, string(res.Body), "nobody.vc")
	require.Contains(t, string(res.Body), `href="virt://register.at?name=nobody.vc"`)
	require.Empty(t, ft.urls)

	again := r.Resolve(context.Background(), "virt://nobody.vc")
	require.Equal(t, res.Body, again.Body)
}

func TestResolve_FallbackOnFetchFailure(t *testing.T) {
	lk, ft := newFixture()
	r := New(lk, ft)

	res := r.Resolve(context.Background(), "virt://down.biz")
	require.Equal(t, Fallback, res.Outcome)
	require.Equal(t, http.StatusBadGateway, res.Status)
	require.True(t, errors.Is(res.Err, apperr.ErrUpstreamFetch))
	require.Contains(t, string(res.Body), "down.biz")
	require.Contains(t, string(res.Body), "virt://register.at?name=down.biz")
}

func TestResolve_PlainWeb(t *testing.T) {
	lk, ft := newFixture()
	r := New(lk, ft)

	res := r.Resolve(context.Background(), "https://plain.example/x")
	require.Equal(t, Resolved, res.Outcome)
	require.Equal(t, "web", string(res.Body))
	require.Zero(t, lk.calls)

	res = r.Resolve(context.Background(), "https://gone.example")
	require.Equal(t, Fallback, res.Outcome)
	require.Contains(t, string(res.Body), "unreachable")
}

func TestResolve_CachesLookups(t *testing.T) {
	lk, ft := newFixture()
	r := New(lk, ft, WithCacheTTL(time.Minute))

	for i := 0; i < 3; i++ {
		require.Equal(t, Resolved, r.Resolve(context.Background(), "virt://myapp.vc").Outcome)
	}
	require.Equal(t, 1, lk.calls)

	uncached := New(lk, ft, WithCacheTTL(0))
	uncached.Resolve(context.Background(), "virt://myapp.vc")
	uncached.Resolve(context.Background(), "virt://myapp.vc")
	require.Equal(t, 3, lk.calls)
}

func TestResolve_SeesRegistryChangesWithoutCache(t *testing.T) {
	ctx := context.Background()
	svc := registrar.NewService(testutil.TestDB(t), registrar.WithBcryptCost(bcrypt.MinCost))
	_, ft := newFixture()
	ft.pages["https://other.example"] = &fetch.Page{Body: []byte("moved"), ContentType: "text/plain"}
	r := New(svc, ft)

	reg, err := svc.Register(ctx, registrar.RegisterRequest{Label: "edited", Tag: "vc", Target: "https://example.com/app"})
	require.NoError(t, err)
	require.Equal(t, "<p>app</p>", string(r.Resolve(ctx, "virt://edited.vc").Body))

	target := "https://other.example"
	_, err = svc.Update(ctx, registrar.UpdateRequest{Label: "edited", Tag: "vc", Secret: reg.SecretKey, Target: &target})
	require.NoError(t, err)
	require.Equal(t, "moved", string(r.Resolve(ctx, "virt://edited.vc").Body))

	require.NoError(t, svc.Delete(ctx, registrar.DeleteRequest{Label: "edited", Tag: "vc", Secret: reg.SecretKey}))
	res := r.Resolve(ctx, "virt://edited.vc")
	require.Equal(t, Fallback, res.Outcome)
	require.Equal(t, http.StatusNotFound, res.Status)
}

func TestResolve_NoCacheByDefault(t *testing.T) {
	lk, ft := newFixture()
	r := New(lk, ft)
	r.Resolve(context.Background(), "virt://myapp.vc")
	r.Resolve(context.Background(), "virt://myapp.vc")
	require.Equal(t, 2, lk.calls)
}

func TestResolve_RetryAndCancelOverHTTP(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/flaky":
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			_, _ = w.Write([]byte("second time"))
		case "/slow":
			<-r.Context().Done()
		}
	}))
	defer srv.Close()

	lk := &fakeLookup{records: map[string]*registrar.LookupResult{
		"flaky.vc": {Target: srv.URL + "/flaky", RawBase: srv.URL + "/flaky"},
		"slow.vc":  {Target: srv.URL + "/slow", RawBase: srv.URL + "/slow"},
	}}
	r := New(lk, fetch.New(fetch.WithHTTPClient(srv.Client())))

	res := r.Resolve(context.Background(), "virt://flaky.vc")
	require.Equal(t, Resolved, res.Outcome)
	require.Equal(t, "second time", string(res.Body))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	res = r.Resolve(ctx, "virt://slow.vc")
	require.Equal(t, Fallback, res.Outcome)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestFallbackPage_Deterministic(t *testing.T) {
	a := FallbackPage("x-y.vc", true)
	b := FallbackPage("x-y.vc", true)
	require.Equal(t, a, b)
	require.NotEqual(t, a, FallbackPage("x-y.vc", false))
}

func TestRender_ExecutionErrorServesStaticPage(t *testing.T) {
	broken := template.Must(template.New("broken").Parse(`<p>{{.Name}}</p>{{.Absent}}`))
	body := render(broken, struct{ Name string }{"partial"})
	require.Equal(t, renderFailedPage, string(body))
	require.NotContains(t, string(body), "partial")

	ok := render(unreachableTmpl, struct{ URL string }{"https://x.example"})
	require.Contains(t, string(ok), "https://x.example could not be loaded")
}
