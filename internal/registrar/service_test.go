package registrar

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/starford/virt/internal/apperr"
	"github.com/starford/virt/internal/names"
	"github.com/starford/virt/internal/testutil"
)

type recordedEvent struct{ kind, name string }

type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) PublishNameEvent(kind, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{kind, name})
}

func testService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithBcryptCost(bcrypt.MinCost)}, opts...)
	return NewService(testutil.TestDB(t), opts...)
}

func strPtr(s string) *string { return &s }

func register(t *testing.T, s *Service, label, tag, target string) *Registration {
	t.Helper()
	reg, err := s.Register(context.Background(), RegisterRequest{Label: label, Tag: tag, Target: target})
	require.NoError(t, err)
	return reg
}

func TestRegister_ThenLookup(t *testing.T) {
	s := testService(t)
	ctx := context.Background()

	reg, err := s.Register(ctx, RegisterRequest{
		Label:       "myapp",
		Tag:         "vc",
		Target:      "https://example.com/app",
		Title:       "My App",
		Description: "An app",
	})
	require.NoError(t, err)
	require.True(t, reg.Success)
	require.Equal(t, "myapp.vc", reg.Name)
	require.True(t, strings.HasPrefix(reg.SecretKey, SecretPrefix))
	require.Len(t, reg.SecretKey, len(SecretPrefix)+2*secretBytes)

	res, err := s.Lookup(ctx, "myapp", "vc")
	require.NoError(t, err)
	require.Equal(t, "https://example.com/app", res.Target)
	require.Equal(t, res.Target, res.RawBase)
	require.Equal(t, "My App", res.Title)
	require.Equal(t, "An app", res.Description)
	require.False(t, res.Verified)
}

func TestRegister_GithubTargetRewritten(t *testing.T) {
	s := testService(t)
	register(t, s, "myapp", "vc", "https://github.com/u/r")

	res, err := s.Lookup(context.Background(), "myapp", "vc")
	require.NoError(t, err)
	require.Equal(t, "https://github.com/u/r", res.Target)
	require.True(t, strings.HasPrefix(res.RawBase, "https://raw.githubusercontent.com/u/r"))
	require.True(t, strings.HasSuffix(res.RawBase, "/"))
}

func TestRegister_IPTarget(t *testing.T) {
	s := testService(t)
	register(t, s, "lan-box", "org", "192.168.0.10:8080")

	res, err := s.Lookup(context.Background(), "lan-box", "org")
	require.NoError(t, err)
	require.Equal(t, "192.168.0.10:8080", res.RawBase)
}

func TestRegister_Validation(t *testing.T) {
	s := testService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  RegisterRequest
		want error
	}{
		{"missing label", RegisterRequest{Tag: "vc", Target: "https://x.io"}, apperr.ErrInvalidInput},
		{"missing tag", RegisterRequest{Label: "abc", Target: "https://x.io"}, apperr.ErrInvalidInput},
		{"missing target", RegisterRequest{Label: "abc", Tag: "vc"}, apperr.ErrInvalidInput},
		{"unknown tag", RegisterRequest{Label: "abc", Tag: "com", Target: "https://x.io"}, apperr.ErrInvalidTag},
		{"short label", RegisterRequest{Label: "ab", Tag: "vc", Target: "https://x.io"}, apperr.ErrInvalidInput},
		{"dotted label", RegisterRequest{Label: "a.bc", Tag: "vc", Target: "https://x.io"}, apperr.ErrInvalidInput},
		{"http target", RegisterRequest{Label: "abc", Tag: "vc", Target: "http://x.io"}, apperr.ErrInvalidInput},
		{"long title", RegisterRequest{Label: "abc", Tag: "vc", Target: "https://x.io", Title: strings.Repeat("t", 101)}, apperr.ErrInvalidInput},
		{"long description", RegisterRequest{Label: "abc", Tag: "vc", Target: "https://x.io", Description: strings.Repeat("d", 501)}, apperr.ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Register(ctx, tc.req)
			require.True(t, errors.Is(err, tc.want), "got %v, want %v", err, tc.want)
		})
	}
}

func TestRegister_NormalizesLabel(t *testing.T) {
	s := testService(t)
	reg := register(t, s, "  MyApp ", "VC", "https://example.com")
	require.Equal(t, "myapp.vc", reg.Name)
}

func TestRegister_Conflict(t *testing.T) {
	s := testService(t)
	register(t, s, "taken", "biz", "https://a.io")

	_, err := s.Register(context.Background(), RegisterRequest{Label: "taken", Tag: "biz", Target: "https://b.io"})
	require.True(t, errors.Is(err, apperr.ErrConflict))
}

func TestRegister_ConcurrentSameName(t *testing.T) {
	s := testService(t)
	ctx := context.Background()

	const n = 6
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Register(ctx, RegisterRequest{Label: "contest", Tag: "vc", Target: "https://x.io"})
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		require.True(t, errors.Is(err, apperr.ErrConflict), "got %v", err)
	}
	require.Equal(t, 1, ok)
}

func TestRegister_DistinctSecrets(t *testing.T) {
	s := testService(t)
	a := register(t, s, "first", "vc", "https://a.io")
	b := register(t, s, "second", "vc", "https://b.io")
	require.NotEqual(t, a.SecretKey, b.SecretKey)
}

func TestCheck(t *testing.T) {
	s := testService(t)
	ctx := context.Background()

	a, err := s.Check(ctx, "fresh", "lit")
	require.NoError(t, err)
	require.True(t, a.Available)

	register(t, s, "fresh", "lit", "https://x.io")
	a, err = s.Check(ctx, "fresh", "lit")
	require.NoError(t, err)
	require.False(t, a.Available)
	require.Contains(t, a.Message, "fresh.lit")

	_, err = s.Check(ctx, "fresh", "com")
	require.True(t, errors.Is(err, apperr.ErrInvalidTag))
	_, err = s.Check(ctx, "x", "vc")
	require.True(t, errors.Is(err, apperr.ErrInvalidInput))
}

func TestUpdate_PartialFields(t *testing.T) {
	s := testService(t)
	ctx := context.Background()

	reg, err := s.Register(ctx, RegisterRequest{
		Label: "part", Tag: "vc", Target: "https://a.io", Title: "Title", Description: "Desc",
	})
	require.NoError(t, err)

	sum, err := s.Update(ctx, UpdateRequest{
		Label: "part", Tag: "vc", Secret: reg.SecretKey,
		Target: strPtr("https://b.io"),
	})
	require.NoError(t, err)
	require.True(t, sum.Success)
	require.Equal(t, "https://b.io", sum.Target)
	require.Equal(t, "Title", sum.Title)
	require.Equal(t, "Desc", sum.Description)

	// Explicit empty string clears, absent leaves alone.
	sum, err = s.Update(ctx, UpdateRequest{
		Label: "part", Tag: "vc", Secret: reg.SecretKey,
		Title: strPtr(""),
	})
	require.NoError(t, err)
	require.Empty(t, sum.Title)
	require.Equal(t, "Desc", sum.Description)
	require.Equal(t, "https://b.io", sum.Target)

	res, err := s.Lookup(ctx, "part", "vc")
	require.NoError(t, err)
	require.Equal(t, "https://b.io", res.Target)
	require.Empty(t, res.Title)
}

func TestUpdate_RefreshesLastAccessed(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	s := testService(t, WithClock(clock))
	ctx := context.Background()

	reg := register(t, s, "clock", "org", "https://a.io")
	now = now.Add(time.Hour)

	sum, err := s.Update(ctx, UpdateRequest{Label: "clock", Tag: "org", Secret: reg.SecretKey, Description: strPtr("d")})
	require.NoError(t, err)
	require.WithinDuration(t, now, sum.LastAccessed, time.Second)
}

func TestUpdate_Errors(t *testing.T) {
	s := testService(t)
	ctx := context.Background()
	reg := register(t, s, "owned", "vc", "https://a.io")

	_, err := s.Update(ctx, UpdateRequest{Label: "owned", Tag: "vc", Secret: reg.SecretKey + "x"})
	require.True(t, errors.Is(err, apperr.ErrUnauthorized))

	_, err = s.Update(ctx, UpdateRequest{Label: "owned", Tag: "vc", Secret: reg.SecretKey[:len(reg.SecretKey)-1]})
	require.True(t, errors.Is(err, apperr.ErrUnauthorized))

	_, err = s.Update(ctx, UpdateRequest{Label: "ghost", Tag: "vc", Secret: reg.SecretKey})
	require.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = s.Update(ctx, UpdateRequest{Label: "owned", Tag: "xyz", Secret: reg.SecretKey})
	require.True(t, errors.Is(err, apperr.ErrInvalidTag))

	_, err = s.Update(ctx, UpdateRequest{Label: "owned", Tag: "vc"})
	require.True(t, errors.Is(err, apperr.ErrInvalidInput))

	_, err = s.Update(ctx, UpdateRequest{Label: "owned", Tag: "vc", Secret: reg.SecretKey, Target: strPtr("")})
	require.True(t, errors.Is(err, apperr.ErrInvalidInput))

	// Failed attempts leave the record untouched.
	res, err := s.Lookup(ctx, "owned", "vc")
	require.NoError(t, err)
	require.Equal(t, "https://a.io", res.Target)
}

func TestDelete(t *testing.T) {
	rec := &eventRecorder{}
	s := testService(t, WithPublisher(rec))
	ctx := context.Background()
	reg := register(t, s, "doomed", "lit", "https://a.io")

	err := s.Delete(ctx, DeleteRequest{Label: "doomed", Tag: "lit", Secret: "virt_wrong"})
	require.True(t, errors.Is(err, apperr.ErrUnauthorized))

	require.NoError(t, s.Delete(ctx, DeleteRequest{Label: "doomed", Tag: "lit", Secret: reg.SecretKey}))

	_, err = s.Lookup(ctx, "doomed", "lit")
	require.True(t, errors.Is(err, apperr.ErrNotFound))

	err = s.Delete(ctx, DeleteRequest{Label: "doomed", Tag: "lit", Secret: reg.SecretKey})
	require.True(t, errors.Is(err, apperr.ErrNotFound))

	require.Equal(t, []recordedEvent{
		{EventRegistered, "doomed.lit"},
		{EventDeleted, "doomed.lit"},
	}, rec.events)
}

func TestLookup_Errors(t *testing.T) {
	s := testService(t)
	ctx := context.Background()

	_, err := s.Lookup(ctx, "nothing", "vc")
	require.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = s.Lookup(ctx, "nothing", "net")
	require.True(t, errors.Is(err, apperr.ErrInvalidTag))
}

func TestLookup_RefreshesLastAccessed(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s := testService(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	register(t, s, "seen", "biz", "https://a.io")
	now = now.Add(24 * time.Hour)

	res, err := s.Lookup(ctx, "seen", "biz")
	require.NoError(t, err)
	require.WithinDuration(t, now, res.LastAccessed, time.Second)
	require.True(t, res.LastAccessed.After(res.CreatedAt))
}

func TestSearch_DisplayFieldsOnly(t *testing.T) {
	s := testService(t)
	ctx := context.Background()

	_, err := s.Register(ctx, RegisterRequest{Label: "bodyonly", Tag: "vc", Target: "https://a.io", Description: "has quokka inside"})
	require.NoError(t, err)
	_, err = s.Register(ctx, RegisterRequest{Label: "titled", Tag: "vc", Target: "https://b.io", Title: "Quokka"})
	require.NoError(t, err)

	hits, err := s.Search(ctx, "quokka", 0)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	require.Equal(t, "titled", hits[0].Label)
	require.Equal(t, names.TagVC, hits[0].Tag)
	require.Equal(t, "bodyonly", hits[1].Label)
}
