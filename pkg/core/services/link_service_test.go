package services_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soft-duck/shorty/pkg/adapters/repository/sqlite"
	"github.com/soft-duck/shorty/pkg/core/domain"
	"github.com/soft-duck/shorty/pkg/core/services"
	"github.com/soft-duck/shorty/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store *services.LinkStore
	repo  *sqlite.SQLiteRepository
	clock *domain.MockClock
}

func newFixture(t *testing.T, gen *sequenceGenerator) *fixture {
	t.Helper()
	repo, err := sqlite.NewSQLiteRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	clock := domain.NewMockClock(epoch)
	var g ports.IDGenerator = services.NewRandomIDGenerator(services.DefaultIDLength)
	if gen != nil {
		g = gen
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{
		store: services.NewLinkStore(repo, g, services.DefaultOptions(), clock, logger),
		repo:  repo,
		clock: clock,
	}
}

// sequenceGenerator returns ids from a fixed list, repeating the last one.
type sequenceGenerator struct {
	mu  sync.Mutex
	ids []string
	n   int
}

func (g *sequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.ids[min(g.n, len(g.ids)-1)]
	g.n++
	return id
}

func ptr[T any](v T) *T { return &v }

func TestLinkStore_CreateDefault(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	link, err := f.store.CreateDefault(ctx, "https://example.com")
	require.NoError(t, err)

	assert.Len(t, link.ID, services.DefaultIDLength)
	assert.Equal(t, "https://example.com", link.RedirectTo)
	assert.Zero(t, link.MaxUses)
	assert.Zero(t, link.Invocations)
	assert.Equal(t, 7*24*time.Hour, link.ValidFor)
	assert.True(t, epoch.Equal(link.CreatedAt))

	got, err := f.store.Get(ctx, link.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "https://example.com", got.RedirectTo)
	assert.EqualValues(t, 1, got.Invocations)
}

func TestLinkStore_UseLimit(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	link, err := f.store.CreateWithConfig(ctx, domain.LinkConfig{Link: "https://example.com", MaxUses: ptr[int64](2)})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		got, err := f.store.Get(ctx, link.ID)
		require.NoError(t, err)
		require.NotNil(t, got, "lookup %d", i+1)
	}

	got, err := f.store.Get(ctx, link.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	stored, err := f.repo.Find(ctx, link.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stored.Invocations)
}

func TestLinkStore_TimeLimit(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	link, err := f.store.CreateWithConfig(ctx, domain.LinkConfig{Link: "https://example.com", ValidFor: ptr[int64](1000)})
	require.NoError(t, err)

	f.clock.Advance(time.Second)
	assert.NotNil(t, f.store.Resolve(ctx, link.ID))

	f.clock.Advance(time.Millisecond)
	assert.Nil(t, f.store.Resolve(ctx, link.ID))
}

func TestLinkStore_ZeroMeansUnlimited(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	link, err := f.store.CreateWithConfig(ctx, domain.LinkConfig{
		Link:     "https://example.com",
		MaxUses:  ptr[int64](0),
		ValidFor: ptr[int64](0),
	})
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		require.NotNil(t, f.store.Resolve(ctx, link.ID))
	}
	f.clock.Advance(10 * 365 * 24 * time.Hour)
	assert.NotNil(t, f.store.Resolve(ctx, link.ID))
}

func TestLinkStore_NegativeLimitsClamp(t *testing.T) {
	f := newFixture(t, nil)

	link, err := f.store.CreateWithConfig(context.Background(), domain.LinkConfig{
		Link:     "https://example.com",
		MaxUses:  ptr[int64](-5),
		ValidFor: ptr[int64](-1),
	})
	require.NoError(t, err)
	assert.Zero(t, link.MaxUses)
	assert.Zero(t, link.ValidFor)
}

func TestLinkStore_Validation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		cfg  domain.LinkConfig
		want error
	}{
		{"empty link", domain.LinkConfig{Link: ""}, domain.ErrLinkEmpty},
		{"link too long", domain.LinkConfig{Link: strings.Repeat("a", 2501)}, domain.ErrLinkExceedsMaxLength},
		{"custom id too long", domain.LinkConfig{Link: "https://example.com", CustomID: ptr(strings.Repeat("x", 501))}, domain.ErrCustomIDExceedsMaxLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.store.CreateWithConfig(ctx, tt.cfg)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	count, err := f.repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = f.store.CreateWithConfig(ctx, domain.LinkConfig{Link: strings.Repeat("a", 2500)})
	assert.NoError(t, err)
}

func TestLinkStore_CustomIDConflict(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.store.CreateWithConfig(ctx, domain.LinkConfig{Link: "https://a.example", CustomID: ptr("mine"), MaxUses: ptr[int64](1)})
	require.NoError(t, err)

	_, err = f.store.CreateWithConfig(ctx, domain.LinkConfig{Link: "https://b.example", CustomID: ptr("mine")})
	assert.ErrorIs(t, err, domain.ErrLinkConflict)
	assert.Equal(t, 409, domain.StatusCode(err))

	require.NotNil(t, f.store.Resolve(ctx, "mine"))

	link, err := f.store.CreateWithConfig(ctx, domain.LinkConfig{Link: "https://b.example", CustomID: ptr("mine")})
	require.NoError(t, err)
	assert.Equal(t, "mine", link.ID)

	got := f.store.Resolve(ctx, "mine")
	require.NotNil(t, got)
	assert.Equal(t, "https://b.example", got.RedirectTo)
}

func TestLinkStore_RandomIDExhausted(t *testing.T) {
	gen := &sequenceGenerator{ids: []string{"same"}}
	f := newFixture(t, gen)
	ctx := context.Background()

	_, err := f.store.CreateDefault(ctx, "https://a.example")
	require.NoError(t, err)

	_, err = f.store.CreateDefault(ctx, "https://b.example")
	assert.ErrorIs(t, err, domain.ErrRandomIDExhausted)
	assert.Equal(t, 1+services.MaxIDAttempts, gen.n)
}

func TestLinkStore_RandomIDRetry(t *testing.T) {
	gen := &sequenceGenerator{ids: []string{"aaa", "aaa", "aaa", "bbb"}}
	f := newFixture(t, gen)
	ctx := context.Background()

	first, err := f.store.CreateDefault(ctx, "https://a.example")
	require.NoError(t, err)
	assert.Equal(t, "aaa", first.ID)

	second, err := f.store.CreateDefault(ctx, "https://b.example")
	require.NoError(t, err)
	assert.Equal(t, "bbb", second.ID)
}

func TestLinkStore_LookupMissAndExpiredAreIndistinguishable(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	link, err := f.store.CreateWithConfig(ctx, domain.LinkConfig{Link: "https://example.com", MaxUses: ptr[int64](1)})
	require.NoError(t, err)
	require.NotNil(t, f.store.Resolve(ctx, link.ID))

	expired, errExpired := f.store.Get(ctx, link.ID)
	missing, errMissing := f.store.Get(ctx, "does-not-exist")
	assert.Nil(t, expired)
	assert.Nil(t, missing)
	assert.NoError(t, errExpired)
	assert.NoError(t, errMissing)
}

func TestLinkStore_Clean(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	exhausted, err := f.store.CreateWithConfig(ctx, domain.LinkConfig{Link: "https://a.example", MaxUses: ptr[int64](1)})
	require.NoError(t, err)
	require.NotNil(t, f.store.Resolve(ctx, exhausted.ID))

	_, err = f.store.CreateWithConfig(ctx, domain.LinkConfig{Link: "https://b.example", ValidFor: ptr[int64](1000)})
	require.NoError(t, err)

	valid, err := f.store.CreateWithConfig(ctx, domain.LinkConfig{Link: "https://c.example", ValidFor: ptr[int64](0)})
	require.NoError(t, err)

	f.clock.Advance(2 * time.Second)

	removed, err := f.store.Clean(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)

	links, err := f.store.List(ctx)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, valid.ID, links[0].ID)

	removed, err = f.store.Clean(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestLinkStore_Invalidate(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	link, err := f.store.CreateDefault(ctx, "https://example.com")
	require.NoError(t, err)

	ok, err := f.store.Invalidate(ctx, link.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Nil(t, f.store.Resolve(ctx, link.ID))

	ok, err = f.store.Invalidate(ctx, link.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLinkStore_Import(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.store.CreateWithConfig(ctx, domain.LinkConfig{Link: "https://taken.example", CustomID: ptr("taken")})
	require.NoError(t, err)

	res, err := f.store.Import(ctx, []domain.Link{
		{ID: "new", RedirectTo: "https://new.example", MaxUses: 3, Invocations: 1, CreatedAt: epoch},
		{ID: "taken", RedirectTo: "https://other.example", CreatedAt: epoch},
		{ID: "stale", RedirectTo: "https://stale.example", CreatedAt: epoch.Add(-time.Hour), ValidFor: time.Minute},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 2, res.Skipped)

	got := f.store.Resolve(ctx, "new")
	require.NotNil(t, got)
	assert.EqualValues(t, 2, got.Invocations)
}

func TestLinkStore_ConcurrentGetsCountExactly(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	limited, err := f.store.CreateWithConfig(ctx, domain.LinkConfig{Link: "https://example.com", MaxUses: ptr[int64](10)})
	require.NoError(t, err)
	unlimited, err := f.store.CreateWithConfig(ctx, domain.LinkConfig{Link: "https://example.com", MaxUses: ptr[int64](0)})
	require.NoError(t, err)

	const workers = 100
	var (
		wg       sync.WaitGroup
		resolved atomic.Int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if l, err := f.store.Get(ctx, limited.ID); err == nil && l != nil {
				resolved.Add(1)
			}
		}()
		go func() {
			defer wg.Done()
			_, _ = f.store.Get(ctx, unlimited.ID)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 10, resolved.Load())

	stored, err := f.repo.Find(ctx, limited.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 10, stored.Invocations)

	stored, err = f.repo.Find(ctx, unlimited.ID)
	require.NoError(t, err)
	assert.EqualValues(t, workers, stored.Invocations)
}

func TestLinkStore_ConcurrentCustomCreateHasOneWinner(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	const workers = 20
	var (
		wg        sync.WaitGroup
		ok        atomic.Int64
		conflicts atomic.Int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.store.CreateWithConfig(ctx, domain.LinkConfig{Link: "https://example.com", CustomID: ptr("race")})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, domain.ErrLinkConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, ok.Load())
	assert.EqualValues(t, workers-1, conflicts.Load())
}

func TestLinkStore_StorageErrorsAreWrapped(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.repo.Close())

	_, err := f.store.CreateDefault(ctx, "https://example.com")
	assert.ErrorIs(t, err, domain.ErrStorage)

	_, err = f.store.Get(ctx, "abc")
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.Nil(t, f.store.Resolve(ctx, "abc"))

	_, err = f.store.Clean(ctx, f.clock.Now())
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestLinkStore_HugeValidForIsClamped(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	link, err := f.store.CreateWithConfig(ctx, domain.LinkConfig{
		Link:     "https://example.com",
		CustomID: ptr("long"),
		ValidFor: ptr[int64](10_000_000_000_000),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.MaxValidFor, link.ValidFor)

	stored, err := f.store.Peek(ctx, "long")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, domain.MaxValidFor, stored.ValidFor)

	f.clock.Advance(100 * 365 * 24 * time.Hour)
	require.NotNil(t, f.store.Resolve(ctx, "long"))

	_, err = f.store.CreateWithConfig(ctx, domain.LinkConfig{Link: "https://other.example", CustomID: ptr("long")})
	assert.ErrorIs(t, err, domain.ErrLinkConflict)
}

func TestLinkStore_Peek(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	link, err := f.store.CreateWithConfig(ctx, domain.LinkConfig{Link: "https://example.com", MaxUses: ptr[int64](1)})
	require.NoError(t, err)

	got, err := f.store.Peek(ctx, link.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Zero(t, got.Invocations)

	require.NotNil(t, f.store.Resolve(ctx, link.ID))

	got, err = f.store.Peek(ctx, link.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.EqualValues(t, 1, got.Invocations)
	assert.True(t, got.IsInvalid(f.clock.Now()))

	missing, err := f.store.Peek(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestLinkStore_ImportEnforcesLimits(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.store.Import(ctx, []domain.Link{
		{ID: "ok", RedirectTo: "https://example.com", CreatedAt: epoch},
		{ID: "longlink", RedirectTo: strings.Repeat("a", 2501), CreatedAt: epoch},
		{ID: strings.Repeat("x", 501), RedirectTo: "https://example.com", CreatedAt: epoch},
		{ID: "", RedirectTo: "https://example.com", CreatedAt: epoch},
		{ID: "empty", RedirectTo: "", CreatedAt: epoch},
		{ID: "negative", RedirectTo: "https://example.com", MaxUses: -1, CreatedAt: epoch},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 5, res.Skipped)

	count, err := f.repo.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}
