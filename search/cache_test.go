package search

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_TTL(t *testing.T) {
	store := NewMemoryStore()
	base := time.Unix(1_700_000_000, 0)
	now := base
	store.now = func() time.Time { return now }

	ctx := context.Background()
	ttl := time.Minute
	require.NoError(t, store.Set(ctx, "k", []Result{{URL: "https://example.com/a"}}, ttl))

	now = base.Add(ttl - time.Second)
	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.Len(t, got, 1)

	now = base.Add(ttl + time.Second)
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Equal(t, 0, store.Len(), "expired entry evicted on read")
}

func TestMemoryStore_MissOnAbsentKey(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get(context.Background(), "never set")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "k", []Result{{Title: "original"}}, time.Minute))

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	got[0].Title = "mutated"

	again, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "original", again[0].Title)
}

func TestRedisStore_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client)
	ctx := context.Background()

	results := []Result{
		{Title: "one", URL: "https://example.com/1", Provider: "alpha"},
		{Title: "two", URL: "https://example.com/2", Provider: "beta"},
	}
	require.NoError(t, store.Set(ctx, "q|alpha,beta|priority", results, time.Minute))

	got, err := store.Get(ctx, "q|alpha,beta|priority")
	require.NoError(t, err)
	assert.Equal(t, results, got)
}

func TestRedisStore_TTLExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []Result{{URL: "https://example.com/a"}}, time.Minute))

	mr.FastForward(time.Minute + time.Second)
	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisStore_MissOnAbsentKey(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client)

	_, err := store.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestAggregator_ExpiredCacheTriggersFreshFetch(t *testing.T) {
	store := NewMemoryStore()
	base := time.Unix(1_700_000_000, 0)
	now := base
	store.now = func() time.Time { return now }

	ttl := 10 * time.Minute
	a := NewAggregator(Options{Mode: ModePriority, CacheEnabled: true, CacheTTL: ttl}, store, nil)

	var calls int32
	a.Register(staticProvider("alpha", &calls, Result{URL: "https://example.com/a"}),
		ProviderConfig{Enabled: true, Priority: 1})

	ctx := context.Background()
	_, err := a.Search(ctx, "q", 5)
	require.NoError(t, err)

	now = base.Add(ttl - time.Second)
	_, err = a.Search(ctx, "q", 5)
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "inside ttl: zero provider calls")

	now = base.Add(ttl + time.Second)
	_, err = a.Search(ctx, "q", 5)
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls), "past ttl: fresh provider call")
}
