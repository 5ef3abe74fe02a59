package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedClock lets tests march time forward without sleeping.
type fixedClock struct {
	t time.Time
}

func (f *fixedClock) now() time.Time { return f.t }

func (f *fixedClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestCache(cfg Config) (*MemoryCache, *fixedClock) {
	c := New(cfg, nil)
	clk := &fixedClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	c.now = clk.now
	return c, clk
}

func TestSetGet(t *testing.T) {
	c, _ := newTestCache(Config{Name: "data"})

	c.Set("tenant:1", "alice", Options{})

	v, ok := c.Get("tenant:1")
	require.True(t, ok)
	assert.Equal(t, "alice", v)

	_, ok = c.Get("tenant:2")
	assert.False(t, ok)
}

func TestGetExpiresLazily(t *testing.T) {
	c, clk := newTestCache(Config{Name: "data"})

	c.Set("a", 1, Options{TTL: 100 * time.Millisecond})

	clk.advance(50 * time.Millisecond)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	clk.advance(100 * time.Millisecond)
	_, ok = c.Get("a")
	assert.False(t, ok)

	// Expired entry was deleted as a side effect of the miss.
	assert.Equal(t, 0, c.Len())

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Expired)
}

func TestZeroTTLNeverExpires(t *testing.T) {
	c, clk := newTestCache(Config{Name: "data"})

	c.Set("a", 1, Options{})
	clk.advance(24 * time.Hour)

	_, ok := c.Get("a")
	assert.True(t, ok)
}

func TestSetOverwriteReleasesSize(t *testing.T) {
	c, _ := newTestCache(Config{
		Name:  "data",
		Sizer: func(v any) (int64, error) { return int64(len(v.(string))), nil },
	})

	c.Set("k", "aaaaaaaaaa", Options{}) // 10 bytes
	c.Set("k", "bb", Options{})         // 2 bytes

	stats := c.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(2), stats.SizeBytes)
}

func TestDelete(t *testing.T) {
	c, _ := newTestCache(Config{Name: "data"})

	c.Set("k", 1, Options{})
	assert.True(t, c.Delete("k"))
	assert.False(t, c.Delete("k"))

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestHasDoesNotTouchAccessStats(t *testing.T) {
	c, _ := newTestCache(Config{Name: "data"})

	c.Set("k", 1, Options{})
	assert.True(t, c.Has("k"))
	assert.False(t, c.Has("missing"))

	stats := c.Stats()
	assert.Zero(t, stats.Hits)
	assert.Zero(t, stats.Misses)
}

func TestClearByTags(t *testing.T) {
	c, _ := newTestCache(Config{Name: "data"})

	c.Set("k1", 1, Options{Tags: []string{"a", "b"}})
	c.Set("k2", 2, Options{Tags: []string{"b"}})
	c.Set("k3", 3, Options{Tags: []string{"c"}})

	removed := c.ClearByTags([]string{"a"})
	assert.Equal(t, 1, removed)

	_, ok := c.Get("k1")
	assert.False(t, ok)
	assert.True(t, c.Has("k2"))
	assert.True(t, c.Has("k3"))
}

func TestClearByTagsEmpty(t *testing.T) {
	c, _ := newTestCache(Config{Name: "data"})
	c.Set("k1", 1, Options{Tags: []string{"a"}})

	assert.Zero(t, c.ClearByTags(nil))
	assert.True(t, c.Has("k1"))
}

func TestCleanupRemovesOnlyExpired(t *testing.T) {
	c, clk := newTestCache(Config{Name: "data"})

	c.Set("short", 1, Options{TTL: 10 * time.Millisecond})
	c.Set("long", 2, Options{TTL: time.Hour})
	c.Set("forever", 3, Options{})

	clk.advance(time.Minute)
	removed := c.Cleanup()

	assert.Equal(t, 1, removed)
	assert.Equal(t, 2, c.Len())
	assert.True(t, c.Has("long"))
	assert.True(t, c.Has("forever"))
}

func TestGetOrSet(t *testing.T) {
	c, _ := newTestCache(Config{Name: "data"})
	calls := 0

	factory := func(context.Context) (any, error) {
		calls++
		return "fresh", nil
	}

	v, err := c.GetOrSet(context.Background(), "k", factory, Options{})
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)

	v, err = c.GetOrSet(context.Background(), "k", factory, Options{})
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)
	assert.Equal(t, 1, calls)
}

func TestGetOrSetFactoryErrorNotCached(t *testing.T) {
	c, _ := newTestCache(Config{Name: "data"})
	boom := errors.New("backing store down")

	_, err := c.GetOrSet(context.Background(), "k", func(context.Context) (any, error) {
		return nil, boom
	}, Options{})
	require.ErrorIs(t, err, boom)

	assert.False(t, c.Has("k"))
}

func TestSizerFailureFallsBack(t *testing.T) {
	c, _ := newTestCache(Config{Name: "data"})

	// Channels cannot be marshaled to JSON; the write must still land.
	c.Set("k", make(chan int), Options{})

	assert.True(t, c.Has("k"))
	assert.Equal(t, int64(fallbackEntrySize), c.Stats().SizeBytes)
}

func TestOversizedEntryInsertedAnyway(t *testing.T) {
	c, _ := newTestCache(Config{
		Name:         "data",
		MaxSizeBytes: 10,
		Sizer:        func(v any) (int64, error) { return int64(len(v.(string))), nil },
	})

	c.Set("small", "abc", Options{})
	c.Set("huge", "this value is far beyond the byte budget", Options{})

	// The small entry was evicted trying to make room, and the oversized
	// entry landed regardless: a write is never rejected.
	assert.False(t, c.Has("small"))
	assert.True(t, c.Has("huge"))
}

func TestStartCleanupStops(t *testing.T) {
	c := New(Config{Name: "data"}, nil)

	c.Set("k", 1, Options{TTL: time.Nanosecond})
	stop := c.StartCleanup(5 * time.Millisecond)

	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)

	stop()
	stop() // idempotent
}

func TestStatsHitRate(t *testing.T) {
	c, _ := newTestCache(Config{Name: "data"})

	c.Set("k", 1, Options{})
	c.Get("k")
	c.Get("k")
	c.Get("missing")
	c.Get("missing")

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)
}
