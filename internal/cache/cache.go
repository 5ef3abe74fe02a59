// Package cache implements the process-local entry store backing the
// dashboard caching subsystem: a size- and count-bounded keyed store with
// lazy TTL expiry, pluggable eviction strategies, tag-based bulk
// invalidation, and hit/miss statistics.
//
// The store is strictly additive: Get and Set never fail because of cache
// state. A cache miss is a (zero, false) return, not an error, and a write
// that cannot be sized falls back to a fixed estimate rather than being
// rejected.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sizer estimates the in-memory footprint of a value in bytes.
type Sizer func(v any) (int64, error)

// jsonSizer is the default Sizer: the serialized JSON length. Matches how
// entries travel to collaborators, so it tracks real payload weight well
// enough for budgeting.
func jsonSizer(v any) (int64, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	return int64(len(b)), nil
}

// fallbackEntrySize is charged when a value cannot be sized at all.
const fallbackEntrySize = 64

// Config holds the per-store budgets and defaults.
type Config struct {
	// Name identifies the store in logs and metrics ("data", "search", ...).
	Name string

	// MaxSizeBytes is the byte budget enforced on Set. Zero disables it.
	MaxSizeBytes int64

	// MaxEntries is the entry-count budget enforced on Set. Zero disables it.
	MaxEntries int

	// DefaultTTL applies when a Set carries no TTL. Zero means no expiry.
	DefaultTTL time.Duration

	// DefaultStrategy applies when a Set carries no strategy. LRU if empty.
	DefaultStrategy Strategy

	// Sizer overrides the default JSON-length size estimator.
	Sizer Sizer

	// Now overrides the clock. Tests use it to assert TTL behavior
	// without sleeping.
	Now func() time.Time
}

// MemoryCache is a thread-safe in-memory store with budget-driven eviction.
//
// One MemoryCache backs one named cache instance; domains that share a store
// are kept apart by key prefixes, never by sharing map slots.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	cfg       Config
	totalSize int64

	hits      int64
	misses    int64
	evictions int64
	expired   int64

	logger *zap.Logger

	// now is swappable so TTL behavior is testable without sleeping.
	now func() time.Time
}

// New creates a MemoryCache with the given config. A nil logger is replaced
// with a no-op logger.
func New(cfg Config, logger *zap.Logger) *MemoryCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultStrategy == "" {
		cfg.DefaultStrategy = StrategyLRU
	}
	if cfg.Sizer == nil {
		cfg.Sizer = jsonSizer
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{
		entries: make(map[string]*Entry),
		cfg:     cfg,
		logger:  logger.With(zap.String("cache", cfg.Name)),
		now:     now,
	}
}

// Set stores a value under key, evicting entries as needed to satisfy the
// byte and count budgets. Set never rejects a write: if the store has been
// emptied and the entry still exceeds the byte budget, it is inserted
// anyway. Overwriting an existing key releases its previous size first.
func (c *MemoryCache) Set(key string, value any, opts Options) {
	size, err := c.cfg.Sizer(value)
	if err != nil {
		size = fallbackEntrySize
		c.logger.Debug("size estimation failed, using fallback",
			zap.String("key", key),
			zap.Error(err),
		)
	}

	ttl := opts.TTL
	if ttl == 0 {
		ttl = c.cfg.DefaultTTL
	}
	strategy := opts.Strategy
	if strategy == "" {
		strategy = c.cfg.DefaultStrategy
	}
	maxBytes := c.cfg.MaxSizeBytes
	if opts.MaxSizeBytes > 0 {
		maxBytes = opts.MaxSizeBytes
	}
	maxEntries := c.cfg.MaxEntries
	if opts.MaxEntries > 0 {
		maxEntries = opts.MaxEntries
	}

	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok {
		c.removeLocked(existing)
	}

	c.evictForLocked(size, maxBytes, maxEntries, strategy, now)

	c.entries[key] = &Entry{
		Key:            key,
		Value:          value,
		InsertedAt:     now,
		TTL:            ttl,
		LastAccessedAt: now,
		SizeBytes:      size,
		Tags:           append([]string(nil), opts.Tags...),
	}
	c.totalSize += size
}

// Get returns the value for key, or (nil, false) when the key is absent or
// expired. An expired entry is deleted as a side effect of the miss. A hit
// bumps the entry's access count and last-access time.
func (c *MemoryCache) Get(key string) (any, bool) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if ent.expired(now) {
		c.removeLocked(ent)
		c.expired++
		c.misses++
		return nil, false
	}

	ent.AccessCount++
	ent.LastAccessedAt = now
	c.hits++
	return ent.Value, true
}

// Has reports whether key is present and not expired, without touching
// access statistics.
func (c *MemoryCache) Has(key string) bool {
	now := c.now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	ent, ok := c.entries[key]
	return ok && !ent.expired(now)
}

// GetOrSet returns the cached value for key, invoking factory on a miss and
// storing its result. The factory runs outside the store lock, so two
// concurrent misses may both invoke it; callers that need single-flight
// semantics must go through the prefetch layer instead.
func (c *MemoryCache) GetOrSet(ctx context.Context, key string, factory func(context.Context) (any, error), opts Options) (any, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := factory(ctx)
	if err != nil {
		return nil, err
	}
	c.Set(key, v, opts)
	return v, nil
}

// Delete removes key from the store. Returns false when the key was absent.
func (c *MemoryCache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.entries[key]
	if !ok {
		return false
	}
	c.removeLocked(ent)
	return true
}

// ClearByTags removes every live entry whose tag set intersects tags and
// returns how many were removed.
func (c *MemoryCache) ClearByTags(tags []string) int {
	if len(tags) == 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var victims []*Entry
	for _, ent := range c.entries {
		if ent.hasAnyTag(tags) {
			victims = append(victims, ent)
		}
	}
	for _, ent := range victims {
		c.removeLocked(ent)
	}

	if len(victims) > 0 {
		c.logger.Debug("cleared entries by tag",
			zap.Strings("tags", tags),
			zap.Int("count", len(victims)),
		)
	}
	return len(victims)
}

// Clear removes all entries and resets the size accounting. Counters are
// kept; they are cumulative for the lifetime of the store.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*Entry)
	c.totalSize = 0
}

// Cleanup removes all currently-expired entries and returns the count.
// Correctness does not depend on it (expiry is lazy on read); it exists to
// bound memory independent of read traffic.
func (c *MemoryCache) Cleanup() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	var victims []*Entry
	for _, ent := range c.entries {
		if ent.expired(now) {
			victims = append(victims, ent)
		}
	}
	for _, ent := range victims {
		c.removeLocked(ent)
		c.expired++
	}

	if len(victims) > 0 {
		c.logger.Debug("cleanup removed expired entries", zap.Int("count", len(victims)))
	}
	return len(victims)
}

// StartCleanup runs Cleanup on the given interval until the returned stop
// function is called. The stop function is idempotent and blocks until the
// background goroutine has exited.
func (c *MemoryCache) StartCleanup(interval time.Duration) (stop func()) {
	done := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.Cleanup()
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
		<-finished
	}
}

// Len returns the number of live entries, counting not-yet-reaped expired
// entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of the store's counters.
func (c *MemoryCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	hitRate := float64(0)
	if total := c.hits + c.misses; total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Expired:   c.expired,
		Entries:   len(c.entries),
		SizeBytes: c.totalSize,
		HitRate:   hitRate,
	}
}

// Name returns the store name given at construction.
func (c *MemoryCache) Name() string {
	return c.cfg.Name
}

// removeLocked unlinks an entry and releases its size. Callers must hold
// the write lock.
func (c *MemoryCache) removeLocked(ent *Entry) {
	delete(c.entries, ent.Key)
	c.totalSize -= ent.SizeBytes
}
