package cache

import (
	"time"
)

// Strategy selects the eviction policy used when a store exceeds its budget.
type Strategy string

const (
	// StrategyLRU evicts the entry with the oldest last access. Default.
	StrategyLRU Strategy = "lru"
	// StrategyLFU evicts the entry with the smallest access count.
	StrategyLFU Strategy = "lfu"
	// StrategyFIFO evicts the entry with the oldest insertion time.
	StrategyFIFO Strategy = "fifo"
	// StrategyTTL evicts the entry with the least remaining time to live.
	StrategyTTL Strategy = "ttl"
)

// Entry holds one cached value together with the metadata the eviction
// policies and tag invalidation operate on.
type Entry struct {
	Key            string
	Value          any
	InsertedAt     time.Time
	TTL            time.Duration
	AccessCount    int64
	LastAccessedAt time.Time
	SizeBytes      int64
	Tags           []string
}

// expired reports whether the entry is past its TTL at the given instant.
// A zero TTL means the entry never expires.
func (e *Entry) expired(now time.Time) bool {
	return e.TTL > 0 && now.Sub(e.InsertedAt) > e.TTL
}

// remainingTTL returns how long the entry has left to live. Entries without
// a TTL report a very large remainder so TTL eviction never prefers them.
func (e *Entry) remainingTTL(now time.Time) time.Duration {
	if e.TTL <= 0 {
		return time.Duration(1<<63 - 1)
	}
	return e.TTL - now.Sub(e.InsertedAt)
}

// hasAnyTag reports whether the entry carries at least one of the given tags.
func (e *Entry) hasAnyTag(tags []string) bool {
	for _, t := range tags {
		for _, et := range e.Tags {
			if t == et {
				return true
			}
		}
	}
	return false
}

// Options control a single Set call. Zero values fall back to the store
// defaults configured at construction.
type Options struct {
	// TTL is how long the entry stays valid. Zero uses the store default;
	// a store default of zero means no expiry.
	TTL time.Duration

	// MaxSizeBytes overrides the store's byte budget for this write.
	MaxSizeBytes int64

	// MaxEntries overrides the store's entry-count budget for this write.
	MaxEntries int

	// Strategy picks the eviction policy used if this write forces evictions.
	Strategy Strategy

	// Tags label the entry for bulk invalidation via ClearByTags.
	Tags []string
}

// Stats is a point-in-time snapshot of a store's counters.
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	Expired   int64   `json:"expired"`
	Entries   int     `json:"entries"`
	SizeBytes int64   `json:"size_bytes"`
	HitRate   float64 `json:"hit_rate"`
}
