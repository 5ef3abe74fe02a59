package cache

import (
	"time"

	"go.uber.org/zap"
)

// evictForLocked evicts entries until an incoming entry of the given size
// fits within the byte and count budgets. Victims are chosen by the given
// strategy, one at a time, so each eviction re-evaluates against the shrunk
// store. If the store empties and the entry still does not fit, the caller
// inserts it anyway — a write is never rejected. Callers must hold the
// write lock.
func (c *MemoryCache) evictForLocked(incoming int64, maxBytes int64, maxEntries int, strategy Strategy, now time.Time) {
	for len(c.entries) > 0 {
		overBytes := maxBytes > 0 && c.totalSize+incoming > maxBytes
		overCount := maxEntries > 0 && len(c.entries)+1 > maxEntries
		if !overBytes && !overCount {
			return
		}

		victim := c.selectVictimLocked(strategy, now)
		if victim == nil {
			return
		}
		c.removeLocked(victim)
		c.evictions++
		c.logger.Debug("evicted entry",
			zap.String("key", victim.Key),
			zap.String("strategy", string(strategy)),
			zap.Int64("size", victim.SizeBytes),
		)
	}
}

// selectVictimLocked scans live entries for the one the strategy ranks
// lowest. Expired entries are preferred unconditionally; reclaiming them
// first costs nothing. Ties keep the first candidate seen, so a single
// eviction pass is internally consistent even though map iteration order
// varies between passes.
func (c *MemoryCache) selectVictimLocked(strategy Strategy, now time.Time) *Entry {
	var victim *Entry
	for _, ent := range c.entries {
		if ent.expired(now) {
			return ent
		}
		if victim == nil || ranksBelow(ent, victim, strategy, now) {
			victim = ent
		}
	}
	return victim
}

// ranksBelow reports whether a should be evicted before b under the given
// strategy. Strict comparison keeps ties stable on the first-seen entry.
func ranksBelow(a, b *Entry, strategy Strategy, now time.Time) bool {
	switch strategy {
	case StrategyLFU:
		return a.AccessCount < b.AccessCount
	case StrategyFIFO:
		return a.InsertedAt.Before(b.InsertedAt)
	case StrategyTTL:
		return a.remainingTTL(now) < b.remainingTTL(now)
	default: // StrategyLRU
		return a.LastAccessedAt.Before(b.LastAccessedAt)
	}
}
