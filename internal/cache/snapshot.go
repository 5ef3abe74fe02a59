package cache

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// snapshotEntry is the wire form of one exported entry. The remaining TTL
// is exported rather than the absolute insertion time so an import after a
// restart honors the original expiry horizon.
type snapshotEntry struct {
	Key          string          `json:"key"`
	Value        json.RawMessage `json:"value"`
	RemainingTTL time.Duration   `json:"remaining_ttl"`
	Tags         []string        `json:"tags,omitempty"`
}

type snapshot struct {
	Name       string          `json:"name"`
	ExportedAt time.Time       `json:"exported_at"`
	Entries    []snapshotEntry `json:"entries"`
}

// Export writes all live, non-expired entries to w as a JSON document.
// The snapshot is best-effort: entries whose values cannot be serialized
// are skipped, and the backing data source remains the source of truth.
func (c *MemoryCache) Export(w io.Writer) error {
	now := c.now()

	c.mu.RLock()
	snap := snapshot{Name: c.cfg.Name, ExportedAt: now}
	for _, ent := range c.entries {
		if ent.expired(now) {
			continue
		}
		raw, err := json.Marshal(ent.Value)
		if err != nil {
			continue
		}
		se := snapshotEntry{
			Key:   ent.Key,
			Value: raw,
			Tags:  append([]string(nil), ent.Tags...),
		}
		if ent.TTL > 0 {
			se.RemainingTTL = ent.TTL - now.Sub(ent.InsertedAt)
		}
		snap.Entries = append(snap.Entries, se)
	}
	c.mu.RUnlock()

	if err := json.NewEncoder(w).Encode(&snap); err != nil {
		return fmt.Errorf("encode cache snapshot: %w", err)
	}
	return nil
}

// Import reads a snapshot produced by Export and inserts its entries via
// the normal Set path, so budgets and eviction apply. Values are restored
// as json.RawMessage; typed consumers re-decode on first use. Returns the
// number of entries imported.
func (c *MemoryCache) Import(r io.Reader) (int, error) {
	var snap snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return 0, fmt.Errorf("decode cache snapshot: %w", err)
	}

	imported := 0
	for _, se := range snap.Entries {
		if se.RemainingTTL < 0 {
			continue
		}
		c.Set(se.Key, se.Value, Options{TTL: se.RemainingTTL, Tags: se.Tags})
		imported++
	}
	return imported, nil
}
