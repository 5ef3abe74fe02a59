// Package dashboard applies per-domain caching policy (TTL, size budget,
// invalidation tags) on top of the generic store and builds deterministic
// namespaced cache keys, so collaborators never hand-roll either.
package dashboard

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"dashcache/internal/cache"
)

// Facade is the typed entry point collaborators use instead of talking to
// the generic store directly.
type Facade struct {
	store   *cache.MemoryCache
	domains map[Domain]DomainConfig
	logger  *zap.Logger
}

// New builds a Facade over the given store. A nil domains map gets the
// shipped defaults; a nil logger is replaced with a no-op logger.
func New(store *cache.MemoryCache, domains map[Domain]DomainConfig, logger *zap.Logger) *Facade {
	if domains == nil {
		domains = DefaultDomainConfigs()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Facade{store: store, domains: domains, logger: logger}
}

// Store exposes the underlying generic cache for layers (prefetch,
// invalidation) that operate on raw keys and tags.
func (f *Facade) Store() *cache.MemoryCache {
	return f.store
}

// Domains returns the facade's domain configuration table.
func (f *Facade) Domains() map[Domain]DomainConfig {
	return f.domains
}

// Key returns the full cache key the facade uses for the domain and key,
// for layers (prefetch, HTTP handlers) that address the store directly.
func (f *Facade) Key(domain Domain, key string, ctxOpts map[string]string) (string, error) {
	cfg, ok := f.domains[domain]
	if !ok {
		return "", fmt.Errorf("unknown dashboard domain %q", domain)
	}
	return buildKey(cfg.KeyPrefix, key, ctxOpts), nil
}

// CacheOptions returns the store options the facade applies to entries of
// the given domain.
func (f *Facade) CacheOptions(domain Domain) (cache.Options, error) {
	cfg, ok := f.domains[domain]
	if !ok {
		return cache.Options{}, fmt.Errorf("unknown dashboard domain %q", domain)
	}
	return cache.Options{
		TTL:          cfg.TTL,
		MaxSizeBytes: cfg.MaxSizeBytes,
		Tags:         domainTags(domain, cfg),
	}, nil
}

// CacheData stores value under the domain's policy and returns the full
// cache key it was stored under.
func (f *Facade) CacheData(domain Domain, key string, value any, ctxOpts map[string]string) (string, error) {
	cfg, ok := f.domains[domain]
	if !ok {
		return "", fmt.Errorf("unknown dashboard domain %q", domain)
	}

	cacheKey := buildKey(cfg.KeyPrefix, key, ctxOpts)
	f.store.Set(cacheKey, value, cache.Options{
		TTL:          cfg.TTL,
		MaxSizeBytes: cfg.MaxSizeBytes,
		Tags:         domainTags(domain, cfg),
	})
	return cacheKey, nil
}

// GetData returns the cached value for the domain and key, or (nil, false)
// on a miss. Unknown domains read as misses; a stale-read here is never
// worth an error path.
func (f *Facade) GetData(domain Domain, key string, ctxOpts map[string]string) (any, bool) {
	cfg, ok := f.domains[domain]
	if !ok {
		return nil, false
	}
	return f.store.Get(buildKey(cfg.KeyPrefix, key, ctxOpts))
}

// CacheCombined stores a value spanning several domains, e.g. a fully
// assembled dashboard payload. The effective TTL is the minimum across the
// included domains, so no slice of the payload outlives its own policy.
// Tags are the union of all included domains' tags.
func (f *Facade) CacheCombined(domains []Domain, key string, value any, ctxOpts map[string]string) (string, error) {
	if len(domains) == 0 {
		return "", fmt.Errorf("combined cache requires at least one domain")
	}

	var (
		minTTL   = int64(0)
		maxBytes = int64(0)
		tagSet   = map[string]struct{}{}
	)
	for _, d := range domains {
		cfg, ok := f.domains[d]
		if !ok {
			return "", fmt.Errorf("unknown dashboard domain %q", d)
		}
		if minTTL == 0 || int64(cfg.TTL) < minTTL {
			minTTL = int64(cfg.TTL)
		}
		if cfg.MaxSizeBytes > maxBytes {
			maxBytes = cfg.MaxSizeBytes
		}
		for _, t := range domainTags(d, cfg) {
			tagSet[t] = struct{}{}
		}
	}

	tags := make([]string, 0, len(tagSet))
	for t := range tagSet {
		tags = append(tags, t)
	}
	sort.Strings(tags)

	cacheKey := buildKey("dashboard:combined", key, ctxOpts)
	f.store.Set(cacheKey, value, cache.Options{
		TTL:          time.Duration(minTTL),
		MaxSizeBytes: maxBytes,
		Tags:         tags,
	})

	f.logger.Debug("cached combined payload",
		zap.String("key", cacheKey),
		zap.Int("domains", len(domains)),
		zap.Duration("effective_ttl", time.Duration(minTTL)),
	)
	return cacheKey, nil
}

// GetCombined reads a payload written by CacheCombined.
func (f *Facade) GetCombined(key string, ctxOpts map[string]string) (any, bool) {
	return f.store.Get(buildKey("dashboard:combined", key, ctxOpts))
}

// domainTags is the tag set attached to every entry of a domain: the domain
// name itself, the umbrella tag, and each invalidation trigger.
func domainTags(domain Domain, cfg DomainConfig) []string {
	tags := make([]string, 0, len(cfg.InvalidationTriggers)+2)
	tags = append(tags, string(domain), UmbrellaTag)
	tags = append(tags, cfg.InvalidationTriggers...)
	return tags
}

// buildKey renders "<prefix>:<key>[:<hash>]". Context options (user id,
// filters, date ranges) are folded into an xxhash over a key-sorted
// rendering so equal option sets always produce the same key.
func buildKey(prefix, key string, ctxOpts map[string]string) string {
	if len(ctxOpts) == 0 {
		return prefix + ":" + key
	}

	names := make([]string, 0, len(ctxOpts))
	for name := range ctxOpts {
		names = append(names, name)
	}
	sort.Strings(names)

	h := xxhash.New()
	for _, name := range names {
		_, _ = h.WriteString(name)
		_, _ = h.WriteString("=")
		_, _ = h.WriteString(ctxOpts[name])
		_, _ = h.WriteString(";")
	}
	return prefix + ":" + key + ":" + strconv.FormatUint(h.Sum64(), 16)
}
