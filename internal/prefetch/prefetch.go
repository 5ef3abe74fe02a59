// Package prefetch guarantees single-flight reads against the backing data
// source: for any cache key, at most one fetch is outstanding at any
// instant, concurrent callers share its result or its failure, and
// successful results populate the cache.
//
// Fetch functions must be idempotent; a caller that times out does not stop
// the underlying fetch and a failed fetch is retried from scratch on the
// next call (failures are never negatively cached).
package prefetch

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"dashcache/internal/cache"
)

// FetchFunc reads one value from the backing data source. Opaque to this
// layer: a database query, an RPC, or an HTTP request.
type FetchFunc func(ctx context.Context) (any, error)

// Recorder receives one observation per completed fetch or cache hit. The
// performance monitor implements it; a nil Recorder disables observation.
type Recorder interface {
	RecordOperation(query string, resultCount int, duration time.Duration, cacheHit bool)
	RecordError(query string, duration time.Duration)
}

// Options control how a fetched value is cached.
type Options struct {
	TTL      time.Duration
	Tags     []string
	Strategy cache.Strategy
}

// BreakerConfig tunes the circuit breaker wrapped around backing fetches.
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig trips after a sustained 60% failure rate and probes
// again after 30 seconds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

// Prefetcher deduplicates concurrent fetches per key and stores successful
// results in the cache.
type Prefetcher struct {
	store    *cache.MemoryCache
	group    singleflight.Group
	breaker  *gobreaker.CircuitBreaker
	recorder Recorder
	logger   *zap.Logger
}

// New creates a Prefetcher over the given store. breaker may be nil to
// disable circuit breaking; recorder may be nil to disable observation.
func New(store *cache.MemoryCache, breaker *gobreaker.CircuitBreaker, recorder Recorder, logger *zap.Logger) *Prefetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prefetcher{
		store:    store,
		breaker:  breaker,
		recorder: recorder,
		logger:   logger,
	}
}

// NewBreaker builds the gobreaker instance used to shield the backing data
// source from miss storms.
func NewBreaker(name string, cfg BreakerConfig, logger *zap.Logger) *gobreaker.CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("prefetch circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

// Fetch returns the cached value for key, or fetches it. Concurrent callers
// for the same key share one in-flight fetch; all of them observe the same
// value or the same error. On success the value is cached under opts; on
// failure nothing is cached and the flight is forgotten so the next call
// retries.
func (p *Prefetcher) Fetch(ctx context.Context, key string, fetch FetchFunc, opts Options) (any, error) {
	if v, ok := p.store.Get(key); ok {
		p.record(key, v, 0, true, nil)
		return v, nil
	}

	v, err, shared := p.group.Do(key, func() (any, error) {
		start := time.Now()
		v, err := p.execute(ctx, fetch)
		elapsed := time.Since(start)
		if err != nil {
			p.record(key, nil, elapsed, false, err)
			return nil, err
		}

		p.store.Set(key, v, cache.Options{
			TTL:      opts.TTL,
			Tags:     opts.Tags,
			Strategy: opts.Strategy,
		})
		p.record(key, v, elapsed, false, nil)
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		p.logger.Debug("coalesced concurrent fetch", zap.String("key", key))
	}
	return v, nil
}

// WarmupSpec names one key to prefetch during warmup.
type WarmupSpec struct {
	Key     string
	Fetch   FetchFunc
	Options Options
}

// warmupConcurrency bounds parallel warmup fetches against the backing
// data source.
const warmupConcurrency = 4

// WarmUp prefetches a batch of keys, e.g. on dashboard mount. Fetches run
// with bounded concurrency; the first failure cancels the rest and is
// returned. Already-cached keys are skipped.
func (p *Prefetcher) WarmUp(ctx context.Context, specs []WarmupSpec) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(warmupConcurrency)

	for _, spec := range specs {
		spec := spec
		if p.store.Has(spec.Key) {
			continue
		}
		g.Go(func() error {
			_, err := p.Fetch(ctx, spec.Key, spec.Fetch, spec.Options)
			return err
		})
	}
	return g.Wait()
}

// execute runs the fetch, through the circuit breaker when one is
// configured.
func (p *Prefetcher) execute(ctx context.Context, fetch FetchFunc) (any, error) {
	if p.breaker == nil {
		return fetch(ctx)
	}
	return p.breaker.Execute(func() (any, error) {
		return fetch(ctx)
	})
}

func (p *Prefetcher) record(key string, v any, elapsed time.Duration, hit bool, err error) {
	if p.recorder == nil {
		return
	}
	if err != nil {
		p.recorder.RecordError(key, elapsed)
		return
	}
	p.recorder.RecordOperation(key, resultCount(v), elapsed, hit)
}

// resultCount reports how many results a fetched value represents: the
// length for slices and maps, otherwise one.
func resultCount(v any) int {
	switch vv := v.(type) {
	case nil:
		return 0
	case []any:
		return len(vv)
	case map[string]any:
		return len(vv)
	default:
		return 1
	}
}
