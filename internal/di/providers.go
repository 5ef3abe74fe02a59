// Package di constructs and wires the caching subsystem. Everything is an
// explicitly constructed instance owned by the Container; there are no
// package-level singletons, so tests and multiple containers never share
// state.
package di

import (
	"github.com/google/wire"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"dashcache/internal/cache"
	"dashcache/internal/config"
	"dashcache/internal/dashboard"
	"dashcache/internal/invalidation"
	"dashcache/internal/monitor"
	"dashcache/internal/observability"
	"dashcache/internal/prefetch"
)

// ProviderSet wires the full subsystem from a Config and a Logger.
var ProviderSet = wire.NewSet(
	ProvideCollector,
	ProvideStore,
	ProvideDomainConfigs,
	ProvideFacade,
	ProvideInvalidationEngine,
	ProvideMonitor,
	ProvideBreaker,
	ProvidePrefetcher,
	wire.Bind(new(prefetch.Recorder), new(*monitor.Monitor)),
	wire.Bind(new(invalidation.TagClearer), new(*cache.MemoryCache)),
	wire.Struct(new(Container), "Config", "Logger", "Collector", "Store", "Dashboard", "Invalidation", "Monitor", "Prefetcher"),
)

// ProvideCollector builds the Prometheus collector on a private registry.
func ProvideCollector() *observability.Collector {
	return observability.NewCollector("dashcache")
}

// ProvideStore builds the shared dashboard store and registers it for
// scraping.
func ProvideStore(cfg *config.Config, collector *observability.Collector, logger *zap.Logger) *cache.MemoryCache {
	store := cache.New(cache.Config{
		Name:         "dashboard",
		MaxSizeBytes: cfg.Cache.MaxSizeBytes,
		MaxEntries:   cfg.Cache.MaxEntries,
	}, logger)
	collector.WatchStore(store)
	return store
}

// ProvideDomainConfigs merges the configured TTLs into the shipped
// per-domain policies.
func ProvideDomainConfigs(cfg *config.Config) map[dashboard.Domain]dashboard.DomainConfig {
	domains := dashboard.DefaultDomainConfigs()

	apply := func(d dashboard.Domain, ttl config.Duration) {
		dc := domains[d]
		dc.TTL = ttl.Std()
		domains[d] = dc
	}
	apply(dashboard.DomainMetrics, cfg.Domains.MetricsTTL)
	apply(dashboard.DomainAlerts, cfg.Domains.AlertsTTL)
	apply(dashboard.DomainStats, cfg.Domains.StatsTTL)
	apply(dashboard.DomainWidgets, cfg.Domains.WidgetsTTL)
	apply(dashboard.DomainLayouts, cfg.Domains.LayoutsTTL)
	return domains
}

// ProvideFacade builds the domain cache facade.
func ProvideFacade(store *cache.MemoryCache, domains map[dashboard.Domain]dashboard.DomainConfig, logger *zap.Logger) *dashboard.Facade {
	return dashboard.New(store, domains, logger)
}

// ProvideInvalidationEngine builds the rule engine preloaded with the
// shipped rule table.
func ProvideInvalidationEngine(store invalidation.TagClearer, logger *zap.Logger) *invalidation.Engine {
	engine := invalidation.NewEngine(store, logger)
	for _, rule := range invalidation.DefaultRules() {
		engine.RegisterRule(rule)
	}
	return engine
}

// ProvideMonitor builds the performance monitor exporting to Prometheus.
func ProvideMonitor(cfg *config.Config, collector *observability.Collector, logger *zap.Logger) *monitor.Monitor {
	return monitor.NewMonitor(
		cfg.Monitor.MaxMetrics,
		cfg.Monitor.MaxAlerts,
		monitor.Thresholds{
			SlowQuery:         cfg.Monitor.SlowQuery.Std(),
			CriticalSlowQuery: cfg.Monitor.CriticalSlowQuery.Std(),
			MinHitRate:        cfg.Monitor.MinHitRate,
			MaxErrorRate:      cfg.Monitor.MaxErrorRate,
			Window:            50,
			EvaluateEvery:     10,
		},
		collector,
		logger,
	)
}

// ProvideBreaker builds the circuit breaker shielding the backing data
// source.
func ProvideBreaker(logger *zap.Logger) *gobreaker.CircuitBreaker {
	return prefetch.NewBreaker("backing-fetch", prefetch.DefaultBreakerConfig(), logger)
}

// ProvidePrefetcher builds the single-flight prefetch layer observed by
// the monitor.
func ProvidePrefetcher(store *cache.MemoryCache, breaker *gobreaker.CircuitBreaker, recorder prefetch.Recorder, logger *zap.Logger) *prefetch.Prefetcher {
	return prefetch.New(store, breaker, recorder, logger)
}
