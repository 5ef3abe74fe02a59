// Package observability exposes cache behavior as Prometheus metrics and
// builds the application logger. Counters for the read path are pushed by
// the performance monitor; per-store totals are scraped lazily from each
// store's own stats snapshot.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dashcache/internal/cache"
)

// StatsSource is any named store that can report a stats snapshot.
// Satisfied by *cache.MemoryCache.
type StatsSource interface {
	Name() string
	Stats() cache.Stats
}

// Collector owns a private Prometheus registry for the caching subsystem.
type Collector struct {
	registry *prometheus.Registry

	opDuration *prometheus.HistogramVec
	opErrors   prometheus.Counter
	alerts     *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry under the given
// metric namespace.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	opDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of cache read-path operations",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	opErrors := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Total number of failed backing fetches",
		},
	)

	alerts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Total number of performance alerts raised",
		},
		[]string{"severity"},
	)

	registry.MustRegister(opDuration, opErrors, alerts)

	return &Collector{
		registry:   registry,
		opDuration: opDuration,
		opErrors:   opErrors,
		alerts:     alerts,
	}
}

// ObserveOperation records one successful read-path operation.
func (c *Collector) ObserveOperation(duration time.Duration, cacheHit bool) {
	outcome := "miss"
	if cacheHit {
		outcome = "hit"
	}
	c.opDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveError records one failed backing fetch.
func (c *Collector) ObserveError(duration time.Duration) {
	c.opDuration.WithLabelValues("error").Observe(duration.Seconds())
	c.opErrors.Inc()
}

// ObserveAlert records one raised alert by severity.
func (c *Collector) ObserveAlert(severity string) {
	c.alerts.WithLabelValues(severity).Inc()
}

// WatchStore registers a scrape-time exporter for one store's counters.
func (c *Collector) WatchStore(src StatsSource) {
	c.registry.MustRegister(&storeCollector{src: src})
}

// Registry returns the private registry, e.g. for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry for a /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

var (
	descHits = prometheus.NewDesc("dashcache_store_hits_total",
		"Cumulative cache hits per store", []string{"store"}, nil)
	descMisses = prometheus.NewDesc("dashcache_store_misses_total",
		"Cumulative cache misses per store", []string{"store"}, nil)
	descEvictions = prometheus.NewDesc("dashcache_store_evictions_total",
		"Cumulative evictions per store", []string{"store"}, nil)
	descEntries = prometheus.NewDesc("dashcache_store_entries",
		"Live entries per store", []string{"store"}, nil)
	descSize = prometheus.NewDesc("dashcache_store_size_bytes",
		"Accounted size per store", []string{"store"}, nil)
)

// storeCollector converts a store's stats snapshot into const metrics at
// scrape time, so the store needs no metrics hooks of its own.
type storeCollector struct {
	src StatsSource
}

func (sc *storeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descHits
	ch <- descMisses
	ch <- descEvictions
	ch <- descEntries
	ch <- descSize
}

func (sc *storeCollector) Collect(ch chan<- prometheus.Metric) {
	stats := sc.src.Stats()
	name := sc.src.Name()

	ch <- prometheus.MustNewConstMetric(descHits, prometheus.CounterValue, float64(stats.Hits), name)
	ch <- prometheus.MustNewConstMetric(descMisses, prometheus.CounterValue, float64(stats.Misses), name)
	ch <- prometheus.MustNewConstMetric(descEvictions, prometheus.CounterValue, float64(stats.Evictions), name)
	ch <- prometheus.MustNewConstMetric(descEntries, prometheus.GaugeValue, float64(stats.Entries), name)
	ch <- prometheus.MustNewConstMetric(descSize, prometheus.GaugeValue, float64(stats.SizeBytes), name)
}
