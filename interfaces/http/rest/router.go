// Package rest exposes the caching subsystem over HTTP for the surrounding
// application: dashboard reads that go through the cache, invalidation
// trigger firing for business-event handlers, snapshot export/import, and
// the Prometheus scrape endpoint.
package rest

import (
	"context"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"dashcache/internal/di"
)

// DataSource reads dashboard data from the backing store on a cache miss.
// Implementations must be idempotent: a miss storm may retry the same read.
type DataSource interface {
	Fetch(ctx context.Context, domain, key string, opts map[string]string) (any, error)
}

// NewRouter builds the API router over the wired container and a backing
// data source.
func NewRouter(c *di.Container, source DataSource) chi.Router {
	h := &handler{container: c, source: source}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/metrics", c.Collector.Handler().ServeHTTP)
	r.Get("/healthz", h.health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/dashboard/{domain}/{key}", h.getDashboardData)
		r.Post("/invalidate/{trigger}", h.fireTrigger)

		r.Get("/cache/stats", h.cacheStats)
		r.Get("/cache/export", h.exportSnapshot)
		r.Post("/cache/import", h.importSnapshot)

		r.Get("/monitor/stats", h.monitorStats)
		r.Get("/monitor/alerts", h.monitorAlerts)
	})
	return r
}
