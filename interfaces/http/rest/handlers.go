package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"dashcache/internal/dashboard"
	"dashcache/internal/di"
	"dashcache/internal/prefetch"
)

type handler struct {
	container *di.Container
	source    DataSource
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// getDashboardData serves a cached dashboard read. Query parameters become
// context options and are folded into the cache key, so distinct filters
// cache independently. Misses go through the prefetcher, which coalesces
// concurrent requests for the same key into one backing fetch.
func (h *handler) getDashboardData(w http.ResponseWriter, r *http.Request) {
	domain := dashboard.Domain(chi.URLParam(r, "domain"))
	key := chi.URLParam(r, "key")

	ctxOpts := map[string]string{}
	for name, values := range r.URL.Query() {
		if len(values) > 0 {
			ctxOpts[name] = values[0]
		}
	}

	facade := h.container.Dashboard
	cacheKey, err := facade.Key(domain, key, ctxOpts)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	cacheOpts, err := facade.CacheOptions(domain)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	value, err := h.container.Prefetcher.Fetch(r.Context(), cacheKey,
		func(ctx context.Context) (any, error) {
			return h.source.Fetch(ctx, string(domain), key, ctxOpts)
		},
		prefetch.Options{TTL: cacheOpts.TTL, Tags: cacheOpts.Tags},
	)
	if err != nil {
		h.container.Logger.Error("dashboard fetch failed",
			zap.String("domain", string(domain)),
			zap.String("key", key),
			zap.Error(err),
		)
		respondError(w, http.StatusBadGateway, "fetch failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": value})
}

// fireTrigger fires a business-event invalidation trigger. The request body
// may carry a flat string map of event metadata; it is optional. Unknown
// triggers are accepted and ignored, matching the engine's semantics.
func (h *handler) fireTrigger(w http.ResponseWriter, r *http.Request) {
	trigger := chi.URLParam(r, "trigger")

	var metadata map[string]string
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&metadata); err != nil {
			respondError(w, http.StatusBadRequest, "invalid metadata body")
			return
		}
	}

	h.container.Invalidation.Fire(trigger, metadata)
	respondJSON(w, http.StatusAccepted, map[string]string{"trigger": trigger})
}

func (h *handler) cacheStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.container.Store.Stats())
}

func (h *handler) exportSnapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := h.container.Store.Export(w); err != nil {
		h.container.Logger.Error("snapshot export failed", zap.Error(err))
	}
}

func (h *handler) importSnapshot(w http.ResponseWriter, r *http.Request) {
	n, err := h.container.Store.Import(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid snapshot")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"restored": n})
}

// monitorStats returns aggregate read-path statistics. An optional ?window
// duration (e.g. 5m) restricts the report to recent operations.
func (h *handler) monitorStats(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if raw := r.URL.Query().Get("window"); raw != "" {
		window, err := time.ParseDuration(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid window duration")
			return
		}
		since = time.Now().Add(-window)
	}
	respondJSON(w, http.StatusOK, h.container.Monitor.Stats(since))
}

func (h *handler) monitorAlerts(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.container.Monitor.Alerts())
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
