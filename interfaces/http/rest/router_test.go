package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dashcache/internal/cache"
	"dashcache/internal/config"
	"dashcache/internal/di"
)

// fakeSource serves canned values and counts fetches per domain/key.
type fakeSource struct {
	values map[string]any
	errs   map[string]error
	calls  map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		values: map[string]any{},
		errs:   map[string]error{},
		calls:  map[string]int{},
	}
}

func (s *fakeSource) Fetch(_ context.Context, domain, key string, _ map[string]string) (any, error) {
	id := domain + "/" + key
	s.calls[id]++
	if err, ok := s.errs[id]; ok {
		return nil, err
	}
	return s.values[id], nil
}

func newTestServer(t *testing.T) (*httptest.Server, *di.Container, *fakeSource) {
	t.Helper()
	c := di.InitializeContainer(config.Default(), zap.NewNop())
	src := newFakeSource()
	srv := httptest.NewServer(NewRouter(c, src))
	t.Cleanup(srv.Close)
	t.Cleanup(c.Shutdown)
	return srv, c, src
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t)

	var body map[string]string
	resp := getJSON(t, srv.URL+"/healthz", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestDashboardReadCachesSecondRequest(t *testing.T) {
	srv, _, src := newTestServer(t)
	src.values["stats/occupancy"] = map[string]any{"rate": 0.93}

	var first, second map[string]any
	resp := getJSON(t, srv.URL+"/api/dashboard/stats/occupancy", &first)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	getJSON(t, srv.URL+"/api/dashboard/stats/occupancy", &second)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, src.calls["stats/occupancy"], "second request must be served from cache")
}

func TestDashboardReadDistinguishesQueryParams(t *testing.T) {
	srv, _, src := newTestServer(t)
	src.values["metrics/revenue"] = []any{1, 2, 3}

	getJSON(t, srv.URL+"/api/dashboard/metrics/revenue?period=2026-07", nil)
	getJSON(t, srv.URL+"/api/dashboard/metrics/revenue?period=2026-08", nil)
	getJSON(t, srv.URL+"/api/dashboard/metrics/revenue?period=2026-08", nil)

	assert.Equal(t, 2, src.calls["metrics/revenue"], "each period caches independently")
}

func TestDashboardReadUnknownDomain(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := getJSON(t, srv.URL+"/api/dashboard/bogus/key", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDashboardReadFetchFailure(t *testing.T) {
	srv, _, src := newTestServer(t)
	src.errs["alerts/open"] = errors.New("backing store down")

	resp := getJSON(t, srv.URL+"/api/dashboard/alerts/open", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestFireTriggerClearsAffectedDomains(t *testing.T) {
	srv, c, src := newTestServer(t)
	src.values["stats/summary"] = "cached"

	getJSON(t, srv.URL+"/api/dashboard/stats/summary", nil)
	key, err := c.Dashboard.Key("stats", "summary", nil)
	require.NoError(t, err)
	require.True(t, c.Store.Has(key))

	resp, err := http.Post(srv.URL+"/api/invalidate/tenant_changed", "application/json",
		strings.NewReader(`{"tenant_id":"t-17"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.False(t, c.Store.Has(key))
}

func TestFireTriggerRejectsBadMetadata(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/invalidate/tenant_changed", "application/json",
		strings.NewReader(`{"tenant_id": 17`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCacheStats(t *testing.T) {
	srv, c, _ := newTestServer(t)
	c.Store.Set("k", "v", cache.Options{})
	c.Store.Get("k")
	c.Store.Get("absent")

	var stats cache.Stats
	getJSON(t, srv.URL+"/api/cache/stats", &stats)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Entries)
}

func TestSnapshotRoundTripOverHTTP(t *testing.T) {
	srv, c, _ := newTestServer(t)
	c.Store.Set("snap", map[string]any{"n": float64(7)}, cache.Options{TTL: time.Hour})

	resp, err := http.Get(srv.URL + "/api/cache/export")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	c.Store.Clear()
	require.False(t, c.Store.Has("snap"))

	imp, err := http.Post(srv.URL+"/api/cache/import", "application/json", resp.Body)
	require.NoError(t, err)
	defer imp.Body.Close()

	var body map[string]int
	require.NoError(t, json.NewDecoder(imp.Body).Decode(&body))
	assert.Equal(t, 1, body["restored"])
	assert.True(t, c.Store.Has("snap"))
}

func TestSnapshotImportRejectsGarbage(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/cache/import", "application/json",
		strings.NewReader("not json"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMonitorStatsAndAlerts(t *testing.T) {
	srv, _, src := newTestServer(t)
	src.values["widgets/grid"] = "w"

	getJSON(t, srv.URL+"/api/dashboard/widgets/grid", nil)
	getJSON(t, srv.URL+"/api/dashboard/widgets/grid", nil)

	var stats struct {
		Count   int     `json:"count"`
		HitRate float64 `json:"hit_rate"`
	}
	getJSON(t, srv.URL+"/api/monitor/stats", &stats)
	assert.Equal(t, 2, stats.Count)
	assert.InDelta(t, 0.5, stats.HitRate, 0.001)

	resp := getJSON(t, srv.URL+"/api/monitor/stats?window=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var alerts []any
	getJSON(t, srv.URL+"/api/monitor/alerts", &alerts)
	assert.Empty(t, alerts)
}

func TestMetricsEndpointScrapes(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
