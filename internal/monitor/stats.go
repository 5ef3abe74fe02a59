package monitor

import (
	"sort"
	"time"
)

// QueryCount ranks a query by how often it was recorded.
type QueryCount struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}

// QueryLatency ranks a query by its average duration.
type QueryLatency struct {
	Query       string        `json:"query"`
	AvgDuration time.Duration `json:"avg_duration"`
	Count       int           `json:"count"`
}

// StatsReport summarizes the retained metrics over a time range.
type StatsReport struct {
	Count     int           `json:"count"`
	Mean      time.Duration `json:"mean"`
	Median    time.Duration `json:"median"`
	P95       time.Duration `json:"p95"`
	P99       time.Duration `json:"p99"`
	Max       time.Duration `json:"max"`
	HitRate   float64       `json:"hit_rate"`
	ErrorRate float64       `json:"error_rate"`

	TopByFrequency []QueryCount   `json:"top_by_frequency"`
	TopByLatency   []QueryLatency `json:"top_by_latency"`
}

// topN bounds the per-query rankings in a stats report.
const topN = 5

// Stats summarizes all retained metrics recorded at or after since. A zero
// since covers the whole ring buffer. The hit rate is computed over
// non-error operations; the error rate over all operations.
func (m *Monitor) Stats(since time.Time) StatsReport {
	m.mu.Lock()
	metrics := m.trailingLocked(m.count)
	m.mu.Unlock()

	if !since.IsZero() {
		filtered := metrics[:0]
		for _, metric := range metrics {
			if !metric.Timestamp.Before(since) {
				filtered = append(filtered, metric)
			}
		}
		metrics = filtered
	}

	report := StatsReport{Count: len(metrics)}
	if len(metrics) == 0 {
		return report
	}

	durations := make([]time.Duration, 0, len(metrics))
	var total time.Duration
	hits, errs := 0, 0
	byQuery := map[string]*QueryLatency{}

	for _, metric := range metrics {
		durations = append(durations, metric.Duration)
		total += metric.Duration
		if metric.IsError() {
			errs++
		} else if metric.CacheHit {
			hits++
		}

		q := byQuery[metric.Query]
		if q == nil {
			q = &QueryLatency{Query: metric.Query}
			byQuery[metric.Query] = q
		}
		q.AvgDuration += metric.Duration // running sum; divided below
		q.Count++
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	report.Mean = total / time.Duration(len(durations))
	report.Median = percentile(durations, 0.5)
	report.P95 = percentile(durations, 0.95)
	report.P99 = percentile(durations, 0.99)
	report.Max = durations[len(durations)-1]
	if nonErr := len(metrics) - errs; nonErr > 0 {
		report.HitRate = float64(hits) / float64(nonErr)
	}
	report.ErrorRate = float64(errs) / float64(len(metrics))

	for _, q := range byQuery {
		q.AvgDuration /= time.Duration(q.Count)
	}
	report.TopByFrequency = topByFrequency(byQuery)
	report.TopByLatency = topByLatency(byQuery)
	return report
}

// percentile indexes a sorted slice at floor(n*p), clamped to the last
// element.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topByFrequency(byQuery map[string]*QueryLatency) []QueryCount {
	all := make([]QueryCount, 0, len(byQuery))
	for _, q := range byQuery {
		all = append(all, QueryCount{Query: q.Query, Count: q.Count})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Count != all[j].Count {
			return all[i].Count > all[j].Count
		}
		return all[i].Query < all[j].Query
	})
	if len(all) > topN {
		all = all[:topN]
	}
	return all
}

func topByLatency(byQuery map[string]*QueryLatency) []QueryLatency {
	all := make([]QueryLatency, 0, len(byQuery))
	for _, q := range byQuery {
		all = append(all, *q)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].AvgDuration != all[j].AvgDuration {
			return all[i].AvgDuration > all[j].AvgDuration
		}
		return all[i].Query < all[j].Query
	})
	if len(all) > topN {
		all = all[:topN]
	}
	return all
}
