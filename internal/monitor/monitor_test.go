package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMonitor(thresholds Thresholds) *Monitor {
	return NewMonitor(100, 10, thresholds, nil, nil)
}

func TestRingBufferDropsOldest(t *testing.T) {
	m := NewMonitor(3, 10, Thresholds{}, nil, nil)

	for _, q := range []string{"q1", "q2", "q3", "q4"} {
		m.RecordOperation(q, 1, time.Millisecond, false)
	}

	stats := m.Stats(time.Time{})
	assert.Equal(t, 3, stats.Count)

	queries := make([]string, 0, len(stats.TopByFrequency))
	for _, q := range stats.TopByFrequency {
		queries = append(queries, q.Query)
	}
	assert.NotContains(t, queries, "q1")
	assert.Contains(t, queries, "q4")
}

func TestRecordErrorUsesSentinel(t *testing.T) {
	m := newTestMonitor(Thresholds{})

	m.RecordOperation("empty", 0, time.Millisecond, false)
	m.RecordError("broken", time.Millisecond)

	stats := m.Stats(time.Time{})
	assert.Equal(t, 2, stats.Count)
	// Zero results is not an error; exactly one of the two is.
	assert.InDelta(t, 0.5, stats.ErrorRate, 1e-9)
}

func TestStatsPercentileMonotonicity(t *testing.T) {
	m := NewMonitor(200, 10, Thresholds{}, nil, nil)

	for i := 1; i <= 100; i++ {
		m.RecordOperation("q", 1, time.Duration(i*10)*time.Millisecond, false)
	}

	stats := m.Stats(time.Time{})
	assert.LessOrEqual(t, stats.Median, stats.P95)
	assert.LessOrEqual(t, stats.P95, stats.P99)
	assert.LessOrEqual(t, stats.P99, stats.Max)
	assert.Equal(t, 1000*time.Millisecond, stats.Max)

	// floor(100*0.95) indexes the 96th-smallest sample.
	assert.Equal(t, 960*time.Millisecond, stats.P95)
}

func TestStatsHitAndErrorRates(t *testing.T) {
	m := newTestMonitor(Thresholds{})

	m.RecordOperation("a", 1, time.Millisecond, true)
	m.RecordOperation("b", 1, time.Millisecond, true)
	m.RecordOperation("c", 1, time.Millisecond, false)
	m.RecordError("d", time.Millisecond)

	stats := m.Stats(time.Time{})
	// Hit rate is over non-error operations only.
	assert.InDelta(t, 2.0/3.0, stats.HitRate, 1e-9)
	assert.InDelta(t, 0.25, stats.ErrorRate, 1e-9)
}

func TestStatsSinceFiltersByTime(t *testing.T) {
	m := newTestMonitor(Thresholds{})
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := base
	m.now = func() time.Time { return current }

	m.RecordOperation("old", 1, time.Millisecond, false)
	current = base.Add(time.Hour)
	m.RecordOperation("new", 1, time.Millisecond, false)

	stats := m.Stats(base.Add(30 * time.Minute))
	require.Equal(t, 1, stats.Count)
	assert.Equal(t, "new", stats.TopByFrequency[0].Query)
}

func TestTopQueries(t *testing.T) {
	m := newTestMonitor(Thresholds{})

	for i := 0; i < 3; i++ {
		m.RecordOperation("frequent", 1, time.Millisecond, false)
	}
	m.RecordOperation("slow", 1, time.Second, false)

	stats := m.Stats(time.Time{})
	require.NotEmpty(t, stats.TopByFrequency)
	assert.Equal(t, "frequent", stats.TopByFrequency[0].Query)
	assert.Equal(t, 3, stats.TopByFrequency[0].Count)

	require.NotEmpty(t, stats.TopByLatency)
	assert.Equal(t, "slow", stats.TopByLatency[0].Query)
	assert.Equal(t, time.Second, stats.TopByLatency[0].AvgDuration)
}

func TestSlowQueryAlertEscalates(t *testing.T) {
	m := newTestMonitor(Thresholds{
		SlowQuery:         100 * time.Millisecond,
		CriticalSlowQuery: time.Second,
	})

	var raised []Alert
	unsubscribe := m.OnAlert(func(a Alert) { raised = append(raised, a) })
	defer unsubscribe()

	m.RecordOperation("fine", 1, 50*time.Millisecond, false)
	m.RecordOperation("slow", 1, 500*time.Millisecond, false)
	m.RecordOperation("awful", 1, 2*time.Second, false)

	require.Len(t, raised, 2)
	assert.Equal(t, AlertSlowQuery, raised[0].Kind)
	assert.Equal(t, SeverityHigh, raised[0].Severity)
	assert.Equal(t, "slow", raised[0].Query)
	assert.Equal(t, SeverityCritical, raised[1].Severity)
	assert.NotEmpty(t, raised[1].ID)
}

func TestLowHitRateAlert(t *testing.T) {
	m := newTestMonitor(Thresholds{
		MinHitRate:    0.5,
		Window:        10,
		EvaluateEvery: 10,
	})

	var raised []Alert
	m.OnAlert(func(a Alert) { raised = append(raised, a) })

	for i := 0; i < 10; i++ {
		m.RecordOperation("q", 1, time.Millisecond, false)
	}

	require.Len(t, raised, 1)
	assert.Equal(t, AlertLowHitRate, raised[0].Kind)
	assert.Equal(t, SeverityMedium, raised[0].Severity)
	assert.Zero(t, raised[0].Value)
}

func TestHighErrorRateAlert(t *testing.T) {
	m := newTestMonitor(Thresholds{
		MaxErrorRate:  0.2,
		Window:        10,
		EvaluateEvery: 10,
	})

	var raised []Alert
	m.OnAlert(func(a Alert) { raised = append(raised, a) })

	for i := 0; i < 5; i++ {
		m.RecordOperation("q", 1, time.Millisecond, true)
		m.RecordError("q", time.Millisecond)
	}

	require.Len(t, raised, 1)
	assert.Equal(t, AlertHighErrorRate, raised[0].Kind)
	assert.Equal(t, SeverityHigh, raised[0].Severity)
	assert.InDelta(t, 0.5, raised[0].Value, 1e-9)
}

func TestPanickingSubscriberDoesNotBlockOthers(t *testing.T) {
	m := newTestMonitor(Thresholds{SlowQuery: time.Millisecond})

	m.OnAlert(func(Alert) { panic("subscriber bug") })
	var got int
	m.OnAlert(func(Alert) { got++ })

	m.RecordOperation("slow", 1, time.Second, false)

	assert.Equal(t, 1, got)
	assert.Len(t, m.Alerts(), 1)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	m := newTestMonitor(Thresholds{SlowQuery: time.Millisecond})

	var got int
	unsubscribe := m.OnAlert(func(Alert) { got++ })

	m.RecordOperation("slow", 1, time.Second, false)
	unsubscribe()
	m.RecordOperation("slow", 1, time.Second, false)

	assert.Equal(t, 1, got)
}

func TestAlertRetentionBounded(t *testing.T) {
	m := NewMonitor(100, 3, Thresholds{SlowQuery: time.Millisecond}, nil, nil)

	for i := 0; i < 10; i++ {
		m.RecordOperation("slow", 1, time.Second, false)
	}

	assert.Len(t, m.Alerts(), 3)
}
