// Package monitor records per-operation search/fetch metrics in a bounded
// ring buffer, computes rolling latency and hit-rate statistics, and raises
// threshold-crossing alerts to subscribers. It is a passive observer of the
// cache read path and never influences caching decisions.
package monitor

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrorResultCount is the ResultCount sentinel distinguishing a failed
// operation from one that legitimately returned zero results.
const ErrorResultCount = -1

// Metric is one recorded operation.
type Metric struct {
	Timestamp   time.Time     `json:"timestamp"`
	Query       string        `json:"query"`
	ResultCount int           `json:"result_count"`
	Duration    time.Duration `json:"duration"`
	CacheHit    bool          `json:"cache_hit"`
}

// IsError reports whether the metric records a failed operation.
func (m Metric) IsError() bool { return m.ResultCount == ErrorResultCount }

// Severity grades an alert.
type Severity string

const (
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Alert is raised when a threshold is crossed.
type Alert struct {
	ID       string    `json:"id"`
	Kind     string    `json:"kind"`
	Severity Severity  `json:"severity"`
	Query    string    `json:"query,omitempty"`
	Value    float64   `json:"value"`
	Message  string    `json:"message"`
	RaisedAt time.Time `json:"raised_at"`
}

// Alert kinds.
const (
	AlertSlowQuery     = "slow_query"
	AlertLowHitRate    = "low_hit_rate"
	AlertHighErrorRate = "high_error_rate"
)

// Thresholds configure alert evaluation.
type Thresholds struct {
	// SlowQuery raises a high alert for any single operation slower than
	// this; CriticalSlowQuery escalates the severity to critical.
	SlowQuery         time.Duration
	CriticalSlowQuery time.Duration

	// MinHitRate raises a medium alert when the trailing-window cache hit
	// rate falls below it. MaxErrorRate raises a high alert when the
	// trailing-window error rate exceeds it.
	MinHitRate   float64
	MaxErrorRate float64

	// Window is how many trailing metrics rate evaluation looks at;
	// EvaluateEvery is how many recorded operations pass between rate
	// evaluations.
	Window        int
	EvaluateEvery int
}

// DefaultThresholds match a dashboard whose queries normally finish well
// under a second.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SlowQuery:         time.Second,
		CriticalSlowQuery: 3 * time.Second,
		MinHitRate:        0.5,
		MaxErrorRate:      0.1,
		Window:            50,
		EvaluateEvery:     10,
	}
}

// Exporter receives each observation for external metric systems. The
// observability collector implements it; nil disables export.
type Exporter interface {
	ObserveOperation(duration time.Duration, cacheHit bool)
	ObserveError(duration time.Duration)
	ObserveAlert(severity string)
}

// Monitor is safe for concurrent use.
type Monitor struct {
	mu sync.Mutex

	// metrics is a ring buffer: buf[head] is the oldest of count entries.
	buf   []Metric
	head  int
	count int

	alerts    []Alert
	maxAlerts int

	subscribers map[int]func(Alert)
	nextSubID   int

	thresholds Thresholds
	sinceEval  int

	exporter Exporter
	logger   *zap.Logger
	now      func() time.Time
}

// NewMonitor creates a monitor retaining at most maxMetrics operations and
// maxAlerts raised alerts (oldest dropped first in both cases).
func NewMonitor(maxMetrics, maxAlerts int, thresholds Thresholds, exporter Exporter, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxMetrics <= 0 {
		maxMetrics = 1000
	}
	if maxAlerts <= 0 {
		maxAlerts = 100
	}
	return &Monitor{
		buf:         make([]Metric, maxMetrics),
		maxAlerts:   maxAlerts,
		subscribers: make(map[int]func(Alert)),
		thresholds:  thresholds,
		exporter:    exporter,
		logger:      logger,
		now:         time.Now,
	}
}

// RecordOperation appends one successful operation and evaluates alert
// thresholds.
func (m *Monitor) RecordOperation(query string, resultCount int, duration time.Duration, cacheHit bool) {
	if resultCount < 0 {
		resultCount = 0
	}
	m.record(Metric{
		Timestamp:   m.now(),
		Query:       query,
		ResultCount: resultCount,
		Duration:    duration,
		CacheHit:    cacheHit,
	})
	if m.exporter != nil {
		m.exporter.ObserveOperation(duration, cacheHit)
	}
}

// RecordError appends one failed operation, marked with the error sentinel.
func (m *Monitor) RecordError(query string, duration time.Duration) {
	m.record(Metric{
		Timestamp:   m.now(),
		Query:       query,
		ResultCount: ErrorResultCount,
		Duration:    duration,
	})
	if m.exporter != nil {
		m.exporter.ObserveError(duration)
	}
}

// OnAlert registers a subscriber called synchronously for each raised
// alert. The returned function unsubscribes it. A panicking subscriber is
// recovered and logged; remaining subscribers still run.
func (m *Monitor) OnAlert(fn func(Alert)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}

// Alerts returns the retained alerts, oldest first.
func (m *Monitor) Alerts() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Alert(nil), m.alerts...)
}

func (m *Monitor) record(metric Metric) {
	m.mu.Lock()

	idx := (m.head + m.count) % len(m.buf)
	m.buf[idx] = metric
	if m.count < len(m.buf) {
		m.count++
	} else {
		m.head = (m.head + 1) % len(m.buf)
	}

	alerts := m.evaluateLocked(metric)
	subs := make([]func(Alert), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, a := range alerts {
		if m.exporter != nil {
			m.exporter.ObserveAlert(string(a.Severity))
		}
		for _, fn := range subs {
			m.notify(fn, a)
		}
	}
}

func (m *Monitor) notify(fn func(Alert), a Alert) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("alert subscriber panicked", zap.Any("panic", r))
		}
	}()
	fn(a)
}

// evaluateLocked checks the newly recorded metric and, every Nth record,
// the trailing-window rates. Callers must hold the lock.
func (m *Monitor) evaluateLocked(metric Metric) []Alert {
	var raised []Alert
	t := m.thresholds

	if t.SlowQuery > 0 && metric.Duration > t.SlowQuery {
		severity := SeverityHigh
		if t.CriticalSlowQuery > 0 && metric.Duration > t.CriticalSlowQuery {
			severity = SeverityCritical
		}
		raised = append(raised, m.raiseLocked(Alert{
			Kind:     AlertSlowQuery,
			Severity: severity,
			Query:    metric.Query,
			Value:    metric.Duration.Seconds(),
			Message:  "operation exceeded slow-query threshold",
		}))
	}

	m.sinceEval++
	if t.EvaluateEvery <= 0 || m.sinceEval < t.EvaluateEvery {
		return raised
	}
	m.sinceEval = 0

	window := m.trailingLocked(t.Window)
	if len(window) == 0 {
		return raised
	}

	hits, errs := 0, 0
	for _, w := range window {
		if w.IsError() {
			errs++
		} else if w.CacheHit {
			hits++
		}
	}

	if nonErr := len(window) - errs; nonErr > 0 && t.MinHitRate > 0 {
		if rate := float64(hits) / float64(nonErr); rate < t.MinHitRate {
			raised = append(raised, m.raiseLocked(Alert{
				Kind:     AlertLowHitRate,
				Severity: SeverityMedium,
				Value:    rate,
				Message:  "trailing cache hit rate below threshold",
			}))
		}
	}

	if t.MaxErrorRate > 0 {
		if rate := float64(errs) / float64(len(window)); rate > t.MaxErrorRate {
			raised = append(raised, m.raiseLocked(Alert{
				Kind:     AlertHighErrorRate,
				Severity: SeverityHigh,
				Value:    rate,
				Message:  "trailing error rate above threshold",
			}))
		}
	}

	return raised
}

func (m *Monitor) raiseLocked(a Alert) Alert {
	a.ID = uuid.NewString()
	a.RaisedAt = m.now()

	m.alerts = append(m.alerts, a)
	if len(m.alerts) > m.maxAlerts {
		m.alerts = m.alerts[len(m.alerts)-m.maxAlerts:]
	}

	m.logger.Warn("performance alert raised",
		zap.String("kind", a.Kind),
		zap.String("severity", string(a.Severity)),
		zap.String("query", a.Query),
		zap.Float64("value", a.Value),
	)
	return a
}

// trailingLocked returns up to n most recent metrics, oldest first.
func (m *Monitor) trailingLocked(n int) []Metric {
	if n <= 0 || n > m.count {
		n = m.count
	}
	out := make([]Metric, 0, n)
	start := m.count - n
	for i := start; i < m.count; i++ {
		out = append(out, m.buf[(m.head+i)%len(m.buf)])
	}
	return out
}
