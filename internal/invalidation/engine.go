// Package invalidation maps named business triggers (payment_created,
// tenant_changed, ...) to the dashboard cache domains they stale out, and
// executes immediate or deferred tag-based deletion. Invalidation is a
// best-effort freshness mechanism: firing never fails and unknown triggers
// are a no-op.
package invalidation

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"dashcache/internal/dashboard"
)

// TagClearer is the slice of the cache the engine needs. Satisfied by
// *cache.MemoryCache.
type TagClearer interface {
	ClearByTags(tags []string) int
}

// Rule binds one trigger to the domains it invalidates. Rules are static
// configuration; they are registered at bootstrap and never mutated.
type Rule struct {
	Trigger string
	Domains []dashboard.Domain

	// Delay defers the deletion. A write whose downstream aggregation has
	// not committed yet would otherwise be re-cached stale immediately.
	Delay time.Duration

	// Cascade additionally clears the umbrella dashboard tag, wiping every
	// entry written through the facade.
	Cascade bool
}

// Engine executes invalidation rules against a tag-addressable cache.
type Engine struct {
	mu     sync.Mutex
	rules  map[string][]Rule
	timers map[*time.Timer]struct{}
	closed bool

	store  TagClearer
	logger *zap.Logger
}

// NewEngine creates an engine over the given store. A nil logger is
// replaced with a no-op logger.
func NewEngine(store TagClearer, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		rules:  make(map[string][]Rule),
		timers: make(map[*time.Timer]struct{}),
		store:  store,
		logger: logger,
	}
}

// DefaultRules is the shipped rule table for the property dashboard. Every
// money- or occupancy-affecting event clears the volatile domains; bulk
// structural events cascade.
func DefaultRules() []Rule {
	return []Rule{
		{Trigger: "payment_created", Domains: []dashboard.Domain{dashboard.DomainMetrics, dashboard.DomainAlerts, dashboard.DomainStats}},
		{Trigger: "payment_created", Domains: []dashboard.Domain{dashboard.DomainWidgets}, Delay: 5 * time.Second},
		{Trigger: "tenant_changed", Domains: []dashboard.Domain{dashboard.DomainStats}},
		{Trigger: "handover_updated", Domains: []dashboard.Domain{dashboard.DomainMetrics, dashboard.DomainAlerts}},
		{Trigger: "subdivision_changed", Domains: []dashboard.Domain{dashboard.DomainAlerts}, Cascade: true},
		{Trigger: "widget_configured", Domains: []dashboard.Domain{dashboard.DomainWidgets}},
		{Trigger: "layout_saved", Domains: []dashboard.Domain{dashboard.DomainLayouts}},
	}
}

// RegisterRule appends a rule. Several rules may share a trigger; Fire
// executes all of them.
func (e *Engine) RegisterRule(r Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules[r.Trigger] = append(e.rules[r.Trigger], r)
}

// Fire runs every rule registered for trigger. Undelayed rules clear
// synchronously; delayed rules are scheduled fire-and-forget. Metadata is
// logged for debugging and plays no part in what gets cleared. Firing an
// unknown trigger is a silent no-op.
func (e *Engine) Fire(trigger string, metadata map[string]string) {
	e.mu.Lock()
	rules := e.rules[trigger]
	e.mu.Unlock()

	if len(rules) == 0 {
		e.logger.Debug("no invalidation rules for trigger", zap.String("trigger", trigger))
		return
	}

	for _, r := range rules {
		if r.Delay <= 0 {
			e.clear(r, metadata)
			continue
		}
		e.schedule(r, metadata)
	}
}

// Stop cancels all outstanding delayed invalidations. After Stop, delayed
// rules from later Fire calls run immediately rather than being lost.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	for t := range e.timers {
		t.Stop()
	}
	e.timers = make(map[*time.Timer]struct{})
}

func (e *Engine) schedule(r Rule, metadata map[string]string) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.clear(r, metadata)
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(r.Delay, func() {
		e.mu.Lock()
		delete(e.timers, timer)
		e.mu.Unlock()
		e.clear(r, metadata)
	})
	e.timers[timer] = struct{}{}
	e.mu.Unlock()
}

func (e *Engine) clear(r Rule, metadata map[string]string) {
	tags := make([]string, 0, len(r.Domains)+1)
	for _, d := range r.Domains {
		tags = append(tags, string(d))
	}
	if r.Cascade {
		tags = append(tags, dashboard.UmbrellaTag)
	}

	removed := e.store.ClearByTags(tags)
	e.logger.Info("invalidated cache domains",
		zap.String("trigger", r.Trigger),
		zap.Strings("tags", tags),
		zap.Int("removed", removed),
		zap.Bool("cascade", r.Cascade),
		zap.Any("metadata", metadata),
	)
}
