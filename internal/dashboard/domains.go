package dashboard

import (
	"time"
)

// Domain names a category of dashboard data with its own freshness policy.
type Domain string

const (
	DomainMetrics Domain = "metrics"
	DomainAlerts  Domain = "alerts"
	DomainStats   Domain = "stats"
	DomainWidgets Domain = "widgets"
	DomainLayouts Domain = "layouts"
)

// UmbrellaTag is carried by every entry written through the facade. Cascade
// invalidation clears it to wipe the whole dashboard cache in one pass.
const UmbrellaTag = "dashboard"

// Priority is advisory metadata describing how painful a cold read is for
// the domain. It is logged with invalidations but does not change eviction.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// DomainConfig fixes the caching policy for one domain at construction.
type DomainConfig struct {
	KeyPrefix    string
	TTL          time.Duration
	MaxSizeBytes int64
	Priority     Priority

	// InvalidationTriggers are the business events whose firing clears this
	// domain. They are attached as tags so the rule engine can find entries.
	InvalidationTriggers []string
}

// DefaultDomainConfigs returns the shipped per-domain policies. The numbers
// are tunables; the invariant is the volatility ordering — alerts and
// metrics expire well before widgets and layouts.
func DefaultDomainConfigs() map[Domain]DomainConfig {
	return map[Domain]DomainConfig{
		DomainMetrics: {
			KeyPrefix:            "dashboard:metrics",
			TTL:                  3 * time.Minute,
			MaxSizeBytes:         2 << 20,
			Priority:             PriorityHigh,
			InvalidationTriggers: []string{"payment_created", "handover_updated"},
		},
		DomainAlerts: {
			KeyPrefix:            "dashboard:alerts",
			TTL:                  time.Minute,
			MaxSizeBytes:         1 << 20,
			Priority:             PriorityHigh,
			InvalidationTriggers: []string{"payment_created", "subdivision_changed", "handover_updated"},
		},
		DomainStats: {
			KeyPrefix:            "dashboard:stats",
			TTL:                  5 * time.Minute,
			MaxSizeBytes:         1 << 20,
			Priority:             PriorityMedium,
			InvalidationTriggers: []string{"payment_created", "tenant_changed"},
		},
		DomainWidgets: {
			KeyPrefix:            "dashboard:widgets",
			TTL:                  10 * time.Minute,
			MaxSizeBytes:         512 << 10,
			Priority:             PriorityMedium,
			InvalidationTriggers: []string{"widget_configured"},
		},
		DomainLayouts: {
			KeyPrefix:            "dashboard:layouts",
			TTL:                  time.Hour,
			MaxSizeBytes:         256 << 10,
			Priority:             PriorityLow,
			InvalidationTriggers: []string{"layout_saved"},
		},
	}
}
