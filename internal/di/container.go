package di

import (
	"go.uber.org/zap"

	"dashcache/internal/cache"
	"dashcache/internal/config"
	"dashcache/internal/dashboard"
	"dashcache/internal/invalidation"
	"dashcache/internal/monitor"
	"dashcache/internal/observability"
	"dashcache/internal/prefetch"
)

// Container owns the constructed subsystem. Collaborators receive the
// fields they need by reference; nothing here is reachable as a global.
type Container struct {
	Config       *config.Config
	Logger       *zap.Logger
	Collector    *observability.Collector
	Store        *cache.MemoryCache
	Dashboard    *dashboard.Facade
	Invalidation *invalidation.Engine
	Monitor      *monitor.Monitor
	Prefetcher   *prefetch.Prefetcher

	stopCleanup func()
}

// Start launches background work: the periodic expired-entry sweep.
// Idempotent Stop via Shutdown.
func (c *Container) Start() {
	if c.stopCleanup == nil {
		c.stopCleanup = c.Store.StartCleanup(c.Config.Cache.CleanupInterval.Std())
	}
	c.Logger.Info("caching subsystem started",
		zap.String("environment", c.Config.Environment),
		zap.Duration("cleanup_interval", c.Config.Cache.CleanupInterval.Std()),
	)
}

// Shutdown stops all background work: the cleanup sweep and any pending
// delayed invalidations.
func (c *Container) Shutdown() {
	if c.stopCleanup != nil {
		c.stopCleanup()
		c.stopCleanup = nil
	}
	c.Invalidation.Stop()
	c.Logger.Info("caching subsystem stopped")
}
