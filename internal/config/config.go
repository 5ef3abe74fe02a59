// Package config loads the caching subsystem's configuration from, in
// increasing priority: defaults in code, a YAML file, and environment
// variables. Tunables that operators adjust at runtime (domain TTLs, alert
// thresholds) can additionally be hot-reloaded through the Watcher.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML files can say "90s" or "5m".
// Plain integers are taken as nanoseconds.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML accepts either a duration string or an integer.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw any
	if err := value.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	case int:
		*d = Duration(v)
	default:
		return fmt.Errorf("invalid duration value %v", raw)
	}
	return nil
}

// Config is the full configuration tree.
type Config struct {
	Environment string `yaml:"environment" validate:"oneof=development staging production"`

	Server  ServerConfig  `yaml:"server"`
	Cache   CacheConfig   `yaml:"cache"`
	Domains DomainsConfig `yaml:"domains"`
	Monitor MonitorConfig `yaml:"monitor"`
}

// ServerConfig configures the ops/demo HTTP server.
type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

// CacheConfig configures the shared dashboard store.
type CacheConfig struct {
	MaxSizeBytes    int64    `yaml:"max_size_bytes" validate:"min=0"`
	MaxEntries      int      `yaml:"max_entries" validate:"min=0"`
	CleanupInterval Duration `yaml:"cleanup_interval" validate:"gt=0"`
}

// DomainsConfig holds the per-domain freshness bounds. The volatility
// ordering between them is checked by Validate, not by field tags.
type DomainsConfig struct {
	MetricsTTL Duration `yaml:"metrics_ttl" validate:"gt=0"`
	AlertsTTL  Duration `yaml:"alerts_ttl" validate:"gt=0"`
	StatsTTL   Duration `yaml:"stats_ttl" validate:"gt=0"`
	WidgetsTTL Duration `yaml:"widgets_ttl" validate:"gt=0"`
	LayoutsTTL Duration `yaml:"layouts_ttl" validate:"gt=0"`
}

// MonitorConfig configures the performance monitor.
type MonitorConfig struct {
	MaxMetrics        int      `yaml:"max_metrics" validate:"min=1"`
	MaxAlerts         int      `yaml:"max_alerts" validate:"min=1"`
	SlowQuery         Duration `yaml:"slow_query"`
	CriticalSlowQuery Duration `yaml:"critical_slow_query"`
	MinHitRate        float64  `yaml:"min_hit_rate" validate:"min=0,max=1"`
	MaxErrorRate      float64  `yaml:"max_error_rate" validate:"min=0,max=1"`
}

// Default returns the shipped configuration.
func Default() *Config {
	return &Config{
		Environment: "development",
		Server:      ServerConfig{Addr: ":8080"},
		Cache: CacheConfig{
			MaxSizeBytes:    8 << 20,
			MaxEntries:      5000,
			CleanupInterval: Duration(time.Minute),
		},
		Domains: DomainsConfig{
			MetricsTTL: Duration(3 * time.Minute),
			AlertsTTL:  Duration(time.Minute),
			StatsTTL:   Duration(5 * time.Minute),
			WidgetsTTL: Duration(10 * time.Minute),
			LayoutsTTL: Duration(time.Hour),
		},
		Monitor: MonitorConfig{
			MaxMetrics:        1000,
			MaxAlerts:         100,
			SlowQuery:         Duration(time.Second),
			CriticalSlowQuery: Duration(3 * time.Second),
			MinHitRate:        0.5,
			MaxErrorRate:      0.1,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment variables, then validates the result. An empty path skips
// the file layer; a missing file at a given path is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and the domain volatility ordering.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return c.ttlOrdering()
}

// ttlOrdering enforces the one hard invariant among the domain TTLs:
// volatile domains must expire before stable ones.
func (c *Config) ttlOrdering() error {
	d := c.Domains
	if d.AlertsTTL > d.MetricsTTL {
		return fmt.Errorf("alerts TTL (%s) must not exceed metrics TTL (%s)", d.AlertsTTL, d.MetricsTTL)
	}
	if d.MetricsTTL > d.LayoutsTTL || d.StatsTTL > d.LayoutsTTL || d.WidgetsTTL > d.LayoutsTTL {
		return fmt.Errorf("layouts TTL (%s) must be the longest-lived domain", d.LayoutsTTL)
	}
	return nil
}

// applyEnvOverrides applies DASHCACHE_* environment variables on top of
// whatever the file layer produced. Unparseable values are ignored in
// favor of the layer below.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DASHCACHE_ENVIRONMENT"); v != "" {
		cfg.Environment = v
	}
	if v := os.Getenv("DASHCACHE_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DASHCACHE_CACHE_MAX_SIZE_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Cache.MaxSizeBytes = n
		}
	}
	if v := os.Getenv("DASHCACHE_CACHE_MAX_ENTRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.MaxEntries = n
		}
	}
	if v := os.Getenv("DASHCACHE_CACHE_CLEANUP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.CleanupInterval = Duration(d)
		}
	}
	if v := os.Getenv("DASHCACHE_MONITOR_SLOW_QUERY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Monitor.SlowQuery = Duration(d)
		}
	}
}
