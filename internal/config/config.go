// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Crawl      CrawlConfig      `mapstructure:"crawl"`
	Discover   DiscoverConfig   `mapstructure:"discover"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Headless   HeadlessConfig   `mapstructure:"headless"`
	Understand UnderstandConfig `mapstructure:"understand"`
	Geo        GeoConfig        `mapstructure:"geo"`
	DB         DBConfig         `mapstructure:"db"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// HTTPConfig configures outbound HTTP client behavior and retries.
type HTTPConfig struct {
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxRetries       int    `mapstructure:"max_retries"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int    `mapstructure:"backoff_max_ms"`
	MaxBodyBytes     int64  `mapstructure:"max_body_bytes"`
	UserAgent        string `mapstructure:"user_agent"`
	IgnoreRobots     bool   `mapstructure:"ignore_robots"`
}

// CrawlConfig governs breadth-first site exploration.
type CrawlConfig struct {
	MaxDepthDefault int `mapstructure:"max_depth_default"`
	MaxPagesDefault int `mapstructure:"max_pages_default"`
	DelayMs         int `mapstructure:"delay_ms"`
	LinksPerPage    int `mapstructure:"links_per_page"`
}

// DiscoverConfig bounds candidate URL generation and validation.
type DiscoverConfig struct {
	MaxParallelProbes int `mapstructure:"max_parallel_probes"`
	ProbeTimeoutSec   int `mapstructure:"probe_timeout_seconds"`
}

// CacheConfig selects and sizes the result cache.
type CacheConfig struct {
	Backend          string `mapstructure:"backend"`
	Capacity         int    `mapstructure:"capacity"`
	SweepIntervalMin int    `mapstructure:"sweep_interval_minutes"`
	RedisURL         string `mapstructure:"redis_url"`
}

// PipelineConfig bounds per-acquisition fan-out.
type PipelineConfig struct {
	MaxDocuments      int `mapstructure:"max_documents"`
	MaxFlows          int `mapstructure:"max_flows"`
	MaxExternalProbes int `mapstructure:"max_external_probes"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// UnderstandConfig configures the text-understanding client. An empty API
// key leaves the pipeline heuristic-only.
type UnderstandConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	TimeoutSec int    `mapstructure:"timeout_seconds"`
	MaxChars   int    `mapstructure:"max_chars"`
}

// GeoConfig configures geocoding and nearby-office lookup. An empty base URL
// disables both collaborators.
type GeoConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	TimeoutSec int    `mapstructure:"timeout_seconds"`
}

// DBConfig controls access to the relational database. An empty DSN disables
// persistence.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// ArchiveConfig sets where raw page snapshots are persisted.
type ArchiveConfig struct {
	Backend     string `mapstructure:"backend"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	LocalDir    string `mapstructure:"local_dir"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// PubSubConfig holds metadata for completion notifications. An empty project
// disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// SchedulerConfig controls background refresh of stale jurisdictions.
// Targets are the jurisdiction website URLs to re-acquire each cycle.
type SchedulerConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Cron    string   `mapstructure:"cron"`
	Targets []string `mapstructure:"targets"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PERMITSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 2000)
	v.SetDefault("http.max_body_bytes", 5*1024*1024)
	v.SetDefault("http.user_agent", "permitscout-bot/0.1")
	v.SetDefault("http.ignore_robots", false)
	v.SetDefault("crawl.max_depth_default", 3)
	v.SetDefault("crawl.max_pages_default", 25)
	v.SetDefault("crawl.delay_ms", 1500)
	v.SetDefault("crawl.links_per_page", 10)
	v.SetDefault("discover.max_parallel_probes", 4)
	v.SetDefault("discover.probe_timeout_seconds", 10)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.capacity", 1000)
	v.SetDefault("cache.sweep_interval_minutes", 60)
	v.SetDefault("pipeline.max_documents", 5)
	v.SetDefault("pipeline.max_flows", 3)
	v.SetDefault("pipeline.max_external_probes", 2)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("understand.base_url", "https://api.openai.com/v1")
	v.SetDefault("understand.model", "gpt-4o-mini")
	v.SetDefault("understand.timeout_seconds", 60)
	v.SetDefault("understand.max_chars", 24000)
	v.SetDefault("geo.timeout_seconds", 10)
	v.SetDefault("archive.backend", "none")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("archive.content_type", "text/html; charset=utf-8")
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.cron", "0 3 * * *")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Crawl.MaxPagesDefault <= 0 {
		return fmt.Errorf("crawl.max_pages_default must be > 0")
	}
	if c.Crawl.MaxDepthDefault < 0 {
		return fmt.Errorf("crawl.max_depth_default must be >= 0")
	}
	if c.Discover.MaxParallelProbes <= 0 {
		return fmt.Errorf("discover.max_parallel_probes must be > 0")
	}
	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("cache.redis_url must be set when cache.backend is redis")
		}
	default:
		return fmt.Errorf("cache.backend must be memory or redis, got %q", c.Cache.Backend)
	}
	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache.capacity must be > 0")
	}
	if c.Pipeline.MaxDocuments <= 0 {
		return fmt.Errorf("pipeline.max_documents must be > 0")
	}
	if c.Pipeline.MaxFlows <= 0 {
		return fmt.Errorf("pipeline.max_flows must be > 0")
	}
	if c.Pipeline.MaxExternalProbes <= 0 {
		return fmt.Errorf("pipeline.max_external_probes must be > 0")
	}
	switch c.Archive.Backend {
	case "none", "memory":
	case "local":
		if c.Archive.LocalDir == "" {
			return fmt.Errorf("archive.local_dir must be set when archive.backend is local")
		}
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set when archive.backend is gcs")
		}
	default:
		return fmt.Errorf("archive.backend must be none, memory, local, or gcs, got %q", c.Archive.Backend)
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Scheduler.Enabled && c.Scheduler.Cron == "" {
		return fmt.Errorf("scheduler.cron must be set when scheduler is enabled")
	}
	return nil
}

// RequestTimeout converts the HTTP timeout into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// CrawlDelay converts the per-host crawl delay into a duration.
func (c Config) CrawlDelay() time.Duration {
	return time.Duration(c.Crawl.DelayMs) * time.Millisecond
}

// SweepInterval converts the cache sweep cadence into a duration.
func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.Cache.SweepIntervalMin) * time.Minute
}

// ProbeTimeout converts the discovery probe timeout into a duration.
func (c Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Discover.ProbeTimeoutSec) * time.Second
}

// HeadlessNavTimeout converts the headless navigation timeout into a duration.
func (c Config) HeadlessNavTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSec) * time.Second
}

// UnderstandTimeout converts the understanding call timeout into a duration.
func (c Config) UnderstandTimeout() time.Duration {
	return time.Duration(c.Understand.TimeoutSec) * time.Second
}

// GeoTimeout converts the geocoding call timeout into a duration.
func (c Config) GeoTimeout() time.Duration {
	return time.Duration(c.Geo.TimeoutSec) * time.Second
}
