package config

import "time"

// SyncdConfig is the root configuration for a syncd instance.
type SyncdConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Feed     FeedConfig     `yaml:"feed"`
	Database DBConfig       `yaml:"database"`
	Sync     SyncConfig     `yaml:"sync"`
	Streams  []StreamConfig `yaml:"streams"`
	Cache    CacheConfig    `yaml:"cache"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// InstanceConfig identifies this syncd instance.
type InstanceConfig struct {
	ID   string `yaml:"id"`
	Site string `yaml:"site"`
}

// FeedConfig holds change-feed provider settings.
type FeedConfig struct {
	URL              string        `yaml:"url"`
	APIKey           string        `yaml:"api_key"` // Bearer token for the feed endpoint
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PingTimeout      time.Duration `yaml:"ping_timeout"`
}

// DBConfig holds the Postgres connection for dashboard reads.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// SyncConfig holds retry, stability, and batching settings for the
// connection manager.
type SyncConfig struct {
	RetryBaseDelay     time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay      time.Duration `yaml:"retry_max_delay"`
	MaxAttempts        int           `yaml:"max_attempts"`
	StabilityThreshold time.Duration `yaml:"stability_threshold"`
	BatchWindow        time.Duration `yaml:"batch_window"`
	WakeCheckInterval  time.Duration `yaml:"wake_check_interval"`
}

// StreamConfig declares one logical change-feed subscription.
type StreamConfig struct {
	ID     string   `yaml:"id"`
	Table  string   `yaml:"table"`
	Events []string `yaml:"events"` // INSERT, UPDATE, DELETE; empty = all

	// Immediate streams bypass batching: each event is dispatched as it
	// arrives. Used for freshness signals whose payload carries no
	// row-level information worth coalescing (e.g. bulk upload markers).
	Immediate bool `yaml:"immediate"`
}

// CacheConfig holds row-cache settings for the dashboard store.
type CacheConfig struct {
	Rows int           `yaml:"rows"`
	TTL  time.Duration `yaml:"ttl"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
