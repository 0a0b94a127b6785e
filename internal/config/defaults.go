package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultFeedURL            = "wss://feed.lavpop.app/realtime"
	DefaultHandshakeTimeout   = 10 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultPingInterval       = 30 * time.Second
	DefaultPingTimeout        = 60 * time.Second
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 10
	DefaultMinConns           = 2
	DefaultRetryBaseDelay     = 1 * time.Second
	DefaultRetryMaxDelay      = 30 * time.Second
	DefaultMaxAttempts        = 5
	DefaultStabilityThreshold = 5 * time.Second
	DefaultBatchWindow        = 300 * time.Millisecond
	DefaultWakeCheckInterval  = 1 * time.Second
	DefaultCacheRows          = 4096
	DefaultCacheTTL           = 1 * time.Hour
	DefaultMetricsPort        = 9090
	DefaultMetricsPath        = "/metrics"
)

func (c *SyncdConfig) applyDefaults() {
	// Feed defaults
	if c.Feed.URL == "" {
		c.Feed.URL = DefaultFeedURL
	}
	if c.Feed.HandshakeTimeout == 0 {
		c.Feed.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Feed.WriteTimeout == 0 {
		c.Feed.WriteTimeout = DefaultWriteTimeout
	}
	if c.Feed.PingInterval == 0 {
		c.Feed.PingInterval = DefaultPingInterval
	}
	if c.Feed.PingTimeout == 0 {
		c.Feed.PingTimeout = DefaultPingTimeout
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Sync defaults
	if c.Sync.RetryBaseDelay == 0 {
		c.Sync.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.Sync.RetryMaxDelay == 0 {
		c.Sync.RetryMaxDelay = DefaultRetryMaxDelay
	}
	if c.Sync.MaxAttempts == 0 {
		c.Sync.MaxAttempts = DefaultMaxAttempts
	}
	if c.Sync.StabilityThreshold == 0 {
		c.Sync.StabilityThreshold = DefaultStabilityThreshold
	}
	if c.Sync.BatchWindow == 0 {
		c.Sync.BatchWindow = DefaultBatchWindow
	}
	if c.Sync.WakeCheckInterval == 0 {
		c.Sync.WakeCheckInterval = DefaultWakeCheckInterval
	}

	// Cache defaults
	if c.Cache.Rows == 0 {
		c.Cache.Rows = DefaultCacheRows
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = DefaultCacheTTL
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}
