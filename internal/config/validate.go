package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *SyncdConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if !strings.HasPrefix(c.Feed.URL, "ws://") && !strings.HasPrefix(c.Feed.URL, "wss://") {
		return fmt.Errorf("feed.url must be a ws:// or wss:// URL, got %q", c.Feed.URL)
	}

	if err := c.Database.validate("database"); err != nil {
		return err
	}

	if c.Sync.RetryBaseDelay <= 0 {
		return errors.New("sync.retry_base_delay must be positive")
	}
	if c.Sync.RetryMaxDelay < c.Sync.RetryBaseDelay {
		return fmt.Errorf("sync.retry_max_delay (%s) cannot be less than retry_base_delay (%s)",
			c.Sync.RetryMaxDelay, c.Sync.RetryBaseDelay)
	}
	if c.Sync.MaxAttempts < 1 {
		return errors.New("sync.max_attempts must be >= 1")
	}
	if c.Sync.StabilityThreshold <= 0 {
		return errors.New("sync.stability_threshold must be positive")
	}
	if c.Sync.BatchWindow <= 0 {
		return errors.New("sync.batch_window must be positive")
	}

	if len(c.Streams) == 0 {
		return errors.New("at least one stream is required")
	}
	seen := make(map[string]struct{}, len(c.Streams))
	for i, s := range c.Streams {
		if s.ID == "" {
			return fmt.Errorf("streams[%d].id is required", i)
		}
		if s.Table == "" {
			return fmt.Errorf("streams[%d].table is required", i)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("streams[%d].id %q is duplicated", i, s.ID)
		}
		seen[s.ID] = struct{}{}
		for _, ev := range s.Events {
			switch ev {
			case "INSERT", "UPDATE", "DELETE":
			default:
				return fmt.Errorf("streams[%d].events contains unknown event %q", i, ev)
			}
		}
	}

	if c.Cache.Rows < 1 {
		return errors.New("cache.rows must be >= 1")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
