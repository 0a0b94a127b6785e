package store

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RefresherConfig holds refresher configuration.
type RefresherConfig struct {
	Interval time.Duration // fallback refresh interval (default: 5m)
	Timeout  time.Duration // per-refresh timeout (default: 10s)
}

// DefaultRefresherConfig returns sensible defaults.
func DefaultRefresherConfig() RefresherConfig {
	return RefresherConfig{
		Interval: 5 * time.Minute,
		Timeout:  10 * time.Second,
	}
}

// Refresher periodically recomputes the snapshot so the dashboard recovers
// even if the change feed misses an event. The feed is the primary trigger;
// this is the backstop.
type Refresher struct {
	cfg    RefresherConfig
	store  *Store
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRefresher creates a refresher for store.
func NewRefresher(cfg RefresherConfig, store *Store, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultRefresherConfig().Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRefresherConfig().Timeout
	}
	return &Refresher{
		cfg:    cfg,
		store:  store,
		logger: logger,
	}
}

// Start begins the refresh loop.
func (r *Refresher) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.run()

	r.logger.Info("fallback refresher started", "interval", r.cfg.Interval)
	return nil
}

// Stop gracefully shuts down the refresher.
func (r *Refresher) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("fallback refresher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Refresher) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	// Refresh immediately on start so the dashboard has data before the
	// first feed delivery.
	r.refreshOnce()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.refreshOnce()
		}
	}
}

func (r *Refresher) refreshOnce() {
	ctx, cancel := context.WithTimeout(r.ctx, r.cfg.Timeout)
	defer cancel()

	if _, err := r.store.Refresh(ctx); err != nil {
		r.logger.Warn("fallback refresh failed", "err", err)
	}
}
