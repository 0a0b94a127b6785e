package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/singleflight"

	"github.com/lucaslopezpuerta/LavpopBusinessIntelligence-sub010/internal/feed"
)

// Querier is the subset of pgxpool.Pool the store reads through.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Snapshot is one computed dashboard view: sales aggregates over the rolling
// window, the customer count, and the freshness marker from upload_history.
type Snapshot struct {
	WindowStart time.Time
	Sales       int64
	Revenue     float64
	WashCycles  int64
	DryCycles   int64
	Customers   int64
	LastUpload  time.Time
	TakenAt     time.Time
}

// Config holds store settings.
type Config struct {
	Window    time.Duration // aggregate window (default: 30 days)
	CacheRows int           // row cache capacity (default: 4096)
	CacheTTL  time.Duration // row cache TTL (default: 1h)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Window:    30 * 24 * time.Hour,
		CacheRows: 4096,
		CacheTTL:  time.Hour,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.CacheRows <= 0 {
		c.CacheRows = d.CacheRows
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = d.CacheTTL
	}
}

// Stats reports store activity counters.
type Stats struct {
	Refreshes   int64
	Failures    int64
	CachedRows  int
	LastRefresh time.Time
}

const snapshotQuery = `
SELECT count(*),
       COALESCE(sum(net_value), 0),
       COALESCE(sum(wash_count), 0),
       COALESCE(sum(dry_count), 0)
FROM transactions
WHERE data_hora >= $1`

const customersQuery = `SELECT count(*) FROM customers`

const lastUploadQuery = `SELECT COALESCE(max(created_at), to_timestamp(0)) FROM upload_history`

// Store maintains the dashboard aggregates and the row cache. Refresh is
// safe to trigger from every delivery: concurrent triggers coalesce into a
// single query round via singleflight.
type Store struct {
	db     Querier
	cfg    Config
	cache  *RowCache
	logger *slog.Logger

	sf singleflight.Group

	mu          sync.Mutex
	snapshot    Snapshot
	hasSnapshot bool
	refreshes   int64
	failures    int64
}

// New creates a store reading through db.
func New(db Querier, cfg Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	return &Store{
		db:     db,
		cfg:    cfg,
		cache:  NewRowCache(cfg.CacheRows, cfg.CacheTTL),
		logger: logger,
	}
}

// ApplyBatch folds a batch of change events into the row cache and
// recomputes the aggregates once for the whole batch.
func (s *Store) ApplyBatch(ctx context.Context, stream string, events []feed.ChangeEvent) error {
	for _, ev := range events {
		s.cache.Apply(ev)
	}
	_, err := s.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refresh after %s batch: %w", stream, err)
	}
	return nil
}

// ApplyEvent handles one immediate event: fold it into the cache and
// recompute.
func (s *Store) ApplyEvent(ctx context.Context, ev feed.ChangeEvent) error {
	s.cache.Apply(ev)
	_, err := s.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refresh after %s event: %w", ev.Stream, err)
	}
	return nil
}

// Refresh recomputes the dashboard snapshot. Concurrent callers share one
// query round; every caller receives the shared result.
func (s *Store) Refresh(ctx context.Context) (Snapshot, error) {
	v, err, _ := s.sf.Do("snapshot", func() (any, error) {
		return s.refresh(ctx)
	})
	if err != nil {
		return Snapshot{}, err
	}
	return v.(Snapshot), nil
}

func (s *Store) refresh(ctx context.Context) (Snapshot, error) {
	start := time.Now()
	snap := Snapshot{
		WindowStart: start.Add(-s.cfg.Window),
		TakenAt:     start,
	}

	err := s.db.QueryRow(ctx, snapshotQuery, snap.WindowStart).
		Scan(&snap.Sales, &snap.Revenue, &snap.WashCycles, &snap.DryCycles)
	if err == nil {
		err = s.db.QueryRow(ctx, customersQuery).Scan(&snap.Customers)
	}
	if err == nil {
		err = s.db.QueryRow(ctx, lastUploadQuery).Scan(&snap.LastUpload)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.failures++
		s.logger.Warn("snapshot refresh failed", "error", err)
		return Snapshot{}, fmt.Errorf("snapshot refresh: %w", err)
	}

	s.snapshot = snap
	s.hasSnapshot = true
	s.refreshes++

	s.logger.Debug("snapshot refreshed",
		"sales", snap.Sales,
		"revenue", snap.Revenue,
		"customers", snap.Customers,
		"duration", time.Since(start),
	)
	return snap, nil
}

// Cached returns the last successful snapshot, if any.
func (s *Store) Cached() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot, s.hasSnapshot
}

// Cache exposes the row cache.
func (s *Store) Cache() *RowCache {
	return s.cache
}

// Stats returns activity counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Refreshes:   s.refreshes,
		Failures:    s.failures,
		CachedRows:  s.cache.Len(),
		LastRefresh: s.snapshot.TakenAt,
	}
}
