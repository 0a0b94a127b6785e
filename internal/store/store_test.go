package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lucaslopezpuerta/LavpopBusinessIntelligence-sub010/internal/feed"
)

type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *int64:
			*p = r.vals[i].(int64)
		case *float64:
			*p = r.vals[i].(float64)
		case *time.Time:
			*p = r.vals[i].(time.Time)
		}
	}
	return nil
}

// fakeDB answers the three snapshot queries with canned values. When gate is
// set, every QueryRow blocks until the gate closes.
type fakeDB struct {
	mu      sync.Mutex
	queries int
	failing bool
	gate    chan struct{}

	uploadAt time.Time
}

func (db *fakeDB) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	db.mu.Lock()
	db.queries++
	gate := db.gate
	failing := db.failing
	db.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if failing {
		return fakeRow{err: errors.New("connection refused")}
	}

	switch {
	case strings.Contains(sql, "FROM transactions"):
		return fakeRow{vals: []any{int64(12), 345.50, int64(18), int64(9)}}
	case strings.Contains(sql, "FROM customers"):
		return fakeRow{vals: []any{int64(77)}}
	default:
		return fakeRow{vals: []any{db.uploadAt}}
	}
}

func (db *fakeDB) queryCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.queries
}

func cacheEvent(stream string, kind feed.OperationKind, payload string) feed.ChangeEvent {
	return feed.ChangeEvent{
		ID:         uuid.New(),
		Stream:     stream,
		Kind:       kind,
		Payload:    json.RawMessage(payload),
		ReceivedAt: time.Now(),
	}
}

func TestStore_Refresh(t *testing.T) {
	uploadAt := time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC)
	db := &fakeDB{uploadAt: uploadAt}
	s := New(db, Config{}, nil)

	snap, err := s.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	if snap.Sales != 12 {
		t.Errorf("Sales = %d, want 12", snap.Sales)
	}
	if snap.Revenue != 345.50 {
		t.Errorf("Revenue = %v, want 345.50", snap.Revenue)
	}
	if snap.WashCycles != 18 || snap.DryCycles != 9 {
		t.Errorf("cycles = %d/%d, want 18/9", snap.WashCycles, snap.DryCycles)
	}
	if snap.Customers != 77 {
		t.Errorf("Customers = %d, want 77", snap.Customers)
	}
	if !snap.LastUpload.Equal(uploadAt) {
		t.Errorf("LastUpload = %v, want %v", snap.LastUpload, uploadAt)
	}
	if snap.TakenAt.IsZero() || snap.WindowStart.IsZero() {
		t.Error("TakenAt/WindowStart not set")
	}

	cached, ok := s.Cached()
	if !ok {
		t.Fatal("Cached() reports no snapshot after successful refresh")
	}
	if cached.Sales != snap.Sales {
		t.Errorf("cached Sales = %d, want %d", cached.Sales, snap.Sales)
	}
	if got := s.Stats().Refreshes; got != 1 {
		t.Errorf("Refreshes = %d, want 1", got)
	}
}

func TestStore_RefreshFailureKeepsLastSnapshot(t *testing.T) {
	db := &fakeDB{uploadAt: time.Now()}
	s := New(db, Config{}, nil)

	if _, err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("initial refresh failed: %v", err)
	}

	db.mu.Lock()
	db.failing = true
	db.mu.Unlock()

	if _, err := s.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh succeeded against failing database, want error")
	}

	cached, ok := s.Cached()
	if !ok || cached.Sales != 12 {
		t.Errorf("last good snapshot lost after failed refresh: ok=%v sales=%d", ok, cached.Sales)
	}

	stats := s.Stats()
	if stats.Refreshes != 1 || stats.Failures != 1 {
		t.Errorf("stats = %d refreshes / %d failures, want 1/1", stats.Refreshes, stats.Failures)
	}
}

func TestStore_ConcurrentRefreshesCoalesce(t *testing.T) {
	db := &fakeDB{uploadAt: time.Now(), gate: make(chan struct{})}
	s := New(db, Config{}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Refresh(context.Background()); err != nil {
				t.Errorf("Refresh failed: %v", err)
			}
		}()
	}

	// Let every caller join the in-flight round, then release the queries.
	time.Sleep(50 * time.Millisecond)
	close(db.gate)
	wg.Wait()

	// One round is exactly three queries regardless of caller count.
	if got := db.queryCount(); got != 3 {
		t.Errorf("queries = %d, want 3 (single coalesced round)", got)
	}
	if got := s.Stats().Refreshes; got != 1 {
		t.Errorf("Refreshes = %d, want 1", got)
	}
}

func TestStore_ApplyBatch(t *testing.T) {
	db := &fakeDB{uploadAt: time.Now()}
	s := New(db, Config{}, nil)

	events := []feed.ChangeEvent{
		cacheEvent("transactions", feed.OpInsert, `{"id": 1, "net_value": 25.0}`),
		cacheEvent("transactions", feed.OpInsert, `{"id": 2, "net_value": 18.5}`),
	}
	if err := s.ApplyBatch(context.Background(), "transactions", events); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}

	if got := s.Cache().Len(); got != 2 {
		t.Errorf("cached rows = %d, want 2", got)
	}
	if got := s.Stats().Refreshes; got != 1 {
		t.Errorf("Refreshes = %d, want 1 (one per batch)", got)
	}
	if _, ok := s.Cached(); !ok {
		t.Error("no snapshot after ApplyBatch")
	}
}

func TestRowCache_ApplyAndGet(t *testing.T) {
	c := NewRowCache(16, time.Minute)

	c.Apply(cacheEvent("transactions", feed.OpInsert, `{"id": 7, "net_value": 10}`))
	if _, ok := c.Get("transactions", "7"); !ok {
		t.Fatal("inserted row not cached")
	}

	c.Apply(cacheEvent("transactions", feed.OpUpdate, `{"id": 7, "net_value": 12}`))
	payload, ok := c.Get("transactions", "7")
	if !ok {
		t.Fatal("updated row not cached")
	}
	var row struct {
		NetValue float64 `json:"net_value"`
	}
	if err := json.Unmarshal(payload, &row); err != nil {
		t.Fatalf("unmarshal cached row: %v", err)
	}
	if row.NetValue != 12 {
		t.Errorf("cached net_value = %v, want 12 (update should win)", row.NetValue)
	}

	c.Apply(cacheEvent("transactions", feed.OpDelete, `{"id": 7}`))
	if _, ok := c.Get("transactions", "7"); ok {
		t.Error("deleted row still cached")
	}

	// Events without a row id are skipped, not cached under a bogus key.
	c.Apply(cacheEvent("upload_history", feed.OpInsert, `{"file_type": "sales"}`))
	if got := c.Len(); got != 0 {
		t.Errorf("cache size = %d, want 0", got)
	}
}

func TestRowCache_TTL(t *testing.T) {
	c := NewRowCache(16, 50*time.Millisecond)

	c.Apply(cacheEvent("transactions", feed.OpInsert, `{"id": 3}`))
	if _, ok := c.Get("transactions", "3"); !ok {
		t.Fatal("row not cached")
	}

	time.Sleep(120 * time.Millisecond)
	if _, ok := c.Get("transactions", "3"); ok {
		t.Error("row survived past TTL")
	}
}
