package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/lucaslopezpuerta/LavpopBusinessIntelligence-sub010/internal/store"
	syncpkg "github.com/lucaslopezpuerta/LavpopBusinessIntelligence-sub010/internal/sync"
)

func TestSyncCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	err := RegisterSyncMetrics(reg, func() syncpkg.ManagerStats {
		return syncpkg.ManagerStats{
			Connected:           true,
			GaveUp:              false,
			Streams:             2,
			Attempts:            3,
			ReconnectsScheduled: 7,
			EventsReceived:      120,
			EventsImmediate:     5,
			LastUpdate:          time.Unix(1700000000, 0),
			Batcher: syncpkg.BatcherStats{
				EventsQueued: 115,
				Flushes:      40,
			},
		}
	})
	if err != nil {
		t.Fatalf("RegisterSyncMetrics failed: %v", err)
	}

	want := `
# HELP lavpop_syncd_connected 1 if the change feed is connected, otherwise 0
# TYPE lavpop_syncd_connected gauge
lavpop_syncd_connected 1
# HELP lavpop_syncd_events_total Change events received since start
# TYPE lavpop_syncd_events_total counter
lavpop_syncd_events_total 120
# HELP lavpop_syncd_gave_up 1 if automatic retries are exhausted, otherwise 0
# TYPE lavpop_syncd_gave_up gauge
lavpop_syncd_gave_up 0
# HELP lavpop_syncd_retry_attempts Retry attempts consumed in the current backoff run
# TYPE lavpop_syncd_retry_attempts gauge
lavpop_syncd_retry_attempts 3
# HELP lavpop_syncd_streams Number of managed streams
# TYPE lavpop_syncd_streams gauge
lavpop_syncd_streams 2
`
	err = testutil.GatherAndCompare(reg, strings.NewReader(want),
		"lavpop_syncd_connected",
		"lavpop_syncd_events_total",
		"lavpop_syncd_gave_up",
		"lavpop_syncd_retry_attempts",
		"lavpop_syncd_streams",
	)
	if err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
}

func TestStoreCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	err := RegisterStoreMetrics(reg, func() store.Stats {
		return store.Stats{
			Refreshes:   9,
			Failures:    1,
			CachedRows:  42,
			LastRefresh: time.Unix(1700000000, 0),
		}
	})
	if err != nil {
		t.Fatalf("RegisterStoreMetrics failed: %v", err)
	}

	want := `
# HELP lavpop_syncd_store_cached_rows Rows currently held in the row cache
# TYPE lavpop_syncd_store_cached_rows gauge
lavpop_syncd_store_cached_rows 42
# HELP lavpop_syncd_store_refresh_failures_total Failed snapshot refreshes since start
# TYPE lavpop_syncd_store_refresh_failures_total counter
lavpop_syncd_store_refresh_failures_total 1
# HELP lavpop_syncd_store_refreshes_total Successful snapshot refreshes since start
# TYPE lavpop_syncd_store_refreshes_total counter
lavpop_syncd_store_refreshes_total 9
`
	err = testutil.GatherAndCompare(reg, strings.NewReader(want),
		"lavpop_syncd_store_cached_rows",
		"lavpop_syncd_store_refresh_failures_total",
		"lavpop_syncd_store_refreshes_total",
	)
	if err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
}

func TestRegisterTwiceFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	fetch := func() store.Stats { return store.Stats{} }

	if err := RegisterStoreMetrics(reg, fetch); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if err := RegisterStoreMetrics(reg, fetch); err == nil {
		t.Error("second register succeeded, want duplicate collector error")
	}
}
