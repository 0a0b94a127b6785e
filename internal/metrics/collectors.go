package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lucaslopezpuerta/LavpopBusinessIntelligence-sub010/internal/store"
	syncpkg "github.com/lucaslopezpuerta/LavpopBusinessIntelligence-sub010/internal/sync"
)

// SyncStatsFn returns the current sync manager statistics.
type SyncStatsFn func() syncpkg.ManagerStats

type syncCollector struct {
	fetch SyncStatsFn

	connected      *prometheus.Desc
	gaveUp         *prometheus.Desc
	streams        *prometheus.Desc
	attempts       *prometheus.Desc
	reconnects     *prometheus.Desc
	events         *prometheus.Desc
	eventsImm      *prometheus.Desc
	lastUpdateUnix *prometheus.Desc
	batchFlushes   *prometheus.Desc
	batchQueued    *prometheus.Desc
}

func (c *syncCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.connected
	ch <- c.gaveUp
	ch <- c.streams
	ch <- c.attempts
	ch <- c.reconnects
	ch <- c.events
	ch <- c.eventsImm
	ch <- c.lastUpdateUnix
	ch <- c.batchFlushes
	ch <- c.batchQueued
}

func (c *syncCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.fetch()

	ch <- prometheus.MustNewConstMetric(c.connected, prometheus.GaugeValue, boolToFloat(s.Connected))
	ch <- prometheus.MustNewConstMetric(c.gaveUp, prometheus.GaugeValue, boolToFloat(s.GaveUp))
	ch <- prometheus.MustNewConstMetric(c.streams, prometheus.GaugeValue, float64(s.Streams))
	ch <- prometheus.MustNewConstMetric(c.attempts, prometheus.GaugeValue, float64(s.Attempts))
	ch <- prometheus.MustNewConstMetric(c.reconnects, prometheus.CounterValue, float64(s.ReconnectsScheduled))
	ch <- prometheus.MustNewConstMetric(c.events, prometheus.CounterValue, float64(s.EventsReceived))
	ch <- prometheus.MustNewConstMetric(c.eventsImm, prometheus.CounterValue, float64(s.EventsImmediate))
	ch <- prometheus.MustNewConstMetric(c.lastUpdateUnix, prometheus.GaugeValue, float64(s.LastUpdate.Unix()))
	ch <- prometheus.MustNewConstMetric(c.batchFlushes, prometheus.CounterValue, float64(s.Batcher.Flushes))
	ch <- prometheus.MustNewConstMetric(c.batchQueued, prometheus.CounterValue, float64(s.Batcher.EventsQueued))
}

// RegisterSyncMetrics registers the sync manager collector.
func RegisterSyncMetrics(reg prometheus.Registerer, fetch SyncStatsFn) error {
	collector := &syncCollector{
		fetch: fetch,
		connected: prometheus.NewDesc(
			"lavpop_syncd_connected",
			"1 if the change feed is connected, otherwise 0",
			nil, nil,
		),
		gaveUp: prometheus.NewDesc(
			"lavpop_syncd_gave_up",
			"1 if automatic retries are exhausted, otherwise 0",
			nil, nil,
		),
		streams: prometheus.NewDesc(
			"lavpop_syncd_streams",
			"Number of managed streams",
			nil, nil,
		),
		attempts: prometheus.NewDesc(
			"lavpop_syncd_retry_attempts",
			"Retry attempts consumed in the current backoff run",
			nil, nil,
		),
		reconnects: prometheus.NewDesc(
			"lavpop_syncd_reconnects_total",
			"Reconnects scheduled since start",
			nil, nil,
		),
		events: prometheus.NewDesc(
			"lavpop_syncd_events_total",
			"Change events received since start",
			nil, nil,
		),
		eventsImm: prometheus.NewDesc(
			"lavpop_syncd_events_immediate_total",
			"Change events dispatched without batching",
			nil, nil,
		),
		lastUpdateUnix: prometheus.NewDesc(
			"lavpop_syncd_last_update_unix",
			"Unix timestamp of the last consumer delivery",
			nil, nil,
		),
		batchFlushes: prometheus.NewDesc(
			"lavpop_syncd_batch_flushes_total",
			"Batch flushes since start",
			nil, nil,
		),
		batchQueued: prometheus.NewDesc(
			"lavpop_syncd_batch_events_total",
			"Change events routed through the batcher",
			nil, nil,
		),
	}
	return reg.Register(collector)
}

// StoreStatsFn returns the current store statistics.
type StoreStatsFn func() store.Stats

type storeCollector struct {
	fetch StoreStatsFn

	refreshes       *prometheus.Desc
	failures        *prometheus.Desc
	cachedRows      *prometheus.Desc
	lastRefreshUnix *prometheus.Desc
}

func (c *storeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.refreshes
	ch <- c.failures
	ch <- c.cachedRows
	ch <- c.lastRefreshUnix
}

func (c *storeCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.fetch()

	ch <- prometheus.MustNewConstMetric(c.refreshes, prometheus.CounterValue, float64(s.Refreshes))
	ch <- prometheus.MustNewConstMetric(c.failures, prometheus.CounterValue, float64(s.Failures))
	ch <- prometheus.MustNewConstMetric(c.cachedRows, prometheus.GaugeValue, float64(s.CachedRows))
	ch <- prometheus.MustNewConstMetric(c.lastRefreshUnix, prometheus.GaugeValue, float64(s.LastRefresh.Unix()))
}

// RegisterStoreMetrics registers the store collector.
func RegisterStoreMetrics(reg prometheus.Registerer, fetch StoreStatsFn) error {
	collector := &storeCollector{
		fetch: fetch,
		refreshes: prometheus.NewDesc(
			"lavpop_syncd_store_refreshes_total",
			"Successful snapshot refreshes since start",
			nil, nil,
		),
		failures: prometheus.NewDesc(
			"lavpop_syncd_store_refresh_failures_total",
			"Failed snapshot refreshes since start",
			nil, nil,
		),
		cachedRows: prometheus.NewDesc(
			"lavpop_syncd_store_cached_rows",
			"Rows currently held in the row cache",
			nil, nil,
		),
		lastRefreshUnix: prometheus.NewDesc(
			"lavpop_syncd_store_last_refresh_unix",
			"Unix timestamp of the last successful refresh",
			nil, nil,
		),
	}
	return reg.Register(collector)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
