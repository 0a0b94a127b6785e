// Package metrics exposes syncd state as Prometheus metrics.
//
// Collectors read live state at scrape time instead of keeping counters in
// step with the sync manager and the store; the sources already track their
// own statistics.
package metrics
