// Package store maintains the dashboard's local view of the business data.
//
// The store:
//   - Connects to PostgreSQL (transactions, customers, upload_history)
//   - Recomputes dashboard aggregates when change batches arrive
//   - Coalesces concurrent refresh triggers into a single query round
//   - Keeps a bounded TTL cache of recently changed rows
package store
