// Package feed implements the change-feed client.
//
// The feed client:
//   - Opens one WebSocket connection per logical subscription
//   - Speaks the subscribe/ack/change wire protocol
//   - Reports lifecycle through status callbacks (terminal status exactly once)
//   - Detects stale connections via ping/pong heartbeats
package feed
