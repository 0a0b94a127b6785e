package feed

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrStaleFeed     = errors.New("feed stale (no ping)")
	ErrAlreadyClosed = errors.New("already closed")
	ErrBadFilter     = errors.New("invalid stream filter")
)

// Status is the lifecycle state reported by a subscription.
type Status string

const (
	StatusConnecting Status = "connecting"
	StatusSubscribed Status = "subscribed"
	StatusErrored    Status = "errored"
	StatusClosed     Status = "closed"
)

// OperationKind is a row-level change kind reported by the feed.
type OperationKind string

const (
	OpInsert OperationKind = "INSERT"
	OpUpdate OperationKind = "UPDATE"
	OpDelete OperationKind = "DELETE"
)

// ChangeEvent is a single row-change notification. Immutable once received.
type ChangeEvent struct {
	ID         uuid.UUID       // Assigned locally on receipt
	Stream     string          // Logical stream the event belongs to
	Kind       OperationKind   // INSERT, UPDATE, DELETE
	Payload    json.RawMessage // Row payload as sent by the provider
	Arrival    int64           // Per-stream arrival counter, starts at 1
	ReceivedAt time.Time       // Local timestamp when the event was decoded
}

// StreamFilter selects which row changes a subscription receives.
type StreamFilter struct {
	Stream string          // Logical stream id (also the wire topic)
	Table  string          // Source table
	Events []OperationKind // Empty = all kinds
}

// StatusFunc receives subscription status transitions.
type StatusFunc func(Status)

// EventFunc receives decoded change events.
type EventFunc func(ChangeEvent)

// Handle is an active subscription. Close sends a best-effort unsubscribe
// and tears down the underlying connection; it returns once torn down.
type Handle interface {
	Close() error
}

// wireCommand is a client → server command.
type wireCommand struct {
	Ref    int64    `json:"ref"`
	Action string   `json:"action"` // "subscribe" or "unsubscribe"
	Topic  string   `json:"topic"`
	Table  string   `json:"table,omitempty"`
	Events []string `json:"events,omitempty"`
}

// wireMessage is a server → client message.
type wireMessage struct {
	Ref     int64           `json:"ref,omitempty"`
	Type    string          `json:"type"` // "subscribed", "unsubscribed", "error", "change"
	Topic   string          `json:"topic,omitempty"`
	Kind    string          `json:"kind,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ClientConfig configures the feed client.
type ClientConfig struct {
	URL              string        // Feed endpoint (ws:// or wss://)
	APIKey           string        // Bearer token; empty = no auth header
	HandshakeTimeout time.Duration // Dial timeout
	WriteTimeout     time.Duration // Write deadline for sends
	PingInterval     time.Duration // Keepalive ping cadence
	PingTimeout      time.Duration // Max time without ping/pong before stale
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      60 * time.Second,
	}
}
