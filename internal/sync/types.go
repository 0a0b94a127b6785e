// Package sync maintains live change-feed subscriptions for the dashboard:
// it owns reconnection backoff, connection-stability confirmation, burst
// coalescing, and recovery after host suspension. Failure never crosses the
// package boundary as an error; consumers observe IsConnected, LastUpdate,
// and the give-up state instead.
package sync

import (
	"errors"
	"time"

	"github.com/lucaslopezpuerta/LavpopBusinessIntelligence-sub010/internal/feed"
)

// Errors returned by Manager.Start for caller mistakes. Connection failures
// are never returned; they feed the retry scheduler.
var (
	ErrNoStreams       = errors.New("no streams configured")
	ErrEmptyStreamID   = errors.New("stream id must not be empty")
	ErrDuplicateStream = errors.New("duplicate stream id")
)

// SubscriptionStatus is the manager-side state of one logical stream.
type SubscriptionStatus string

const (
	StatusDisconnected SubscriptionStatus = "disconnected"
	StatusConnecting   SubscriptionStatus = "connecting"
	StatusSubscribed   SubscriptionStatus = "subscribed"
	StatusErrored      SubscriptionStatus = "errored"
	StatusClosed       SubscriptionStatus = "closed"
)

// Provider is the change-feed collaborator. *feed.Client satisfies it.
type Provider interface {
	Subscribe(filter feed.StreamFilter, onStatus feed.StatusFunc, onEvent feed.EventFunc) (feed.Handle, error)
}

// StreamConfig declares one logical subscription.
type StreamConfig struct {
	ID     string
	Table  string
	Events []feed.OperationKind

	// Immediate streams bypass the batcher: every event is dispatched
	// one-by-one as a freshness signal.
	Immediate bool
}

// Handlers are the consumer callback slots. The manager reads the current
// set at dispatch time, so SetHandlers takes effect even for deliveries
// already scheduled.
type Handlers struct {
	// OnBatch receives one ordered slice per idle window for batched streams.
	OnBatch func(stream string, events []feed.ChangeEvent)

	// OnEvent receives each event of an immediate stream as it arrives.
	OnEvent func(event feed.ChangeEvent)

	// OnDegraded fires once per give-up episode, when the retry budget is
	// exhausted and the dashboard should keep serving cached data.
	OnDegraded func()
}

// ManagerConfig configures the connection manager.
type ManagerConfig struct {
	RetryBaseDelay     time.Duration // First reconnect delay
	RetryMaxDelay      time.Duration // Backoff cap
	MaxAttempts        int           // Retry budget before giving up
	StabilityThreshold time.Duration // Continuous uptime required to reset backoff
	BatchWindow        time.Duration // Idle window for burst coalescing
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		RetryBaseDelay:     1 * time.Second,
		RetryMaxDelay:      30 * time.Second,
		MaxAttempts:        5,
		StabilityThreshold: 5 * time.Second,
		BatchWindow:        300 * time.Millisecond,
	}
}

func (c *ManagerConfig) applyDefaults() {
	def := DefaultManagerConfig()
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = def.RetryBaseDelay
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = def.RetryMaxDelay
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.StabilityThreshold <= 0 {
		c.StabilityThreshold = def.StabilityThreshold
	}
	if c.BatchWindow <= 0 {
		c.BatchWindow = def.BatchWindow
	}
}

// ManagerStats provides a point-in-time view of the manager.
type ManagerStats struct {
	Connected           bool
	GaveUp              bool
	Streams             int
	Attempts            int
	ReconnectsScheduled int64
	EventsReceived      int64
	EventsImmediate     int64
	LastUpdate          time.Time
	Batcher             BatcherStats
}
