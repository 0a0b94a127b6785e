package sync

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lucaslopezpuerta/LavpopBusinessIntelligence-sub010/internal/feed"
)

// Manager owns one or more independent logical subscriptions against the
// change-feed provider. Provider status transitions drive the retry session
// and the stability timer; change events flow to the consumer handlers,
// batched or immediate per stream.
//
// All state is guarded by mu; waiting happens only in timer callbacks,
// which re-take mu and verify the session generation before acting. Stop
// bumps the generation and stops every timer, so nothing scheduled in an
// old session can touch a new one.
type Manager struct {
	cfg      ManagerConfig
	provider Provider
	session  *RetrySession
	logger   *slog.Logger

	// dispatchMu is read-held around every consumer callback; Stop takes
	// the write side as a barrier so no callback runs after Stop returns.
	dispatchMu sync.RWMutex

	mu           sync.Mutex
	live         bool
	gen          uint64
	intentional  bool // disconnects are expected; suppress retry scheduling
	degradedSent bool
	sessionID    uuid.UUID
	streams      map[string]*streamState
	retryTimers  map[string]*time.Timer
	stability    StabilityTimer
	batcher      *Batcher
	handlers     Handlers
	lastUpdate   time.Time

	reconnects      int64
	eventsReceived  int64
	eventsImmediate int64
}

// streamState tracks one logical subscription.
type streamState struct {
	cfg    StreamConfig
	handle feed.Handle
	status SubscriptionStatus
}

// NewManager creates a manager. The retry session is injected so callers
// and tests control its lifetime explicitly.
func NewManager(cfg ManagerConfig, provider Provider, session *RetrySession, handlers Handlers, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	return &Manager{
		cfg:         cfg,
		provider:    provider,
		session:     session,
		logger:      logger,
		handlers:    handlers,
		streams:     make(map[string]*streamState),
		retryTimers: make(map[string]*time.Timer),
	}
}

// Start opens a subscription per stream config. Idempotent: a stream id
// that is already managed is left alone. Connection failures are not
// returned; they feed the retry scheduler.
func (m *Manager) Start(streams []StreamConfig) error {
	if len(streams) == 0 {
		return ErrNoStreams
	}

	m.mu.Lock()
	if !m.live {
		m.live = true
		m.sessionID = uuid.New()
		m.degradedSent = false
		m.batcher = NewBatcher(m.cfg.BatchWindow, m.deliverBatch)
		m.logger.Info("sync session starting",
			"session", m.sessionID,
			"streams", len(streams),
		)
	}

	gen := m.gen
	var fresh []string
	seen := make(map[string]struct{}, len(streams))
	for _, sc := range streams {
		if sc.ID == "" {
			m.mu.Unlock()
			return ErrEmptyStreamID
		}
		if _, dup := seen[sc.ID]; dup {
			m.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrDuplicateStream, sc.ID)
		}
		seen[sc.ID] = struct{}{}
		if _, exists := m.streams[sc.ID]; exists {
			// Already managed; Start is idempotent per stream id.
			continue
		}
		m.streams[sc.ID] = &streamState{cfg: sc, status: StatusDisconnected}
		fresh = append(fresh, sc.ID)
	}
	m.mu.Unlock()

	for _, id := range fresh {
		m.connect(id, gen)
	}
	return nil
}

// Stop tears down every subscription and cancels all outstanding timers
// (retry, stability, batch flush) before returning. No consumer callback
// fires after Stop returns.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.live {
		m.mu.Unlock()
		return
	}
	m.intentional = true
	m.live = false
	m.gen++

	for id, t := range m.retryTimers {
		t.Stop()
		delete(m.retryTimers, id)
	}
	m.stability.Cancel()

	b := m.batcher
	m.batcher = nil

	handles := make([]feed.Handle, 0, len(m.streams))
	for _, st := range m.streams {
		if st.handle != nil {
			handles = append(handles, st.handle)
		}
		st.status = StatusClosed
	}
	m.streams = make(map[string]*streamState)

	m.session.ClearConnected()
	m.session.Reset()
	sessionID := m.sessionID
	m.mu.Unlock()

	if b != nil {
		b.Stop()
	}
	for _, h := range handles {
		h.Close()
	}

	// Barrier: wait out consumer callbacks already in flight.
	m.dispatchMu.Lock()
	m.dispatchMu.Unlock() //nolint:staticcheck // empty critical section is the barrier

	m.mu.Lock()
	m.intentional = false
	m.mu.Unlock()

	m.logger.Info("sync session stopped", "session", sessionID)
}

// SetHandlers swaps the consumer callback set. Deliveries already scheduled
// pick up the new handlers: the manager reads the current set at dispatch
// time rather than capturing it.
func (m *Manager) SetHandlers(h Handlers) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = h
}

// BindVisibility subscribes the manager to foreground-regain notifications.
func (m *Manager) BindVisibility(src VisibilitySource) (cancel func()) {
	return src.Watch(func(visible bool) {
		if visible {
			m.VisibilityRegained()
		}
	})
}

// VisibilityRegained handles the host surface coming back to the
// foreground. Background suspension may have severed the transport without
// a clean status, so the retry state is reset unconditionally; if nothing
// is connected, pending backoff waits are cancelled and reconnection starts
// immediately.
func (m *Manager) VisibilityRegained() {
	m.mu.Lock()
	if !m.live {
		m.mu.Unlock()
		return
	}

	m.session.Reset()
	m.degradedSent = false

	if _, connected := m.session.ConnectedAt(); connected {
		m.mu.Unlock()
		return
	}

	m.logger.Info("visibility regained while disconnected, reconnecting now")
	for id, t := range m.retryTimers {
		t.Stop()
		delete(m.retryTimers, id)
	}

	gen := m.gen
	var ids []string
	for id, st := range m.streams {
		if st.status != StatusSubscribed && st.status != StatusConnecting {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.connect(id, gen)
	}
}

// IsConnected reports whether the feed is currently up.
func (m *Manager) IsConnected() bool {
	_, ok := m.session.ConnectedAt()
	return ok
}

// GaveUp reports whether automatic retries have been exhausted.
func (m *Manager) GaveUp() bool {
	return m.session.GaveUp()
}

// LastUpdate returns when a consumer delivery last happened.
func (m *Manager) LastUpdate() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastUpdate
}

// StreamStatus returns the current status of one stream.
func (m *Manager) StreamStatus(id string) (SubscriptionStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.streams[id]
	if !ok {
		return StatusDisconnected, false
	}
	return st.status, true
}

// Stats returns current statistics.
func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := ManagerStats{
		GaveUp:              m.session.GaveUp(),
		Streams:             len(m.streams),
		Attempts:            m.session.Attempts(),
		ReconnectsScheduled: m.reconnects,
		EventsReceived:      m.eventsReceived,
		EventsImmediate:     m.eventsImmediate,
		LastUpdate:          m.lastUpdate,
	}
	_, stats.Connected = m.session.ConnectedAt()
	if m.batcher != nil {
		stats.Batcher = m.batcher.Stats()
	}
	return stats
}

// connect opens (or reopens) one subscription. gen pins the session: a
// connect scheduled before Stop is a no-op afterwards.
func (m *Manager) connect(id string, gen uint64) {
	m.mu.Lock()
	st := m.streams[id]
	if st == nil || !m.live || m.gen != gen {
		m.mu.Unlock()
		return
	}
	// A newer path (visibility regain vs. a retry timer already in
	// flight) may have connected first.
	if st.status == StatusConnecting || st.status == StatusSubscribed {
		m.mu.Unlock()
		return
	}

	old := st.handle
	st.handle = nil
	st.status = StatusConnecting
	filter := feed.StreamFilter{
		Stream: st.cfg.ID,
		Table:  st.cfg.Table,
		Events: st.cfg.Events,
	}
	m.mu.Unlock()

	if old != nil {
		old.Close()
	}

	handle, err := m.provider.Subscribe(filter,
		func(s feed.Status) { m.onStatus(id, gen, s) },
		func(ev feed.ChangeEvent) { m.onEvent(id, gen, ev) },
	)

	m.mu.Lock()
	st = m.streams[id]
	if st == nil || !m.live || m.gen != gen {
		m.mu.Unlock()
		if handle != nil {
			handle.Close()
		}
		return
	}

	if err != nil {
		m.logger.Warn("subscribe failed", "stream", id, "error", err)
		st.status = StatusErrored
		post := m.scheduleRetryLocked(id)
		m.mu.Unlock()
		post()
		return
	}

	st.handle = handle
	m.mu.Unlock()
}

// onStatus translates provider status transitions into retry and stability
// decisions.
func (m *Manager) onStatus(id string, gen uint64, status feed.Status) {
	m.mu.Lock()
	if !m.live || m.gen != gen {
		m.mu.Unlock()
		return
	}
	st := m.streams[id]
	if st == nil {
		m.mu.Unlock()
		return
	}

	post := func() {}

	switch status {
	case feed.StatusConnecting:
		st.status = StatusConnecting

	case feed.StatusSubscribed:
		st.status = StatusSubscribed
		m.session.MarkConnected(time.Now())
		m.armStabilityLocked()
		m.logger.Info("stream subscribed", "stream", id)

	case feed.StatusErrored, feed.StatusClosed:
		if st.status == StatusErrored || st.status == StatusClosed || st.status == StatusDisconnected {
			// Duplicate terminal status; a retry already owns this stream.
			m.mu.Unlock()
			return
		}
		if status == feed.StatusErrored {
			st.status = StatusErrored
		} else {
			st.status = StatusClosed
		}
		st.handle = nil

		m.session.ClearConnected()
		m.stability.Cancel()

		if m.intentional {
			m.logger.Debug("stream closed intentionally", "stream", id)
		} else if m.session.GaveUp() {
			m.logger.Debug("stream down, retries exhausted", "stream", id)
		} else {
			m.logger.Warn("stream down", "stream", id, "status", status)
			post = m.scheduleRetryLocked(id)
		}
	}
	m.mu.Unlock()
	post()
}

// armStabilityLocked (re)starts the probation window. Requires mu.
func (m *Manager) armStabilityLocked() {
	gen := m.gen
	m.stability.Arm(m.cfg.StabilityThreshold, func() { m.onStable(gen) })
}

// onStable fires when a connection has stayed up for the full stability
// threshold: the connection is trusted and backoff starts over.
func (m *Manager) onStable(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.live || m.gen != gen {
		return
	}
	if _, connected := m.session.ConnectedAt(); !connected {
		return
	}
	m.session.Reset()
	m.degradedSent = false
	m.logger.Info("connection stable, backoff reset",
		"threshold", m.cfg.StabilityThreshold,
	)
}

// scheduleRetryLocked consumes a retry attempt and arms the reconnect
// timer, or flips into the give-up state when the budget is spent. Requires
// mu; the returned func must run after unlocking (it may dispatch the
// degraded signal to the consumer).
func (m *Manager) scheduleRetryLocked(id string) (post func()) {
	delay, ok := m.session.Next()
	if !ok {
		m.logger.Error("retry budget exhausted, giving up",
			"stream", id,
			"max_attempts", m.cfg.MaxAttempts,
		)
		if !m.degradedSent {
			m.degradedSent = true
			return m.dispatchDegraded
		}
		return func() {}
	}

	m.reconnects++
	gen := m.gen
	if t, exists := m.retryTimers[id]; exists {
		t.Stop()
	}
	m.retryTimers[id] = time.AfterFunc(delay, func() { m.retryFire(id, gen) })

	m.logger.Info("reconnect scheduled",
		"stream", id,
		"delay", delay,
		"attempt", m.session.Attempts(),
	)
	return func() {}
}

// retryFire runs when a backoff delay elapses.
func (m *Manager) retryFire(id string, gen uint64) {
	m.mu.Lock()
	if !m.live || m.gen != gen {
		m.mu.Unlock()
		return
	}
	delete(m.retryTimers, id)
	m.mu.Unlock()

	m.connect(id, gen)
}

// onEvent routes one change event: immediate streams dispatch right away,
// everything else goes through the batcher.
func (m *Manager) onEvent(id string, gen uint64, ev feed.ChangeEvent) {
	m.mu.Lock()
	if !m.live || m.gen != gen {
		m.mu.Unlock()
		return
	}
	st := m.streams[id]
	if st == nil {
		m.mu.Unlock()
		return
	}

	m.eventsReceived++
	if !st.cfg.Immediate {
		b := m.batcher
		m.mu.Unlock()
		b.Enqueue(ev)
		return
	}

	m.eventsImmediate++
	m.mu.Unlock()
	m.dispatchEvent(ev)
}

// deliverBatch is the batcher's delivery target.
func (m *Manager) deliverBatch(stream string, events []feed.ChangeEvent) {
	m.dispatchMu.RLock()
	defer m.dispatchMu.RUnlock()

	m.mu.Lock()
	if !m.live {
		m.mu.Unlock()
		return
	}
	m.lastUpdate = time.Now()
	h := m.handlers
	m.mu.Unlock()

	if h.OnBatch != nil {
		h.OnBatch(stream, events)
	}
}

func (m *Manager) dispatchEvent(ev feed.ChangeEvent) {
	m.dispatchMu.RLock()
	defer m.dispatchMu.RUnlock()

	m.mu.Lock()
	if !m.live {
		m.mu.Unlock()
		return
	}
	m.lastUpdate = time.Now()
	h := m.handlers
	m.mu.Unlock()

	if h.OnEvent != nil {
		h.OnEvent(ev)
	}
}

func (m *Manager) dispatchDegraded() {
	m.dispatchMu.RLock()
	defer m.dispatchMu.RUnlock()

	m.mu.Lock()
	if !m.live {
		m.mu.Unlock()
		return
	}
	h := m.handlers
	m.mu.Unlock()

	if h.OnDegraded != nil {
		h.OnDegraded()
	}
}

// String identifies the manager in logs.
func (m *Manager) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("sync.Manager(session=%s, streams=%d)", m.sessionID, len(m.streams))
}
