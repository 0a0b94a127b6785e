package sync

import (
	"sync"
	"time"
)

// RetrySession tracks reconnection backoff for one manager session. It is an
// explicit object rather than package state so tests and multiple managers
// can each own an independent session.
type RetrySession struct {
	mu          sync.Mutex
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int

	attempts    int
	gaveUp      bool
	connectedAt time.Time // zero while disconnected
}

// NewRetrySession creates a session with the given backoff parameters.
func NewRetrySession(baseDelay, maxDelay time.Duration, maxAttempts int) *RetrySession {
	return &RetrySession{
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		maxAttempts: maxAttempts,
	}
}

// Next returns the delay before the next reconnect attempt and consumes one
// attempt. ok is false once the budget is exhausted; the session is then in
// the give-up state until Reset, and further calls keep returning false.
func (s *RetrySession) Next() (delay time.Duration, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gaveUp {
		return 0, false
	}
	if s.attempts >= s.maxAttempts {
		s.gaveUp = true
		return 0, false
	}

	delay = s.maxDelay
	if s.attempts < 62 {
		if d := s.baseDelay << uint(s.attempts); d < s.maxDelay {
			delay = d
		}
	}
	s.attempts++
	return delay, true
}

// Reset clears the attempt counter and the give-up state.
func (s *RetrySession) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = 0
	s.gaveUp = false
}

// GaveUp reports whether the retry budget has been exhausted.
func (s *RetrySession) GaveUp() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gaveUp
}

// Attempts returns the number of reconnects scheduled since the last reset.
func (s *RetrySession) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// MarkConnected records the moment a subscription came up.
func (s *RetrySession) MarkConnected(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectedAt = t
}

// ClearConnected wipes the connected timestamp. Called on every
// Errored/Closed transition, even when a reconnect is already scheduled.
func (s *RetrySession) ClearConnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectedAt = time.Time{}
}

// ConnectedAt returns the connected timestamp, if currently connected.
func (s *RetrySession) ConnectedAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectedAt, !s.connectedAt.IsZero()
}
