package sync

import (
	"sync"
	"time"
)

// StabilityTimer waits out a probation period before a connection is trusted
// enough to reset backoff state. Arming it supersedes any previous arm, and
// Cancel guarantees a pending fire never runs late: the generation counter
// invalidates callbacks that were already in flight.
type StabilityTimer struct {
	mu    sync.Mutex
	gen   uint64
	timer *time.Timer
}

// Arm (re)starts the single-shot timer. fire runs after d unless Arm or
// Cancel is called again first.
func (t *StabilityTimer) Arm(d time.Duration, fire func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gen++
	gen := t.gen
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(d, func() {
		t.mu.Lock()
		current := t.gen == gen
		t.mu.Unlock()
		if current {
			fire()
		}
	})
}

// Cancel stops the timer outright. A callback already in flight becomes a
// no-op.
func (t *StabilityTimer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
