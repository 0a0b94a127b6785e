package sync

import (
	"log/slog"
	"sync"
	"time"
)

// VisibilitySource is the host capability for foreground/background
// awareness. The manager only cares about regain transitions; sources that
// cannot observe loss may report regain alone.
type VisibilitySource interface {
	// Visible reports whether the host surface is currently foreground.
	Visible() bool

	// Watch registers fn for visibility transitions and returns a cancel
	// function. fn receives the new state.
	Watch(fn func(visible bool)) (cancel func())
}

// WakeDetector detects host suspension by watching for wall-clock jumps
// across ticker intervals: a process that was frozen (laptop sleep, cgroup
// freeze, VM pause) observes a tick arriving far later than scheduled. The
// transport may have died silently during the gap, so the wake-up is
// reported as a foreground regain.
type WakeDetector struct {
	interval  time.Duration
	threshold time.Duration
	logger    *slog.Logger

	mu       sync.Mutex
	watchers map[int]func(bool)
	nextID   int
	done     chan struct{}
	started  bool
}

// NewWakeDetector creates a detector that samples every interval and treats
// a gap exceeding interval+threshold as a suspension.
func NewWakeDetector(interval, threshold time.Duration, logger *slog.Logger) *WakeDetector {
	if logger == nil {
		logger = slog.Default()
	}
	return &WakeDetector{
		interval:  interval,
		threshold: threshold,
		logger:    logger,
		watchers:  make(map[int]func(bool)),
	}
}

// Start begins sampling. Idempotent.
func (d *WakeDetector) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return
	}
	d.started = true
	d.done = make(chan struct{})
	go d.run(d.done)
}

// Stop halts sampling. Idempotent.
func (d *WakeDetector) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return
	}
	d.started = false
	close(d.done)
}

// Visible always reports true: a running process is foreground by
// definition; only the gap across a suspension is observable.
func (d *WakeDetector) Visible() bool { return true }

// Watch registers fn for wake-up notifications.
func (d *WakeDetector) Watch(fn func(visible bool)) (cancel func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextID
	d.nextID++
	d.watchers[id] = fn

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.watchers, id)
	}
}

func (d *WakeDetector) run(done chan struct{}) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			now := time.Now()
			gap := now.Sub(last)
			last = now

			if gap > d.interval+d.threshold {
				d.logger.Info("host wake detected",
					"gap", gap,
					"interval", d.interval,
				)
				d.notify()
			}
		}
	}
}

func (d *WakeDetector) notify() {
	d.mu.Lock()
	fns := make([]func(bool), 0, len(d.watchers))
	for _, fn := range d.watchers {
		fns = append(fns, fn)
	}
	d.mu.Unlock()

	for _, fn := range fns {
		fn(true)
	}
}
