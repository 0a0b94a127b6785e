package sync

import (
	"sync"
	"time"

	"github.com/lucaslopezpuerta/LavpopBusinessIntelligence-sub010/internal/feed"
)

// Batcher coalesces bursts of change events into one delivery per idle
// window. Each enqueue during the window extends it; when the stream goes
// quiet for a full window the queued events are delivered as one ordered
// slice. A delivery is never empty.
type Batcher struct {
	window  time.Duration
	deliver func(stream string, events []feed.ChangeEvent)

	mu        sync.Mutex
	live      bool
	pending   map[string]*pendingBatch
	lastFlush time.Time

	flushes int64
	queued  int64
}

// pendingBatch exists only while events are queued for a stream.
type pendingBatch struct {
	events []feed.ChangeEvent
	timer  *time.Timer
}

// BatcherStats provides batching counters.
type BatcherStats struct {
	PendingStreams int
	EventsQueued   int64
	Flushes        int64
}

// NewBatcher creates a batcher delivering through the given function.
func NewBatcher(window time.Duration, deliver func(string, []feed.ChangeEvent)) *Batcher {
	return &Batcher{
		window:  window,
		deliver: deliver,
		live:    true,
		pending: make(map[string]*pendingBatch),
	}
}

// Enqueue appends an event to its stream's pending queue and extends the
// idle window.
func (b *Batcher) Enqueue(ev feed.ChangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.live {
		return
	}

	stream := ev.Stream
	pb, ok := b.pending[stream]
	if !ok {
		pb = &pendingBatch{}
		b.pending[stream] = pb
	}
	pb.events = append(pb.events, ev)
	b.queued++

	if pb.timer == nil {
		pb.timer = time.AfterFunc(b.window, func() { b.flush(stream) })
	} else {
		pb.timer.Reset(b.window)
	}
}

// flush delivers the pending queue for one stream. If the entry is gone the
// timer lost a race with a newer flush or Stop, and nothing happens.
func (b *Batcher) flush(stream string) {
	b.mu.Lock()
	pb, ok := b.pending[stream]
	if !ok || !b.live || len(pb.events) == 0 {
		b.mu.Unlock()
		return
	}
	events := pb.events
	delete(b.pending, stream)
	b.lastFlush = time.Now()
	b.flushes++
	b.mu.Unlock()

	b.deliver(stream, events)
}

// Stop cancels every pending flush timer and drops queued events. The
// batcher is single-use; the manager builds a fresh one per session.
func (b *Batcher) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.live = false
	for stream, pb := range b.pending {
		if pb.timer != nil {
			pb.timer.Stop()
		}
		delete(b.pending, stream)
	}
}

// LastFlush returns when the most recent delivery happened.
func (b *Batcher) LastFlush() (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastFlush, !b.lastFlush.IsZero()
}

// Stats returns batching counters.
func (b *Batcher) Stats() BatcherStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BatcherStats{
		PendingStreams: len(b.pending),
		EventsQueued:   b.queued,
		Flushes:        b.flushes,
	}
}
