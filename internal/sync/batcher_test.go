package sync

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lucaslopezpuerta/LavpopBusinessIntelligence-sub010/internal/feed"
)

type delivery struct {
	stream string
	events []feed.ChangeEvent
}

// collectDeliveries returns a deliver func plus accessors for what arrived.
func collectDeliveries() (func(string, []feed.ChangeEvent), func() []delivery) {
	var mu sync.Mutex
	var got []delivery

	deliver := func(stream string, events []feed.ChangeEvent) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, delivery{stream: stream, events: events})
	}
	snapshot := func() []delivery {
		mu.Lock()
		defer mu.Unlock()
		out := make([]delivery, len(got))
		copy(out, got)
		return out
	}
	return deliver, snapshot
}

func testEvent(stream string, arrival int64) feed.ChangeEvent {
	return feed.ChangeEvent{
		ID:         uuid.New(),
		Stream:     stream,
		Kind:       feed.OpInsert,
		Payload:    json.RawMessage(`{}`),
		Arrival:    arrival,
		ReceivedAt: time.Now(),
	}
}

func TestBatcher_SingleFlushInOrder(t *testing.T) {
	deliver, snapshot := collectDeliveries()
	b := NewBatcher(60*time.Millisecond, deliver)
	defer b.Stop()

	for i := int64(1); i <= 4; i++ {
		b.Enqueue(testEvent("transactions", i))
	}

	time.Sleep(300 * time.Millisecond)

	got := snapshot()
	if len(got) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(got))
	}
	if got[0].stream != "transactions" {
		t.Errorf("stream = %q, want %q", got[0].stream, "transactions")
	}
	if len(got[0].events) != 4 {
		t.Fatalf("len(events) = %d, want 4", len(got[0].events))
	}
	for i, ev := range got[0].events {
		if ev.Arrival != int64(i+1) {
			t.Errorf("events[%d].Arrival = %d, want %d", i, ev.Arrival, i+1)
		}
	}
}

func TestBatcher_EnqueueExtendsWindow(t *testing.T) {
	deliver, snapshot := collectDeliveries()
	b := NewBatcher(200*time.Millisecond, deliver)
	defer b.Stop()

	// Events at t=0, t=60ms, t=120ms: each enqueue restarts the idle
	// window, so nothing may flush before t=320ms.
	b.Enqueue(testEvent("transactions", 1))
	time.Sleep(60 * time.Millisecond)
	b.Enqueue(testEvent("transactions", 2))
	time.Sleep(60 * time.Millisecond)
	b.Enqueue(testEvent("transactions", 3))

	time.Sleep(60 * time.Millisecond) // t≈180ms, window still open
	if got := snapshot(); len(got) != 0 {
		t.Fatalf("flush happened before the idle window elapsed: %d deliveries", len(got))
	}

	time.Sleep(500 * time.Millisecond)

	got := snapshot()
	if len(got) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(got))
	}
	if len(got[0].events) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(got[0].events))
	}
	for i, ev := range got[0].events {
		if ev.Arrival != int64(i+1) {
			t.Errorf("events[%d].Arrival = %d, want %d", i, ev.Arrival, i+1)
		}
	}
}

func TestBatcher_PerStreamQueues(t *testing.T) {
	deliver, snapshot := collectDeliveries()
	b := NewBatcher(60*time.Millisecond, deliver)
	defer b.Stop()

	b.Enqueue(testEvent("transactions", 1))
	b.Enqueue(testEvent("customers", 1))
	b.Enqueue(testEvent("transactions", 2))

	time.Sleep(300 * time.Millisecond)

	got := snapshot()
	if len(got) != 2 {
		t.Fatalf("deliveries = %d, want 2", len(got))
	}
	byStream := map[string]int{}
	for _, d := range got {
		byStream[d.stream] = len(d.events)
	}
	if byStream["transactions"] != 2 {
		t.Errorf("transactions events = %d, want 2", byStream["transactions"])
	}
	if byStream["customers"] != 1 {
		t.Errorf("customers events = %d, want 1", byStream["customers"])
	}
}

func TestBatcher_StopCancelsPendingFlush(t *testing.T) {
	deliver, snapshot := collectDeliveries()
	b := NewBatcher(60*time.Millisecond, deliver)

	b.Enqueue(testEvent("transactions", 1))
	b.Stop()

	time.Sleep(300 * time.Millisecond)

	if got := snapshot(); len(got) != 0 {
		t.Errorf("deliveries after Stop = %d, want 0", len(got))
	}

	// Enqueue after Stop is a no-op.
	b.Enqueue(testEvent("transactions", 2))
	if stats := b.Stats(); stats.PendingStreams != 0 {
		t.Errorf("PendingStreams after Stop = %d, want 0", stats.PendingStreams)
	}
}

func TestBatcher_Stats(t *testing.T) {
	deliver, _ := collectDeliveries()
	b := NewBatcher(40*time.Millisecond, deliver)
	defer b.Stop()

	if _, ok := b.LastFlush(); ok {
		t.Error("LastFlush() reports a flush before any delivery")
	}

	b.Enqueue(testEvent("transactions", 1))
	b.Enqueue(testEvent("transactions", 2))

	time.Sleep(250 * time.Millisecond)

	stats := b.Stats()
	if stats.EventsQueued != 2 {
		t.Errorf("EventsQueued = %d, want 2", stats.EventsQueued)
	}
	if stats.Flushes != 1 {
		t.Errorf("Flushes = %d, want 1", stats.Flushes)
	}
	if stats.PendingStreams != 0 {
		t.Errorf("PendingStreams = %d, want 0", stats.PendingStreams)
	}
	if _, ok := b.LastFlush(); !ok {
		t.Error("LastFlush() reports no flush after delivery")
	}
}
