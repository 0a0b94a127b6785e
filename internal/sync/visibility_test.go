package sync

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestWakeDetector_WatchAndCancel(t *testing.T) {
	d := NewWakeDetector(10*time.Millisecond, 50*time.Millisecond, nil)

	var first, second atomic.Int32
	cancelFirst := d.Watch(func(visible bool) {
		if !visible {
			t.Error("watcher notified with visible=false")
		}
		first.Add(1)
	})
	d.Watch(func(bool) { second.Add(1) })

	d.notify()
	if first.Load() != 1 || second.Load() != 1 {
		t.Fatalf("after notify: first=%d second=%d, want 1/1", first.Load(), second.Load())
	}

	cancelFirst()
	d.notify()
	if got := first.Load(); got != 1 {
		t.Errorf("cancelled watcher notified again: %d calls", got)
	}
	if got := second.Load(); got != 2 {
		t.Errorf("remaining watcher calls = %d, want 2", got)
	}

	// Cancelling twice is harmless.
	cancelFirst()
}

func TestWakeDetector_NoSpuriousNotifyWhileRunning(t *testing.T) {
	d := NewWakeDetector(10*time.Millisecond, 100*time.Millisecond, nil)

	var calls atomic.Int32
	d.Watch(func(bool) { calls.Add(1) })

	d.Start()
	defer d.Stop()

	// Ticks arrive on schedule; none of them should look like a wake-up.
	time.Sleep(150 * time.Millisecond)
	if got := calls.Load(); got != 0 {
		t.Errorf("spurious wake notifications = %d, want 0", got)
	}
}

func TestWakeDetector_StartStopIdempotent(t *testing.T) {
	d := NewWakeDetector(10*time.Millisecond, 50*time.Millisecond, nil)

	d.Start()
	d.Start()
	d.Stop()
	d.Stop()

	// Restart after stop works.
	d.Start()
	d.Stop()
}

func TestWakeDetector_AlwaysVisible(t *testing.T) {
	d := NewWakeDetector(10*time.Millisecond, 50*time.Millisecond, nil)
	if !d.Visible() {
		t.Error("Visible() = false, want true")
	}
}
