package monitor

import (
	"testing"
	"time"

	"github.com/Dicklesworthstone/owl/internal/status"
)

func TestSnapshotTrackerCountsUnchanged(t *testing.T) {
	tr := newSnapshotTracker(3, time.Minute)
	t0 := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	h := tr.observe("proj:1", "output", status.StateActive, t0)
	if h.unchanged != 0 {
		t.Errorf("first sample unchanged = %d, want 0", h.unchanged)
	}

	h = tr.observe("proj:1", "output", status.StateActive, t0.Add(10*time.Second))
	if h.unchanged != 1 {
		t.Errorf("second identical sample unchanged = %d, want 1", h.unchanged)
	}
	if !h.lastActive.Equal(t0) {
		t.Errorf("lastActive moved on identical content: %v", h.lastActive)
	}

	h = tr.observe("proj:1", "output changed", status.StateActive, t0.Add(20*time.Second))
	if h.unchanged != 0 {
		t.Errorf("changed sample unchanged = %d, want 0", h.unchanged)
	}
	if !h.lastActive.Equal(t0.Add(20 * time.Second)) {
		t.Errorf("lastActive not refreshed on change: %v", h.lastActive)
	}
	if h.velocity == 0 {
		t.Error("expected nonzero velocity on changed content")
	}
}

func TestSnapshotTrackerRingCapped(t *testing.T) {
	tr := newSnapshotTracker(3, time.Minute)
	t0 := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		tr.observe("proj:1", string(rune('a'+i)), status.StateActive, t0.Add(time.Duration(i)*10*time.Second))
	}
	h, ok := tr.history("proj:1")
	if !ok {
		t.Fatal("history missing")
	}
	if len(h.samples) != 3 {
		t.Errorf("ring length = %d, want 3", len(h.samples))
	}
	if h.samples[2] != "e" {
		t.Errorf("newest sample = %q, want %q", h.samples[2], "e")
	}
}

func TestSnapshotTrackerEviction(t *testing.T) {
	tr := newSnapshotTracker(3, time.Minute)
	t0 := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	tr.observe("proj:1", "a", status.StateActive, t0)
	tr.observe("proj:2", "b", status.StateActive, t0)

	// A capture failure keeps the target alive through markSeen.
	tr.markSeen("proj:1", t0.Add(50*time.Second))

	dropped := tr.evict(t0.Add(70 * time.Second))
	if len(dropped) != 1 || dropped[0] != "proj:2" {
		t.Fatalf("evict dropped %v, want [proj:2]", dropped)
	}
	if _, ok := tr.history("proj:1"); !ok {
		t.Error("recently seen target was evicted")
	}
}

func TestChangedChars(t *testing.T) {
	tr := newSnapshotTracker(2, time.Minute)
	if n := changedChars(tr.differ, "hello world", "hello world"); n != 0 {
		t.Errorf("identical content velocity = %d, want 0", n)
	}
	if n := changedChars(tr.differ, "hello world", "hello there world"); n == 0 {
		t.Error("expected nonzero velocity for inserted text")
	}
}
