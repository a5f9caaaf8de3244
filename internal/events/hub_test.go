package events

import (
	"encoding/json"
	"testing"
)

func TestHubRingKeepsNewest(t *testing.T) {
	h := NewHub(3)
	for i := 0; i < 5; i++ {
		h.Publish("task.started", map[string]any{"n": i})
	}

	snap := h.SnapshotSince(0, "")
	if len(snap) != 3 {
		t.Fatalf("expected 3 buffered events, got %d", len(snap))
	}
	if snap[0].ID != 3 || snap[2].ID != 5 {
		t.Fatalf("unexpected ids: %d..%d", snap[0].ID, snap[2].ID)
	}

	var data map[string]int
	if err := json.Unmarshal(snap[2].Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data["n"] != 4 {
		t.Fatalf("expected newest payload n=4, got %v", data)
	}
}

func TestHubSnapshotSince(t *testing.T) {
	h := NewHub(10)
	h.Publish("a", nil)
	second := h.Publish("b", nil)
	h.Publish("c", nil)

	snap := h.SnapshotSince(second.ID, "")
	if len(snap) != 1 || snap[0].Type != "c" {
		t.Fatalf("expected only event c, got %+v", snap)
	}
	if string(snap[0].Data) != "{}" {
		t.Fatalf("expected empty object payload, got %s", snap[0].Data)
	}
}

func TestHubSubscribe(t *testing.T) {
	h := NewHub(10)
	ch, cancel := h.Subscribe(4)

	h.Publish("task.proved", map[string]string{"task_id": "t1"})
	ev := <-ch
	if ev.Type != "task.proved" {
		t.Fatalf("unexpected event %q", ev.Type)
	}

	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed after cancel")
	}
	// Publishing after cancel must not panic.
	h.Publish("task.proved", nil)
}

func TestHubTypePrefixFilter(t *testing.T) {
	h := NewHub(10)
	h.Publish("task.started", nil)
	h.Publish("report.verification_failed", nil)
	h.Publish("task.proved", nil)

	snap := h.SnapshotSince(0, "task.")
	if len(snap) != 2 || snap[0].Type != "task.started" || snap[1].Type != "task.proved" {
		t.Fatalf("unexpected task events: %+v", snap)
	}
	if got := h.SnapshotSince(0, "report."); len(got) != 1 {
		t.Fatalf("expected one report event, got %d", len(got))
	}
	if h.LastID() != 3 {
		t.Fatalf("LastID() = %d, want 3", h.LastID())
	}
}

func TestHubCountsDroppedDeliveries(t *testing.T) {
	h := NewHub(10)
	_, cancel := h.Subscribe(1)
	defer cancel()

	h.Publish("task.started", nil)
	h.Publish("task.proved", nil)
	h.Publish("task.proved", nil)

	if h.Dropped() != 2 {
		t.Fatalf("Dropped() = %d, want 2", h.Dropped())
	}
}
