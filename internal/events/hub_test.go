package events

import (
	"encoding/json"
	"testing"
)

func TestHubFanOutAndDrop(t *testing.T) {
	h := NewHub()
	a := h.Subscribe()
	b := h.Subscribe()

	h.Publish("one")
	if got := <-a; got != "one" {
		t.Fatalf("a got %q", got)
	}
	if got := <-b; got != "one" {
		t.Fatalf("b got %q", got)
	}

	// fill b's buffer; extra events are dropped, not blocked on
	for i := 0; i < cap(b)+3; i++ {
		h.Publish("x")
		<-a
	}
	if _, dropped := h.Stats(); dropped != 3 {
		t.Fatalf("dropped = %d", dropped)
	}

	h.Unsubscribe(b)
	h.Unsubscribe(b) // second call is a no-op
	if clients, _ := h.Stats(); clients != 1 {
		t.Fatalf("clients = %d", clients)
	}
	h.Unsubscribe(a)
}

func TestMakeEvent(t *testing.T) {
	raw := MakeEvent("req-1", TypeSourceSynced, 1, SourceSynced{SourceID: 3, Success: true, Added: 2})
	var e Event
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if e.Type != TypeSourceSynced || e.RequestID != "req-1" || e.At.IsZero() {
		t.Fatalf("event %+v", e)
	}
	var data SourceSynced
	if err := json.Unmarshal(e.Data, &data); err != nil || data.SourceID != 3 || data.Added != 2 {
		t.Fatalf("data %+v err=%v", data, err)
	}
	if e := MakeEvent("", TypePing, 1, nil); len(e) == 0 {
		t.Fatal("empty ping")
	}
}
