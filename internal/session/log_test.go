package session

import (
	"testing"
	"time"

	"github.com/stillpoint/stillpoint/internal/coach"
)

func event(id string, createdAt time.Time) coach.GuidanceEvent {
	return coach.GuidanceEvent{
		ID:        id,
		Kind:      coach.KindPrompt,
		Text:      "prompt " + id,
		CreatedAt: createdAt,
	}
}

func TestLogAdmitDeduplicatesByID(t *testing.T) {
	l := NewLog()
	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	if !l.Admit(event("e1", base)) {
		t.Fatal("first admit should change the log")
	}
	if l.Admit(event("e1", base.Add(time.Minute))) {
		t.Fatal("duplicate id should be discarded")
	}
	if got := l.Len(); got != 1 {
		t.Fatalf("expected 1 event, got %d", got)
	}
}

func TestLogAdmitSortsByCreationTime(t *testing.T) {
	l := NewLog()
	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	l.Admit(event("e3", base.Add(2*time.Second)))
	l.Admit(event("e1", base))
	l.Admit(event("e2", base.Add(time.Second)))

	events := l.Events()
	want := []string{"e1", "e2", "e3"}
	for i, id := range want {
		if events[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, events[i].ID)
		}
	}
}

func TestLogAdmitEarlierArrivalReorders(t *testing.T) {
	// Initial prompt e1, then e2 with an earlier creation time arrives,
	// then e1 is redelivered.
	l := NewLog()
	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	l.Admit(event("e1", base))
	l.Admit(event("e2", base.Add(-time.Second)))

	events := l.Events()
	if events[0].ID != "e2" || events[1].ID != "e1" {
		t.Fatalf("expected [e2 e1], got [%s %s]", events[0].ID, events[1].ID)
	}

	if l.Admit(event("e1", base)) {
		t.Fatal("redelivered e1 should be discarded")
	}
	if got := l.Len(); got != 2 {
		t.Fatalf("expected log unchanged at 2 events, got %d", got)
	}
}

func TestLogAdmitRejectsEmptyID(t *testing.T) {
	l := NewLog()
	if l.Admit(event("", time.Now())) {
		t.Fatal("event without id should be discarded")
	}
}

func TestLogEventsReturnsCopy(t *testing.T) {
	l := NewLog()
	l.Admit(event("e1", time.Now()))

	events := l.Events()
	events[0].ID = "mutated"

	if l.Events()[0].ID != "e1" {
		t.Fatal("mutating the returned slice should not affect the log")
	}
}
