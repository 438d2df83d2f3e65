package session

import (
	"sort"

	"github.com/stillpoint/stillpoint/internal/coach"
)

// Log is the in-memory guidance event log for one session. Admission is
// idempotent on event id and the log is kept in ascending creation-time
// order regardless of arrival order. Not safe for concurrent use; the
// orchestrator's lock covers it.
type Log struct {
	events []coach.GuidanceEvent
	ids    map[string]struct{}
}

// NewLog creates an empty event log.
func NewLog() *Log {
	return &Log{ids: make(map[string]struct{})}
}

// Admit inserts ev unless its id is already present. It reports whether the
// log changed. The full log is re-sorted per insertion, which is fine at
// session scale (tens of events, not thousands).
func (l *Log) Admit(ev coach.GuidanceEvent) bool {
	if ev.ID == "" {
		return false
	}
	if _, ok := l.ids[ev.ID]; ok {
		return false
	}

	l.ids[ev.ID] = struct{}{}
	l.events = append(l.events, ev)
	sort.SliceStable(l.events, func(i, j int) bool {
		return l.events[i].CreatedAt.Before(l.events[j].CreatedAt)
	})
	return true
}

// Events returns a copy of the log in creation-time order.
func (l *Log) Events() []coach.GuidanceEvent {
	return append([]coach.GuidanceEvent(nil), l.events...)
}

// Len returns the number of admitted events.
func (l *Log) Len() int {
	return len(l.events)
}
