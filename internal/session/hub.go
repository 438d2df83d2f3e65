package session

import (
	"sync"

	"github.com/stillpoint/stillpoint/internal/coach"
)

// Change kinds published by the Hub.
const (
	ChangePhase   = "phase"
	ChangeEvent   = "event"
	ChangeSummary = "summary"
	ChangeError   = "error"
)

// Summary provenance values carried on summary changes.
const (
	OriginLocal     = "local"
	OriginPersisted = "persisted"
)

// Change is one observable state transition of the orchestrator. The hub
// realizes the observe-and-redraw contract: presentation collaborators
// subscribe and re-render on each change.
type Change struct {
	Kind    string
	Phase   Phase
	Event   *coach.GuidanceEvent
	Summary *coach.Summary
	Origin  string
	Message string
}

type Hub struct {
	mu      sync.RWMutex
	clients map[chan Change]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan Change]struct{})}
}

func (h *Hub) Subscribe() chan Change {
	ch := make(chan Change, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan Change) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

// Broadcast fans the change out to all subscribers. Slow subscribers miss
// changes rather than block the orchestrator.
func (h *Hub) Broadcast(change Change) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- change:
		default:
		}
	}
}
