// Package coach defines the domain types shared by the session
// orchestrator, the remote service client, and the event stream.
package coach

import "time"

// Kind distinguishes the two sides of a guidance exchange.
type Kind string

const (
	KindPrompt   Kind = "prompt"
	KindResponse Kind = "response"
)

// GuidanceEvent is a single prompt or response item in a session's
// timeline. IDs are issued by the service and unique within a session.
type GuidanceEvent struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Text      string    `json:"text"`
	AudioRef  string    `json:"audioRef,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Summary is the journal produced when a session is finalized: a
// narrative entry plus ordered improvement tips.
type Summary struct {
	Entry       string    `json:"summary"`
	Tips        []string  `json:"tips"`
	GeneratedAt time.Time `json:"generatedAt"`
}
