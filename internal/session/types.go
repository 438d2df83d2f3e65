package session

import (
	"context"
	"time"

	"github.com/stillpoint/stillpoint/internal/api"
	"github.com/stillpoint/stillpoint/internal/audio"
	"github.com/stillpoint/stillpoint/internal/coach"
)

// Phase is the coarse lifecycle state of a session. Transitions are
// monotonic within one session instance: idle, then running, then
// completed. A new session starts a fresh instance.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseRunning   Phase = "running"
	PhaseCompleted Phase = "completed"
)

// Service is the remote coaching service surface the orchestrator consumes.
type Service interface {
	StartSession(ctx context.Context) (api.StartSessionResponse, error)
	CompleteSession(ctx context.Context, sessionID string) (coach.Summary, error)
	GetSummary(ctx context.Context, sessionID string) (coach.Summary, error)
	UploadChunk(ctx context.Context, sessionID string, seq int, pcm []byte) error
}

// Capture produces sequenced audio chunks between Start and Stop.
type Capture interface {
	Start(onChunk func(audio.Chunk) error) error
	Stop() error
}

// Stream delivers server-pushed guidance events for a running session.
type Stream interface {
	Subscribe(ctx context.Context, sessionID string, onEvent func(coach.GuidanceEvent)) error
	Unsubscribe() error
}

// Timer drives timed auto-completion.
type Timer interface {
	Arm(d time.Duration, onExpire func())
	Disarm()
}

// Cache is the durable single-slot summary store used for rehydration.
type Cache interface {
	Save(summary coach.Summary) error
	Load() (coach.Summary, bool, error)
}
