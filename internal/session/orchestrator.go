package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/stillpoint/stillpoint/internal/audio"
	"github.com/stillpoint/stillpoint/internal/coach"
)

// Orchestrator is the top-level session state machine. It exclusively owns
// the session's phase and identifier, composes the timer, capture pipeline,
// and event stream, and mediates every call to the remote service. All
// mutable state is guarded by one mutex; the completion guard is a flag
// checked and set in a single critical section.
type Orchestrator struct {
	svc      Service
	capture  Capture
	stream   Stream
	timer    Timer
	cache    Cache
	hub      *Hub
	duration time.Duration

	mu         sync.Mutex
	phase      Phase
	sessionID  string
	expiresAt  time.Time
	eventLog   *Log
	local      *coach.Summary
	persisted  *coach.Summary
	lastErr    string
	completing bool
	done       chan struct{}

	// gen identifies the current session instance. Begin and Reset bump it,
	// so a completion sequence still in flight for a superseded instance can
	// recognize that its results no longer belong anywhere.
	gen int
}

// NewOrchestrator wires the orchestrator's collaborators. Any of capture,
// stream, timer, cache, and hub may be nil, which disables that concern.
func NewOrchestrator(svc Service, capture Capture, stream Stream, timer Timer, cache Cache, hub *Hub, duration time.Duration) *Orchestrator {
	return &Orchestrator{
		svc:      svc,
		capture:  capture,
		stream:   stream,
		timer:    timer,
		cache:    cache,
		hub:      hub,
		duration: duration,
		phase:    PhaseIdle,
		eventLog: NewLog(),
	}
}

// Rehydrate adopts the cached summary as the local summary when no summary
// is present in memory yet. It exists to survive an interrupted run
// mid-completion and never overwrites in-memory state.
func (o *Orchestrator) Rehydrate() {
	if o.cache == nil {
		return
	}

	o.mu.Lock()
	occupied := o.local != nil || o.persisted != nil
	o.mu.Unlock()
	if occupied {
		return
	}

	cached, ok, err := o.cache.Load()
	if err != nil {
		log.Printf("rehydrate summary: %v", err)
		return
	}
	if !ok {
		return
	}

	o.mu.Lock()
	if o.local != nil || o.persisted != nil {
		o.mu.Unlock()
		return
	}
	o.local = &cached
	o.mu.Unlock()

	o.broadcastSummary(&cached, OriginLocal)
}

// Begin starts a new session: it clears any prior session's state, issues
// the remote start call, and on success arms the countdown, starts audio
// capture, and opens the event stream. A start or microphone failure
// reverts to idle with the error surfaced.
func (o *Orchestrator) Begin(ctx context.Context) error {
	o.mu.Lock()
	if o.phase == PhaseRunning {
		o.mu.Unlock()
		return ErrSessionActive
	}
	o.phase = PhaseIdle
	o.sessionID = ""
	o.expiresAt = time.Time{}
	o.eventLog = NewLog()
	o.local = nil
	o.persisted = nil
	o.lastErr = ""
	o.completing = false
	o.done = make(chan struct{})
	o.gen++
	o.mu.Unlock()

	start, err := o.svc.StartSession(ctx)
	if err != nil {
		o.mu.Lock()
		o.done = nil
		o.mu.Unlock()
		o.setError(fmt.Sprintf("start session: %v", err))
		return fmt.Errorf("start session: %w", err)
	}

	o.mu.Lock()
	o.sessionID = start.SessionID
	o.expiresAt = start.ExpiresAt
	o.phase = PhaseRunning
	o.mu.Unlock()
	o.broadcastPhase(PhaseRunning)

	if start.InitialPrompt != nil {
		o.Admit(*start.InitialPrompt)
	}

	if o.timer != nil {
		o.timer.Arm(o.duration, func() {
			_ = o.Complete(context.Background())
		})
	}

	if o.capture != nil {
		if err := o.capture.Start(o.uploadChunk); err != nil {
			o.abortBegin()
			o.setError(fmt.Sprintf("start audio capture: %v", err))
			return fmt.Errorf("start audio capture: %w", err)
		}
	}

	if o.stream != nil {
		if err := o.stream.Subscribe(ctx, start.SessionID, o.Admit); err != nil {
			// The session stays usable without live guidance; the stream
			// is not retried.
			log.Printf("subscribe event stream: %v", err)
		}
	}

	return nil
}

// Complete runs the completion sequence at most once per session instance,
// no matter how many times it is triggered: stop capture and stream, enter
// the completed phase, finalize remotely, cache the local summary, then
// fetch the persisted copy. Completion is irreversible even when the
// finalize call fails.
func (o *Orchestrator) Complete(ctx context.Context) error {
	o.mu.Lock()
	if o.phase != PhaseRunning || o.completing {
		o.mu.Unlock()
		return nil
	}
	o.completing = true
	sessionID := o.sessionID
	done := o.done
	gen := o.gen
	o.mu.Unlock()

	if done != nil {
		defer close(done)
	}

	if o.timer != nil {
		o.timer.Disarm()
	}
	if o.capture != nil {
		if err := o.capture.Stop(); err != nil {
			log.Printf("stop audio capture: %v", err)
		}
	}
	if o.stream != nil {
		if err := o.stream.Unsubscribe(); err != nil {
			log.Printf("close event stream: %v", err)
		}
	}

	o.mu.Lock()
	o.phase = PhaseCompleted
	o.mu.Unlock()
	o.broadcastPhase(PhaseCompleted)

	local, err := o.svc.CompleteSession(ctx, sessionID)
	if o.superseded(gen) {
		// A Reset or Begin happened while the call was in flight; the
		// result belongs to a session instance that no longer exists.
		return nil
	}
	if err != nil {
		o.setError(fmt.Sprintf("finalize session: %v", err))
		return fmt.Errorf("finalize session: %w", err)
	}

	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		return nil
	}
	o.local = &local
	o.mu.Unlock()
	o.broadcastSummary(&local, OriginLocal)

	if o.cache != nil {
		if err := o.cache.Save(local); err != nil {
			log.Printf("cache summary: %v", err)
		}
	}

	persisted, err := o.svc.GetSummary(ctx, sessionID)
	if o.superseded(gen) {
		return nil
	}
	if err != nil {
		// Silent fallback: the local summary stays on display.
		log.Printf("fetch persisted summary: %v", err)
		return nil
	}

	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		return nil
	}
	o.persisted = &persisted
	o.mu.Unlock()
	o.broadcastSummary(&persisted, OriginPersisted)

	return nil
}

// superseded reports whether gen no longer identifies the current session
// instance.
func (o *Orchestrator) superseded(gen int) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gen != gen
}

// Reset discards the completed (or never-started) session's local state and
// returns to a fresh idle instance.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.phase == PhaseRunning {
		return ErrSessionActive
	}
	o.phase = PhaseIdle
	o.sessionID = ""
	o.expiresAt = time.Time{}
	o.eventLog = NewLog()
	o.local = nil
	o.persisted = nil
	o.lastErr = ""
	o.completing = false
	o.done = nil
	o.gen++
	return nil
}

// Admit applies the log admission rule to one inbound guidance event:
// duplicates by id are discarded, anything else is inserted in
// creation-time order.
func (o *Orchestrator) Admit(ev coach.GuidanceEvent) {
	o.mu.Lock()
	added := o.eventLog.Admit(ev)
	o.mu.Unlock()

	if added && o.hub != nil {
		o.hub.Broadcast(Change{Kind: ChangeEvent, Event: &ev})
	}
}

// Phase returns the current session phase.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// SessionID returns the current session identifier, empty when idle.
func (o *Orchestrator) SessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessionID
}

// ExpiresAt returns the server-issued expiry timestamp for the session.
func (o *Orchestrator) ExpiresAt() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.expiresAt
}

// Events returns the admitted guidance events in creation-time order.
func (o *Orchestrator) Events() []coach.GuidanceEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.eventLog.Events()
}

// DisplaySummary returns the summary to show: the persisted copy when
// available, otherwise the local one.
func (o *Orchestrator) DisplaySummary() (coach.Summary, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.persisted != nil {
		return *o.persisted, true
	}
	if o.local != nil {
		return *o.local, true
	}
	return coach.Summary{}, false
}

// LastError returns the most recent surfaced error message, empty if none.
func (o *Orchestrator) LastError() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// Done returns a channel closed when the completion sequence for the
// current session instance has finished. Nil before Begin.
func (o *Orchestrator) Done() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.done
}

func (o *Orchestrator) uploadChunk(chunk audio.Chunk) error {
	o.mu.Lock()
	sessionID := o.sessionID
	phase := o.phase
	o.mu.Unlock()

	// Phase has moved on; the chunk's fate no longer matters.
	if sessionID == "" || phase != PhaseRunning {
		return nil
	}

	if err := o.svc.UploadChunk(context.Background(), sessionID, chunk.Seq, chunk.PCM); err != nil {
		return fmt.Errorf("upload chunk %d: %w", chunk.Seq, err)
	}
	return nil
}

// abortBegin unwinds a partially started session back to idle.
func (o *Orchestrator) abortBegin() {
	if o.timer != nil {
		o.timer.Disarm()
	}

	o.mu.Lock()
	o.phase = PhaseIdle
	o.sessionID = ""
	o.expiresAt = time.Time{}
	o.done = nil
	o.mu.Unlock()
	o.broadcastPhase(PhaseIdle)
}

func (o *Orchestrator) setError(msg string) {
	o.mu.Lock()
	o.lastErr = msg
	o.mu.Unlock()

	if o.hub != nil {
		o.hub.Broadcast(Change{Kind: ChangeError, Message: msg})
	}
}

func (o *Orchestrator) broadcastPhase(phase Phase) {
	if o.hub != nil {
		o.hub.Broadcast(Change{Kind: ChangePhase, Phase: phase})
	}
}

func (o *Orchestrator) broadcastSummary(summary *coach.Summary, origin string) {
	if o.hub != nil {
		o.hub.Broadcast(Change{Kind: ChangeSummary, Summary: summary, Origin: origin})
	}
}
