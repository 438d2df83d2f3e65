// Package timer provides the countdown driving timed session completion.
package timer

import (
	"sync"
	"time"
)

// Countdown tracks remaining time for a running session and fires an expiry
// callback exactly once. Remaining time is recomputed from the monotonic
// clock on every frame tick rather than accumulated per tick, so the tick
// interval only bounds callback latency, never accuracy.
type Countdown struct {
	frame time.Duration

	mu        sync.Mutex
	startedAt time.Time
	duration  time.Duration
	stop      chan struct{}
}

// New creates a countdown that re-evaluates remaining time every frame
// interval. A non-positive frame falls back to 100ms.
func New(frame time.Duration) *Countdown {
	if frame <= 0 {
		frame = 100 * time.Millisecond
	}
	return &Countdown{frame: frame}
}

// Arm starts a countdown from duration d. Re-arming supersedes any
// countdown already in flight and resets remaining time to the full
// duration. onExpire is invoked exactly once, when elapsed time reaches d.
func (c *Countdown) Arm(d time.Duration, onExpire func()) {
	c.mu.Lock()
	if c.stop != nil {
		close(c.stop)
	}
	stop := make(chan struct{})
	c.stop = stop
	c.startedAt = time.Now()
	c.duration = d
	c.mu.Unlock()

	go c.run(stop, onExpire)
}

// Disarm cancels the countdown. Disarming before expiry is silent; after
// expiry or on an idle countdown it is a no-op.
func (c *Countdown) Disarm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

// Remaining reports the time left on the armed countdown, zero once it has
// expired or been disarmed.
func (c *Countdown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop == nil {
		return 0
	}
	rem := c.duration - time.Since(c.startedAt)
	if rem < 0 {
		return 0
	}
	return rem
}

func (c *Countdown) run(stop chan struct{}, onExpire func()) {
	ticker := time.NewTicker(c.frame)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.stop != stop {
				// superseded by a re-arm
				c.mu.Unlock()
				return
			}
			if time.Since(c.startedAt) < c.duration {
				c.mu.Unlock()
				continue
			}
			c.stop = nil
			c.mu.Unlock()

			if onExpire != nil {
				onExpire()
			}
			return
		}
	}
}
