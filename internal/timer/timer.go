// Package timer provides a restartable countdown used to rate-limit work
// such as retransmissions and deferred replies.
package timer

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Timer reports whether a fixed duration has passed since it was last started
// or reset. It is not safe for concurrent use; the owner serializes access.
type Timer struct {
	clock    clockwork.Clock
	started  time.Time
	duration time.Duration
}

// New returns a timer that starts counting immediately.
func New(clock clockwork.Clock, d time.Duration) *Timer {
	t := &Timer{clock: clock}
	t.Start(d)
	return t
}

// Start restarts the countdown with a new duration.
func (t *Timer) Start(d time.Duration) {
	t.duration = d
	t.started = t.clock.Now()
}

// Reset restarts the countdown keeping the current duration.
func (t *Timer) Reset() {
	t.started = t.clock.Now()
}

// Elapsed reports whether strictly more than the duration has passed.
func (t *Timer) Elapsed() bool {
	return t.clock.Since(t.started) > t.duration
}

// Remaining returns the time left before Elapsed turns true, never negative.
func (t *Timer) Remaining() time.Duration {
	left := t.duration - t.clock.Since(t.started)
	if left < 0 {
		return 0
	}
	return left
}

// Duration returns the configured countdown length.
func (t *Timer) Duration() time.Duration {
	return t.duration
}
