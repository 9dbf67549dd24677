package session

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/terra-clan/screening-engine/internal/models"
)

// Timer is the countdown of one test attempt. It fires at most once,
// either when the countdown reaches zero or on a manual submit.
type Timer struct {
	mu        sync.Mutex
	state     models.SessionState
	total     int
	remaining int
	fired     atomic.Bool
}

// NewTimer creates an uninitialized timer
func NewTimer() *Timer {
	return &Timer{state: models.SessionUninitialized}
}

// Start resolves the duration and begins the countdown
func (t *Timer) Start(minutes int) error {
	if minutes < models.MinDurationMinutes || minutes > models.MaxDurationMinutes {
		return fmt.Errorf("%w: duration %d minutes", ErrNotConfigured, minutes)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != models.SessionUninitialized {
		return fmt.Errorf("timer already started")
	}
	t.total = minutes * 60
	t.remaining = t.total
	t.state = models.SessionRunning
	return nil
}

// Tick advances the countdown by one second. It returns true exactly
// once, on the tick that wins submission at zero.
func (t *Timer) Tick() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != models.SessionRunning {
		return false
	}
	if t.remaining > 0 {
		t.remaining--
	}
	if t.remaining > 0 {
		return false
	}
	return t.fire()
}

// Submit requests a manual submission. It returns false if the timer
// already fired or never started.
func (t *Timer) Submit() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != models.SessionRunning {
		return false
	}
	return t.fire()
}

// fire must be called with mu held
func (t *Timer) fire() bool {
	if !t.fired.CompareAndSwap(false, true) {
		return false
	}
	t.state = models.SessionSubmitted
	return true
}

// State returns the current timer state
func (t *Timer) State() models.SessionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Remaining returns the seconds left
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Elapsed returns the seconds used so far
func (t *Timer) Elapsed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total - t.remaining
}

// Total returns the full duration in seconds
func (t *Timer) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// Clock renders seconds as MM:SS
func Clock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// Urgency classifies the seconds left
func Urgency(remaining int) string {
	switch {
	case remaining <= 60:
		return models.UrgencyCritical
	case remaining <= 300:
		return models.UrgencyWarning
	}
	return models.UrgencyNormal
}

// TimeBand classifies the share of time left
func TimeBand(remaining, total int) string {
	if total <= 0 {
		return "red"
	}
	pct := float64(remaining) / float64(total) * 100
	switch {
	case pct > 50:
		return "green"
	case pct > 25:
		return "yellow"
	case pct > 10:
		return "orange"
	}
	return "red"
}
