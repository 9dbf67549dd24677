package session

import (
	"sync"
	"time"

	"github.com/terra-clan/screening-engine/internal/models"
)

// EventType names a session event
type EventType string

const (
	EventTick         EventType = "tick"
	EventRunStarted   EventType = "run_started"
	EventRunFinished  EventType = "run_finished"
	EventSubmitted    EventType = "submitted"
	EventSubmitFailed EventType = "submit_failed"
	EventClosed       EventType = "closed"
)

// Event is pushed to session subscribers
type Event struct {
	Type             EventType               `json:"type"`
	RemainingSeconds int                     `json:"remaining_seconds"`
	Clock            string                  `json:"clock,omitempty"`
	Urgency          string                  `json:"urgency,omitempty"`
	QuestionIndex    *int                    `json:"question_index,omitempty"`
	Result           *models.ExecutionResult `json:"result,omitempty"`
	Score            *models.ScoreResult     `json:"score,omitempty"`
	Error            string                  `json:"error,omitempty"`
	Time             time.Time               `json:"time"`
}

const subscriberBuffer = 32

// hub fans events out to subscribers. Slow subscribers lose events.
type hub struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[chan Event]struct{})}
}

func (h *hub) subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
}

func (h *hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// close delivers ev and closes every subscriber channel
func (h *hub) close(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
		close(ch)
		delete(h.subs, ch)
	}
}
