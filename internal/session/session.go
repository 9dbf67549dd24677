package session

import (
	"context"
	"sync"
	"time"

	"github.com/terra-clan/screening-engine/internal/models"
)

// runSlot tracks Run Code for one question. seq identifies the run
// allowed to publish into result.
type runSlot struct {
	busy   bool
	seq    uint64
	result *models.ExecutionResult
}

// Session is a live test attempt
type Session struct {
	mu sync.Mutex

	id            string
	token         string
	questionSetID string
	questions     []models.Question
	minutes       int
	timer         *Timer

	answers   map[int]string
	languages map[int]string
	runs      map[int]*runSlot

	result      *models.ScoreResult
	submitErr   string
	createdAt   time.Time
	startedAt   *time.Time
	submittedAt *time.Time

	// version counts snapshots taken for saving. saveMu orders the
	// saves so an older snapshot never overwrites a newer one.
	version      uint64
	saveMu       sync.Mutex
	savedVersion uint64

	events *hub
	ctx    context.Context
	cancel context.CancelFunc
}

func (s *Session) slot(index int) *runSlot {
	rs, ok := s.runs[index]
	if !ok {
		rs = &runSlot{}
		s.runs[index] = rs
	}
	return rs
}

// capture takes a snapshot to save. Must be called with mu held.
func (s *Session) capture() (*models.Session, uint64) {
	s.version++
	return s.snapshot(), s.version
}

// snapshot must be called with mu held
func (s *Session) snapshot() *models.Session {
	remaining := s.timer.Remaining()
	total := s.timer.Total()

	snap := &models.Session{
		ID:               s.id,
		Token:            s.token,
		QuestionSetID:    s.questionSetID,
		State:            s.timer.State(),
		Questions:        s.questions,
		DurationMinutes:  s.minutes,
		RemainingSeconds: remaining,
		ElapsedSeconds:   total - remaining,
		Clock:            Clock(remaining),
		Urgency:          Urgency(remaining),
		TimeBand:         TimeBand(remaining, total),
		Answers:          make(map[int]string, len(s.answers)),
		Languages:        make(map[int]string, len(s.languages)),
		Result:           s.result,
		SubmitError:      s.submitErr,
		CreatedAt:        s.createdAt,
		StartedAt:        s.startedAt,
		SubmittedAt:      s.submittedAt,
	}
	for k, v := range s.answers {
		snap.Answers[k] = v
	}
	for k, v := range s.languages {
		snap.Languages[k] = v
	}
	if len(s.runs) > 0 {
		snap.Runs = make(map[int]*models.RunSlot, len(s.runs))
		for k, rs := range s.runs {
			snap.Runs[k] = &models.RunSlot{Busy: rs.busy, Result: rs.result}
		}
	}
	return snap
}

// payload packages the submission. Must be called with mu held.
func (s *Session) payload() *models.SubmissionPayload {
	p := &models.SubmissionPayload{
		QuestionSetID: s.questionSetID,
		Questions:     make([]models.Question, len(s.questions)),
		Answers:       make([]string, len(s.questions)),
		Languages:     make([]string, len(s.questions)),
		DurationUsed:  s.timer.Elapsed(),
	}
	for i, q := range s.questions {
		p.Questions[i] = models.Question{Question: q.Question, Options: q.Options, Answer: q.Answer}
		p.Answers[i] = s.answers[i]
		if lang, ok := s.languages[i]; ok && lang != "" {
			p.Languages[i] = lang
		} else {
			p.Languages[i] = models.DefaultLanguage
		}
	}
	return p
}

func (s *Session) tickEvent(t EventType, now time.Time) Event {
	remaining := s.timer.Remaining()
	return Event{
		Type:             t,
		RemainingSeconds: remaining,
		Clock:            Clock(remaining),
		Urgency:          Urgency(remaining),
		Time:             now,
	}
}
