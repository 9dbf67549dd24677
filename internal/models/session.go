package models

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// SessionState is the timer state of a test attempt
type SessionState string

const (
	SessionUninitialized SessionState = "uninitialized" // Mounted, duration not resolved yet
	SessionRunning       SessionState = "running"       // Timer ticking
	SessionSubmitted     SessionState = "submitted"     // Terminal
)

// IsTerminal returns true if the session accepts no more input
func (s SessionState) IsTerminal() bool {
	return s == SessionSubmitted
}

// Urgency levels shown next to the countdown
const (
	UrgencyNormal   = "normal"
	UrgencyWarning  = "warning"
	UrgencyCritical = "critical"
)

// RunSlot is the Run Code state of one code question
type RunSlot struct {
	Busy   bool             `json:"busy"`
	Result *ExecutionResult `json:"result,omitempty"`
}

// Session is a point-in-time view of a test attempt
type Session struct {
	ID               string           `json:"id"`
	Token            string           `json:"token"`
	QuestionSetID    string           `json:"question_set_id"`
	State            SessionState     `json:"state"`
	Questions        []Question       `json:"questions"`
	DurationMinutes  int              `json:"duration_minutes"`
	RemainingSeconds int              `json:"remaining_seconds"`
	ElapsedSeconds   int              `json:"elapsed_seconds"`
	Clock            string           `json:"clock"`
	Urgency          string           `json:"urgency"`
	TimeBand         string           `json:"time_band"`
	Answers          map[int]string   `json:"answers"`
	Languages        map[int]string   `json:"languages"`
	Runs             map[int]*RunSlot `json:"runs,omitempty"`
	Result           *ScoreResult     `json:"result,omitempty"`
	SubmitError      string           `json:"submit_error,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	StartedAt        *time.Time       `json:"started_at,omitempty"`
	SubmittedAt      *time.Time       `json:"submitted_at,omitempty"`
}

// GenerateSessionToken creates a cryptographically random 48-char hex token
func GenerateSessionToken() (string, error) {
	bytes := make([]byte, 24)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// StartSessionRequest opens a test attempt for a shared test id
type StartSessionRequest struct {
	QuestionSetID string `json:"question_set_id"`
	Duration      int    `json:"duration"` // minutes, 0 means default
}

// AnswerRequest sets the answer text for one question
type AnswerRequest struct {
	Answer string `json:"answer"`
}

// LanguageRequest switches the language of one code question
type LanguageRequest struct {
	Language string `json:"language"`
}

// SubmitResponse is returned by the manual submit endpoint
type SubmitResponse struct {
	Submitted bool         `json:"submitted"`
	Fired     bool         `json:"fired"`
	Result    *ScoreResult `json:"result,omitempty"`
	Session   *Session     `json:"session"`
}

// SubmissionRecord is a stored submission outcome
type SubmissionRecord struct {
	ID        string             `json:"id"`
	SessionID string             `json:"session_id"`
	Payload   *SubmissionPayload `json:"payload"`
	Result    *ScoreResult       `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

// SessionFilters holds filters for listing stored sessions
type SessionFilters struct {
	State         SessionState
	QuestionSetID string
	Limit         int
	Offset        int
}
