package session

import "errors"

// Common errors
var (
	ErrNotConfigured    = errors.New("test is not configured")
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionSubmitted = errors.New("session is already submitted")
	ErrRunInProgress    = errors.New("code is already running for this question")
	ErrNotCodeQuestion  = errors.New("question is not a code question")
	ErrQuestionIndex    = errors.New("question index out of range")
	ErrUnknownLanguage  = errors.New("unknown language")
	ErrNotSubmitted     = errors.New("session has no submission")
)
