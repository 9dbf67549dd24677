package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/screening-engine/internal/backend"
	"github.com/terra-clan/screening-engine/internal/models"
	"github.com/terra-clan/screening-engine/internal/session"
)

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// errorMapping pairs a domain error with its API answer
type errorMapping struct {
	err     error
	status  int
	code    string
	message string
}

var errorMappings = []errorMapping{
	{session.ErrSessionNotFound, http.StatusNotFound, "session_not_found", "session not found"},
	{session.ErrSessionSubmitted, http.StatusConflict, "session_submitted", "test has already been submitted"},
	{session.ErrRunInProgress, http.StatusConflict, "run_in_progress", "code is already running for this question"},
	{session.ErrNotConfigured, http.StatusUnprocessableEntity, "not_configured", "Test not configured properly."},
	{session.ErrQuestionIndex, http.StatusBadRequest, "invalid_question", "question index out of range"},
	{session.ErrNotCodeQuestion, http.StatusBadRequest, "invalid_question", "question is not a code question"},
	{session.ErrUnknownLanguage, http.StatusBadRequest, "unknown_language", "unknown language"},
	{session.ErrNotSubmitted, http.StatusNotFound, "not_submitted", "session has no submission yet"},
	{backend.ErrTestNotFound, http.StatusNotFound, "test_not_found", "test not found"},
	{backend.ErrTestExpired, http.StatusGone, "test_expired", "test link has expired"},
	{backend.ErrLookupDisabled, http.StatusNotImplemented, "not_implemented", "candidate lookup is not configured"},
}

// respondKnown answers err when it is a known domain error
func respondKnown(w http.ResponseWriter, err error) bool {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		respondError(w, http.StatusBadRequest, "validation_error", verr.Message)
		return true
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			respondError(w, m.status, m.code, m.message)
			return true
		}
	}
	return false
}

// respondFailure answers a failed session operation. action names what
// failed for the log line and message.
func respondFailure(w http.ResponseWriter, action string, err error) {
	if respondKnown(w, err) {
		return
	}
	var aerr *backend.APIError
	if errors.As(err, &aerr) || errors.Is(err, context.DeadlineExceeded) {
		respondBackendFailure(w, action, err)
		return
	}
	slog.Error("request failed", "action", action, "error", err)
	respondError(w, http.StatusInternalServerError, "internal_error", "failed to "+action)
}

// respondBackendFailure answers a failed backend call. Unknown failures
// are terminal for the action and prompt a retry.
func respondBackendFailure(w http.ResponseWriter, action string, err error) {
	if respondKnown(w, err) {
		return
	}
	slog.Error("backend call failed", "action", action, "error", err)
	respondError(w, http.StatusBadGateway, "backend_error", "Failed to "+action+". Please try again.")
}

func indexParam(r *http.Request) (int, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		return 0, false
	}
	return index, true
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

// Language handlers

func (s *Server) handleListLanguages(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.languages.List())
}
