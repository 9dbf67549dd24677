package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/screening-engine/internal/models"
)

// --- Candidate handlers (session token in path) ---

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req models.StartSessionRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if req.QuestionSetID == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "question_set_id is required")
		return
	}

	snap, err := s.sessions.Start(r.Context(), req.QuestionSetID, req.Duration)
	if err != nil {
		respondBackendFailure(w, "load test", err)
		return
	}

	respondJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.sessions.Get(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		respondFailure(w, "get session", err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Close(r.Context(), chi.URLParam(r, "token")); err != nil {
		respondFailure(w, "close session", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "closed",
	})
}

func (s *Server) handleSetAnswer(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_question", "question index must be a non-negative integer")
		return
	}

	var req models.AnswerRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	snap, err := s.sessions.SetAnswer(r.Context(), chi.URLParam(r, "token"), index, req.Answer)
	if err != nil {
		respondFailure(w, "save answer", err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSelectLanguage(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_question", "question index must be a non-negative integer")
		return
	}

	var req models.LanguageRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Language == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "language is required")
		return
	}

	snap, err := s.sessions.SelectLanguage(r.Context(), chi.URLParam(r, "token"), index, req.Language)
	if err != nil {
		respondFailure(w, "select language", err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// handleRunCode answers 202 with the running placeholder. Runs rejected
// by the precheck answer 200 with their final result.
func (s *Server) handleRunCode(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_question", "question index must be a non-negative integer")
		return
	}

	res, err := s.sessions.Run(r.Context(), chi.URLParam(r, "token"), index)
	if err != nil {
		respondFailure(w, "run code", err)
		return
	}

	status := http.StatusAccepted
	if res.Status.IsTerminal() {
		status = http.StatusOK
	}
	respondJSON(w, status, res)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	resp, err := s.sessions.Submit(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		respondFailure(w, "submit test", err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// --- HR handlers (API key auth) ---

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	filters := models.SessionFilters{
		State:         models.SessionState(r.URL.Query().Get("state")),
		QuestionSetID: r.URL.Query().Get("question_set_id"),
		Limit:         queryInt(r, "limit", 50),
		Offset:        queryInt(r, "offset", 0),
	}
	if filters.Limit == 0 || filters.Limit > 200 {
		filters.Limit = 50
	}

	sessions, err := s.sessions.List(r.Context(), filters)
	if err != nil {
		respondFailure(w, "list sessions", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
		"limit":    filters.Limit,
		"offset":   filters.Offset,
	})
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	recs, err := s.sessions.Executions(r.Context(), token)
	if err != nil {
		respondFailure(w, "list executions", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"executions": recs,
		"count":      len(recs),
	})
}

func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	rec, err := s.sessions.Submission(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		respondFailure(w, "get submission", err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}
