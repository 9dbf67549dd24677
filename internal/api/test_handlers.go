package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/screening-engine/internal/models"
)

func (s *Server) handleGenerateTest(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateTestRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	req.Normalize()
	if err := req.Validate(); err != nil {
		respondKnown(w, err)
		return
	}

	resp, err := s.tests.GenerateTest(r.Context(), req)
	if err != nil {
		respondBackendFailure(w, "generate test", err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFinalizeTest(w http.ResponseWriter, r *http.Request) {
	var req models.FinalizeTestRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if len(req.Questions) == 0 {
		respondError(w, http.StatusBadRequest, "validation_error", "questions are required")
		return
	}
	if req.Duration == 0 {
		req.Duration = models.DefaultDurationMinutes
	}
	if req.Duration < models.MinDurationMinutes || req.Duration > models.MaxDurationMinutes {
		respondError(w, http.StatusBadRequest, "validation_error", "duration must be between 1 and 180 minutes")
		return
	}
	req.JDID = strings.TrimSpace(req.JDID)

	resp, err := s.tests.FinalizeTest(r.Context(), req)
	if err != nil {
		respondBackendFailure(w, "finalize test", err)
		return
	}

	respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListTests(w http.ResponseWriter, r *http.Request) {
	tests, err := s.tests.ListTests(r.Context())
	if err != nil {
		respondBackendFailure(w, "list tests", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"tests": tests,
		"count": len(tests),
	})
}

func (s *Server) handleTestResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	results, err := s.tests.TestResults(r.Context(), id)
	if err != nil {
		respondBackendFailure(w, "load results", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"question_set_id": id,
		"results":         results,
		"count":           len(results),
	})
}

func (s *Server) handleListCandidates(w http.ResponseWriter, r *http.Request) {
	jdID := strings.TrimSpace(r.URL.Query().Get("jd_id"))
	if jdID == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "jd_id is required")
		return
	}

	candidates, err := s.candidates.Candidates(r.Context(), jdID)
	if err != nil {
		respondBackendFailure(w, "fetch candidates", err)
		return
	}

	respondJSON(w, http.StatusOK, candidates)
}
