package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/terra-clan/screening-engine/internal/backend"
	"github.com/terra-clan/screening-engine/internal/config"
	"github.com/terra-clan/screening-engine/internal/models"
	"github.com/terra-clan/screening-engine/internal/session"
)

// requestTimeout covers the slowest backend call (generation, grading)
const requestTimeout = 120 * time.Second

// Sessions is the session manager surface used by the API
type Sessions interface {
	Start(ctx context.Context, questionSetID string, minutes int) (*models.Session, error)
	Get(ctx context.Context, token string) (*models.Session, error)
	List(ctx context.Context, filters models.SessionFilters) ([]*models.Session, error)
	SetAnswer(ctx context.Context, token string, index int, answer string) (*models.Session, error)
	SelectLanguage(ctx context.Context, token string, index int, value string) (*models.Session, error)
	Run(ctx context.Context, token string, index int) (*models.ExecutionResult, error)
	Submit(ctx context.Context, token string) (*models.SubmitResponse, error)
	Subscribe(token string) (<-chan session.Event, func(), error)
	Close(ctx context.Context, token string) error
	Executions(ctx context.Context, token string) ([]*models.ExecutionRecord, error)
	Submission(ctx context.Context, token string) (*models.SubmissionRecord, error)
	Active() int
}

// Tests is the HR side of the assessment backend
type Tests interface {
	GenerateTest(ctx context.Context, req models.GenerateTestRequest) (*models.GenerateTestResponse, error)
	FinalizeTest(ctx context.Context, req models.FinalizeTestRequest) (*models.FinalizeTestResponse, error)
	ListTests(ctx context.Context) ([]models.QuestionSet, error)
	TestResults(ctx context.Context, questionSetID string) ([]models.TestResult, error)
}

// Languages lists the selectable languages
type Languages interface {
	List() []*models.Language
}

// Pinger is a dependency checked by /ready
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps holds what the server routes to
type Deps struct {
	Sessions   Sessions
	Tests      Tests
	Candidates backend.CandidateLookup
	Languages  Languages
	Clients    ClientStore
	Checks     map[string]Pinger
}

// Server represents the HTTP API server
type Server struct {
	config         config.ServerConfig
	router         *chi.Mux
	sessions       Sessions
	tests          Tests
	candidates     backend.CandidateLookup
	languages      Languages
	checks         map[string]Pinger
	authMiddleware *AuthMiddleware
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	candidates := deps.Candidates
	if candidates == nil {
		candidates = backend.NewCandidateLookup("", "", 0)
	}

	s := &Server{
		config:         cfg,
		sessions:       deps.Sessions,
		tests:          deps.Tests,
		candidates:     candidates,
		languages:      deps.Languages,
		checks:         deps.Checks,
		authMiddleware: NewAuthMiddleware(deps.Clients),
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// The event stream outlives any request timeout
	r.Get("/api/v1/sessions/{token}/events", s.handleSessionEvents)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Get("/health", s.handleHealth)
		r.Get("/ready", s.handleReady)

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/languages", s.handleListLanguages)

			// Candidate routes, authorized by the session token
			r.Post("/sessions", s.handleStartSession)
			r.Route("/sessions/{token}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleCloseSession)
				r.Put("/answers/{index}", s.handleSetAnswer)
				r.Put("/languages/{index}", s.handleSelectLanguage)
				r.Post("/run/{index}", s.handleRunCode)
				r.Post("/submit", s.handleSubmit)

				hr := r.With(s.authMiddleware.Authenticate, s.authMiddleware.RequirePermission("sessions:read"))
				hr.Get("/executions", s.handleListExecutions)
				hr.Get("/submission", s.handleGetSubmission)
			})

			// HR routes
			r.Group(func(r chi.Router) {
				r.Use(s.authMiddleware.Authenticate)

				r.Route("/tests", func(r chi.Router) {
					r.With(s.authMiddleware.RequirePermission("tests:read")).Get("/", s.handleListTests)
					r.With(s.authMiddleware.RequirePermission("tests:write")).Post("/generate", s.handleGenerateTest)
					r.With(s.authMiddleware.RequirePermission("tests:write")).Post("/finalize", s.handleFinalizeTest)
					r.With(s.authMiddleware.RequirePermission("tests:read")).Get("/{id}/results", s.handleTestResults)
				})

				r.With(s.authMiddleware.RequirePermission("candidates:read")).Get("/candidates", s.handleListCandidates)
				r.With(s.authMiddleware.RequirePermission("sessions:read")).Get("/sessions", s.handleListSessions)
			})
		})
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", redactToken(r),
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// redactToken masks the session token in logged paths
func redactToken(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	token := rctx.URLParam("token")
	if token == "" {
		return r.URL.Path
	}
	pattern := rctx.RoutePattern()
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "healthy",
		"active_sessions": s.sessions.Active(),
		"time":            time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	for name, check := range s.checks {
		if err := check.Ping(ctx); err != nil {
			slog.Warn("readiness check failed", "dependency", name, "error", err)
			respondError(w, http.StatusServiceUnavailable, "not_ready", name+" is not ready")
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}
