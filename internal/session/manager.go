// Package session runs timed test attempts: the countdown, per-question
// code runs and the single final submission.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/screening-engine/internal/models"
	"github.com/terra-clan/screening-engine/internal/runner"
	"github.com/terra-clan/screening-engine/internal/storage"
)

// Backend fetches tests and grades submissions
type Backend interface {
	FetchTest(ctx context.Context, questionSetID string) ([]models.Question, error)
	SubmitTest(ctx context.Context, payload *models.SubmissionPayload) (*models.ScoreResult, error)
}

// Executor runs candidate code to a terminal result
type Executor interface {
	Run(ctx context.Context, source string, lang *models.Language) *models.ExecutionResult
}

// LanguageTable resolves language values
type LanguageTable interface {
	Get(value string) *models.Language
}

// Config holds manager settings
type Config struct {
	TickInterval    time.Duration
	DefaultDuration int
	SubmitTimeout   time.Duration
	Retention       time.Duration
}

// Manager owns all live sessions
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	cfg     Config
	backend Backend
	exec    Executor
	langs   LanguageTable
	repo    storage.Repository

	ctx    context.Context
	cancel context.CancelFunc
	now    func() time.Time
}

// NewManager creates a session manager
func NewManager(cfg Config, backend Backend, exec Executor, langs LanguageTable, repo storage.Repository) *Manager {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.DefaultDuration == 0 {
		cfg.DefaultDuration = models.DefaultDurationMinutes
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 90 * time.Second
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 30 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		sessions: make(map[string]*Session),
		cfg:      cfg,
		backend:  backend,
		exec:     exec,
		langs:    langs,
		repo:     repo,
		ctx:      ctx,
		cancel:   cancel,
		now:      time.Now,
	}
}

// Start opens a test attempt for a shared test id. A zero duration uses
// the configured default.
func (m *Manager) Start(ctx context.Context, questionSetID string, minutes int) (*models.Session, error) {
	questionSetID = strings.TrimSpace(questionSetID)
	if questionSetID == "" {
		return nil, fmt.Errorf("%w: missing test id", ErrNotConfigured)
	}
	if minutes == 0 {
		minutes = m.cfg.DefaultDuration
	}
	if minutes < models.MinDurationMinutes || minutes > models.MaxDurationMinutes {
		return nil, fmt.Errorf("%w: duration %d minutes", ErrNotConfigured, minutes)
	}

	questions, err := m.backend.FetchTest(ctx, questionSetID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch test: %w", err)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: test has no questions", ErrNotConfigured)
	}

	token, err := models.GenerateSessionToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	sctx, cancel := context.WithCancel(m.ctx)
	now := m.now()
	s := &Session{
		id:            uuid.New().String(),
		token:         token,
		questionSetID: questionSetID,
		questions:     questions,
		minutes:       minutes,
		timer:         NewTimer(),
		answers:       make(map[int]string),
		languages:     make(map[int]string),
		runs:          make(map[int]*runSlot),
		createdAt:     now,
		events:        newHub(),
		ctx:           sctx,
		cancel:        cancel,
	}

	if def := m.langs.Get(models.DefaultLanguage); def != nil {
		for i, q := range questions {
			if q.IsCode() {
				s.languages[i] = def.Value
				s.answers[i] = def.DefaultCode
			}
		}
	}

	if err := s.timer.Start(minutes); err != nil {
		cancel()
		return nil, err
	}
	s.startedAt = &now

	m.mu.Lock()
	m.sessions[token] = s
	m.mu.Unlock()

	s.mu.Lock()
	snap, version := s.capture()
	s.mu.Unlock()
	m.persist(s, snap, version)

	go m.loop(s)

	slog.Info("session started",
		"id", s.id,
		"question_set", questionSetID,
		"questions", len(questions),
		"duration_minutes", minutes,
	)

	return snap, nil
}

// loop drives the countdown until submission or teardown
func (m *Manager) loop(s *Session) {
	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			fire := s.timer.Tick()
			s.events.publish(s.tickEvent(EventTick, m.now()))

			if fire {
				slog.Info("session time is up", "id", s.id)
				m.finalize(s)
				return
			}
			if s.timer.State().IsTerminal() {
				return
			}
		}
	}
}

// finalize sends the one submission of a session. Only the winner of the
// timer's fire guard calls it.
func (m *Manager) finalize(s *Session) {
	now := m.now()

	s.mu.Lock()
	s.submittedAt = &now
	payload := s.payload()
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.SubmitTimeout)
	result, err := m.backend.SubmitTest(ctx, payload)
	cancel()

	rec := &models.SubmissionRecord{
		ID:        uuid.New().String(),
		SessionID: s.id,
		Payload:   payload,
		CreatedAt: now,
	}

	s.mu.Lock()
	if err != nil {
		s.submitErr = err.Error()
		rec.Error = s.submitErr
	} else {
		result.Normalize(len(s.questions))
		s.result = result
		rec.Result = result
	}
	snap, version := s.capture()
	s.mu.Unlock()

	m.persist(s, snap, version)
	m.record(func(ctx context.Context) error { return m.repo.SaveSubmission(ctx, rec) })

	ev := s.tickEvent(EventSubmitted, m.now())
	if err != nil {
		slog.Error("submission failed", "error", err, "id", s.id, "duration_used", payload.DurationUsed)
		ev.Type = EventSubmitFailed
		ev.Error = err.Error()
	} else {
		slog.Info("session submitted",
			"id", s.id,
			"duration_used", payload.DurationUsed,
			"score", result.Score,
			"status", result.EffectiveStatus(),
		)
		ev.Score = result
	}
	s.events.publish(ev)
}

// Get returns a snapshot of a live or stored session
func (m *Manager) Get(ctx context.Context, token string) (*models.Session, error) {
	if s := m.lookup(token); s != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.snapshot(), nil
	}

	snap, err := m.repo.GetSession(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if snap == nil {
		return nil, ErrSessionNotFound
	}
	return snap, nil
}

// List returns sessions from the repository with live sessions
// refreshed
func (m *Manager) List(ctx context.Context, filters models.SessionFilters) ([]*models.Session, error) {
	stored, err := m.repo.ListSessions(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	for i, snap := range stored {
		if s := m.lookup(snap.Token); s != nil {
			s.mu.Lock()
			stored[i] = s.snapshot()
			s.mu.Unlock()
		}
	}
	return stored, nil
}

// SetAnswer stores the answer text of one question
func (m *Manager) SetAnswer(_ context.Context, token string, index int, answer string) (*models.Session, error) {
	s, err := m.live(token)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if err := s.editable(index); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.answers[index] = answer
	snap, version := s.capture()
	s.mu.Unlock()

	m.persist(s, snap, version)
	return snap, nil
}

// SelectLanguage switches the language of a code question. The answer is
// reset to the language's starter code and the output cleared.
func (m *Manager) SelectLanguage(_ context.Context, token string, index int, value string) (*models.Session, error) {
	s, err := m.live(token)
	if err != nil {
		return nil, err
	}

	lang := m.langs.Get(value)
	if lang == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLanguage, value)
	}

	s.mu.Lock()
	if err := s.editable(index); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if !s.questions[index].IsCode() {
		s.mu.Unlock()
		return nil, ErrNotCodeQuestion
	}
	s.languages[index] = lang.Value
	s.answers[index] = lang.DefaultCode
	rs := s.slot(index)
	rs.seq++
	rs.result = nil
	snap, version := s.capture()
	s.mu.Unlock()

	m.persist(s, snap, version)
	return snap, nil
}

// Run starts Run Code for a question and returns the running
// placeholder. Runs that fail the precheck return their terminal result
// directly.
func (m *Manager) Run(_ context.Context, token string, index int) (*models.ExecutionResult, error) {
	s, err := m.live(token)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if err := s.editable(index); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if !s.questions[index].IsCode() {
		s.mu.Unlock()
		return nil, ErrNotCodeQuestion
	}
	rs := s.slot(index)
	if rs.busy {
		s.mu.Unlock()
		return nil, ErrRunInProgress
	}

	source := s.answers[index]
	value := s.languages[index]
	if value == "" {
		value = models.DefaultLanguage
	}
	lang := m.langs.Get(value)

	if res := runner.Precheck(source, lang, value); res != nil {
		rs.seq++
		rs.result = res
		s.mu.Unlock()
		s.events.publish(runEvent(EventRunFinished, index, res, m.now()))
		return res, nil
	}

	placeholder := runner.Placeholder()
	rs.busy = true
	rs.seq++
	seq := rs.seq
	rs.result = placeholder
	s.mu.Unlock()

	s.events.publish(runEvent(EventRunStarted, index, placeholder, m.now()))
	go m.execute(s, index, seq, source, lang)

	return placeholder, nil
}

func (m *Manager) execute(s *Session, index int, seq uint64, source string, lang *models.Language) {
	res := m.exec.Run(s.ctx, source, lang)

	s.mu.Lock()
	rs := s.slot(index)
	rs.busy = false
	current := rs.seq == seq && res.Status != models.ExecCanceled
	if current {
		rs.result = res
	}
	s.mu.Unlock()

	if !current {
		slog.Debug("dropping stale run result", "id", s.id, "question", index, "status", res.Status)
		return
	}

	rec := &models.ExecutionRecord{
		ID:            uuid.New().String(),
		SessionID:     s.id,
		QuestionIndex: index,
		Language:      lang.Value,
		Status:        res.Status,
		Output:        res.Output,
		Token:         res.Token,
		Attempts:      res.Attempts,
		CreatedAt:     m.now(),
	}
	m.record(func(ctx context.Context) error { return m.repo.SaveExecution(ctx, rec) })

	s.events.publish(runEvent(EventRunFinished, index, res, m.now()))
}

// Submit submits a session manually. Submitting an already submitted
// session reports Fired false and is not an error.
func (m *Manager) Submit(_ context.Context, token string) (*models.SubmitResponse, error) {
	s, err := m.live(token)
	if err != nil {
		return nil, err
	}

	fired := s.timer.Submit()
	if fired {
		slog.Info("session submitted manually", "id", s.id)
		m.finalize(s)
	}

	s.mu.Lock()
	snap := s.snapshot()
	s.mu.Unlock()

	return &models.SubmitResponse{
		Submitted: snap.State.IsTerminal(),
		Fired:     fired,
		Result:    snap.Result,
		Session:   snap,
	}, nil
}

// Subscribe streams the events of a live session. The channel is closed
// on teardown; call the returned func to stop listening.
func (m *Manager) Subscribe(token string) (<-chan Event, func(), error) {
	s, err := m.live(token)
	if err != nil {
		return nil, nil, err
	}
	ch, unsubscribe := s.events.subscribe()
	return ch, unsubscribe, nil
}

// Close tears a session down. In-flight runs are canceled and their
// results dropped. Closing does not submit.
func (m *Manager) Close(_ context.Context, token string) error {
	m.mu.Lock()
	s, ok := m.sessions[token]
	delete(m.sessions, token)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	s.cancel()
	snap, version := s.capture()
	s.mu.Unlock()

	m.persist(s, snap, version)
	s.events.close(s.tickEvent(EventClosed, m.now()))

	slog.Info("session closed", "id", s.id, "state", snap.State)
	return nil
}

// Sweep closes sessions submitted longer than the retention window ago.
// It returns the number of sessions closed.
func (m *Manager) Sweep(ctx context.Context) int {
	now := m.now()

	m.mu.RLock()
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.RUnlock()

	closed := 0
	for _, s := range live {
		s.mu.Lock()
		state := s.timer.State()
		submittedAt := s.submittedAt
		s.mu.Unlock()

		if !state.IsTerminal() || submittedAt == nil || now.Sub(*submittedAt) <= m.cfg.Retention {
			continue
		}

		if err := m.Close(ctx, s.token); err != nil {
			continue
		}
		closed++
	}
	return closed
}

// Executions returns the recorded runs of a live or stored session,
// oldest first
func (m *Manager) Executions(ctx context.Context, token string) ([]*models.ExecutionRecord, error) {
	id, err := m.sessionID(ctx, token)
	if err != nil {
		return nil, err
	}
	recs, err := m.repo.ListExecutions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	return recs, nil
}

// Submission returns the recorded submission of a session
func (m *Manager) Submission(ctx context.Context, token string) (*models.SubmissionRecord, error) {
	id, err := m.sessionID(ctx, token)
	if err != nil {
		return nil, err
	}
	rec, err := m.repo.GetSubmission(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	if rec == nil {
		return nil, ErrNotSubmitted
	}
	return rec, nil
}

func (m *Manager) sessionID(ctx context.Context, token string) (string, error) {
	if s := m.lookup(token); s != nil {
		return s.id, nil
	}
	snap, err := m.Get(ctx, token)
	if err != nil {
		return "", err
	}
	return snap.ID, nil
}

// Active returns the number of live sessions
func (m *Manager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown closes every live session
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.RLock()
	tokens := make([]string, 0, len(m.sessions))
	for token := range m.sessions {
		tokens = append(tokens, token)
	}
	m.mu.RUnlock()

	for _, token := range tokens {
		_ = m.Close(ctx, token)
	}
	m.cancel()
}

func (m *Manager) lookup(token string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[token]
}

func (m *Manager) live(token string) (*Session, error) {
	if s := m.lookup(token); s != nil {
		return s, nil
	}
	return nil, ErrSessionNotFound
}

// persist saves snap unless a later snapshot of s was already saved
func (m *Manager) persist(s *Session, snap *models.Session, version uint64) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if version <= s.savedVersion {
		return
	}
	m.record(func(ctx context.Context) error { return m.repo.SaveSession(ctx, snap) })
	s.savedVersion = version
}

func (m *Manager) record(fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		slog.Error("failed to persist session data", "error", err)
	}
}

// editable checks that index can still be changed. Must be called with
// mu held.
func (s *Session) editable(index int) error {
	if s.timer.State().IsTerminal() {
		return ErrSessionSubmitted
	}
	if index < 0 || index >= len(s.questions) {
		return ErrQuestionIndex
	}
	return nil
}

func runEvent(t EventType, index int, res *models.ExecutionResult, now time.Time) Event {
	i := index
	return Event{Type: t, QuestionIndex: &i, Result: res, Time: now}
}
