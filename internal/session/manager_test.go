package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/terra-clan/screening-engine/internal/languages"
	"github.com/terra-clan/screening-engine/internal/models"
	"github.com/terra-clan/screening-engine/internal/storage"
)

var errTestMissing = errors.New("test not found")

type fakeBackend struct {
	mu        sync.Mutex
	questions []models.Question
	fetchErr  error
	submitErr error
	score     *models.ScoreResult
	payloads  []*models.SubmissionPayload
}

func (b *fakeBackend) FetchTest(_ context.Context, id string) ([]models.Question, error) {
	if b.fetchErr != nil {
		return nil, b.fetchErr
	}
	return b.questions, nil
}

func (b *fakeBackend) SubmitTest(_ context.Context, p *models.SubmissionPayload) (*models.ScoreResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.payloads = append(b.payloads, p)
	if b.submitErr != nil {
		return nil, b.submitErr
	}
	if b.score != nil {
		r := *b.score
		return &r, nil
	}
	return &models.ScoreResult{Score: 10, MaxScore: 20, Percentage: 50, Status: "Pass"}, nil
}

func (b *fakeBackend) submits() []*models.SubmissionPayload {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*models.SubmissionPayload, len(b.payloads))
	copy(out, b.payloads)
	return out
}

// blockingExecutor holds every run until release is closed or the run
// context ends
type blockingExecutor struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
}

func newBlockingExecutor() *blockingExecutor {
	return &blockingExecutor{release: make(chan struct{})}
}

func (e *blockingExecutor) Run(ctx context.Context, source string, lang *models.Language) *models.ExecutionResult {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	select {
	case <-e.release:
		return &models.ExecutionResult{Status: models.ExecSuccess, Output: "Output:\n" + source}
	case <-ctx.Done():
		return &models.ExecutionResult{Status: models.ExecCanceled}
	}
}

func (e *blockingExecutor) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func fixture() []models.Question {
	return []models.Question{
		{Question: "Which keyword declares a constant?", Options: []string{"var", "const"}, Answer: "const"},
		{Question: "Print Hello, World!", Answer: `console.log("Hello, World!")`},
	}
}

func newTestManager(t *testing.T, cfg Config, backend *fakeBackend, exec Executor) (*Manager, *storage.MemoryRepository) {
	t.Helper()
	repo := storage.NewMemoryRepository()
	m := NewManager(cfg, backend, exec, languages.NewCatalog(), repo)
	t.Cleanup(func() { m.Shutdown(context.Background()) })
	return m, repo
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestAutoSubmitEndToEnd(t *testing.T) {
	backend := &fakeBackend{questions: fixture()}
	m, repo := newTestManager(t, Config{TickInterval: 5 * time.Millisecond}, backend, newBlockingExecutor())
	ctx := context.Background()

	snap, err := m.Start(ctx, "qs-1", 1)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if snap.RemainingSeconds != 60 || snap.State != models.SessionRunning {
		t.Fatalf("unexpected start snapshot %+v", snap)
	}
	if _, err := m.SetAnswer(ctx, snap.Token, 0, "const"); err != nil {
		t.Fatalf("SetAnswer failed: %v", err)
	}

	waitFor(t, func() bool { return len(backend.submits()) == 1 })
	time.Sleep(20 * time.Millisecond)

	subs := backend.submits()
	if len(subs) != 1 {
		t.Fatalf("expected exactly one submission, got %d", len(subs))
	}
	p := subs[0]
	if p.DurationUsed != 60 {
		t.Errorf("expected duration_used 60, got %d", p.DurationUsed)
	}
	if p.QuestionSetID != "qs-1" || len(p.Answers) != 2 || p.Answers[0] != "const" {
		t.Errorf("unexpected payload %+v", p)
	}
	if p.Languages[0] != "javascript" || p.Languages[1] != "javascript" {
		t.Errorf("languages should default to javascript, got %v", p.Languages)
	}
	if p.Answers[1] != `console.log("Hello, World!");` {
		t.Errorf("code answer should hold the starter code, got %q", p.Answers[1])
	}

	got, err := m.Get(ctx, snap.Token)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != models.SessionSubmitted || got.RemainingSeconds != 0 || got.Result == nil {
		t.Errorf("unexpected final snapshot %+v", got)
	}

	resp, err := m.Submit(ctx, snap.Token)
	if err != nil {
		t.Fatalf("manual submit after auto-submit returned error: %v", err)
	}
	if resp.Fired || !resp.Submitted {
		t.Errorf("manual submit after auto-submit must not fire: %+v", resp)
	}
	if len(backend.submits()) != 1 {
		t.Error("manual submit after auto-submit made a second call")
	}

	rec, _ := repo.GetSubmission(ctx, snap.ID)
	if rec == nil || rec.Result == nil || rec.Result.Score != 10 {
		t.Errorf("submission not recorded: %+v", rec)
	}
}

func TestManualSubmit(t *testing.T) {
	backend := &fakeBackend{questions: fixture()}
	m, _ := newTestManager(t, Config{TickInterval: time.Hour}, backend, newBlockingExecutor())
	ctx := context.Background()

	snap, _ := m.Start(ctx, "qs-1", 0)
	if snap.DurationMinutes != 20 || snap.RemainingSeconds != 1200 {
		t.Errorf("expected default 20 minutes, got %d (%ds)", snap.DurationMinutes, snap.RemainingSeconds)
	}

	resp, err := m.Submit(ctx, snap.Token)
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Fired || resp.Result == nil || resp.Result.Status != "Pass" {
		t.Errorf("unexpected submit response %+v", resp)
	}
	if backend.submits()[0].DurationUsed != 0 {
		t.Errorf("expected duration_used 0, got %d", backend.submits()[0].DurationUsed)
	}

	again, _ := m.Submit(ctx, snap.Token)
	if again.Fired || len(backend.submits()) != 1 {
		t.Error("second manual submit must be suppressed")
	}

	if _, err := m.SetAnswer(ctx, snap.Token, 0, "var"); !errors.Is(err, ErrSessionSubmitted) {
		t.Errorf("expected ErrSessionSubmitted, got %v", err)
	}
	if _, err := m.Run(ctx, snap.Token, 1); !errors.Is(err, ErrSessionSubmitted) {
		t.Errorf("expected ErrSessionSubmitted for run, got %v", err)
	}
}

func TestSubmitFailureIsNotRetried(t *testing.T) {
	backend := &fakeBackend{questions: fixture(), submitErr: errors.New("backend down")}
	m, _ := newTestManager(t, Config{TickInterval: time.Hour}, backend, newBlockingExecutor())
	ctx := context.Background()

	snap, _ := m.Start(ctx, "qs-1", 5)
	events, unsubscribe, err := m.Subscribe(snap.Token)
	if err != nil {
		t.Fatal(err)
	}
	defer unsubscribe()

	resp, err := m.Submit(ctx, snap.Token)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Session.SubmitError == "" || resp.Session.State != models.SessionSubmitted {
		t.Errorf("expected submit error on a submitted session, got %+v", resp.Session)
	}

	select {
	case ev := <-events:
		if ev.Type != EventSubmitFailed || ev.Error == "" {
			t.Errorf("expected submit_failed event, got %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no submit_failed event")
	}

	m.Submit(ctx, snap.Token)
	if len(backend.submits()) != 1 {
		t.Errorf("failed submission must not be retried, got %d calls", len(backend.submits()))
	}
}

func TestStartErrors(t *testing.T) {
	ctx := context.Background()

	m, _ := newTestManager(t, Config{}, &fakeBackend{}, newBlockingExecutor())
	if _, err := m.Start(ctx, "qs-1", 10); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("empty test: expected ErrNotConfigured, got %v", err)
	}
	if _, err := m.Start(ctx, "", 10); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("missing id: expected ErrNotConfigured, got %v", err)
	}

	m, _ = newTestManager(t, Config{}, &fakeBackend{questions: fixture()}, newBlockingExecutor())
	if _, err := m.Start(ctx, "qs-1", 181); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("long duration: expected ErrNotConfigured, got %v", err)
	}

	m, _ = newTestManager(t, Config{}, &fakeBackend{fetchErr: errTestMissing}, newBlockingExecutor())
	if _, err := m.Start(ctx, "qs-1", 10); !errors.Is(err, errTestMissing) {
		t.Errorf("expected backend error to pass through, got %v", err)
	}

	if _, err := m.Get(ctx, "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSelectLanguage(t *testing.T) {
	m, _ := newTestManager(t, Config{TickInterval: time.Hour}, &fakeBackend{questions: fixture()}, newBlockingExecutor())
	ctx := context.Background()
	snap, _ := m.Start(ctx, "qs-1", 10)

	m.SetAnswer(ctx, snap.Token, 1, "my code")
	got, err := m.SelectLanguage(ctx, snap.Token, 1, "python")
	if err != nil {
		t.Fatal(err)
	}
	if got.Languages[1] != "python" || got.Answers[1] != `print("Hello, World!")` {
		t.Errorf("language switch should reset the answer, got %q / %q", got.Languages[1], got.Answers[1])
	}

	if _, err := m.SelectLanguage(ctx, snap.Token, 0, "python"); !errors.Is(err, ErrNotCodeQuestion) {
		t.Errorf("expected ErrNotCodeQuestion, got %v", err)
	}
	if _, err := m.SelectLanguage(ctx, snap.Token, 1, "cobol"); !errors.Is(err, ErrUnknownLanguage) {
		t.Errorf("expected ErrUnknownLanguage, got %v", err)
	}
	if _, err := m.SelectLanguage(ctx, snap.Token, 7, "python"); !errors.Is(err, ErrQuestionIndex) {
		t.Errorf("expected ErrQuestionIndex, got %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	exec := newBlockingExecutor()
	m, repo := newTestManager(t, Config{TickInterval: time.Hour}, &fakeBackend{questions: fixture()}, exec)
	ctx := context.Background()
	snap, _ := m.Start(ctx, "qs-1", 10)

	if _, err := m.Run(ctx, snap.Token, 0); !errors.Is(err, ErrNotCodeQuestion) {
		t.Errorf("expected ErrNotCodeQuestion, got %v", err)
	}

	res, err := m.Run(ctx, snap.Token, 1)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != models.ExecRunning || res.Output != "Running code..." {
		t.Errorf("unexpected placeholder %+v", res)
	}

	if _, err := m.Run(ctx, snap.Token, 1); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("expected ErrRunInProgress, got %v", err)
	}

	close(exec.release)
	waitFor(t, func() bool {
		got, _ := m.Get(ctx, snap.Token)
		return got.Runs[1] != nil && !got.Runs[1].Busy
	})

	got, _ := m.Get(ctx, snap.Token)
	if got.Runs[1].Result.Status != models.ExecSuccess {
		t.Errorf("expected success, got %+v", got.Runs[1].Result)
	}

	recs, _ := repo.ListExecutions(ctx, snap.ID)
	if len(recs) != 1 || recs[0].Language != "javascript" {
		t.Errorf("run not recorded: %+v", recs)
	}
}

func TestRunPrecheck(t *testing.T) {
	exec := newBlockingExecutor()
	m, _ := newTestManager(t, Config{TickInterval: time.Hour}, &fakeBackend{questions: fixture()}, exec)
	ctx := context.Background()
	snap, _ := m.Start(ctx, "qs-1", 10)

	m.SelectLanguage(ctx, snap.Token, 1, "html")
	res, err := m.Run(ctx, snap.Token, 1)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != models.ExecUnsupported || res.Output != "Code execution not supported for HTML" {
		t.Errorf("unexpected result %+v", res)
	}

	m.SelectLanguage(ctx, snap.Token, 1, "python")
	m.SetAnswer(ctx, snap.Token, 1, "   ")
	res, _ = m.Run(ctx, snap.Token, 1)
	if res.Status != models.ExecEmptyInput || res.Output != "Please write some code first" {
		t.Errorf("unexpected result %+v", res)
	}

	if exec.count() != 0 {
		t.Errorf("prechecked runs must not reach the executor, got %d", exec.count())
	}
}

func TestStaleRunIsDropped(t *testing.T) {
	exec := newBlockingExecutor()
	m, repo := newTestManager(t, Config{TickInterval: time.Hour}, &fakeBackend{questions: fixture()}, exec)
	ctx := context.Background()
	snap, _ := m.Start(ctx, "qs-1", 10)

	m.Run(ctx, snap.Token, 1)
	m.SelectLanguage(ctx, snap.Token, 1, "python")
	close(exec.release)

	waitFor(t, func() bool {
		got, _ := m.Get(ctx, snap.Token)
		return !got.Runs[1].Busy
	})

	got, _ := m.Get(ctx, snap.Token)
	if got.Runs[1].Result != nil {
		t.Errorf("result of a superseded run must not publish, got %+v", got.Runs[1].Result)
	}
	if recs, _ := repo.ListExecutions(ctx, snap.ID); len(recs) != 0 {
		t.Errorf("stale run must not be recorded, got %d", len(recs))
	}
}

func TestCloseCancelsRun(t *testing.T) {
	exec := newBlockingExecutor()
	m, repo := newTestManager(t, Config{TickInterval: time.Hour}, &fakeBackend{questions: fixture()}, exec)
	ctx := context.Background()
	snap, _ := m.Start(ctx, "qs-1", 10)

	events, _, _ := m.Subscribe(snap.Token)
	m.Run(ctx, snap.Token, 1)
	waitFor(t, func() bool { return exec.count() == 1 })

	if err := m.Close(ctx, snap.Token); err != nil {
		t.Fatal(err)
	}

	var last Event
	for ev := range events {
		last = ev
	}
	if last.Type != EventClosed {
		t.Errorf("expected closed as the final event, got %s", last.Type)
	}

	time.Sleep(20 * time.Millisecond)
	if recs, _ := repo.ListExecutions(ctx, snap.ID); len(recs) != 0 {
		t.Error("canceled run must not be recorded")
	}

	stored, err := m.Get(ctx, snap.Token)
	if err != nil || stored.Token != snap.Token {
		t.Errorf("closed session should be served from the repository: %v", err)
	}
	if _, err := m.Run(ctx, snap.Token, 1); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound after close, got %v", err)
	}
	if err := m.Close(ctx, snap.Token); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("double close should report not found, got %v", err)
	}
}

func TestSweep(t *testing.T) {
	m, _ := newTestManager(t, Config{TickInterval: time.Hour, Retention: time.Millisecond}, &fakeBackend{questions: fixture()}, newBlockingExecutor())
	ctx := context.Background()

	done, _ := m.Start(ctx, "qs-1", 10)
	m.Start(ctx, "qs-1", 10)
	m.Submit(ctx, done.Token)

	time.Sleep(5 * time.Millisecond)
	if n := m.Sweep(ctx); n != 1 {
		t.Errorf("expected one session swept, got %d", n)
	}
	if m.Active() != 1 {
		t.Errorf("expected one live session, got %d", m.Active())
	}
}

func TestListRefreshesLiveSessions(t *testing.T) {
	m, _ := newTestManager(t, Config{TickInterval: time.Hour}, &fakeBackend{questions: fixture()}, newBlockingExecutor())
	ctx := context.Background()

	snap, _ := m.Start(ctx, "qs-1", 10)
	m.Submit(ctx, snap.Token)

	list, err := m.List(ctx, models.SessionFilters{State: models.SessionSubmitted})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Result == nil {
		t.Errorf("unexpected list %+v", list)
	}
}

func TestSubmitFillsScoreFallbacks(t *testing.T) {
	backend := &fakeBackend{questions: fixture(), score: &models.ScoreResult{Score: 5}}
	m, _ := newTestManager(t, Config{TickInterval: time.Hour}, backend, newBlockingExecutor())
	ctx := context.Background()

	snap, _ := m.Start(ctx, "qs-1", 5)
	resp, err := m.Submit(ctx, snap.Token)
	if err != nil {
		t.Fatal(err)
	}
	r := resp.Result
	if r == nil || r.MaxScore != 20 || r.Percentage != 25 || r.Status != "Fail" {
		t.Errorf("expected defaults for two questions, got %+v", r)
	}
}

// gatedRepo blocks saves of running snapshots once armed
type gatedRepo struct {
	*storage.MemoryRepository
	armed   chan struct{}
	blocked chan struct{}
	release chan struct{}
	once    sync.Once
}

func (r *gatedRepo) SaveSession(ctx context.Context, snap *models.Session) error {
	select {
	case <-r.armed:
		if snap.State == models.SessionRunning {
			r.once.Do(func() { close(r.blocked) })
			<-r.release
		}
	default:
	}
	return r.MemoryRepository.SaveSession(ctx, snap)
}

func TestSlowSaveDoesNotOverwriteSubmission(t *testing.T) {
	repo := &gatedRepo{
		MemoryRepository: storage.NewMemoryRepository(),
		armed:            make(chan struct{}),
		blocked:          make(chan struct{}),
		release:          make(chan struct{}),
	}
	backend := &fakeBackend{questions: fixture()}
	m := NewManager(Config{TickInterval: time.Hour}, backend, newBlockingExecutor(), languages.NewCatalog(), repo)
	t.Cleanup(func() { m.Shutdown(context.Background()) })
	ctx := context.Background()

	snap, _ := m.Start(ctx, "qs-1", 5)
	close(repo.armed)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		m.SetAnswer(ctx, snap.Token, 0, "const")
	}()
	<-repo.blocked

	go func() {
		defer wg.Done()
		m.Submit(ctx, snap.Token)
	}()
	waitFor(t, func() bool { return len(backend.submits()) == 1 })
	time.Sleep(20 * time.Millisecond)

	close(repo.release)
	wg.Wait()

	stored, _ := repo.GetSession(ctx, snap.Token)
	if stored == nil || stored.State != models.SessionSubmitted || stored.Result == nil {
		t.Fatalf("stored session lost its submission: %+v", stored)
	}
	if stored.Answers[0] != "const" {
		t.Errorf("stored answers %v", stored.Answers)
	}
}

func TestExecutionsAndSubmission(t *testing.T) {
	exec := newBlockingExecutor()
	close(exec.release)
	m, _ := newTestManager(t, Config{TickInterval: time.Hour}, &fakeBackend{questions: fixture()}, exec)
	ctx := context.Background()

	snap, _ := m.Start(ctx, "qs-1", 5)

	if _, err := m.Submission(ctx, snap.Token); !errors.Is(err, ErrNotSubmitted) {
		t.Errorf("expected ErrNotSubmitted before submit, got %v", err)
	}

	if _, err := m.Run(ctx, snap.Token, 1); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		recs, _ := m.Executions(ctx, snap.Token)
		return len(recs) == 1
	})

	m.Submit(ctx, snap.Token)
	if err := m.Close(ctx, snap.Token); err != nil {
		t.Fatal(err)
	}

	// Closed sessions resolve through the repository
	recs, err := m.Executions(ctx, snap.Token)
	if err != nil || len(recs) != 1 || recs[0].QuestionIndex != 1 {
		t.Errorf("unexpected executions %+v %v", recs, err)
	}
	rec, err := m.Submission(ctx, snap.Token)
	if err != nil || rec.Result == nil || rec.SessionID != snap.ID {
		t.Errorf("unexpected submission %+v %v", rec, err)
	}

	if _, err := m.Executions(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}
