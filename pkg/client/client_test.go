package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/terra-clan/screening-engine/internal/api"
	"github.com/terra-clan/screening-engine/internal/config"
	"github.com/terra-clan/screening-engine/internal/languages"
	"github.com/terra-clan/screening-engine/internal/models"
	"github.com/terra-clan/screening-engine/internal/session"
	"github.com/terra-clan/screening-engine/internal/storage"
)

const apiKey = "sk_sdk_0123456789"

type stubBackend struct{}

func (stubBackend) FetchTest(context.Context, string) ([]models.Question, error) {
	return []models.Question{{Question: "Print hello"}}, nil
}

func (stubBackend) SubmitTest(context.Context, *models.SubmissionPayload) (*models.ScoreResult, error) {
	return &models.ScoreResult{Score: 10, MaxScore: 10, Percentage: 100, Status: "Pass"}, nil
}

func (stubBackend) GenerateTest(_ context.Context, req models.GenerateTestRequest) (*models.GenerateTestResponse, error) {
	return &models.GenerateTestResponse{Questions: []models.Question{{Question: req.Topic}}}, nil
}

func (stubBackend) FinalizeTest(context.Context, models.FinalizeTestRequest) (*models.FinalizeTestResponse, error) {
	return &models.FinalizeTestResponse{TestLink: "http://ui/test/t1", TestID: "t1"}, nil
}

func (stubBackend) ListTests(context.Context) ([]models.QuestionSet, error) {
	return []models.QuestionSet{{ID: "t1"}}, nil
}

func (stubBackend) TestResults(_ context.Context, id string) ([]models.TestResult, error) {
	return []models.TestResult{{ID: 7, QuestionSetID: id}}, nil
}

type doneExecutor struct{}

func (doneExecutor) Run(context.Context, string, *models.Language) *models.ExecutionResult {
	return &models.ExecutionResult{Status: models.ExecSuccess, Output: "Output:\nhello"}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	repo := storage.NewMemoryRepository()
	repo.CreateClient(context.Background(), &models.ApiClient{
		Name: "sdk", ApiKey: apiKey, IsActive: true, Permissions: []string{"*"},
	})

	catalog := languages.NewCatalog()
	manager := session.NewManager(session.Config{TickInterval: 10 * time.Millisecond},
		stubBackend{}, doneExecutor{}, catalog, repo)

	srv := api.NewServer(config.ServerConfig{}, api.Deps{
		Sessions:  manager,
		Tests:     stubBackend{},
		Languages: catalog,
		Clients:   repo,
	})

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		manager.Shutdown(context.Background())
	})
	return ts
}

func TestCandidateFlow(t *testing.T) {
	ts := newTestServer(t)
	c := NewClient(ts.URL+"/", "")
	ctx := context.Background()

	if err := c.Health(ctx); err != nil {
		t.Fatalf("health: %v", err)
	}

	snap, err := c.StartSession(ctx, "t1", 2)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if snap.RemainingSeconds != 120 || snap.Token == "" {
		t.Fatalf("unexpected session: %+v", snap)
	}

	frames, err := c.Events(ctx, snap.Token)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	first := <-frames
	if first.Type != "snapshot" {
		t.Errorf("expected snapshot frame, got %q", first.Type)
	}

	if _, err := c.SelectLanguage(ctx, snap.Token, 0, "go"); err != nil {
		t.Fatalf("select language: %v", err)
	}
	if _, err := c.SetAnswer(ctx, snap.Token, 0, "fmt.Println(\"hello\")"); err != nil {
		t.Fatalf("set answer: %v", err)
	}

	res, err := c.RunCode(ctx, snap.Token, 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Status != models.ExecRunning {
		t.Errorf("expected running placeholder, got %s", res.Status)
	}

	resp, err := c.Submit(ctx, snap.Token)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !resp.Fired || resp.Result.Status != "Pass" {
		t.Errorf("unexpected submit response: %+v", resp)
	}

	if err := c.CloseSession(ctx, snap.Token); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Drain until the stream ends
	timeout := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-frames:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("event stream did not end")
		}
	}
}

func TestErrors(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	_, err := NewClient(ts.URL, "").GetSession(ctx, "missing")
	if !IsStatus(err, http.StatusNotFound) {
		t.Fatalf("expected 404, got %v", err)
	}
	apiErr := err.(*APIError)
	if apiErr.Code != "session_not_found" {
		t.Errorf("unexpected code %q", apiErr.Code)
	}

	_, err = NewClient(ts.URL, "sk_bad_key_000").ListTests(ctx)
	if !IsStatus(err, http.StatusUnauthorized) {
		t.Fatalf("expected 401, got %v", err)
	}
	if err.(*APIError).Code != "invalid api key" {
		t.Errorf("auth error not decoded: %v", err)
	}

	if _, err := NewClient(ts.URL, "").Events(ctx, "missing"); !IsStatus(err, http.StatusNotFound) {
		t.Errorf("expected 404 from event stream, got %v", err)
	}
}

func TestHRCalls(t *testing.T) {
	ts := newTestServer(t)
	c := NewClient(ts.URL, apiKey)
	ctx := context.Background()

	gen, err := c.GenerateTest(ctx, models.GenerateTestRequest{Topic: "strings", NumQuestions: 1})
	if err != nil || len(gen.Questions) != 1 {
		t.Fatalf("generate: %v", err)
	}

	fin, err := c.FinalizeTest(ctx, models.FinalizeTestRequest{Questions: gen.Questions, Duration: 30})
	if err != nil || fin.TestID != "t1" {
		t.Fatalf("finalize: %v %+v", err, fin)
	}

	tests, err := c.ListTests(ctx)
	if err != nil || len(tests) != 1 {
		t.Fatalf("list tests: %v", err)
	}

	results, err := c.TestResults(ctx, "t1")
	if err != nil || len(results) != 1 || results[0].QuestionSetID != "t1" {
		t.Fatalf("results: %v %+v", err, results)
	}

	if _, err := c.Candidates(ctx, "42"); !IsStatus(err, http.StatusNotImplemented) {
		t.Errorf("expected 501 for disabled lookup, got %v", err)
	}

	if _, err := c.StartSession(ctx, "t1", 0); err != nil {
		t.Fatal(err)
	}
	list, err := c.ListSessions(ctx, ListOptions{Limit: 10})
	if err != nil || list.Count != 1 {
		t.Fatalf("list sessions: %v %+v", err, list)
	}

	live, _ := c.StartSession(ctx, "t1", 0)
	if _, err := c.Submission(ctx, live.Token); !IsStatus(err, http.StatusNotFound) {
		t.Errorf("expected 404 before submit, got %v", err)
	}
	if _, err := c.Submit(ctx, live.Token); err != nil {
		t.Fatal(err)
	}
	sub, err := c.Submission(ctx, live.Token)
	if err != nil || sub.Result == nil || sub.Result.Status != "Pass" {
		t.Fatalf("submission: %v %+v", err, sub)
	}
	execs, err := c.Executions(ctx, live.Token)
	if err != nil || len(execs) != 0 {
		t.Fatalf("executions: %v %+v", err, execs)
	}

	langs, err := c.ListLanguages(ctx)
	if err != nil || len(langs) == 0 {
		t.Fatalf("languages: %v", err)
	}
}
