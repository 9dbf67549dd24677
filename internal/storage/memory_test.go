package storage

import (
	"context"
	"testing"
	"time"

	"github.com/terra-clan/screening-engine/internal/models"
)

func TestMemorySessions(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	now := time.Now()

	sessions := []*models.Session{
		{ID: "1", Token: "a", QuestionSetID: "qs1", State: models.SessionRunning, CreatedAt: now.Add(-2 * time.Minute)},
		{ID: "2", Token: "b", QuestionSetID: "qs1", State: models.SessionSubmitted, CreatedAt: now.Add(-time.Minute)},
		{ID: "3", Token: "c", QuestionSetID: "qs2", State: models.SessionSubmitted, CreatedAt: now},
	}
	for _, s := range sessions {
		if err := repo.SaveSession(ctx, s); err != nil {
			t.Fatal(err)
		}
	}

	got, _ := repo.GetSession(ctx, "b")
	if got == nil || got.ID != "2" {
		t.Fatalf("unexpected session %+v", got)
	}
	if missing, err := repo.GetSession(ctx, "zzz"); missing != nil || err != nil {
		t.Error("missing session should be nil, nil")
	}

	all, _ := repo.ListSessions(ctx, models.SessionFilters{})
	if len(all) != 3 || all[0].Token != "c" {
		t.Errorf("expected newest first, got %d sessions", len(all))
	}

	submitted, _ := repo.ListSessions(ctx, models.SessionFilters{State: models.SessionSubmitted, QuestionSetID: "qs1"})
	if len(submitted) != 1 || submitted[0].Token != "b" {
		t.Errorf("unexpected filtered list %+v", submitted)
	}

	page, _ := repo.ListSessions(ctx, models.SessionFilters{Limit: 1, Offset: 1})
	if len(page) != 1 || page[0].Token != "b" {
		t.Errorf("unexpected page %+v", page)
	}
	if beyond, _ := repo.ListSessions(ctx, models.SessionFilters{Offset: 5}); len(beyond) != 0 {
		t.Error("offset past the end should be empty")
	}
}

func TestMemorySubmissionOnce(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	rec := &models.SubmissionRecord{ID: "x", SessionID: "s1", Payload: &models.SubmissionPayload{}}
	if err := repo.SaveSubmission(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if err := repo.SaveSubmission(ctx, rec); err == nil {
		t.Error("second submission for a session should fail")
	}
	got, _ := repo.GetSubmission(ctx, "s1")
	if got == nil || got.ID != "x" {
		t.Errorf("unexpected submission %+v", got)
	}
}

func TestMemoryExecutions(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	repo.SaveExecution(ctx, &models.ExecutionRecord{ID: "1", SessionID: "s", Status: models.ExecSuccess})
	repo.SaveExecution(ctx, &models.ExecutionRecord{ID: "2", SessionID: "s", Status: models.ExecTimeout})

	recs, _ := repo.ListExecutions(ctx, "s")
	if len(recs) != 2 || recs[1].ID != "2" {
		t.Errorf("unexpected executions %+v", recs)
	}
}

func TestMemoryClients(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	client := &models.ApiClient{Name: "hr", ApiKey: "sk_test_123456", IsActive: true, Permissions: []string{"*"}}
	if err := repo.CreateClient(ctx, client); err != nil {
		t.Fatal(err)
	}
	if client.ID == 0 {
		t.Error("expected id to be assigned")
	}
	if err := repo.CreateClient(ctx, &models.ApiClient{ApiKey: "sk_test_123456"}); err == nil {
		t.Error("duplicate key should fail")
	}

	repo.UpdateClientLastUsed(ctx, "sk_test_123456")
	got, _ := repo.GetClientByApiKey(ctx, "sk_test_123456")
	if got == nil || got.LastUsedAt == nil {
		t.Fatalf("expected last used to be set, got %+v", got)
	}
	if none, _ := repo.GetClientByApiKey(ctx, "nope"); none != nil {
		t.Error("unknown key should return nil")
	}
}

func TestMigrationSource(t *testing.T) {
	pending, err := pendingMigrations(MigrationSource(""), map[string]bool{})
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) == 0 || pending[0] != "001_init.sql" {
		t.Errorf("expected embedded 001_init.sql, got %v", pending)
	}

	none, _ := pendingMigrations(MigrationSource(""), map[string]bool{"001_init.sql": true})
	if len(none) != 0 {
		t.Errorf("applied migrations should be skipped, got %v", none)
	}
}
