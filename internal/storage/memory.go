package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/terra-clan/screening-engine/internal/models"
)

// MemoryRepository implements Repository in process memory
type MemoryRepository struct {
	mu          sync.RWMutex
	sessions    map[string]*models.Session
	executions  map[string][]*models.ExecutionRecord
	submissions map[string]*models.SubmissionRecord
	clients     map[string]*models.ApiClient
	nextClient  int
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions:    make(map[string]*models.Session),
		executions:  make(map[string][]*models.ExecutionRecord),
		submissions: make(map[string]*models.SubmissionRecord),
		clients:     make(map[string]*models.ApiClient),
	}
}

func (r *MemoryRepository) SaveSession(_ context.Context, s *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.Token] = s
	return nil
}

func (r *MemoryRepository) GetSession(_ context.Context, token string) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[token], nil
}

func (r *MemoryRepository) ListSessions(_ context.Context, filters models.SessionFilters) ([]*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sessions []*models.Session
	for _, s := range r.sessions {
		if filters.State != "" && s.State != filters.State {
			continue
		}
		if filters.QuestionSetID != "" && s.QuestionSetID != filters.QuestionSetID {
			continue
		}
		sessions = append(sessions, s)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})

	if filters.Offset > 0 {
		if filters.Offset >= len(sessions) {
			return nil, nil
		}
		sessions = sessions[filters.Offset:]
	}
	if filters.Limit > 0 && filters.Limit < len(sessions) {
		sessions = sessions[:filters.Limit]
	}

	return sessions, nil
}

func (r *MemoryRepository) SaveExecution(_ context.Context, rec *models.ExecutionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executions[rec.SessionID] = append(r.executions[rec.SessionID], rec)
	return nil
}

func (r *MemoryRepository) ListExecutions(_ context.Context, sessionID string) ([]*models.ExecutionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	recs := r.executions[sessionID]
	out := make([]*models.ExecutionRecord, len(recs))
	copy(out, recs)
	return out, nil
}

func (r *MemoryRepository) SaveSubmission(_ context.Context, rec *models.SubmissionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.submissions[rec.SessionID]; exists {
		return fmt.Errorf("submission for session %s already recorded", rec.SessionID)
	}
	r.submissions[rec.SessionID] = rec
	return nil
}

func (r *MemoryRepository) GetSubmission(_ context.Context, sessionID string) (*models.SubmissionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.submissions[sessionID], nil
}

func (r *MemoryRepository) CreateClient(_ context.Context, client *models.ApiClient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.clients[client.ApiKey]; exists {
		return fmt.Errorf("api client with this key already exists")
	}
	r.nextClient++
	client.ID = r.nextClient
	if client.CreatedAt.IsZero() {
		client.CreatedAt = time.Now()
	}
	r.clients[client.ApiKey] = client
	return nil
}

func (r *MemoryRepository) GetClientByApiKey(_ context.Context, apiKey string) (*models.ApiClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[apiKey]
	if !ok {
		return nil, nil
	}
	clone := *c
	return &clone, nil
}

func (r *MemoryRepository) UpdateClientLastUsed(_ context.Context, apiKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[apiKey]; ok {
		now := time.Now()
		c.LastUsedAt = &now
	}
	return nil
}

func (r *MemoryRepository) Ping(context.Context) error { return nil }

func (r *MemoryRepository) Close() error { return nil }
