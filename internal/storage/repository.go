package storage

import (
	"context"

	"github.com/terra-clan/screening-engine/internal/models"
)

// Repository defines the interface for screening persistence. Getters
// return nil, nil when the record does not exist.
type Repository interface {
	// Sessions
	SaveSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, token string) (*models.Session, error)
	ListSessions(ctx context.Context, filters models.SessionFilters) ([]*models.Session, error)

	// Executions
	SaveExecution(ctx context.Context, rec *models.ExecutionRecord) error
	ListExecutions(ctx context.Context, sessionID string) ([]*models.ExecutionRecord, error)

	// Submissions
	SaveSubmission(ctx context.Context, rec *models.SubmissionRecord) error
	GetSubmission(ctx context.Context, sessionID string) (*models.SubmissionRecord, error)

	// API Clients
	CreateClient(ctx context.Context, client *models.ApiClient) error
	GetClientByApiKey(ctx context.Context, apiKey string) (*models.ApiClient, error)
	UpdateClientLastUsed(ctx context.Context, apiKey string) error

	// Health
	Ping(ctx context.Context) error
	Close() error
}
