package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terra-clan/screening-engine/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 25
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 5
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Pool exposes the connection pool for migrations
func (r *PostgresRepository) Pool() *pgxpool.Pool {
	return r.pool
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// --- Sessions ---

// SaveSession upserts a session snapshot keyed by token
func (r *PostgresRepository) SaveSession(ctx context.Context, s *models.Session) error {
	snapshot, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	query := `
		INSERT INTO sessions (id, token, question_set_id, state, duration_minutes, remaining_seconds, snapshot, created_at, started_at, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (token) DO UPDATE
		SET state = EXCLUDED.state,
		    remaining_seconds = EXCLUDED.remaining_seconds,
		    snapshot = EXCLUDED.snapshot,
		    started_at = EXCLUDED.started_at,
		    submitted_at = EXCLUDED.submitted_at
	`

	_, err = r.pool.Exec(ctx, query,
		s.ID,
		s.Token,
		s.QuestionSetID,
		string(s.State),
		s.DurationMinutes,
		s.RemainingSeconds,
		snapshot,
		s.CreatedAt,
		nullTime(s.StartedAt),
		nullTime(s.SubmittedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	return nil
}

// GetSession retrieves a session snapshot by token
func (r *PostgresRepository) GetSession(ctx context.Context, token string) (*models.Session, error) {
	var snapshot []byte
	err := r.pool.QueryRow(ctx, `SELECT snapshot FROM sessions WHERE token = $1`, token).Scan(&snapshot)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var s models.Session
	if err := json.Unmarshal(snapshot, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &s, nil
}

// ListSessions returns session snapshots matching filters
func (r *PostgresRepository) ListSessions(ctx context.Context, filters models.SessionFilters) ([]*models.Session, error) {
	query := `SELECT snapshot FROM sessions WHERE 1=1`
	args := []interface{}{}
	argNum := 1

	if filters.State != "" {
		query += fmt.Sprintf(" AND state = $%d", argNum)
		args = append(args, string(filters.State))
		argNum++
	}

	if filters.QuestionSetID != "" {
		query += fmt.Sprintf(" AND question_set_id = $%d", argNum)
		args = append(args, filters.QuestionSetID)
		argNum++
	}

	query += " ORDER BY created_at DESC"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filters.Limit)
		argNum++
	}

	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filters.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		var snapshot []byte
		if err := rows.Scan(&snapshot); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		var s models.Session
		if err := json.Unmarshal(snapshot, &s); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session: %w", err)
		}
		sessions = append(sessions, &s)
	}

	return sessions, rows.Err()
}

// --- Executions ---

// SaveExecution records a completed run
func (r *PostgresRepository) SaveExecution(ctx context.Context, rec *models.ExecutionRecord) error {
	query := `
		INSERT INTO executions (id, session_id, question_index, language, status, output, judge_token, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(ctx, query,
		rec.ID,
		rec.SessionID,
		rec.QuestionIndex,
		rec.Language,
		string(rec.Status),
		rec.Output,
		nullString(rec.Token),
		rec.Attempts,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}
	return nil
}

// ListExecutions returns the runs of a session, oldest first
func (r *PostgresRepository) ListExecutions(ctx context.Context, sessionID string) ([]*models.ExecutionRecord, error) {
	query := `
		SELECT id, session_id, question_index, language, status, output, judge_token, attempts, created_at
		FROM executions
		WHERE session_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	var recs []*models.ExecutionRecord
	for rows.Next() {
		var rec models.ExecutionRecord
		var status string
		var token sql.NullString

		if err := rows.Scan(
			&rec.ID,
			&rec.SessionID,
			&rec.QuestionIndex,
			&rec.Language,
			&status,
			&rec.Output,
			&token,
			&rec.Attempts,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		rec.Status = models.ExecutionStatus(status)
		rec.Token = token.String
		recs = append(recs, &rec)
	}

	return recs, rows.Err()
}

// --- Submissions ---

// SaveSubmission records the outcome of a submission. A session has at
// most one.
func (r *PostgresRepository) SaveSubmission(ctx context.Context, rec *models.SubmissionRecord) error {
	payloadJSON, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	var resultJSON []byte
	if rec.Result != nil {
		if resultJSON, err = json.Marshal(rec.Result); err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
	}

	query := `
		INSERT INTO submissions (id, session_id, payload, result, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = r.pool.Exec(ctx, query,
		rec.ID,
		rec.SessionID,
		payloadJSON,
		resultJSON,
		nullString(rec.Error),
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save submission: %w", err)
	}
	return nil
}

// GetSubmission retrieves the submission of a session
func (r *PostgresRepository) GetSubmission(ctx context.Context, sessionID string) (*models.SubmissionRecord, error) {
	query := `
		SELECT id, session_id, payload, result, error, created_at
		FROM submissions
		WHERE session_id = $1
	`

	var rec models.SubmissionRecord
	var payloadJSON, resultJSON []byte
	var errMsg sql.NullString

	err := r.pool.QueryRow(ctx, query, sessionID).Scan(
		&rec.ID,
		&rec.SessionID,
		&payloadJSON,
		&resultJSON,
		&errMsg,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}

	rec.Error = errMsg.String
	if err := json.Unmarshal(payloadJSON, &rec.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if resultJSON != nil {
		if err := json.Unmarshal(resultJSON, &rec.Result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}

	return &rec, nil
}

// --- API Clients ---

// CreateClient inserts an API client
func (r *PostgresRepository) CreateClient(ctx context.Context, client *models.ApiClient) error {
	permissionsJSON, err := json.Marshal(client.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	query := `
		INSERT INTO api_clients (name, api_key, is_active, permissions)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err = r.pool.QueryRow(ctx, query, client.Name, client.ApiKey, client.IsActive, permissionsJSON).
		Scan(&client.ID, &client.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create api client: %w", err)
	}
	return nil
}

// GetClientByApiKey retrieves an API client by key
func (r *PostgresRepository) GetClientByApiKey(ctx context.Context, apiKey string) (*models.ApiClient, error) {
	query := `
		SELECT id, name, api_key, is_active, created_at, last_used_at, permissions
		FROM api_clients
		WHERE api_key = $1
	`

	var client models.ApiClient
	var lastUsedAt sql.NullTime
	var permissionsJSON []byte

	err := r.pool.QueryRow(ctx, query, apiKey).Scan(
		&client.ID,
		&client.Name,
		&client.ApiKey,
		&client.IsActive,
		&client.CreatedAt,
		&lastUsedAt,
		&permissionsJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get api client: %w", err)
	}

	if lastUsedAt.Valid {
		client.LastUsedAt = &lastUsedAt.Time
	}

	if permissionsJSON != nil {
		if err := json.Unmarshal(permissionsJSON, &client.Permissions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
		}
	}

	return &client, nil
}

// UpdateClientLastUsed updates the last_used_at timestamp for a client
func (r *PostgresRepository) UpdateClientLastUsed(ctx context.Context, apiKey string) error {
	_, err := r.pool.Exec(ctx, `UPDATE api_clients SET last_used_at = NOW() WHERE api_key = $1`, apiKey)
	if err != nil {
		return fmt.Errorf("failed to update client last_used_at: %w", err)
	}
	return nil
}

// Helper functions for nullable values

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
