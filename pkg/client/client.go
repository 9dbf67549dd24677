// Package client is a Go SDK for the screening-engine API
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/terra-clan/screening-engine/internal/models"
	"github.com/terra-clan/screening-engine/internal/session"
)

// Client is a Go SDK for screening-engine API. The API key is only
// needed for HR calls.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	dialer     *websocket.Dialer
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new screening-engine client
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
		dialer: websocket.DefaultDialer,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is an error answer from the API
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s - %s", e.StatusCode, e.Code, e.Message)
}

// IsStatus reports whether err is an APIError with the given status
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// SessionList is a page of stored sessions
type SessionList struct {
	Sessions []*models.Session `json:"sessions"`
	Count    int               `json:"count"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

// ListOptions contains options for listing sessions
type ListOptions struct {
	State         models.SessionState
	QuestionSetID string
	Limit         int
	Offset        int
}

// Frame is one message of the session event stream
type Frame struct {
	Type    string          `json:"type"`
	Session *models.Session `json:"session,omitempty"`
	Event   *session.Event  `json:"event,omitempty"`
}

// --- Candidate calls ---

// StartSession opens a test attempt. A zero duration uses the server
// default.
func (c *Client) StartSession(ctx context.Context, questionSetID string, minutes int) (*models.Session, error) {
	var snap models.Session
	req := models.StartSessionRequest{QuestionSetID: questionSetID, Duration: minutes}
	if err := c.call(ctx, http.MethodPost, "/api/v1/sessions", req, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// GetSession returns a session snapshot
func (c *Client) GetSession(ctx context.Context, token string) (*models.Session, error) {
	var snap models.Session
	if err := c.call(ctx, http.MethodGet, sessionPath(token, ""), nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// SetAnswer stores the answer of one question
func (c *Client) SetAnswer(ctx context.Context, token string, index int, answer string) (*models.Session, error) {
	var snap models.Session
	path := sessionPath(token, "/answers/"+strconv.Itoa(index))
	if err := c.call(ctx, http.MethodPut, path, models.AnswerRequest{Answer: answer}, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// SelectLanguage switches the language of a code question
func (c *Client) SelectLanguage(ctx context.Context, token string, index int, language string) (*models.Session, error) {
	var snap models.Session
	path := sessionPath(token, "/languages/"+strconv.Itoa(index))
	if err := c.call(ctx, http.MethodPut, path, models.LanguageRequest{Language: language}, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// RunCode starts Run Code for a question. The result is the running
// placeholder unless the run was rejected up front.
func (c *Client) RunCode(ctx context.Context, token string, index int) (*models.ExecutionResult, error) {
	var res models.ExecutionResult
	if err := c.call(ctx, http.MethodPost, sessionPath(token, "/run/"+strconv.Itoa(index)), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Submit submits a session
func (c *Client) Submit(ctx context.Context, token string) (*models.SubmitResponse, error) {
	var resp models.SubmitResponse
	if err := c.call(ctx, http.MethodPost, sessionPath(token, "/submit"), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CloseSession tears a session down without submitting
func (c *Client) CloseSession(ctx context.Context, token string) error {
	return c.call(ctx, http.MethodDelete, sessionPath(token, ""), nil, nil)
}

// Events streams the events of a live session. The first frame is a
// snapshot. The channel is closed when the stream ends.
func (c *Client) Events(ctx context.Context, token string) (<-chan Frame, error) {
	target := c.baseURL + sessionPath(token, "/events")
	switch {
	case strings.HasPrefix(target, "https://"):
		target = "wss://" + strings.TrimPrefix(target, "https://")
	case strings.HasPrefix(target, "http://"):
		target = "ws://" + strings.TrimPrefix(target, "http://")
	}

	conn, resp, err := c.dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			data, _ := io.ReadAll(resp.Body)
			return nil, decodeError(resp.StatusCode, data)
		}
		return nil, fmt.Errorf("failed to connect event stream: %w", err)
	}

	frames := make(chan Frame, 16)
	go func() {
		defer close(frames)
		defer conn.Close()

		stop := context.AfterFunc(ctx, func() { conn.Close() })
		defer stop()

		for {
			var f Frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			select {
			case frames <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	return frames, nil
}

// ListLanguages returns the selectable languages
func (c *Client) ListLanguages(ctx context.Context) ([]*models.Language, error) {
	var langs []*models.Language
	if err := c.call(ctx, http.MethodGet, "/api/v1/languages", nil, &langs); err != nil {
		return nil, err
	}
	return langs, nil
}

// --- HR calls ---

// GenerateTest asks the backend for a draft question list
func (c *Client) GenerateTest(ctx context.Context, req models.GenerateTestRequest) (*models.GenerateTestResponse, error) {
	var resp models.GenerateTestResponse
	if err := c.call(ctx, http.MethodPost, "/api/v1/tests/generate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FinalizeTest turns reviewed questions into a shareable test
func (c *Client) FinalizeTest(ctx context.Context, req models.FinalizeTestRequest) (*models.FinalizeTestResponse, error) {
	var resp models.FinalizeTestResponse
	if err := c.call(ctx, http.MethodPost, "/api/v1/tests/finalize", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListTests returns finalized tests
func (c *Client) ListTests(ctx context.Context) ([]models.QuestionSet, error) {
	var resp struct {
		Tests []models.QuestionSet `json:"tests"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/tests", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tests, nil
}

// TestResults returns graded submissions of a test
func (c *Client) TestResults(ctx context.Context, questionSetID string) ([]models.TestResult, error) {
	var resp struct {
		Results []models.TestResult `json:"results"`
	}
	path := "/api/v1/tests/" + url.PathEscape(questionSetID) + "/results"
	if err := c.call(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Candidates returns the candidate lookup answer for a job description
func (c *Client) Candidates(ctx context.Context, jdID string) (json.RawMessage, error) {
	var raw json.RawMessage
	path := "/api/v1/candidates?" + url.Values{"jd_id": {jdID}}.Encode()
	if err := c.call(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// ListSessions returns stored sessions
func (c *Client) ListSessions(ctx context.Context, opts ListOptions) (*SessionList, error) {
	params := url.Values{}
	if opts.State != "" {
		params.Set("state", string(opts.State))
	}
	if opts.QuestionSetID != "" {
		params.Set("question_set_id", opts.QuestionSetID)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		params.Set("offset", strconv.Itoa(opts.Offset))
	}

	path := "/api/v1/sessions"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var list SessionList
	if err := c.call(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Executions returns the recorded runs of a session
func (c *Client) Executions(ctx context.Context, token string) ([]*models.ExecutionRecord, error) {
	var resp struct {
		Executions []*models.ExecutionRecord `json:"executions"`
	}
	if err := c.call(ctx, http.MethodGet, sessionPath(token, "/executions"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Executions, nil
}

// Submission returns the recorded submission of a session
func (c *Client) Submission(ctx context.Context, token string) (*models.SubmissionRecord, error) {
	var rec models.SubmissionRecord
	if err := c.call(ctx, http.MethodGet, sessionPath(token, "/submission"), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Health checks if the API is healthy
func (c *Client) Health(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "/health", nil, nil)
}

func sessionPath(token, suffix string) string {
	return "/api/v1/sessions/" + url.PathEscape(token) + suffix
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// call sends in as JSON and decodes the envelope's data into out
func (c *Client) call(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	status, resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if status >= 400 {
		return decodeError(status, resp)
	}

	var env envelope
	if err := json.Unmarshal(resp, &env); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}

	return resp.StatusCode, respBody, nil
}

// decodeError reads both the envelope and the auth error layouts
func decodeError(status int, data []byte) error {
	apiErr := &APIError{StatusCode: status}

	var env envelope
	if err := json.Unmarshal(data, &env); err == nil && env.Error != nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		return apiErr
	}

	var authErr struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &authErr); err == nil && authErr.Error != "" {
		apiErr.Code = authErr.Error
		apiErr.Message = authErr.Message
		return apiErr
	}

	apiErr.Code = http.StatusText(status)
	apiErr.Message = strings.TrimSpace(string(data))
	return apiErr
}
