// Package backend is the HTTP client for the assessment backend that
// generates, stores and grades tests.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/terra-clan/screening-engine/internal/models"
)

// Common errors
var (
	ErrTestNotFound = errors.New("test not found")
	ErrTestExpired  = errors.New("test has expired")
	ErrInvalidLink  = errors.New("backend returned an invalid test link")
)

// APIError is a non-2xx answer from the backend
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Detail)
}

// Client talks to the assessment backend
type Client struct {
	baseURL    string
	httpClient *http.Client
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

// NewClient creates a backend client
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 90 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// GenerateTest asks the backend to generate questions
func (c *Client) GenerateTest(ctx context.Context, req models.GenerateTestRequest) (*models.GenerateTestResponse, error) {
	var result models.GenerateTestResponse
	if err := c.call(ctx, http.MethodPost, "/api/hr/generate-test", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// FinalizeTest stores reviewed questions and returns the shareable link
func (c *Client) FinalizeTest(ctx context.Context, req models.FinalizeTestRequest) (*models.FinalizeTestResponse, error) {
	var result models.FinalizeTestResponse
	if err := c.call(ctx, http.MethodPost, "/api/hr/finalize-test", req, &result); err != nil {
		return nil, err
	}
	if !IsTestLink(result.TestLink) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLink, result.TestLink)
	}
	if result.TestID == "" {
		result.TestID = ExtractTestID(result.TestLink)
	}
	return &result, nil
}

// FetchTest returns the questions of a shared test
func (c *Client) FetchTest(ctx context.Context, questionSetID string) ([]models.Question, error) {
	var result models.FetchTestResponse
	err := c.call(ctx, http.MethodGet, "/api/test/"+url.PathEscape(questionSetID), nil, &result)

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusNotFound:
			return nil, fmt.Errorf("%w: %s", ErrTestNotFound, questionSetID)
		case http.StatusGone:
			return nil, fmt.Errorf("%w: %s", ErrTestExpired, questionSetID)
		}
	}
	if err != nil {
		return nil, err
	}

	return result.Questions, nil
}

// SubmitTest sends a finished session for grading
func (c *Client) SubmitTest(ctx context.Context, payload *models.SubmissionPayload) (*models.ScoreResult, error) {
	var result models.ScoreResult
	if err := c.call(ctx, http.MethodPost, "/api/test/submit", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListTests returns finalized tests for the HR dashboard
func (c *Client) ListTests(ctx context.Context) ([]models.QuestionSet, error) {
	var raw json.RawMessage
	if err := c.call(ctx, http.MethodGet, "/api/hr/tests", nil, &raw); err != nil {
		return nil, err
	}

	var tests []models.QuestionSet
	if err := decodeList(raw, "tests", &tests); err != nil {
		return nil, err
	}
	return tests, nil
}

// TestResults returns graded submissions of one test
func (c *Client) TestResults(ctx context.Context, questionSetID string) ([]models.TestResult, error) {
	var raw json.RawMessage
	path := fmt.Sprintf("/api/hr/tests/%s/results", url.PathEscape(questionSetID))
	if err := c.call(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}

	var results []models.TestResult
	if err := decodeList(raw, "results", &results); err != nil {
		return nil, err
	}
	return results, nil
}

// Ping checks that the backend answers at all
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return &APIError{StatusCode: resp.StatusCode}
	}
	return nil
}

func (c *Client) call(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	data, err := doRequest(ctx, c.httpClient, method, c.baseURL+path, "", body)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func doRequest(ctx context.Context, httpClient *http.Client, method, target, bearer string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Detail: detailOf(data)}
	}

	return data, nil
}

// detailOf extracts the "detail" field of an error body
func detailOf(data []byte) string {
	var body struct {
		Detail interface{} `json:"detail"`
	}
	if err := json.Unmarshal(data, &body); err != nil || body.Detail == nil {
		return ""
	}
	if s, ok := body.Detail.(string); ok {
		return s
	}
	b, _ := json.Marshal(body.Detail)
	return string(b)
}

// decodeList accepts either a bare JSON array or an object holding the
// array under key
func decodeList(raw json.RawMessage, key string, out interface{}) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, out)
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	list, ok := wrapped[key]
	if !ok {
		return nil
	}
	return json.Unmarshal(list, out)
}

// ExtractTestID returns the last path segment of a shared test link
func ExtractTestID(link string) string {
	u, err := url.Parse(link)
	if err != nil || u.Path == "" {
		return ""
	}
	parts := strings.Split(strings.TrimRight(u.Path, "/"), "/")
	return parts[len(parts)-1]
}

// IsTestLink reports whether link is an absolute URL pointing at a test
func IsTestLink(link string) bool {
	u, err := url.Parse(link)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}
	return strings.Contains(link, "/test/")
}
