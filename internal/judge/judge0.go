package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const submissionFields = "token,status,stdout,stderr,compile_output,message,time,memory"

// Judge0Config configures the Judge0 adapter
type Judge0Config struct {
	URL           string
	RapidAPIKey   string
	RapidAPIHost  string
	AuthToken     string
	SubmitTimeout time.Duration
	PollTimeout   time.Duration
}

// Judge0 implements Judge over the Judge0 CE HTTP API
type Judge0 struct {
	cfg        Judge0Config
	httpClient *http.Client
}

// Judge0Option configures the adapter
type Judge0Option func(*Judge0)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Judge0Option {
	return func(j *Judge0) {
		j.httpClient = client
	}
}

// NewJudge0 creates a Judge0 adapter
func NewJudge0(cfg Judge0Config, opts ...Judge0Option) *Judge0 {
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 10 * time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Second
	}

	j := &Judge0{
		cfg:        cfg,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

type submitRequest struct {
	LanguageID int    `json:"language_id"`
	SourceCode string `json:"source_code"`
	Stdin      string `json:"stdin"`
}

// Submit posts base64 encoded source and stdin and returns the token
func (j *Judge0) Submit(ctx context.Context, source, stdin string, languageID int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, j.cfg.SubmitTimeout)
	defer cancel()

	body, err := json.Marshal(submitRequest{
		LanguageID: languageID,
		SourceCode: source,
		Stdin:      stdin,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal submission: %w", err)
	}

	path := "/submissions?base64_encoded=true&fields=" + submissionFields
	data, err := j.doRequest(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return "", err
	}

	var sub Submission
	if err := json.Unmarshal(data, &sub); err != nil {
		return "", fmt.Errorf("failed to decode submission: %w", err)
	}
	return sub.Token, nil
}

// Poll fetches the current state of a submission
func (j *Judge0) Poll(ctx context.Context, token string) (*Submission, error) {
	ctx, cancel := context.WithTimeout(ctx, j.cfg.PollTimeout)
	defer cancel()

	path := fmt.Sprintf("/submissions/%s?base64_encoded=true&fields=%s", token, submissionFields)
	data, err := j.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var sub Submission
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, fmt.Errorf("failed to decode submission: %w", err)
	}
	if sub.Token == "" {
		sub.Token = token
	}
	return &sub, nil
}

func (j *Judge0) doRequest(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, j.cfg.URL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if j.cfg.RapidAPIKey != "" {
		req.Header.Set("X-RapidAPI-Key", j.cfg.RapidAPIKey)
		req.Header.Set("X-RapidAPI-Host", j.cfg.RapidAPIHost)
	}
	if j.cfg.AuthToken != "" {
		req.Header.Set("X-Auth-Token", j.cfg.AuthToken)
	}

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}

	return data, nil
}

// errorMessage extracts the error field of a judge error body
func errorMessage(data []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return ""
}
