package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"
)

// ErrLookupDisabled is returned when no candidate lookup is configured
var ErrLookupDisabled = errors.New("candidate lookup is not configured")

// CandidateLookup lists candidates filtered by job description
type CandidateLookup interface {
	Candidates(ctx context.Context, jdID string) (json.RawMessage, error)
}

// HTTPCandidateLookup queries an external candidate service with a
// bearer token
type HTTPCandidateLookup struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

// NewCandidateLookup returns a lookup for endpoint, or a disabled lookup
// when endpoint is empty
func NewCandidateLookup(endpoint, token string, timeout time.Duration) CandidateLookup {
	if endpoint == "" {
		return disabledLookup{}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPCandidateLookup{
		endpoint:   endpoint,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Candidates returns the service's answer for jdID unchanged
func (l *HTTPCandidateLookup) Candidates(ctx context.Context, jdID string) (json.RawMessage, error) {
	u, err := url.Parse(l.endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("jd_id", jdID)
	u.RawQuery = q.Encode()

	data, err := doRequest(ctx, l.httpClient, http.MethodGet, u.String(), l.token, nil)
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, &APIError{StatusCode: http.StatusBadGateway, Detail: "candidate service returned invalid JSON"}
	}
	return json.RawMessage(data), nil
}

type disabledLookup struct{}

func (disabledLookup) Candidates(context.Context, string) (json.RawMessage, error) {
	return nil, ErrLookupDisabled
}
