// Package judge talks to remote and local code execution backends.
package judge

import (
	"context"
	"fmt"
)

// Judge0 status ids
const (
	StatusInQueue           = 1
	StatusProcessing        = 2
	StatusAccepted          = 3
	StatusWrongAnswer       = 4
	StatusTimeLimitExceeded = 5
	StatusCompilationError  = 6
	StatusRuntimeSIGSEGV    = 7
	StatusRuntimeSIGXFSZ    = 8
	StatusRuntimeSIGFPE     = 9
	StatusRuntimeSIGABRT    = 10
	StatusRuntimeNZEC       = 11
	StatusRuntimeOther      = 12
	StatusInternalError     = 13
	StatusExecFormatError   = 14
)

// Judge submits source code and reports on the submission by token
type Judge interface {
	Submit(ctx context.Context, source, stdin string, languageID int) (string, error)
	Poll(ctx context.Context, token string) (*Submission, error)
}

// Releaser is implemented by judges that hold resources per submission.
// Release frees them for a token that will not be polled again.
type Releaser interface {
	Release(ctx context.Context, token string) error
}

// Status is the judge's verdict for a submission
type Status struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

// Submission is a judge snapshot of a submission. Text fields are base64
// encoded.
type Submission struct {
	Token         string  `json:"token,omitempty"`
	Status        Status  `json:"status"`
	Stdout        *string `json:"stdout"`
	Stderr        *string `json:"stderr"`
	CompileOutput *string `json:"compile_output"`
	Message       *string `json:"message"`
	Time          *string `json:"time"`
	Memory        *int    `json:"memory"`
}

// Pending returns true while the submission is queued or running
func (s *Submission) Pending() bool {
	return s.Status.ID == StatusInQueue || s.Status.ID == StatusProcessing
}

// HTTPError is a non-2xx answer from a judge
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("judge returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("judge returned status %d: %s", e.StatusCode, e.Message)
}
