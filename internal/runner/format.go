package runner

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/terra-clan/screening-engine/internal/judge"
	"github.com/terra-clan/screening-engine/internal/models"
)

// Candidate-facing messages
const (
	MsgRunning        = "Running code..."
	MsgEmptyInput     = "Please write some code first"
	MsgNoOutput       = "(No output)"
	MsgNoOutputOK     = "Code executed successfully (no output)"
	msgFailurePrefix  = "Failed to execute code: "
	msgAuthFailed     = "API authentication failed"
	msgRateLimited    = "Rate limit exceeded - please wait and try again"
	msgRequestTimeout = "Request timeout - please try again"
	msgPollCeiling    = "Code execution timeout - taking too long to complete"
	msgNoToken        = "No submission token received"
	msgCanceled       = "Execution canceled"
)

// UnsupportedMessage is shown for languages the judge cannot run
func UnsupportedMessage(label string) string {
	return fmt.Sprintf("Code execution not supported for %s", label)
}

// failure builds an error result with the standard prefix
func failure(status models.ExecutionStatus, reason string) *models.ExecutionResult {
	return &models.ExecutionResult{
		Status: status,
		Output: msgFailurePrefix + reason,
	}
}

// classify maps a judge transport error to a result. ctx is the run
// context; a canceled run takes precedence over the request error.
func classify(ctx context.Context, err error) *models.ExecutionResult {
	if ctx.Err() != nil {
		return &models.ExecutionResult{Status: models.ExecCanceled, Output: msgCanceled}
	}

	var herr *judge.HTTPError
	if errors.As(err, &herr) {
		switch herr.StatusCode {
		case http.StatusUnauthorized:
			return failure(models.ExecAuthFailed, msgAuthFailed)
		case http.StatusTooManyRequests:
			return failure(models.ExecRateLimited, msgRateLimited)
		}
		if herr.Message != "" {
			return failure(models.ExecUnknownError, herr.Message)
		}
		return failure(models.ExecUnknownError, herr.Error())
	}

	var nerr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
		return failure(models.ExecTimeout, msgRequestTimeout)
	}

	return failure(models.ExecUnknownError, err.Error())
}

// statusOf maps a terminal judge status id to an execution status
func statusOf(id int) models.ExecutionStatus {
	switch {
	case id == judge.StatusAccepted || id == judge.StatusWrongAnswer:
		return models.ExecSuccess
	case id == judge.StatusTimeLimitExceeded:
		return models.ExecTimeout
	case id == judge.StatusCompilationError:
		return models.ExecCompileError
	case id >= judge.StatusRuntimeSIGSEGV && id <= judge.StatusRuntimeOther:
		return models.ExecRuntimeError
	}
	return models.ExecUnknownError
}

// decode turns a base64 judge field into text. Fields that are not valid
// base64 are shown as received.
func decode(field *string) string {
	if field == nil || *field == "" {
		return ""
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(*field))
	if err != nil {
		return *field
	}
	return string(data)
}

// buildResult decodes a terminal submission and renders its output panel
func buildResult(sub *judge.Submission) *models.ExecutionResult {
	res := &models.ExecutionResult{
		Status:        statusOf(sub.Status.ID),
		Stdout:        decode(sub.Stdout),
		Stderr:        decode(sub.Stderr),
		CompileOutput: decode(sub.CompileOutput),
		Message:       decode(sub.Message),
		Token:         sub.Token,
	}
	if sub.Time != nil {
		res.Time = *sub.Time
	}
	if sub.Memory != nil {
		res.MemoryKB = *sub.Memory
	}
	res.Output = render(res)
	return res
}

// render assembles the output panel text
func render(res *models.ExecutionResult) string {
	var b strings.Builder
	hasError := false

	if res.CompileOutput != "" {
		b.WriteString("Compilation Output:\n" + res.CompileOutput + "\n\n")
		hasError = true
	}
	if res.Stderr != "" {
		b.WriteString("Error:\n" + res.Stderr + "\n\n")
		hasError = true
	}

	if res.Stdout != "" {
		b.WriteString("Output:\n" + res.Stdout)
	} else if !hasError {
		b.WriteString(MsgNoOutputOK)
	}

	if res.Message != "" {
		b.WriteString("\n\nMessage: " + res.Message)
	}
	if res.Time != "" {
		b.WriteString("\nExecution time: " + res.Time + "s")
	}
	if res.MemoryKB > 0 {
		fmt.Fprintf(&b, "\nMemory used: %d KB", res.MemoryKB)
	}

	if b.Len() == 0 {
		return MsgNoOutput
	}
	return b.String()
}
