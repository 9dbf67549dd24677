package models

import "time"

// ExecutionStatus is the outcome class of a Run Code invocation
type ExecutionStatus string

const (
	ExecRunning      ExecutionStatus = "running"
	ExecSuccess      ExecutionStatus = "success"
	ExecCompileError ExecutionStatus = "compile_error"
	ExecRuntimeError ExecutionStatus = "runtime_error"
	ExecTimeout      ExecutionStatus = "timeout"
	ExecRateLimited  ExecutionStatus = "rate_limited"
	ExecAuthFailed   ExecutionStatus = "auth_failed"
	ExecUnknownError ExecutionStatus = "unknown_error"
	ExecUnsupported  ExecutionStatus = "unsupported"
	ExecEmptyInput   ExecutionStatus = "empty_input"
	// ExecCanceled marks a run whose owning session went away. It is
	// never published to a candidate.
	ExecCanceled ExecutionStatus = "canceled"
)

// IsTerminal returns true once the status can no longer change
func (s ExecutionStatus) IsTerminal() bool {
	return s != ExecRunning && s != ""
}

// ExecutionResult is what the candidate sees in a question's output panel
type ExecutionResult struct {
	Status        ExecutionStatus `json:"status"`
	Output        string          `json:"output"`
	Stdout        string          `json:"stdout,omitempty"`
	Stderr        string          `json:"stderr,omitempty"`
	CompileOutput string          `json:"compile_output,omitempty"`
	Message       string          `json:"message,omitempty"`
	Time          string          `json:"time,omitempty"`
	MemoryKB      int             `json:"memory_kb,omitempty"`
	Token         string          `json:"token,omitempty"`
	Attempts      int             `json:"attempts,omitempty"`
}

// ExecutionRecord is a stored copy of a completed run
type ExecutionRecord struct {
	ID            string          `json:"id"`
	SessionID     string          `json:"session_id"`
	QuestionIndex int             `json:"question_index"`
	Language      string          `json:"language"`
	Status        ExecutionStatus `json:"status"`
	Output        string          `json:"output"`
	Token         string          `json:"token,omitempty"`
	Attempts      int             `json:"attempts"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Language is one entry of the selectable language table
type Language struct {
	Value       string `yaml:"value" json:"value"`
	Label       string `yaml:"label" json:"label"`
	DefaultCode string `yaml:"default_code" json:"default_code"`
	JudgeID     int    `yaml:"judge_id" json:"judge_id,omitempty"`
	Image       string `yaml:"image" json:"-"`
	Command     string `yaml:"command" json:"-"`
}

// Executable reports whether the judge can run this language
func (l *Language) Executable() bool {
	return l != nil && l.JudgeID > 0
}
