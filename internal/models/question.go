package models

import "strings"

// Question is a single test item. A non-empty Options list marks a choice
// question; otherwise it is a code question and Answer holds the expected
// solution.
type Question struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Answer   string   `json:"answer,omitempty"`
}

// IsChoice reports whether the question offers options to pick from
func (q Question) IsChoice() bool {
	return len(q.Options) > 0
}

// IsCode reports whether the question expects source code as the answer
func (q Question) IsCode() bool {
	return !q.IsChoice()
}

// QuestionType selects which kind of questions the backend generates
type QuestionType string

const (
	QuestionTypeMCQ    QuestionType = "mcq"
	QuestionTypeCoding QuestionType = "coding"
	QuestionTypeMixed  QuestionType = "mixed"
)

// Valid reports whether t is a known question type
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionTypeMCQ, QuestionTypeCoding, QuestionTypeMixed:
		return true
	}
	return false
}

// Difficulty levels accepted by the generator
var Difficulties = []string{"easy", "medium", "hard"}

const (
	MaxQuestions           = 50
	DefaultDurationMinutes = 20
	MinDurationMinutes     = 1
	MaxDurationMinutes     = 180
)

// GenerateTestRequest configures question generation
type GenerateTestRequest struct {
	Topic        string       `json:"topic"`
	Difficulty   string       `json:"difficulty"`
	NumQuestions int          `json:"num_questions"`
	QuestionType QuestionType `json:"question_type"`
	MCQCount     int          `json:"mcq_count,omitempty"`
	CodingCount  int          `json:"coding_count,omitempty"`
}

// Normalize fills defaults. For mixed tests the question count is the
// sum of the per-kind counts.
func (r *GenerateTestRequest) Normalize() {
	r.Topic = strings.TrimSpace(r.Topic)
	if r.Difficulty == "" {
		r.Difficulty = "easy"
	}
	if r.QuestionType == "" {
		r.QuestionType = QuestionTypeMCQ
	}
	if r.QuestionType == QuestionTypeMixed {
		r.NumQuestions = r.MCQCount + r.CodingCount
	} else {
		r.MCQCount = 0
		r.CodingCount = 0
	}
}

// Validate checks a normalized request
func (r *GenerateTestRequest) Validate() error {
	if r.Topic == "" {
		return validationError("topic is required")
	}
	known := false
	for _, d := range Difficulties {
		if d == r.Difficulty {
			known = true
			break
		}
	}
	if !known {
		return validationError("difficulty must be one of easy, medium, hard")
	}
	if !r.QuestionType.Valid() {
		return validationError("question_type must be one of mcq, coding, mixed")
	}
	if r.MCQCount < 0 || r.MCQCount > MaxQuestions || r.CodingCount < 0 || r.CodingCount > MaxQuestions {
		return validationError("mcq_count and coding_count must be between 0 and 50")
	}
	if r.NumQuestions < 1 || r.NumQuestions > MaxQuestions {
		return validationError("num_questions must be between 1 and 50")
	}
	return nil
}

// GenerateTestResponse holds the generated questions
type GenerateTestResponse struct {
	Questions []Question `json:"questions"`
}

// FinalizeTestRequest turns reviewed questions into a shareable test
type FinalizeTestRequest struct {
	Questions []Question `json:"questions"`
	Duration  int        `json:"duration"`
	JDID      string     `json:"jd_id,omitempty"`
}

// FinalizeTestResponse carries the link handed to candidates
type FinalizeTestResponse struct {
	TestLink string `json:"test_link"`
	TestID   string `json:"test_id,omitempty"`
}

// FetchTestResponse is what the backend returns for a test id
type FetchTestResponse struct {
	Questions []Question `json:"questions"`
}

// QuestionSet summarizes a finalized test for the HR dashboard
type QuestionSet struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

// ValidationError is returned for malformed requests
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationError(msg string) error {
	return &ValidationError{Message: msg}
}

// TestResult is a graded submission as stored by the backend
type TestResult struct {
	ID             int64   `json:"id"`
	QuestionSetID  string  `json:"question_set_id"`
	Score          int     `json:"score"`
	MaxScore       int     `json:"max_score"`
	Percentage     float64 `json:"percentage"`
	Status         string  `json:"status"`
	TotalQuestions int     `json:"total_questions"`
	RawFeedback    string  `json:"raw_feedback,omitempty"`
	CreatedAt      string  `json:"created_at,omitempty"`
}
