package models

import (
	"errors"
	"testing"
)

func TestHasPermission(t *testing.T) {
	client := &ApiClient{Name: "hr", IsActive: true, Permissions: []string{"tests:*", "sessions:read"}}

	cases := map[string]bool{
		"tests:read":      true,
		"tests:write":     true,
		"sessions:read":   true,
		"sessions:write":  false,
		"candidates:read": false,
	}
	for perm, want := range cases {
		if got := client.HasPermission(perm); got != want {
			t.Errorf("HasPermission(%q) = %v, want %v", perm, got, want)
		}
	}

	client.IsActive = false
	if client.HasPermission("tests:read") {
		t.Error("inactive client must not have permissions")
	}

	root := &ApiClient{IsActive: true, Permissions: []string{"*"}}
	if !root.HasPermission("candidates:read") {
		t.Error("global wildcard should match everything")
	}
}

func TestGenerateTestRequestMixedCount(t *testing.T) {
	req := GenerateTestRequest{
		Topic:        "  Go concurrency ",
		QuestionType: QuestionTypeMixed,
		NumQuestions: 3,
		MCQCount:     4,
		CodingCount:  2,
	}
	req.Normalize()

	if req.NumQuestions != 6 {
		t.Errorf("expected mixed count 6, got %d", req.NumQuestions)
	}
	if req.Topic != "Go concurrency" {
		t.Errorf("topic not trimmed: %q", req.Topic)
	}
	if req.Difficulty != "easy" {
		t.Errorf("expected default difficulty easy, got %q", req.Difficulty)
	}
	if err := req.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestGenerateTestRequestValidate(t *testing.T) {
	tests := []struct {
		name string
		req  GenerateTestRequest
	}{
		{"missing topic", GenerateTestRequest{NumQuestions: 5}},
		{"too many", GenerateTestRequest{Topic: "sql", NumQuestions: 51}},
		{"zero", GenerateTestRequest{Topic: "sql"}},
		{"bad difficulty", GenerateTestRequest{Topic: "sql", NumQuestions: 5, Difficulty: "insane"}},
		{"bad type", GenerateTestRequest{Topic: "sql", NumQuestions: 5, QuestionType: "essay"}},
		{"mixed empty", GenerateTestRequest{Topic: "sql", QuestionType: QuestionTypeMixed}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			req.Normalize()
			err := req.Validate()
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestQuestionKind(t *testing.T) {
	choice := Question{Question: "2+2?", Options: []string{"3", "4"}, Answer: "4"}
	code := Question{Question: "reverse a string"}

	if !choice.IsChoice() || choice.IsCode() {
		t.Error("question with options should be a choice question")
	}
	if !code.IsCode() {
		t.Error("question without options should be a code question")
	}
}

func TestScoreResultFallbacks(t *testing.T) {
	r := &ScoreResult{Score: 15}
	if got := r.EffectiveMaxScore(3); got != 30 {
		t.Errorf("expected max 30, got %d", got)
	}
	if got := r.EffectivePercentage(3); got != 50 {
		t.Errorf("expected 50%%, got %v", got)
	}
	if got := r.EffectiveStatus(); got != "Fail" {
		t.Errorf("expected default status Fail, got %q", got)
	}

	graded := &ScoreResult{Score: 8, MaxScore: 10, Percentage: 80, Status: "Pass"}
	if graded.EffectiveMaxScore(5) != 10 || graded.EffectivePercentage(5) != 80 || graded.EffectiveStatus() != "Pass" {
		t.Error("explicit values must win over fallbacks")
	}
}

func TestScoreResultNormalize(t *testing.T) {
	r := &ScoreResult{Score: 6}
	r.Normalize(2)
	if r.MaxScore != 20 || r.Percentage != 30 || r.Status != "Fail" {
		t.Errorf("unexpected normalized result %+v", r)
	}

	empty := &ScoreResult{}
	empty.Normalize(0)
	if empty.MaxScore != 0 || empty.Percentage != 0 {
		t.Errorf("zero questions must not divide by zero: %+v", empty)
	}
}

func TestGenerateSessionToken(t *testing.T) {
	a, err := GenerateSessionToken()
	if err != nil {
		t.Fatal(err)
	}
	b, _ := GenerateSessionToken()
	if len(a) != 48 {
		t.Errorf("expected 48 chars, got %d", len(a))
	}
	if a == b {
		t.Error("tokens should differ")
	}
}
