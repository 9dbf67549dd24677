package models

// DefaultLanguage is recorded for questions without a language selection
const DefaultLanguage = "javascript"

// SubmissionPayload is sent once to the grading endpoint when a session
// is submitted
type SubmissionPayload struct {
	QuestionSetID string     `json:"question_set_id"`
	Questions     []Question `json:"questions"`
	Answers       []string   `json:"answers"`
	Languages     []string   `json:"languages"`
	DurationUsed  int        `json:"duration_used"`
}

// ScoreResult is the grading endpoint's answer
type ScoreResult struct {
	Score         int     `json:"score"`
	MaxScore      int     `json:"max_score"`
	Percentage    float64 `json:"percentage"`
	Status        string  `json:"status"`
	RawFeedback   string  `json:"raw_feedback,omitempty"`
	ResultID      *int64  `json:"result_id,omitempty"`
	DatabaseError *string `json:"database_error,omitempty"`
}

// EffectiveMaxScore falls back to ten points per question
func (r *ScoreResult) EffectiveMaxScore(questions int) int {
	if r.MaxScore > 0 {
		return r.MaxScore
	}
	return questions * 10
}

// EffectivePercentage derives the percentage when the grader left it out
func (r *ScoreResult) EffectivePercentage(questions int) float64 {
	if r.Percentage > 0 {
		return r.Percentage
	}
	max := r.EffectiveMaxScore(questions)
	if max == 0 {
		return 0
	}
	return float64(r.Score) / float64(max) * 100
}

// Normalize fills the fields the grader left out
func (r *ScoreResult) Normalize(questions int) {
	r.MaxScore = r.EffectiveMaxScore(questions)
	r.Percentage = r.EffectivePercentage(questions)
	r.Status = r.EffectiveStatus()
}

// EffectiveStatus defaults to Fail
func (r *ScoreResult) EffectiveStatus() string {
	if r.Status == "" {
		return "Fail"
	}
	return r.Status
}
