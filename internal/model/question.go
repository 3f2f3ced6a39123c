package model

import (
	"github.com/google/uuid"
)

type QuestionType string

const (
	QuestionTypeSingleChoice QuestionType = "single-choice"
	QuestionTypeMultiChoice  QuestionType = "multi-choice"
	QuestionTypeEssay        QuestionType = "essay"
	QuestionTypeShortAnswer  QuestionType = "short-answer"
	QuestionTypeTrueFalse    QuestionType = "true-false"
	QuestionTypeMatching     QuestionType = "matching"
)

// ManuallyGraded reports whether the type is scored by a human grader.
func (t QuestionType) ManuallyGraded() bool {
	switch t {
	case QuestionTypeEssay, QuestionTypeShortAnswer, QuestionTypeMatching:
		return true
	}
	return false
}

// Question belongs to exactly one bank. Options are ordered by Position.
type Question struct {
	ID       uuid.UUID    `json:"id"`
	BankID   uuid.UUID    `json:"bank_id"`
	Type     QuestionType `json:"type"`
	Content  string       `json:"content"`
	Points   float64      `json:"points"`
	MediaURL *string      `json:"media_url,omitempty"`
	Position int          `json:"position"`
	Options  []Option     `json:"options"`
}

// Option is a choice (IsCorrect set for correct answers) or, for matching
// questions, a left/right pair where the option ID is the canonical key.
type Option struct {
	ID         uuid.UUID `json:"id"`
	QuestionID uuid.UUID `json:"question_id"`
	Content    string    `json:"content"`
	Match      *string   `json:"match,omitempty"`
	IsCorrect  bool      `json:"is_correct"`
	Position   int       `json:"position"`
}

// StudentOption is an option as shown during the exam.
type StudentOption struct {
	ID      uuid.UUID `json:"id"`
	Content string    `json:"content"`
}

// MatchTarget is a right-hand value of a matching question.
type MatchTarget struct {
	Key     uuid.UUID `json:"key"`
	Content string    `json:"content"`
}

// StudentQuestion is a question with correctness data removed.
type StudentQuestion struct {
	ID       uuid.UUID       `json:"id"`
	Type     QuestionType    `json:"type"`
	Content  string          `json:"content"`
	Points   float64         `json:"points"`
	MediaURL *string         `json:"media_url,omitempty"`
	Options  []StudentOption `json:"options"`
	Targets  []MatchTarget   `json:"targets,omitempty"`
}

// ExamPaper is what ListQuestions returns.
type ExamPaper struct {
	Exam      ExamSummary       `json:"exam"`
	Questions []StudentQuestion `json:"questions"`
}
