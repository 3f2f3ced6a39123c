package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Answer is one student's saved answer to one question of an exam.
// Value holds raw JSON whose shape depends on the question type.
type Answer struct {
	ExamID      uuid.UUID       `json:"exam_id"`
	StudentID   int             `json:"student_id"`
	QuestionID  uuid.UUID       `json:"question_id"`
	Value       json.RawMessage `json:"answer_value"`
	ManualScore *float64        `json:"manual_score"`
	IsDoubt     bool            `json:"is_doubt"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// MatchPair is one left/right pairing of a matching answer.
type MatchPair struct {
	Left  uuid.UUID `json:"left"`
	Right uuid.UUID `json:"right"`
}

// AnswerPatch carries the fields a save call wants to change. Nil fields
// keep their stored value.
type AnswerPatch struct {
	Value   json.RawMessage
	IsDoubt *bool
}

// SaveAnswerRequest is the autosave payload.
type SaveAnswerRequest struct {
	QuestionID string          `json:"question_id" binding:"required,uuid"`
	Value      json.RawMessage `json:"answer_value"`
	IsDoubt    *bool           `json:"is_doubt"`
}

// GradeAnswerRequest sets the manual score of one answer.
type GradeAnswerRequest struct {
	Score *float64 `json:"score" binding:"required,min=0"`
}
