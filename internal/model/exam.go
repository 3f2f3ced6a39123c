package model

import (
	"time"

	"github.com/google/uuid"
)

// Exam is a timed instance binding one question bank to one or more classes.
// OwnerTeacherID and OwnerHomebaseID come from the bank's owning teacher.
type Exam struct {
	ID              uuid.UUID `json:"id"`
	BankID          uuid.UUID `json:"bank_id"`
	Name            string    `json:"name"`
	DurationMinutes int       `json:"duration_minutes"`
	Token           string    `json:"-"`
	IsActive        bool      `json:"is_active"`
	IsShuffle       bool      `json:"is_shuffle"`
	Grade           int       `json:"grade"`
	OwnerTeacherID  int       `json:"owner_teacher_id"`
	OwnerHomebaseID int       `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
}

// ExamSummary is the exam metadata students see alongside their questions.
type ExamSummary struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	DurationMinutes int       `json:"duration_minutes"`
	IsShuffle       bool      `json:"is_shuffle"`
	Grade           int       `json:"grade"`
}

// Summary strips owner and token details from the exam.
func (e *Exam) Summary() ExamSummary {
	return ExamSummary{
		ID:              e.ID,
		Name:            e.Name,
		DurationMinutes: e.DurationMinutes,
		IsShuffle:       e.IsShuffle,
		Grade:           e.Grade,
	}
}

// EnterExamRequest is the payload for a student entering an exam.
type EnterExamRequest struct {
	ExamID string `json:"exam_id" binding:"required,uuid"`
	Token  string `json:"token" binding:"required,examtoken"`
}
