package model

import (
	"time"

	"github.com/google/uuid"
)

// AttendanceStatus is the stored status token of an attendance row.
type AttendanceStatus string

const (
	AttendanceWorking   AttendanceStatus = "mengerjakan"
	AttendanceAllowed   AttendanceStatus = "izinkan"
	AttendanceDone      AttendanceStatus = "selesai"
	AttendanceViolation AttendanceStatus = "pelanggaran"

	// AttendanceNotEntered is never stored; it is reported when no row exists.
	AttendanceNotEntered AttendanceStatus = "belum_masuk"
)

// Valid reports whether s may be persisted.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceWorking, AttendanceAllowed, AttendanceDone, AttendanceViolation:
		return true
	}
	return false
}

// Attendance is the session record of one student in one exam.
type Attendance struct {
	ID        int64            `json:"id"`
	ExamID    uuid.UUID        `json:"exam_id"`
	StudentID int              `json:"student_id"`
	Status    AttendanceStatus `json:"status"`
	StartAt   time.Time        `json:"start_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	IPAddress string           `json:"ip_address"`
	Browser   string           `json:"browser"`
}

// RosterEntry is one student row in the proctor roster. Attendance fields
// are nil for students who have not entered.
type RosterEntry struct {
	StudentID      int              `json:"student_id"`
	NIS            string           `json:"nis"`
	Name           string           `json:"name"`
	ClassID        int              `json:"class_id"`
	ClassName      string           `json:"class_name"`
	LogID          *int64           `json:"log_id"`
	Status         AttendanceStatus `json:"status"`
	StartAt        *time.Time       `json:"start_at"`
	UpdatedAt      *time.Time       `json:"updated_at"`
	IPAddress      *string          `json:"ip_address"`
	Browser        *string          `json:"browser"`
	AnsweredCount  int              `json:"answered_count"`
	ViolationCount int              `json:"violation_count"`
}

// RosterFilter narrows the roster query. NotEntered selects students
// without a row; Statuses selects rows by stored token.
type RosterFilter struct {
	ClassID    *int
	Statuses   []AttendanceStatus
	NotEntered bool
	Search     string
	Page       int
	PerPage    int
}

// RosterQuery is the query string of the roster endpoint.
type RosterQuery struct {
	ClassID *int   `form:"class_id" binding:"omitempty,min=1"`
	Status  string `form:"status" binding:"omitempty,oneof=belum_masuk mengerjakan selesai pelanggaran"`
	Search  string `form:"search" binding:"omitempty,max=100"`
	Page    int    `form:"page"`
	PerPage int    `form:"per_page"`
}

// ExpiredSession identifies a working session past its time budget.
type ExpiredSession struct {
	ExamID    uuid.UUID
	StudentID int
	StartAt   time.Time
	Duration  int
}

// ViolationEvent is queued for persistence whenever a violation is reported.
type ViolationEvent struct {
	ExamID     uuid.UUID `json:"exam_id"`
	StudentID  int       `json:"student_id"`
	Reason     string    `json:"reason"`
	RecordedAt time.Time `json:"recorded_at"`
}

// ReportViolationRequest is the optional body of a violation report.
type ReportViolationRequest struct {
	Reason string `json:"reason" binding:"omitempty,max=255"`
}

// AllowRequest readmits a student, optionally discarding one answer.
type AllowRequest struct {
	StudentID  int     `json:"student_id" binding:"required,min=1"`
	QuestionID *string `json:"question_id" binding:"omitempty,uuid"`
}

// StudentActionRequest identifies the student for repeat and force-finish.
type StudentActionRequest struct {
	StudentID int `json:"student_id" binding:"required,min=1"`
}
