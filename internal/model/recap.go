package model

import "time"

// AcademicPeriod is a school year such as "2025/2026".
type AcademicPeriod struct {
	ID         int    `json:"id"`
	HomebaseID int    `json:"homebase_id"`
	Name       string `json:"name"`
	IsActive   bool   `json:"is_active"`
}

// MeetingStatus is the attendance mark of one class meeting.
type MeetingStatus string

const (
	MeetingPresent MeetingStatus = "hadir"
	MeetingLate    MeetingStatus = "telat"
	MeetingSick    MeetingStatus = "sakit"
	MeetingPermit  MeetingStatus = "izin"
	MeetingAbsent  MeetingStatus = "alpa"
)

// Attended reports whether the mark counts toward the attendance percentage.
func (s MeetingStatus) Attended() bool {
	return s == MeetingPresent || s == MeetingLate
}

// MeetingMark is one recorded meeting for a student.
type MeetingMark struct {
	StudentID int           `json:"student_id"`
	Date      time.Time     `json:"date"`
	Status    MeetingStatus `json:"status"`
}

// SummativeSubtype separates written and skill sub-scores.
type SummativeSubtype string

const (
	SummativeWritten SummativeSubtype = "written"
	SummativeSkill   SummativeSubtype = "skill"
)

// ScoreEntry is one gradebook score (formative, summative, attitude, final).
// Month is 1..12; ChapterID and Subchapter are empty for attitude and final.
type ScoreEntry struct {
	StudentID  int              `json:"student_id"`
	Month      int              `json:"month"`
	ChapterID  *int             `json:"chapter_id,omitempty"`
	Subchapter string           `json:"subchapter,omitempty"`
	Subtype    SummativeSubtype `json:"subtype,omitempty"`
	Score      float64          `json:"score"`
}

// RosterStudent is a student enrolled in the recap class.
type RosterStudent struct {
	ID   int    `json:"id"`
	NIS  string `json:"nis"`
	Name string `json:"name"`
}

// RecapScope identifies the slice of the gradebook being aggregated.
type RecapScope struct {
	HomebaseID int
	SubjectID  int
	ClassID    int
	Semester   int
	TeacherID  *int
	PeriodID   int
}

// RecapQuery is the query string accepted by every recap endpoint.
type RecapQuery struct {
	SubjectID int  `form:"subject_id" binding:"required,min=1"`
	ClassID   int  `form:"class_id" binding:"required,min=1"`
	Semester  int  `form:"semester" binding:"required,oneof=1 2"`
	TeacherID *int `form:"teacher_id" binding:"omitempty,min=1"`
}
