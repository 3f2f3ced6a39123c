package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// The interfaces below are what the services need from persistence. The
// repository package satisfies them against PostgreSQL and Redis.

type ExamStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	IsAssignedToClass(ctx context.Context, examID uuid.UUID, classID int) (bool, error)
	GetQuestion(ctx context.Context, examID, questionID uuid.UUID) (*model.Question, error)
	ListActiveIDs(ctx context.Context) ([]uuid.UUID, error)
}

type QuestionStore interface {
	ListByBank(ctx context.Context, bankID uuid.UUID) ([]model.Question, error)
}

type EnrollmentStore interface {
	CurrentClassID(ctx context.Context, studentID int) (int, error)
	ListByClass(ctx context.Context, classID, periodID int) ([]model.RosterStudent, error)
	ClassHomebase(ctx context.Context, classID int) (int, error)
}

type AttendanceStore interface {
	Find(ctx context.Context, examID uuid.UUID, studentID int) (*model.Attendance, error)
	Create(ctx context.Context, a *model.Attendance) (bool, error)
	UpdateStatus(ctx context.Context, examID uuid.UUID, studentID int, from []model.AttendanceStatus, to model.AttendanceStatus) (bool, error)
	Allow(ctx context.Context, examID uuid.UUID, studentID int, questionID *uuid.UUID) (bool, error)
	Reset(ctx context.Context, examID uuid.UUID, studentID int) (bool, error)
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Attendance, error)
	ListExpired(ctx context.Context, working []model.AttendanceStatus, grace time.Duration, now time.Time) ([]model.ExpiredSession, error)
	Roster(ctx context.Context, examID uuid.UUID, f model.RosterFilter) ([]model.RosterEntry, int64, error)
}

type AnswerStore interface {
	Upsert(ctx context.Context, examID uuid.UUID, studentID int, questionID uuid.UUID, patch model.AnswerPatch, working []model.AttendanceStatus) (bool, error)
	ListByStudent(ctx context.Context, examID uuid.UUID, studentID int) ([]model.Answer, error)
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Answer, error)
	SetManualScore(ctx context.Context, examID uuid.UUID, studentID int, questionID uuid.UUID, score float64) (bool, error)
}

type RecapStore interface {
	ActivePeriod(ctx context.Context, homebaseID int) (*model.AcademicPeriod, error)
	Marks(ctx context.Context, s model.RecapScope) ([]model.MeetingMark, error)
	Formative(ctx context.Context, s model.RecapScope) ([]model.ScoreEntry, error)
	Summative(ctx context.Context, s model.RecapScope) ([]model.ScoreEntry, error)
	Attitude(ctx context.Context, s model.RecapScope) ([]model.ScoreEntry, error)
	Final(ctx context.Context, s model.RecapScope) ([]model.ScoreEntry, error)
}

type MonitorStore interface {
	StatusCounts(ctx context.Context, examID uuid.UUID) (map[string]int64, error)
	AnsweredCounts(ctx context.Context, examID uuid.UUID) (map[int]int64, error)
	ViolationCounts(ctx context.Context, examID uuid.UUID) (map[int]int64, error)
}

type PaperCache interface {
	Get(ctx context.Context, examID uuid.UUID) ([]model.Question, bool, error)
	Set(ctx context.Context, examID uuid.UUID, questions []model.Question) error
}

type EventPublisher interface {
	Publish(ctx context.Context, evt model.MonitorEvent) error
}

type ViolationSink interface {
	Push(ctx context.Context, events ...model.ViolationEvent) error
}
