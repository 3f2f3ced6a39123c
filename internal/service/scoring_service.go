package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/monitoring"
	"github.com/stemsi/exstem-cbt/internal/scoring"
	"github.com/stemsi/exstem-cbt/internal/session"
	"github.com/stemsi/exstem-cbt/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// StudentScore is one row of the live gradebook of an exam.
type StudentScore struct {
	StudentID int                    `json:"student_id"`
	LogID     int64                  `json:"log_id"`
	Status    model.AttendanceStatus `json:"status"`
	StartAt   time.Time              `json:"start_at"`
	Result    scoring.Result         `json:"result"`
}

// ScoringService recomputes scores from stored answers. It never writes.
type ScoringService struct {
	papers     *PaperService
	attendance AttendanceStore
	answers    AnswerStore
	log        zerolog.Logger
}

// NewScoringService creates a new ScoringService.
func NewScoringService(papers *PaperService, attendance AttendanceStore, answers AnswerStore, log zerolog.Logger) *ScoringService {
	return &ScoringService{
		papers:     papers,
		attendance: attendance,
		answers:    answers,
		log:        log.With().Str("component", "scoring_service").Logger(),
	}
}

// ScoreExam scores every student who entered the exam, ordered by student.
func (s *ScoringService) ScoreExam(ctx context.Context, exam *model.Exam) ([]StudentScore, error) {
	ctx, span := tracing.Tracer().Start(ctx, "scoring.ScoreExam")
	defer span.End()
	span.SetAttributes(attribute.String("exam.id", exam.ID.String()))

	start := time.Now()
	defer func() { monitoring.ScoringDuration.Observe(time.Since(start).Seconds()) }()

	questions, err := s.papers.Questions(ctx, exam)
	if err != nil {
		return nil, err
	}
	attendances, err := s.attendance.ListByExam(ctx, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	answers, err := s.answers.ListByExam(ctx, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	byStudent := make(map[int]map[uuid.UUID]model.Answer, len(attendances))
	for _, a := range answers {
		m, ok := byStudent[a.StudentID]
		if !ok {
			m = make(map[uuid.UUID]model.Answer)
			byStudent[a.StudentID] = m
		}
		m[a.QuestionID] = a
	}

	scores := make([]StudentScore, 0, len(attendances))
	for _, att := range attendances {
		scores = append(scores, StudentScore{
			StudentID: att.StudentID,
			LogID:     att.ID,
			Status:    session.Reported(att.Status),
			StartAt:   att.StartAt,
			Result:    scoring.ScoreExam(att.StudentID, questions, byStudent[att.StudentID]),
		})
	}

	span.SetAttributes(attribute.Int("students", len(scores)), attribute.Int("questions", len(questions)))
	return scores, nil
}

// ScoreStudent scores one student's answers. The student need not have a
// row; missing answers count as unanswered.
func (s *ScoringService) ScoreStudent(ctx context.Context, exam *model.Exam, studentID int) (scoring.Result, []model.Question, error) {
	ctx, span := tracing.Tracer().Start(ctx, "scoring.ScoreStudent")
	defer span.End()

	questions, err := s.papers.Questions(ctx, exam)
	if err != nil {
		return scoring.Result{}, nil, err
	}
	answers, err := s.answers.ListByStudent(ctx, exam.ID, studentID)
	if err != nil {
		return scoring.Result{}, nil, fmt.Errorf("list answers: %w", err)
	}

	byQuestion := make(map[uuid.UUID]model.Answer, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}
	return scoring.ScoreExam(studentID, questions, byQuestion), questions, nil
}
