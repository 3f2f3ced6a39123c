package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/scoring"
	"github.com/stemsi/exstem-cbt/internal/session"
)

const (
	defaultRosterPerPage = 20
	maxRosterPerPage     = 100
)

// ReviewItem pairs a question, with its answer key, and the student's answer.
type ReviewItem struct {
	Question model.Question         `json:"question"`
	Answer   *model.Answer          `json:"answer"`
	Result   scoring.QuestionResult `json:"result"`
}

// AnswerReview is the grader's view of one student's exam.
type AnswerReview struct {
	StudentID    int                    `json:"student_id"`
	Status       model.AttendanceStatus `json:"status"`
	Items        []ReviewItem           `json:"items"`
	Correct      int                    `json:"correct"`
	Wrong        int                    `json:"wrong"`
	Unanswered   int                    `json:"unanswered"`
	PendingGrade int                    `json:"pending_grade"`
	RawTotal     float64                `json:"raw_total"`
	Total        float64                `json:"total"`
}

// ProctorService implements teacher and admin actions on exam sessions.
// Every method authorizes the caller against the exam's owner first.
type ProctorService struct {
	papers     *PaperService
	attendance AttendanceStore
	answers    AnswerStore
	scorer     *ScoringService
	events     EventPublisher
	log        zerolog.Logger
}

// NewProctorService creates a new ProctorService. events may be nil.
func NewProctorService(
	papers *PaperService,
	attendance AttendanceStore,
	answers AnswerStore,
	scorer *ScoringService,
	events EventPublisher,
	log zerolog.Logger,
) *ProctorService {
	return &ProctorService{
		papers:     papers,
		attendance: attendance,
		answers:    answers,
		scorer:     scorer,
		events:     events,
		log:        log.With().Str("component", "proctor_service").Logger(),
	}
}

// Authorize loads the exam and checks that p may act on it: a teacher must
// own it, an admin must share the owning teacher's homebase.
func (s *ProctorService) Authorize(ctx context.Context, p model.Principal, examID uuid.UUID) (*model.Exam, error) {
	exam, err := s.papers.Exam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !CanManageExam(p, exam) {
		return nil, ErrForbidden
	}
	return exam, nil
}

// CanManageExam is the ownership rule shared by every proctor action.
func CanManageExam(p model.Principal, exam *model.Exam) bool {
	switch p.Role {
	case model.RoleTeacher:
		return p.ID == exam.OwnerTeacherID
	case model.RoleAdmin:
		return p.HomebaseID != 0 && p.HomebaseID == exam.OwnerHomebaseID
	}
	return false
}

// NormalizeRosterFilter clamps paging to page >= 1 and 1..100 per page.
func NormalizeRosterFilter(f model.RosterFilter) model.RosterFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = defaultRosterPerPage
	}
	if f.PerPage > maxRosterPerPage {
		f.PerPage = maxRosterPerPage
	}
	return f
}

// storedStatuses expands reported status filters to every stored token
// they cover, so mengerjakan also matches readmitted students.
func storedStatuses(reported []model.AttendanceStatus) []model.AttendanceStatus {
	if len(reported) == 0 {
		return nil
	}
	var out []model.AttendanceStatus
	for _, st := range reported {
		state, ok := session.FromStatus(st)
		if !ok || state == session.NotEntered {
			out = append(out, st)
			continue
		}
		out = append(out, session.StoredAs(state)...)
	}
	return out
}

// Roster lists the exam's eligible students with their session status.
func (s *ProctorService) Roster(ctx context.Context, p model.Principal, examID uuid.UUID, f model.RosterFilter) ([]model.RosterEntry, int64, model.RosterFilter, error) {
	f = NormalizeRosterFilter(f)
	if _, err := s.Authorize(ctx, p, examID); err != nil {
		return nil, 0, f, err
	}
	query := f
	query.Statuses = storedStatuses(f.Statuses)
	entries, total, err := s.attendance.Roster(ctx, examID, query)
	if err != nil {
		return nil, 0, f, fmt.Errorf("roster: %w", err)
	}
	for i := range entries {
		entries[i].Status = session.Reported(entries[i].Status)
	}
	return entries, total, f, nil
}

// Allow readmits a student after review. When questionID is set that one
// answer is discarded in the same transaction.
func (s *ProctorService) Allow(ctx context.Context, p model.Principal, examID uuid.UUID, studentID int, questionID *uuid.UUID) error {
	if _, err := s.Authorize(ctx, p, examID); err != nil {
		return err
	}
	if questionID != nil {
		if _, err := s.papers.Question(ctx, examID, *questionID); err != nil {
			return err
		}
	}
	if err := s.checkOverride(ctx, examID, studentID, session.Allow); err != nil {
		return err
	}

	ok, err := s.attendance.Allow(ctx, examID, studentID, questionID)
	if err != nil {
		return fmt.Errorf("allow: %w", err)
	}
	if !ok {
		return ErrAttendanceNotFound
	}

	recordTransition(session.Allow, "applied")
	s.audit(ctx, p, model.MonitorAllowed, examID, studentID, model.AttendanceWorking)
	return nil
}

// Repeat wipes the student's answers and attendance so they can enter again.
func (s *ProctorService) Repeat(ctx context.Context, p model.Principal, examID uuid.UUID, studentID int) error {
	if _, err := s.Authorize(ctx, p, examID); err != nil {
		return err
	}
	ok, err := s.attendance.Reset(ctx, examID, studentID)
	if err != nil {
		return fmt.Errorf("repeat: %w", err)
	}
	if !ok {
		recordTransition(session.Repeat, "rejected")
		return ErrAttendanceNotFound
	}

	recordTransition(session.Repeat, "applied")
	s.audit(ctx, p, model.MonitorReset, examID, studentID, model.AttendanceNotEntered)
	return nil
}

// ForceFinish marks any existing session as done.
func (s *ProctorService) ForceFinish(ctx context.Context, p model.Principal, examID uuid.UUID, studentID int) error {
	if _, err := s.Authorize(ctx, p, examID); err != nil {
		return err
	}
	if err := s.checkOverride(ctx, examID, studentID, session.ForceFinish); err != nil {
		return err
	}

	ok, err := s.attendance.UpdateStatus(ctx, examID, studentID, nil, session.ForceFinish.Target())
	if err != nil {
		return fmt.Errorf("force finish: %w", err)
	}
	if !ok {
		return ErrAttendanceNotFound
	}

	recordTransition(session.ForceFinish, "applied")
	s.audit(ctx, p, model.MonitorForceFinish, examID, studentID, model.AttendanceDone)
	return nil
}

// checkOverride maps a missing row to ErrAttendanceNotFound. Overrides are
// accepted from every other state.
func (s *ProctorService) checkOverride(ctx context.Context, examID uuid.UUID, studentID int, ev session.Event) error {
	att, err := s.attendance.Find(ctx, examID, studentID)
	if err != nil {
		return fmt.Errorf("find attendance: %w", err)
	}
	cur, err := session.Of(att)
	if err != nil {
		return err
	}
	if _, _, err := session.Next(cur, ev); err != nil {
		recordTransition(ev, "rejected")
		return ErrAttendanceNotFound
	}
	return nil
}

// Scores recomputes the whole exam's gradebook.
func (s *ProctorService) Scores(ctx context.Context, p model.Principal, examID uuid.UUID) ([]StudentScore, error) {
	exam, err := s.Authorize(ctx, p, examID)
	if err != nil {
		return nil, err
	}
	return s.scorer.ScoreExam(ctx, exam)
}

// StudentAnswers returns every question with the student's answer and its
// scoring outcome.
func (s *ProctorService) StudentAnswers(ctx context.Context, p model.Principal, examID uuid.UUID, studentID int) (*AnswerReview, error) {
	exam, err := s.Authorize(ctx, p, examID)
	if err != nil {
		return nil, err
	}
	att, err := s.attendance.Find(ctx, examID, studentID)
	if err != nil {
		return nil, fmt.Errorf("find attendance: %w", err)
	}
	if att == nil {
		return nil, ErrAttendanceNotFound
	}

	answers, err := s.answers.ListByStudent(ctx, examID, studentID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	byQuestion := make(map[uuid.UUID]*model.Answer, len(answers))
	for i := range answers {
		byQuestion[answers[i].QuestionID] = &answers[i]
	}

	result, questions, err := s.scorer.ScoreStudent(ctx, exam, studentID)
	if err != nil {
		return nil, err
	}

	review := &AnswerReview{
		StudentID:    studentID,
		Status:       session.Reported(att.Status),
		Items:        make([]ReviewItem, 0, len(questions)),
		Correct:      result.Correct,
		Wrong:        result.Wrong,
		Unanswered:   result.Unanswered,
		PendingGrade: result.PendingGrade,
		RawTotal:     result.RawTotal,
		Total:        result.Total,
	}
	for i, q := range questions {
		review.Items = append(review.Items, ReviewItem{
			Question: q,
			Answer:   byQuestion[q.ID],
			Result:   result.Questions[i],
		})
	}
	return review, nil
}

// GradeAnswer records a manual score for an essay, short-answer or matching
// answer. The score must lie within 0 and the question's points.
func (s *ProctorService) GradeAnswer(ctx context.Context, p model.Principal, examID uuid.UUID, studentID int, questionID uuid.UUID, score float64) error {
	if _, err := s.Authorize(ctx, p, examID); err != nil {
		return err
	}
	q, err := s.papers.Question(ctx, examID, questionID)
	if err != nil {
		return err
	}
	if !q.Type.ManuallyGraded() {
		return ErrNotManuallyGraded
	}
	if score < 0 || score > q.Points {
		return ErrScoreOutOfRange
	}

	ok, err := s.answers.SetManualScore(ctx, examID, studentID, questionID, score)
	if err != nil {
		return fmt.Errorf("set manual score: %w", err)
	}
	if !ok {
		return ErrAnswerNotFound
	}

	s.log.Info().
		Str("exam_id", examID.String()).
		Int("student_id", studentID).
		Str("question_id", questionID.String()).
		Float64("score", score).
		Int("grader_id", p.ID).
		Msg("Answer graded")
	return nil
}

func (s *ProctorService) audit(ctx context.Context, p model.Principal, typ model.MonitorEventType, examID uuid.UUID, studentID int, status model.AttendanceStatus) {
	s.log.Info().
		Str("action", string(typ)).
		Str("exam_id", examID.String()).
		Int("student_id", studentID).
		Str("actor_role", string(p.Role)).
		Int("actor_id", p.ID).
		Msg("Proctor override")

	publishEvent(ctx, s.events, s.log, model.MonitorEvent{
		Type:      typ,
		ExamID:    examID,
		StudentID: studentID,
		Status:    status,
		At:        time.Now(),
	})
}
