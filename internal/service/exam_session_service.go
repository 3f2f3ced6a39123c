package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jinzhu/copier"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/monitoring"
	"github.com/stemsi/exstem-cbt/internal/session"
)

// maxTransitionAttempts bounds the read, decide, conditional-write loop. A
// lost race means another request changed the row in between; one re-read
// is enough to decide against the new state.
const maxTransitionAttempts = 3

var errConcurrentUpdate = errors.New("attendance changed concurrently")

// ClientInfo is what Enter records about the student's device.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// AnswerInput is one autosave call.
type AnswerInput struct {
	QuestionID uuid.UUID
	Value      json.RawMessage
	IsDoubt    *bool
}

// SessionView is returned to a student reloading the exam page.
type SessionView struct {
	LogID            *int64                 `json:"log_id"`
	Status           model.AttendanceStatus `json:"status"`
	StartAt          *time.Time             `json:"start_at"`
	DurationMinutes  int                    `json:"duration_minutes"`
	RemainingSeconds int64                  `json:"remaining_seconds"`
	Answers          []model.Answer         `json:"answers"`
}

// ExamSessionService drives the student side of the attendance lifecycle.
type ExamSessionService struct {
	papers     *PaperService
	enrollment EnrollmentStore
	attendance AttendanceStore
	answers    AnswerStore
	events     EventPublisher
	violations ViolationSink
	now        func() time.Time
	shuffle    func(n int, swap func(i, j int))
	log        zerolog.Logger
}

// NewExamSessionService creates a new ExamSessionService. events and
// violations may be nil.
func NewExamSessionService(
	papers *PaperService,
	enrollment EnrollmentStore,
	attendance AttendanceStore,
	answers AnswerStore,
	events EventPublisher,
	violations ViolationSink,
	log zerolog.Logger,
) *ExamSessionService {
	return &ExamSessionService{
		papers:     papers,
		enrollment: enrollment,
		attendance: attendance,
		answers:    answers,
		events:     events,
		violations: violations,
		now:        time.Now,
		shuffle:    rand.Shuffle,
		log:        log.With().Str("component", "exam_session_service").Logger(),
	}
}

// WithClock replaces the time source. Used by tests and the sweep command.
func (s *ExamSessionService) WithClock(now func() time.Time) *ExamSessionService {
	s.now = now
	return s
}

// WithShuffle replaces the random permutation used for question order and
// matching targets.
func (s *ExamSessionService) WithShuffle(shuffle func(n int, swap func(i, j int))) *ExamSessionService {
	s.shuffle = shuffle
	return s
}

// ─── Enter ──────────────────────────────────────────────────────────────────

// Enter validates the exam and token and opens the student's session. A
// student who already has a row is rejected with that row's status.
func (s *ExamSessionService) Enter(ctx context.Context, studentID int, examID uuid.UUID, token string, client ClientInfo) (*model.Attendance, error) {
	exam, err := s.papers.Exam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !exam.IsActive {
		return nil, ErrExamInactive
	}

	classID, err := s.enrollment.CurrentClassID(ctx, studentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotEnrolled
	}
	if err != nil {
		return nil, fmt.Errorf("resolve class: %w", err)
	}

	assigned, err := s.papers.exams.IsAssignedToClass(ctx, examID, classID)
	if err != nil {
		return nil, fmt.Errorf("check assignment: %w", err)
	}
	if !assigned {
		return nil, ErrExamNotAssigned
	}

	if !tokenMatches(exam.Token, token) {
		return nil, ErrInvalidExamToken
	}

	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		existing, err := s.attendance.Find(ctx, examID, studentID)
		if err != nil {
			return nil, fmt.Errorf("find attendance: %w", err)
		}
		cur, err := session.Of(existing)
		if err != nil {
			return nil, err
		}
		if _, _, err := session.Next(cur, session.Enter); err != nil {
			recordTransition(session.Enter, "rejected")
			return nil, &StateError{Status: cur.Status(), Op: session.Enter.String()}
		}

		att := &model.Attendance{
			ExamID:    examID,
			StudentID: studentID,
			Status:    session.Enter.Target(),
			StartAt:   s.now(),
			IPAddress: client.IP,
			Browser:   client.UserAgent,
		}
		created, err := s.attendance.Create(ctx, att)
		if err != nil {
			return nil, fmt.Errorf("create attendance: %w", err)
		}
		if created {
			recordTransition(session.Enter, "applied")
			s.publish(ctx, model.MonitorEntered, examID, studentID, att.Status)
			s.log.Info().
				Str("exam_id", examID.String()).
				Int("student_id", studentID).
				Str("ip", client.IP).
				Msg("Student entered exam")
			return att, nil
		}
		// Another request created the row first; re-read and reject.
	}
	return nil, fmt.Errorf("enter: %w", errConcurrentUpdate)
}

func tokenMatches(expected, given string) bool {
	expected = strings.TrimSpace(expected)
	return expected != "" && strings.EqualFold(expected, strings.TrimSpace(given))
}

// ─── Questions ──────────────────────────────────────────────────────────────

// ListQuestions returns the paper of a working session without answer keys.
// Question order is shuffled per call when the exam says so, and matching
// targets always come back in a non-canonical order.
func (s *ExamSessionService) ListQuestions(ctx context.Context, studentID int, examID uuid.UUID) (*model.ExamPaper, error) {
	exam, err := s.papers.Exam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireWorking(ctx, examID, studentID, "list_questions"); err != nil {
		return nil, err
	}

	questions, err := s.papers.Questions(ctx, exam)
	if err != nil {
		return nil, err
	}

	paper := &model.ExamPaper{
		Exam:      exam.Summary(),
		Questions: make([]model.StudentQuestion, 0, len(questions)),
	}
	for i := range questions {
		sq, err := s.studentQuestion(&questions[i])
		if err != nil {
			return nil, err
		}
		paper.Questions = append(paper.Questions, sq)
	}

	if exam.IsShuffle {
		s.shuffle(len(paper.Questions), func(i, j int) {
			paper.Questions[i], paper.Questions[j] = paper.Questions[j], paper.Questions[i]
		})
	}
	return paper, nil
}

func (s *ExamSessionService) studentQuestion(q *model.Question) (model.StudentQuestion, error) {
	var sq model.StudentQuestion
	if err := copier.Copy(&sq, q); err != nil {
		return sq, fmt.Errorf("map question: %w", err)
	}
	if sq.Options == nil {
		sq.Options = []model.StudentOption{}
	}

	if q.Type == model.QuestionTypeMatching {
		targets := make([]model.MatchTarget, 0, len(q.Options))
		for _, o := range q.Options {
			if o.Match == nil {
				continue
			}
			targets = append(targets, model.MatchTarget{Key: o.ID, Content: *o.Match})
		}
		sq.Targets = s.scrambleTargets(targets)
	}
	return sq, nil
}

// scrambleTargets shuffles the targets and, when the permutation happens to
// be the identity, rotates them by one so the canonical order never leaks.
func (s *ExamSessionService) scrambleTargets(targets []model.MatchTarget) []model.MatchTarget {
	if len(targets) < 2 {
		return targets
	}
	canonical := make([]uuid.UUID, len(targets))
	for i, t := range targets {
		canonical[i] = t.Key
	}

	s.shuffle(len(targets), func(i, j int) { targets[i], targets[j] = targets[j], targets[i] })

	identity := true
	for i, t := range targets {
		if t.Key != canonical[i] {
			identity = false
			break
		}
	}
	if identity {
		targets = append(targets[1:], targets[0])
	}
	return targets
}

// ─── Answers ────────────────────────────────────────────────────────────────

// SaveAnswer upserts one answer of a working session. Value and doubt flag
// are updated independently; a nil field keeps what is stored.
func (s *ExamSessionService) SaveAnswer(ctx context.Context, studentID int, examID uuid.UUID, in AnswerInput) error {
	if _, err := s.papers.Question(ctx, examID, in.QuestionID); err != nil {
		return err
	}

	patch := model.AnswerPatch{Value: in.Value, IsDoubt: in.IsDoubt}
	saved, err := s.answers.Upsert(ctx, examID, studentID, in.QuestionID, patch, session.StoredAs(session.Working))
	if err != nil {
		return fmt.Errorf("save answer: %w", err)
	}
	if saved {
		return nil
	}

	// The guarded upsert found no working row; report why.
	cur, err := s.currentState(ctx, examID, studentID)
	if err != nil {
		return err
	}
	if err := session.RequireWorking(cur); err != nil {
		return &StateError{Status: cur.Status(), Op: "save_answer"}
	}
	return fmt.Errorf("save answer: %w", errConcurrentUpdate)
}

// Answers returns the student's saved answers for an exam they entered.
func (s *ExamSessionService) Answers(ctx context.Context, studentID int, examID uuid.UUID) ([]model.Answer, error) {
	att, err := s.attendance.Find(ctx, examID, studentID)
	if err != nil {
		return nil, fmt.Errorf("find attendance: %w", err)
	}
	if att == nil {
		return nil, &StateError{Status: model.AttendanceNotEntered, Op: "answers"}
	}
	answers, err := s.answers.ListByStudent(ctx, examID, studentID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	return answers, nil
}

// State reports the session for a page reload. Remaining time is derived
// from start_at and the exam duration on every call.
func (s *ExamSessionService) State(ctx context.Context, studentID int, examID uuid.UUID) (*SessionView, error) {
	exam, err := s.papers.Exam(ctx, examID)
	if err != nil {
		return nil, err
	}
	att, err := s.attendance.Find(ctx, examID, studentID)
	if err != nil {
		return nil, fmt.Errorf("find attendance: %w", err)
	}

	view := &SessionView{
		Status:          model.AttendanceNotEntered,
		DurationMinutes: exam.DurationMinutes,
		Answers:         []model.Answer{},
	}
	if att == nil {
		view.RemainingSeconds = int64(exam.DurationMinutes) * 60
		return view, nil
	}

	cur, err := session.Of(att)
	if err != nil {
		return nil, err
	}
	view.LogID = &att.ID
	view.Status = cur.Status()
	view.StartAt = &att.StartAt
	view.RemainingSeconds = RemainingSeconds(att.StartAt, exam.DurationMinutes, s.now())

	answers, err := s.answers.ListByStudent(ctx, examID, studentID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	view.Answers = answers
	return view, nil
}

// RemainingSeconds is duration minus the time elapsed since start, never
// negative.
func RemainingSeconds(startAt time.Time, durationMinutes int, now time.Time) int64 {
	deadline := startAt.Add(time.Duration(durationMinutes) * time.Minute)
	left := deadline.Sub(now)
	if left <= 0 {
		return 0
	}
	return int64(left / time.Second)
}

// ─── Transitions ────────────────────────────────────────────────────────────

// ReportViolation freezes a working session. Repeating it is a no-op.
// Every accepted report is queued for the violation log.
func (s *ExamSessionService) ReportViolation(ctx context.Context, studentID int, examID uuid.UUID, reason string) (model.AttendanceStatus, error) {
	att, outcome, err := applyTransition(ctx, s.attendance, examID, studentID, session.ReportViolation)
	if err != nil {
		return "", err
	}

	if s.violations != nil {
		evt := model.ViolationEvent{ExamID: examID, StudentID: studentID, Reason: reason, RecordedAt: s.now()}
		if err := s.violations.Push(ctx, evt); err != nil {
			s.log.Error().Err(err).Int("student_id", studentID).Msg("Failed to queue violation log")
		}
	}
	if outcome == session.Applied {
		s.publish(ctx, model.MonitorViolation, examID, studentID, att.Status)
		s.log.Warn().
			Str("exam_id", examID.String()).
			Int("student_id", studentID).
			Str("reason", reason).
			Msg("Violation reported")
	}
	return model.AttendanceViolation, nil
}

// Finish closes a working session. Finishing twice is a no-op.
func (s *ExamSessionService) Finish(ctx context.Context, studentID int, examID uuid.UUID) (model.AttendanceStatus, error) {
	att, outcome, err := applyTransition(ctx, s.attendance, examID, studentID, session.Finish)
	if err != nil {
		return "", err
	}
	if outcome == session.Applied {
		s.publish(ctx, model.MonitorFinished, examID, studentID, att.Status)
	}
	return model.AttendanceDone, nil
}

// ExpireOverdue force-finishes working sessions whose duration plus grace
// has passed. It returns how many sessions were closed.
func (s *ExamSessionService) ExpireOverdue(ctx context.Context, grace time.Duration) (int, error) {
	expired, err := s.attendance.ListExpired(ctx, session.StoredAs(session.Working), grace, s.now())
	if err != nil {
		return 0, fmt.Errorf("list expired: %w", err)
	}

	closed := 0
	for _, e := range expired {
		ok, err := s.attendance.UpdateStatus(ctx, e.ExamID, e.StudentID, session.StoredAs(session.Working), model.AttendanceDone)
		if err != nil {
			return closed, fmt.Errorf("expire session: %w", err)
		}
		if !ok {
			continue
		}
		closed++
		recordTransition(session.ForceFinish, "expired")
		monitoring.SessionsExpired.Inc()
		s.publish(ctx, model.MonitorExpired, e.ExamID, e.StudentID, model.AttendanceDone)
	}
	return closed, nil
}

func (s *ExamSessionService) currentState(ctx context.Context, examID uuid.UUID, studentID int) (session.State, error) {
	att, err := s.attendance.Find(ctx, examID, studentID)
	if err != nil {
		return session.NotEntered, fmt.Errorf("find attendance: %w", err)
	}
	return session.Of(att)
}

func (s *ExamSessionService) requireWorking(ctx context.Context, examID uuid.UUID, studentID int, op string) (session.State, error) {
	cur, err := s.currentState(ctx, examID, studentID)
	if err != nil {
		return cur, err
	}
	if err := session.RequireWorking(cur); err != nil {
		return cur, &StateError{Status: cur.Status(), Op: op}
	}
	return cur, nil
}

func (s *ExamSessionService) publish(ctx context.Context, typ model.MonitorEventType, examID uuid.UUID, studentID int, status model.AttendanceStatus) {
	publishEvent(ctx, s.events, s.log, model.MonitorEvent{
		Type:      typ,
		ExamID:    examID,
		StudentID: studentID,
		Status:    status,
		At:        s.now(),
	})
}

// applyTransition runs a student event against the stored row with a
// conditional write. A lost race re-reads and decides again.
func applyTransition(ctx context.Context, store AttendanceStore, examID uuid.UUID, studentID int, ev session.Event) (*model.Attendance, session.Outcome, error) {
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		att, err := store.Find(ctx, examID, studentID)
		if err != nil {
			return nil, session.NoOp, fmt.Errorf("find attendance: %w", err)
		}
		cur, err := session.Of(att)
		if err != nil {
			return nil, session.NoOp, err
		}

		_, outcome, err := session.Next(cur, ev)
		if err != nil {
			recordTransition(ev, "rejected")
			return att, session.NoOp, &StateError{Status: cur.Status(), Op: ev.String()}
		}
		if outcome == session.NoOp {
			recordTransition(ev, "noop")
			return att, session.NoOp, nil
		}

		ok, err := store.UpdateStatus(ctx, examID, studentID, session.StoredAs(cur), ev.Target())
		if err != nil {
			return nil, session.NoOp, fmt.Errorf("update status: %w", err)
		}
		if ok {
			recordTransition(ev, "applied")
			att.Status = ev.Target()
			return att, session.Applied, nil
		}
	}
	return nil, session.NoOp, fmt.Errorf("%s: %w", ev, errConcurrentUpdate)
}

func recordTransition(ev session.Event, outcome string) {
	monitoring.SessionTransitions.WithLabelValues(ev.String(), outcome).Inc()
}

func publishEvent(ctx context.Context, events EventPublisher, log zerolog.Logger, evt model.MonitorEvent) {
	if events == nil {
		return
	}
	if err := events.Publish(ctx, evt); err != nil {
		log.Warn().Err(err).
			Str("exam_id", evt.ExamID.String()).
			Str("event", string(evt.Type)).
			Msg("Failed to publish monitor event")
	}
}
