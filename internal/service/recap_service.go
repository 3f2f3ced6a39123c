package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/recap"
	"github.com/stemsi/exstem-cbt/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// RecapContext is the resolved scope shared by every recap report.
type RecapContext struct {
	Period   model.AcademicPeriod  `json:"period"`
	Window   recap.Window          `json:"window"`
	Scope    model.RecapScope      `json:"-"`
	Students []model.RosterStudent `json:"-"`
}

// StudentReport is the per-student subject summary.
type StudentReport struct {
	Period model.AcademicPeriod `json:"period"`
	Window recap.Window         `json:"window"`
	Rows   []recap.ReportRow    `json:"rows"`
}

// MatrixReport is a month-by-slot score table.
type MatrixReport struct {
	Period model.AcademicPeriod `json:"period"`
	recap.Matrix
}

// AttendanceReport is the monthly attendance table.
type AttendanceReport struct {
	Period model.AcademicPeriod `json:"period"`
	recap.AttendanceSheet
}

// RecapService projects gradebook tables into reports. It keeps no state
// between calls.
type RecapService struct {
	recaps     RecapStore
	enrollment EnrollmentStore
	now        func() time.Time
	log        zerolog.Logger
}

// NewRecapService creates a new RecapService.
func NewRecapService(recaps RecapStore, enrollment EnrollmentStore, log zerolog.Logger) *RecapService {
	return &RecapService{
		recaps:     recaps,
		enrollment: enrollment,
		now:        time.Now,
		log:        log.With().Str("component", "recap_service").Logger(),
	}
}

// WithClock replaces the time source used for the period-name fallback.
func (s *RecapService) WithClock(now func() time.Time) *RecapService {
	s.now = now
	return s
}

// Resolve checks the caller's homebase against the class, finds the active
// period and derives the semester window.
func (s *RecapService) Resolve(ctx context.Context, p model.Principal, q model.RecapQuery) (*RecapContext, error) {
	if p.Role != model.RoleTeacher && p.Role != model.RoleAdmin {
		return nil, ErrForbidden
	}

	homebaseID, err := s.enrollment.ClassHomebase(ctx, q.ClassID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrClassNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("class homebase: %w", err)
	}
	if homebaseID != p.HomebaseID {
		return nil, ErrForbidden
	}

	period, err := s.recaps.ActivePeriod(ctx, homebaseID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoActivePeriod
	}
	if err != nil {
		return nil, fmt.Errorf("active period: %w", err)
	}

	students, err := s.enrollment.ListByClass(ctx, q.ClassID, period.ID)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}

	return &RecapContext{
		Period: *period,
		Window: recap.SemesterWindow(period.Name, q.Semester, s.now()),
		Scope: model.RecapScope{
			HomebaseID: homebaseID,
			SubjectID:  q.SubjectID,
			ClassID:    q.ClassID,
			Semester:   q.Semester,
			TeacherID:  q.TeacherID,
			PeriodID:   period.ID,
		},
		Students: students,
	}, nil
}

// StudentSubjectReport averages every score type per student and reports
// attendance percentage.
func (s *RecapService) StudentSubjectReport(ctx context.Context, p model.Principal, q model.RecapQuery) (*StudentReport, error) {
	ctx, span := tracing.Tracer().Start(ctx, "recap.StudentSubjectReport")
	defer span.End()

	rc, err := s.Resolve(ctx, p, q)
	if err != nil {
		return nil, err
	}
	src, err := s.sources(ctx, rc.Scope, true)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("students", len(rc.Students)))

	return &StudentReport{
		Period: rc.Period,
		Window: rc.Window,
		Rows:   recap.BuildReport(rc.Window, rc.Students, src),
	}, nil
}

// FinalScores reports the score averages without attendance.
func (s *RecapService) FinalScores(ctx context.Context, p model.Principal, q model.RecapQuery) (*StudentReport, error) {
	ctx, span := tracing.Tracer().Start(ctx, "recap.FinalScores")
	defer span.End()

	rc, err := s.Resolve(ctx, p, q)
	if err != nil {
		return nil, err
	}
	src, err := s.sources(ctx, rc.Scope, false)
	if err != nil {
		return nil, err
	}

	return &StudentReport{
		Period: rc.Period,
		Window: rc.Window,
		Rows:   recap.BuildReport(rc.Window, rc.Students, src),
	}, nil
}

// MonthlyFormative is the formative score matrix.
func (s *RecapService) MonthlyFormative(ctx context.Context, p model.Principal, q model.RecapQuery) (*MatrixReport, error) {
	ctx, span := tracing.Tracer().Start(ctx, "recap.MonthlyFormative")
	defer span.End()

	rc, err := s.Resolve(ctx, p, q)
	if err != nil {
		return nil, err
	}
	entries, err := s.recaps.Formative(ctx, rc.Scope)
	if err != nil {
		return nil, fmt.Errorf("formative scores: %w", err)
	}
	return &MatrixReport{
		Period: rc.Period,
		Matrix: recap.BuildMatrix(rc.Window, rc.Students, entries, recap.FormativeSlot),
	}, nil
}

// Summative is the summative score matrix, written and skill side by side.
func (s *RecapService) Summative(ctx context.Context, p model.Principal, q model.RecapQuery) (*MatrixReport, error) {
	ctx, span := tracing.Tracer().Start(ctx, "recap.Summative")
	defer span.End()

	rc, err := s.Resolve(ctx, p, q)
	if err != nil {
		return nil, err
	}
	entries, err := s.recaps.Summative(ctx, rc.Scope)
	if err != nil {
		return nil, fmt.Errorf("summative scores: %w", err)
	}
	return &MatrixReport{
		Period: rc.Period,
		Matrix: recap.BuildMatrix(rc.Window, rc.Students, entries, recap.SummativeSlot),
	}, nil
}

// Attendance is the monthly meeting attendance table.
func (s *RecapService) Attendance(ctx context.Context, p model.Principal, q model.RecapQuery) (*AttendanceReport, error) {
	ctx, span := tracing.Tracer().Start(ctx, "recap.Attendance")
	defer span.End()

	rc, err := s.Resolve(ctx, p, q)
	if err != nil {
		return nil, err
	}
	marks, err := s.recaps.Marks(ctx, rc.Scope)
	if err != nil {
		return nil, fmt.Errorf("meeting marks: %w", err)
	}
	return &AttendanceReport{
		Period:          rc.Period,
		AttendanceSheet: recap.BuildAttendance(rc.Window, rc.Students, marks),
	}, nil
}

func (s *RecapService) sources(ctx context.Context, scope model.RecapScope, withMarks bool) (recap.Sources, error) {
	var src recap.Sources
	var err error

	if withMarks {
		if src.Marks, err = s.recaps.Marks(ctx, scope); err != nil {
			return src, fmt.Errorf("meeting marks: %w", err)
		}
	}
	if src.Formative, err = s.recaps.Formative(ctx, scope); err != nil {
		return src, fmt.Errorf("formative scores: %w", err)
	}
	if src.Summative, err = s.recaps.Summative(ctx, scope); err != nil {
		return src, fmt.Errorf("summative scores: %w", err)
	}
	if src.Attitude, err = s.recaps.Attitude(ctx, scope); err != nil {
		return src, fmt.Errorf("attitude scores: %w", err)
	}
	if src.Final, err = s.recaps.Final(ctx, scope); err != nil {
		return src, fmt.Errorf("final scores: %w", err)
	}
	return src, nil
}
