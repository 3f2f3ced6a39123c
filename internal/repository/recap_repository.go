package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// RecapRepository reads gradebook tables for the recap reports.
type RecapRepository struct {
	pool *pgxpool.Pool
}

// NewRecapRepository creates a new RecapRepository.
func NewRecapRepository(pool *pgxpool.Pool) *RecapRepository {
	return &RecapRepository{pool: pool}
}

// ActivePeriod returns the active academic period of the homebase.
// pgx.ErrNoRows means none is active.
func (r *RecapRepository) ActivePeriod(ctx context.Context, homebaseID int) (*model.AcademicPeriod, error) {
	p := &model.AcademicPeriod{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, homebase_id, name, is_active
		 FROM academic_periods
		 WHERE homebase_id = $1 AND is_active`, homebaseID,
	).Scan(&p.ID, &p.HomebaseID, &p.Name, &p.IsActive)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// scopeFilter builds the shared WHERE clause. The teacher filter is only
// applied when the scope carries one.
func scopeFilter(s model.RecapScope, withSemester bool) (string, []any) {
	where := "subject_id = $1 AND class_id = $2 AND period_id = $3"
	args := []any{s.SubjectID, s.ClassID, s.PeriodID}
	if withSemester {
		args = append(args, s.Semester)
		where += fmt.Sprintf(" AND semester = $%d", len(args))
	}
	if s.TeacherID != nil {
		args = append(args, *s.TeacherID)
		where += fmt.Sprintf(" AND teacher_id = $%d", len(args))
	}
	return where, args
}

// Marks returns meeting attendance of the scope. Filtering by semester
// window happens in the aggregator, which owns the month boundaries.
func (r *RecapRepository) Marks(ctx context.Context, s model.RecapScope) ([]model.MeetingMark, error) {
	where, args := scopeFilter(s, false)
	rows, err := r.pool.Query(ctx,
		`SELECT student_id, meeting_date, status
		 FROM class_attendances
		 WHERE `+where+`
		 ORDER BY meeting_date, student_id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	marks := []model.MeetingMark{}
	for rows.Next() {
		var m model.MeetingMark
		if err := rows.Scan(&m.StudentID, &m.Date, &m.Status); err != nil {
			return nil, err
		}
		marks = append(marks, m)
	}
	return marks, rows.Err()
}

// Formative returns formative scores of the scope.
func (r *RecapRepository) Formative(ctx context.Context, s model.RecapScope) ([]model.ScoreEntry, error) {
	where, args := scopeFilter(s, true)
	return r.entries(ctx,
		`SELECT student_id, month, chapter_id, subchapter, '', score
		 FROM formative_scores
		 WHERE `+where+`
		 ORDER BY id`, args...)
}

// Summative returns summative scores of the scope.
func (r *RecapRepository) Summative(ctx context.Context, s model.RecapScope) ([]model.ScoreEntry, error) {
	where, args := scopeFilter(s, true)
	return r.entries(ctx,
		`SELECT student_id, month, chapter_id, '', subtype, score
		 FROM summative_scores
		 WHERE `+where+`
		 ORDER BY id`, args...)
}

// Attitude returns attitude scores of the scope.
func (r *RecapRepository) Attitude(ctx context.Context, s model.RecapScope) ([]model.ScoreEntry, error) {
	where, args := scopeFilter(s, true)
	return r.entries(ctx,
		`SELECT student_id, month, NULL::int, '', '', score
		 FROM attitude_scores
		 WHERE `+where+`
		 ORDER BY id`, args...)
}

// Final returns final scores of the scope. Month is reported as zero.
func (r *RecapRepository) Final(ctx context.Context, s model.RecapScope) ([]model.ScoreEntry, error) {
	where, args := scopeFilter(s, true)
	return r.entries(ctx,
		`SELECT student_id, 0, NULL::int, '', '', score
		 FROM final_scores
		 WHERE `+where+`
		 ORDER BY id`, args...)
}

func (r *RecapRepository) entries(ctx context.Context, query string, args ...any) ([]model.ScoreEntry, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []model.ScoreEntry{}
	for rows.Next() {
		var e model.ScoreEntry
		var subtype string
		if err := rows.Scan(&e.StudentID, &e.Month, &e.ChapterID, &e.Subchapter, &subtype, &e.Score); err != nil {
			return nil, err
		}
		e.Subtype = model.SummativeSubtype(subtype)
		list = append(list, e)
	}
	return list, rows.Err()
}
