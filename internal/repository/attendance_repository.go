package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-cbt/internal/database"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// AttendanceRepository owns exam_attendances, the per-(exam, student)
// session rows.
type AttendanceRepository struct {
	pool *pgxpool.Pool
}

// NewAttendanceRepository creates a new AttendanceRepository.
func NewAttendanceRepository(pool *pgxpool.Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

const attendanceColumns = `id, exam_id, student_id, status, start_at, updated_at, ip_address, browser`

func scanAttendance(row pgx.Row) (*model.Attendance, error) {
	a := &model.Attendance{}
	err := row.Scan(&a.ID, &a.ExamID, &a.StudentID, &a.Status, &a.StartAt, &a.UpdatedAt, &a.IPAddress, &a.Browser)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Find returns the row for the pair, or nil when the student has not entered.
func (r *AttendanceRepository) Find(ctx context.Context, examID uuid.UUID, studentID int) (*model.Attendance, error) {
	a, err := scanAttendance(r.pool.QueryRow(ctx,
		`SELECT `+attendanceColumns+`
		 FROM exam_attendances
		 WHERE exam_id = $1 AND student_id = $2`, examID, studentID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// Create inserts a working row. It returns false when another request
// created the row first; the unique (exam_id, student_id) key decides.
func (r *AttendanceRepository) Create(ctx context.Context, a *model.Attendance) (bool, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO exam_attendances (exam_id, student_id, status, start_at, updated_at, ip_address, browser)
		 VALUES ($1, $2, $3, $4, $4, $5, $6)
		 ON CONFLICT (exam_id, student_id) DO NOTHING
		 RETURNING id, start_at, updated_at`,
		a.ExamID, a.StudentID, string(a.Status), a.StartAt, a.IPAddress, a.Browser,
	).Scan(&a.ID, &a.StartAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UpdateStatus moves the row to `to` only while its status is one of
// `from`. It returns false when the row is missing or has moved on.
func (r *AttendanceRepository) UpdateStatus(ctx context.Context, examID uuid.UUID, studentID int, from []model.AttendanceStatus, to model.AttendanceStatus) (bool, error) {
	return updateStatus(ctx, r.pool, examID, studentID, from, to)
}

func updateStatus(ctx context.Context, db DBTX, examID uuid.UUID, studentID int, from []model.AttendanceStatus, to model.AttendanceStatus) (bool, error) {
	query := `UPDATE exam_attendances SET status = $1, updated_at = now()
	          WHERE exam_id = $2 AND student_id = $3`
	args := []any{string(to), examID, studentID}
	if len(from) > 0 {
		args = append(args, statusStrings(from))
		query += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	}

	tag, err := db.Exec(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Allow readmits the student and, when questionID is set, discards that one
// answer. Both happen in one transaction. It returns false when no row exists.
func (r *AttendanceRepository) Allow(ctx context.Context, examID uuid.UUID, studentID int, questionID *uuid.UUID) (bool, error) {
	found := false
	err := database.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		ok, err := updateStatus(ctx, tx, examID, studentID, nil, model.AttendanceAllowed)
		if err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		if !ok {
			return nil
		}
		found = true

		if questionID != nil {
			if _, err := tx.Exec(ctx,
				`DELETE FROM exam_answers WHERE exam_id = $1 AND student_id = $2 AND question_id = $3`,
				examID, studentID, *questionID,
			); err != nil {
				return fmt.Errorf("discard answer: %w", err)
			}
		}
		return nil
	})
	return found, err
}

// Reset deletes every answer and then the attendance row of the pair in one
// transaction. It returns false when no row exists.
func (r *AttendanceRepository) Reset(ctx context.Context, examID uuid.UUID, studentID int) (bool, error) {
	found := false
	err := database.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM exam_answers WHERE exam_id = $1 AND student_id = $2`, examID, studentID,
		); err != nil {
			return fmt.Errorf("delete answers: %w", err)
		}

		tag, err := tx.Exec(ctx,
			`DELETE FROM exam_attendances WHERE exam_id = $1 AND student_id = $2`, examID, studentID,
		)
		if err != nil {
			return fmt.Errorf("delete attendance: %w", err)
		}
		found = tag.RowsAffected() > 0
		return nil
	})
	return found, err
}

// ListByExam returns every attendance row of the exam.
func (r *AttendanceRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Attendance, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attendanceColumns+`
		 FROM exam_attendances
		 WHERE exam_id = $1
		 ORDER BY student_id`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.Attendance
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *a)
	}
	return list, rows.Err()
}

// ListExpired returns rows in one of the working statuses whose time budget
// plus grace ended before now.
func (r *AttendanceRepository) ListExpired(ctx context.Context, working []model.AttendanceStatus, grace time.Duration, now time.Time) ([]model.ExpiredSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.exam_id, a.student_id, a.start_at, e.duration_minutes
		 FROM exam_attendances a
		 JOIN exams e ON e.id = a.exam_id
		 WHERE a.status = ANY($1)
		   AND a.start_at + make_interval(mins => e.duration_minutes) + make_interval(secs => $2) < $3
		 ORDER BY a.start_at
		 LIMIT 500`,
		statusStrings(working), grace.Seconds(), now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.ExpiredSession
	for rows.Next() {
		var s model.ExpiredSession
		if err := rows.Scan(&s.ExamID, &s.StudentID, &s.StartAt, &s.Duration); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// Roster lists every student of the exam's classes with their attendance,
// answered count and violation count.
func (r *AttendanceRepository) Roster(ctx context.Context, examID uuid.UUID, f model.RosterFilter) ([]model.RosterEntry, int64, error) {
	offset := (f.Page - 1) * f.PerPage

	baseQuery := `
		FROM exam_classes ec
		JOIN classes c ON c.id = ec.class_id
		JOIN student_classes sc ON sc.class_id = c.id AND sc.is_active
		JOIN academic_periods p ON p.id = sc.period_id AND p.is_active
		JOIN students s ON s.id = sc.student_id
		LEFT JOIN exam_attendances a ON a.exam_id = ec.exam_id AND a.student_id = s.id
		WHERE ec.exam_id = $1
	`
	args := []any{examID}

	if f.ClassID != nil {
		args = append(args, *f.ClassID)
		baseQuery += fmt.Sprintf(" AND c.id = $%d", len(args))
	}
	switch {
	case f.NotEntered:
		baseQuery += " AND a.id IS NULL"
	case len(f.Statuses) > 0:
		args = append(args, statusStrings(f.Statuses))
		baseQuery += fmt.Sprintf(" AND a.status = ANY($%d)", len(args))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		baseQuery += fmt.Sprintf(" AND (s.name ILIKE $%d OR s.nis ILIKE $%d)", len(args), len(args))
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) "+baseQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT s.id, s.nis, s.name, c.id, c.name,
		       a.id, a.status, a.start_at, a.updated_at, a.ip_address, a.browser,
		       (SELECT COUNT(*) FROM exam_answers x
		         WHERE x.exam_id = ec.exam_id AND x.student_id = s.id AND x.answer_value IS NOT NULL),
		       (SELECT COUNT(*) FROM exam_violation_logs l
		         WHERE l.exam_id = ec.exam_id AND l.student_id = s.id)
		` + baseQuery + fmt.Sprintf(`
		ORDER BY c.name ASC, s.name ASC
		LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, f.PerPage, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := []model.RosterEntry{}
	for rows.Next() {
		var e model.RosterEntry
		var status *string
		if err := rows.Scan(
			&e.StudentID, &e.NIS, &e.Name, &e.ClassID, &e.ClassName,
			&e.LogID, &status, &e.StartAt, &e.UpdatedAt, &e.IPAddress, &e.Browser,
			&e.AnsweredCount, &e.ViolationCount,
		); err != nil {
			return nil, 0, err
		}
		e.Status = model.AttendanceNotEntered
		if status != nil {
			e.Status = model.AttendanceStatus(*status)
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}
