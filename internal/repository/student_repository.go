package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// StudentRepository resolves enrollment data.
type StudentRepository struct {
	pool *pgxpool.Pool
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(pool *pgxpool.Pool) *StudentRepository {
	return &StudentRepository{pool: pool}
}

// CurrentClassID returns the student's class in the active period of their
// homebase. pgx.ErrNoRows means the student is not enrolled.
func (r *StudentRepository) CurrentClassID(ctx context.Context, studentID int) (int, error) {
	var classID int
	err := r.pool.QueryRow(ctx,
		`SELECT sc.class_id
		 FROM student_classes sc
		 JOIN academic_periods p ON p.id = sc.period_id AND p.is_active
		 WHERE sc.student_id = $1 AND sc.is_active
		 ORDER BY sc.class_id
		 LIMIT 1`, studentID,
	).Scan(&classID)
	return classID, err
}

// ListByClass returns the students enrolled in the class for the period.
func (r *StudentRepository) ListByClass(ctx context.Context, classID, periodID int) ([]model.RosterStudent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.id, s.nis, s.name
		 FROM student_classes sc
		 JOIN students s ON s.id = sc.student_id
		 WHERE sc.class_id = $1 AND sc.period_id = $2 AND sc.is_active
		 ORDER BY s.name, s.id`, classID, periodID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	students := []model.RosterStudent{}
	for rows.Next() {
		var s model.RosterStudent
		if err := rows.Scan(&s.ID, &s.NIS, &s.Name); err != nil {
			return nil, err
		}
		students = append(students, s)
	}
	return students, rows.Err()
}

// ClassHomebase returns the homebase that owns the class.
func (r *StudentRepository) ClassHomebase(ctx context.Context, classID int) (int, error) {
	var homebaseID int
	err := r.pool.QueryRow(ctx, `SELECT homebase_id FROM classes WHERE id = $1`, classID).Scan(&homebaseID)
	return homebaseID, err
}
