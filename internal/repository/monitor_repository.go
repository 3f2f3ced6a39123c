package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MonitorRepository provides the per-student counters shown on the live
// proctor monitor.
type MonitorRepository struct {
	pool *pgxpool.Pool
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool) *MonitorRepository {
	return &MonitorRepository{pool: pool}
}

// StatusCounts returns how many attendance rows of the exam are in each
// stored status.
func (r *MonitorRepository) StatusCounts(ctx context.Context, examID uuid.UUID) (map[string]int64, error) {
	return r.countBy(ctx,
		`SELECT status, COUNT(*) FROM exam_attendances WHERE exam_id = $1 GROUP BY status`, examID)
}

// AnsweredCounts returns the number of non-empty answers per student.
func (r *MonitorRepository) AnsweredCounts(ctx context.Context, examID uuid.UUID) (map[int]int64, error) {
	return r.countByStudent(ctx,
		`SELECT student_id, COUNT(*)
		 FROM exam_answers
		 WHERE exam_id = $1 AND answer_value IS NOT NULL
		 GROUP BY student_id`, examID)
}

// ViolationCounts returns the number of logged violations per student.
func (r *MonitorRepository) ViolationCounts(ctx context.Context, examID uuid.UUID) (map[int]int64, error) {
	return r.countByStudent(ctx,
		`SELECT student_id, COUNT(*)
		 FROM exam_violation_logs
		 WHERE exam_id = $1
		 GROUP BY student_id`, examID)
}

func (r *MonitorRepository) countByStudent(ctx context.Context, query string, examID uuid.UUID) (map[int]int64, error) {
	rows, err := r.pool.Query(ctx, query, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int64)
	for rows.Next() {
		var sid int
		var count int64
		if err := rows.Scan(&sid, &count); err != nil {
			return nil, err
		}
		counts[sid] = count
	}
	return counts, rows.Err()
}

func (r *MonitorRepository) countBy(ctx context.Context, query string, examID uuid.UUID) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, query, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return nil, err
		}
		counts[key] = count
	}
	return counts, rows.Err()
}
