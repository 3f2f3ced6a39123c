package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// ViolationRepository appends to exam_violation_logs.
type ViolationRepository struct {
	pool *pgxpool.Pool
}

// NewViolationRepository creates a new ViolationRepository.
func NewViolationRepository(pool *pgxpool.Pool) *ViolationRepository {
	return &ViolationRepository{pool: pool}
}

var violationColumns = []string{"exam_id", "student_id", "reason", "recorded_at"}

// CopyMany bulk-inserts a batch with the COPY protocol.
func (r *ViolationRepository) CopyMany(ctx context.Context, events []model.ViolationEvent) (int64, error) {
	return r.pool.CopyFrom(ctx,
		pgx.Identifier{"exam_violation_logs"},
		violationColumns,
		pgx.CopyFromSlice(len(events), func(i int) ([]any, error) {
			e := events[i]
			return []any{e.ExamID, e.StudentID, e.Reason, e.RecordedAt}, nil
		}),
	)
}

// Insert writes a single event.
func (r *ViolationRepository) Insert(ctx context.Context, e model.ViolationEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO exam_violation_logs (exam_id, student_id, reason, recorded_at)
		 VALUES ($1, $2, $3, $4)`,
		e.ExamID, e.StudentID, e.Reason, e.RecordedAt,
	)
	return err
}
