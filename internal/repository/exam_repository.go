package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// ExamRepository reads exam definitions and their class assignments.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetByID returns the exam joined with its owning teacher.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.pool.QueryRow(ctx,
		`SELECT e.id, e.bank_id, e.name, e.duration_minutes, e.token, e.is_active, e.is_shuffle,
		        e.grade, b.teacher_id, t.homebase_id, e.created_at
		 FROM exams e
		 JOIN question_banks b ON b.id = e.bank_id
		 JOIN teachers t ON t.id = b.teacher_id
		 WHERE e.id = $1`, id,
	).Scan(&e.ID, &e.BankID, &e.Name, &e.DurationMinutes, &e.Token, &e.IsActive, &e.IsShuffle,
		&e.Grade, &e.OwnerTeacherID, &e.OwnerHomebaseID, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// IsAssignedToClass reports whether the exam targets the class.
func (r *ExamRepository) IsAssignedToClass(ctx context.Context, examID uuid.UUID, classID int) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM exam_classes WHERE exam_id = $1 AND class_id = $2)`,
		examID, classID,
	).Scan(&ok)
	return ok, err
}

// GetQuestion returns a question of the exam's bank, without options.
// pgx.ErrNoRows means the question does not belong to the exam.
func (r *ExamRepository) GetQuestion(ctx context.Context, examID, questionID uuid.UUID) (*model.Question, error) {
	q := &model.Question{}
	err := r.pool.QueryRow(ctx,
		`SELECT q.id, q.bank_id, q.q_type, q.content, q.points, q.media_url, q.position
		 FROM questions q
		 JOIN exams e ON e.bank_id = q.bank_id
		 WHERE e.id = $1 AND q.id = $2`, examID, questionID,
	).Scan(&q.ID, &q.BankID, &q.Type, &q.Content, &q.Points, &q.MediaURL, &q.Position)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// ListActiveIDs returns ids of exams currently open for entry.
func (r *ExamRepository) ListActiveIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM exams WHERE is_active ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
