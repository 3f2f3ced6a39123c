package repository

import (
	"bytes"
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// AnswerRepository owns exam_answers.
type AnswerRepository struct {
	pool *pgxpool.Pool
}

// NewAnswerRepository creates a new AnswerRepository.
func NewAnswerRepository(pool *pgxpool.Pool) *AnswerRepository {
	return &AnswerRepository{pool: pool}
}

// Upsert writes the patch only while the attendance row is in one of the
// working statuses. The status check and the write are a single statement,
// so a concurrent finish or violation cannot slip between them. It returns
// false when the session is not working.
func (r *AnswerRepository) Upsert(ctx context.Context, examID uuid.UUID, studentID int, questionID uuid.UUID, patch model.AnswerPatch, working []model.AttendanceStatus) (bool, error) {
	// A JSON null clears the stored value; an absent value keeps it.
	var value any
	hasValue := patch.Value != nil
	if hasValue && !bytes.Equal(bytes.TrimSpace(patch.Value), []byte("null")) {
		value = string(patch.Value)
	}

	tag, err := r.pool.Exec(ctx,
		`INSERT INTO exam_answers (exam_id, student_id, question_id, answer_value, is_doubt, updated_at)
		 SELECT $1, $2, $3, $4::jsonb, COALESCE($5::boolean, FALSE), now()
		 WHERE EXISTS (
		     SELECT 1 FROM exam_attendances
		     WHERE exam_id = $1 AND student_id = $2 AND status = ANY($6)
		 )
		 ON CONFLICT (exam_id, student_id, question_id) DO UPDATE SET
		     answer_value = CASE WHEN $7::boolean THEN EXCLUDED.answer_value ELSE exam_answers.answer_value END,
		     is_doubt     = COALESCE($5::boolean, exam_answers.is_doubt),
		     updated_at   = now()`,
		examID, studentID, questionID, value, patch.IsDoubt, statusStrings(working), hasValue,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

const answerColumns = `exam_id, student_id, question_id, answer_value, manual_score, is_doubt, updated_at`

// ListByStudent returns the student's answers for the exam.
func (r *AnswerRepository) ListByStudent(ctx context.Context, examID uuid.UUID, studentID int) ([]model.Answer, error) {
	return r.list(ctx,
		`SELECT `+answerColumns+` FROM exam_answers
		 WHERE exam_id = $1 AND student_id = $2
		 ORDER BY question_id`, examID, studentID)
}

// ListByExam returns every answer of the exam ordered by student.
func (r *AnswerRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Answer, error) {
	return r.list(ctx,
		`SELECT `+answerColumns+` FROM exam_answers
		 WHERE exam_id = $1
		 ORDER BY student_id, question_id`, examID)
}

func (r *AnswerRepository) list(ctx context.Context, query string, args ...any) ([]model.Answer, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	answers := []model.Answer{}
	for rows.Next() {
		var a model.Answer
		var raw []byte
		if err := rows.Scan(&a.ExamID, &a.StudentID, &a.QuestionID, &raw, &a.ManualScore, &a.IsDoubt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		if raw != nil {
			a.Value = raw
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// SetManualScore stores a grader's score. It returns false when the student
// never saved an answer for the question.
func (r *AnswerRepository) SetManualScore(ctx context.Context, examID uuid.UUID, studentID int, questionID uuid.UUID, score float64) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_answers SET manual_score = $4, updated_at = now()
		 WHERE exam_id = $1 AND student_id = $2 AND question_id = $3`,
		examID, studentID, questionID, score,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
