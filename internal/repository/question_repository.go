package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// QuestionRepository loads question banks with their options.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByBank returns every question of the bank in canonical order, each
// with its options in canonical order.
func (r *QuestionRepository) ListByBank(ctx context.Context, bankID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, bank_id, q_type, content, points, media_url, position
		 FROM questions
		 WHERE bank_id = $1
		 ORDER BY position, id`, bankID,
	)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	var questions []model.Question
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.BankID, &q.Type, &q.Content, &q.Points, &q.MediaURL, &q.Position); err != nil {
			return nil, err
		}
		q.Options = []model.Option{}
		index[q.ID] = len(questions)
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return questions, nil
	}

	optRows, err := r.pool.Query(ctx,
		`SELECT o.id, o.question_id, o.content, o.match_content, o.is_correct, o.position
		 FROM question_options o
		 JOIN questions q ON q.id = o.question_id
		 WHERE q.bank_id = $1
		 ORDER BY o.question_id, o.position, o.id`, bankID,
	)
	if err != nil {
		return nil, fmt.Errorf("query options: %w", err)
	}
	defer optRows.Close()

	for optRows.Next() {
		var o model.Option
		if err := optRows.Scan(&o.ID, &o.QuestionID, &o.Content, &o.Match, &o.IsCorrect, &o.Position); err != nil {
			return nil, err
		}
		if i, ok := index[o.QuestionID]; ok {
			questions[i].Options = append(questions[i].Options, o)
		}
	}
	return questions, optRows.Err()
}
