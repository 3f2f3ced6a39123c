package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// PaperService loads exams and their question papers, going through the
// Redis paper cache when one is configured.
type PaperService struct {
	exams     ExamStore
	questions QuestionStore
	cache     PaperCache
	log       zerolog.Logger
}

// NewPaperService creates a new PaperService. cache may be nil.
func NewPaperService(exams ExamStore, questions QuestionStore, cache PaperCache, log zerolog.Logger) *PaperService {
	return &PaperService{
		exams:     exams,
		questions: questions,
		cache:     cache,
		log:       log.With().Str("component", "paper_service").Logger(),
	}
}

// Exam returns the exam or ErrExamNotFound.
func (s *PaperService) Exam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrExamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return exam, nil
}

// Question returns a question of the exam's bank or ErrQuestionNotInExam.
func (s *PaperService) Question(ctx context.Context, examID, questionID uuid.UUID) (*model.Question, error) {
	q, err := s.exams.GetQuestion(ctx, examID, questionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrQuestionNotInExam
	}
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}
	return q, nil
}

// Questions returns the exam's questions in canonical order with answer
// keys. Cache failures fall back to the database.
func (s *PaperService) Questions(ctx context.Context, exam *model.Exam) ([]model.Question, error) {
	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, exam.ID)
		if err != nil {
			s.log.Warn().Err(err).Str("exam_id", exam.ID.String()).Msg("Paper cache read failed")
		} else if ok {
			return cached, nil
		}
	}

	questions, err := s.questions.ListByBank(ctx, exam.BankID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, exam.ID, questions); err != nil {
			s.log.Warn().Err(err).Str("exam_id", exam.ID.String()).Msg("Paper cache write failed")
		}
	}
	return questions, nil
}

// Prewarm loads every active exam into the cache so the first wave of
// students does not hit the database at once.
func (s *PaperService) Prewarm(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}

	ids, err := s.exams.ListActiveIDs(ctx)
	if err != nil {
		return fmt.Errorf("list active exams: %w", err)
	}
	if len(ids) == 0 {
		s.log.Info().Msg("No active exams to prewarm")
		return nil
	}

	warmed := 0
	for _, id := range ids {
		exam, err := s.Exam(ctx, id)
		if err != nil {
			s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Failed to load exam, skipping")
			continue
		}
		questions, err := s.questions.ListByBank(ctx, exam.BankID)
		if err != nil {
			s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Failed to load questions, skipping")
			continue
		}
		if err := s.cache.Set(ctx, exam.ID, questions); err != nil {
			s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Failed to cache paper, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(ids)).
		Msg("Prewarming complete")
	return nil
}
