// Package cache keeps Redis-backed helpers: the exam paper cache, the live
// monitor publisher and the violation persistence queue.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// PaperCache stores an exam's questions with their options, answer keys
// included. It is never served to students as is.
type PaperCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPaperCache creates a new PaperCache. A zero ttl keeps entries forever.
func NewPaperCache(rdb *redis.Client, ttl time.Duration) *PaperCache {
	return &PaperCache{rdb: rdb, ttl: ttl}
}

// Get returns the cached questions. The bool is false on a miss.
func (c *PaperCache) Get(ctx context.Context, examID uuid.UUID) ([]model.Question, bool, error) {
	data, err := c.rdb.Get(ctx, config.CacheKey.ExamPayloadKey(examID.String())).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get paper: %w", err)
	}

	var questions []model.Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, false, fmt.Errorf("unmarshal paper: %w", err)
	}
	return questions, true, nil
}

// Set caches the questions of the exam.
func (c *PaperCache) Set(ctx context.Context, examID uuid.UUID, questions []model.Question) error {
	data, err := json.Marshal(questions)
	if err != nil {
		return fmt.Errorf("marshal paper: %w", err)
	}
	if err := c.rdb.Set(ctx, config.CacheKey.ExamPayloadKey(examID.String()), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set paper: %w", err)
	}
	return nil
}
