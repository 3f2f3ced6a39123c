package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// ViolationQueue is the Redis list drained by the violation log worker.
type ViolationQueue struct {
	rdb *redis.Client
}

// NewViolationQueue creates a new ViolationQueue.
func NewViolationQueue(rdb *redis.Client) *ViolationQueue {
	return &ViolationQueue{rdb: rdb}
}

// Push appends events to the tail of the queue.
func (q *ViolationQueue) Push(ctx context.Context, events ...model.ViolationEvent) error {
	if len(events) == 0 {
		return nil
	}
	values := make([]any, 0, len(events))
	for _, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal violation: %w", err)
		}
		values = append(values, data)
	}
	return q.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, values...).Err()
}

// Pop blocks up to timeout for the next raw event. It returns redis.Nil when
// the queue stayed empty.
func (q *ViolationQueue) Pop(ctx context.Context, timeout time.Duration) (string, error) {
	result, err := q.rdb.BLPop(ctx, timeout, config.WorkerKey.PersistViolationsQueue).Result()
	if err != nil {
		return "", err
	}
	if len(result) < 2 {
		return "", redis.Nil
	}
	return result[1], nil
}
