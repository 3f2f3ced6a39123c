package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// Publisher fans attendance changes out to live monitor subscribers.
type Publisher struct {
	rdb *redis.Client
}

// NewPublisher creates a new Publisher.
func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

// Publish sends the event on the exam's monitor channel.
func (p *Publisher) Publish(ctx context.Context, evt model.MonitorEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.rdb.Publish(ctx, config.CacheKey.ExamMonitorChannel(evt.ExamID.String()), data).Err()
}

// Subscribe opens a subscription on the exam's monitor channel. The caller
// closes it.
func (p *Publisher) Subscribe(ctx context.Context, examID string) *redis.PubSub {
	return p.rdb.Subscribe(ctx, config.CacheKey.ExamMonitorChannel(examID))
}
