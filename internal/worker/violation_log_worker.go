package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/monitoring"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis

	redisBackoff   = 3 * time.Second
	requeueBackoff = 2 * time.Second
	shutdownFlush  = 5 * time.Second
)

// ViolationQueue is the Redis list fed by ReportViolation.
type ViolationQueue interface {
	Pop(ctx context.Context, timeout time.Duration) (string, error)
	Push(ctx context.Context, events ...model.ViolationEvent) error
}

// ViolationWriter persists violation events.
type ViolationWriter interface {
	CopyMany(ctx context.Context, events []model.ViolationEvent) (int64, error)
	Insert(ctx context.Context, e model.ViolationEvent) error
}

// ViolationLogWorker drains the violation queue into exam_violation_logs in
// batches. A failed batch is retried row by row and rows that still fail go
// back to the queue.
type ViolationLogWorker struct {
	queue  ViolationQueue
	writer ViolationWriter
	log    zerolog.Logger
	sleep  func(time.Duration)
}

// NewViolationLogWorker creates a new ViolationLogWorker.
func NewViolationLogWorker(queue ViolationQueue, writer ViolationWriter, log zerolog.Logger) *ViolationLogWorker {
	return &ViolationLogWorker{
		queue:  queue,
		writer: writer,
		log:    log.With().Str("component", "violation_log_worker").Logger(),
		sleep:  time.Sleep,
	}
}

// Start runs until ctx is cancelled, then flushes what it holds.
func (w *ViolationLogWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Violation log worker started")

	buffer := make([]model.ViolationEvent, 0, BatchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 && (len(buffer) >= BatchSize || time.Since(lastFlush) >= BatchTimeout) {
			w.Flush(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		raw, err := w.queue.Pop(ctx, PollTimeout)
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				w.shutdown(buffer)
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, backing off")
			w.sleep(redisBackoff)
			continue
		}

		evt, ok := w.decode(raw)
		if !ok {
			continue
		}
		buffer = append(buffer, evt)
	}
}

// decode parses one queued event. Malformed entries cannot succeed on retry
// and are dropped.
func (w *ViolationLogWorker) decode(raw string) (model.ViolationEvent, bool) {
	var evt model.ViolationEvent
	if err := json.Unmarshal([]byte(raw), &evt); err != nil {
		w.log.Error().Err(err).Str("data", raw).Msg("Discarding malformed violation event")
		return evt, false
	}
	if evt.ExamID == uuid.Nil || evt.StudentID <= 0 {
		w.log.Error().Str("data", raw).Msg("Discarding violation event without exam or student")
		return evt, false
	}
	if evt.RecordedAt.IsZero() {
		evt.RecordedAt = time.Now()
	}
	return evt, true
}

// Flush writes a batch: COPY first, then row by row, then requeue.
func (w *ViolationLogWorker) Flush(ctx context.Context, batch []model.ViolationEvent) {
	n, err := w.writer.CopyMany(ctx, batch)
	if err == nil {
		monitoring.ViolationsPersisted.Add(float64(n))
		return
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk copy failed, attempting row-by-row recovery")

	var failed []model.ViolationEvent
	for _, evt := range batch {
		if err := w.writer.Insert(ctx, evt); err != nil {
			w.log.Error().Err(err).
				Str("exam_id", evt.ExamID.String()).
				Int("student_id", evt.StudentID).
				Msg("Insert failed, requeueing")
			failed = append(failed, evt)
			continue
		}
		monitoring.ViolationsPersisted.Inc()
	}

	if len(failed) > 0 {
		w.requeue(ctx, failed)
	}
}

func (w *ViolationLogWorker) requeue(ctx context.Context, items []model.ViolationEvent) {
	if err := w.queue.Push(ctx, items...); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue violation events. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed violation events")
	// Avoid thrashing while the database is down.
	w.sleep(requeueBackoff)
}

func (w *ViolationLogWorker) shutdown(buffer []model.ViolationEvent) {
	w.log.Info().Int("pending", len(buffer)).Msg("Worker stopping, flushing remaining buffer")
	if len(buffer) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownFlush)
	defer cancel()
	w.Flush(ctx, buffer)
}
