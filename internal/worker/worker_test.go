package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/model"
)

type fakeQueue struct {
	mu     sync.Mutex
	pushed []model.ViolationEvent
}

func (q *fakeQueue) Pop(ctx context.Context, _ time.Duration) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (q *fakeQueue) Push(_ context.Context, events ...model.ViolationEvent) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pushed = append(q.pushed, events...)
	return nil
}

type fakeWriter struct {
	copyErr  error
	failFor  map[int]bool
	inserted []model.ViolationEvent
	copied   int
}

func (w *fakeWriter) CopyMany(_ context.Context, events []model.ViolationEvent) (int64, error) {
	if w.copyErr != nil {
		return 0, w.copyErr
	}
	w.copied += len(events)
	return int64(len(events)), nil
}

func (w *fakeWriter) Insert(_ context.Context, e model.ViolationEvent) error {
	if w.failFor[e.StudentID] {
		return errors.New("insert failed")
	}
	w.inserted = append(w.inserted, e)
	return nil
}

func newTestWorker(q *fakeQueue, w *fakeWriter) *ViolationLogWorker {
	vw := NewViolationLogWorker(q, w, zerolog.Nop())
	vw.sleep = func(time.Duration) {}
	return vw
}

func TestViolationLogWorkerFlush(t *testing.T) {
	exam := uuid.New()
	batch := []model.ViolationEvent{
		{ExamID: exam, StudentID: 1, Reason: "tab switch"},
		{ExamID: exam, StudentID: 2, Reason: "fullscreen exit"},
		{ExamID: exam, StudentID: 3, Reason: "tab switch"},
	}

	t.Run("bulk copy", func(t *testing.T) {
		q, w := &fakeQueue{}, &fakeWriter{}
		newTestWorker(q, w).Flush(context.Background(), batch)

		if w.copied != 3 || len(w.inserted) != 0 || len(q.pushed) != 0 {
			t.Errorf("copied=%d inserted=%d requeued=%d, want 3/0/0", w.copied, len(w.inserted), len(q.pushed))
		}
	})

	t.Run("fallback and requeue", func(t *testing.T) {
		q := &fakeQueue{}
		w := &fakeWriter{copyErr: errors.New("copy failed"), failFor: map[int]bool{2: true}}
		newTestWorker(q, w).Flush(context.Background(), batch)

		if len(w.inserted) != 2 {
			t.Errorf("inserted = %d, want 2", len(w.inserted))
		}
		if len(q.pushed) != 1 || q.pushed[0].StudentID != 2 {
			t.Errorf("requeued = %+v, want student 2 only", q.pushed)
		}
	})
}

func TestViolationLogWorkerDecode(t *testing.T) {
	vw := newTestWorker(&fakeQueue{}, &fakeWriter{})
	exam := uuid.New()

	tests := []struct {
		name string
		raw  string
		ok   bool
	}{
		{name: "valid", raw: `{"exam_id":"` + exam.String() + `","student_id":4,"reason":"x","recorded_at":"2026-03-02T08:00:00Z"}`, ok: true},
		{name: "missing timestamp is filled", raw: `{"exam_id":"` + exam.String() + `","student_id":4}`, ok: true},
		{name: "malformed json", raw: `{"exam_id":`, ok: false},
		{name: "missing student", raw: `{"exam_id":"` + exam.String() + `"}`, ok: false},
		{name: "bad uuid", raw: `{"exam_id":"nope","student_id":4}`, ok: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			evt, ok := vw.decode(tc.raw)
			if ok != tc.ok {
				t.Fatalf("decode ok = %v, want %v", ok, tc.ok)
			}
			if ok && evt.RecordedAt.IsZero() {
				t.Error("RecordedAt should be set")
			}
		})
	}
}

func TestViolationLogWorkerShutdownFlushes(t *testing.T) {
	q, w := &fakeQueue{}, &fakeWriter{}
	vw := newTestWorker(q, w)

	vw.shutdown([]model.ViolationEvent{{ExamID: uuid.New(), StudentID: 9}})
	if w.copied != 1 {
		t.Errorf("copied = %d, want 1", w.copied)
	}
}

type fakeExpirer struct {
	closed int
	err    error
	grace  time.Duration
}

func (f *fakeExpirer) ExpireOverdue(_ context.Context, grace time.Duration) (int, error) {
	f.grace = grace
	return f.closed, f.err
}

func TestExpirySweeperSweep(t *testing.T) {
	exp := &fakeExpirer{closed: 3}
	s := NewExpirySweeper(exp, 0, 2*time.Minute, zerolog.Nop())

	if got := s.Sweep(context.Background()); got != 3 {
		t.Errorf("Sweep() = %d, want 3", got)
	}
	if exp.grace != 2*time.Minute {
		t.Errorf("grace = %v, want 2m", exp.grace)
	}
	if s.interval != time.Minute {
		t.Errorf("interval = %v, want default 1m", s.interval)
	}

	exp.err = errors.New("db down")
	exp.closed = 1
	if got := s.Sweep(context.Background()); got != 1 {
		t.Errorf("Sweep() on error = %d, want 1", got)
	}
}
