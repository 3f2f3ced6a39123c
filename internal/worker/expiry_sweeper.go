package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// SessionExpirer closes working sessions that ran past their duration.
type SessionExpirer interface {
	ExpireOverdue(ctx context.Context, grace time.Duration) (int, error)
}

// ExpirySweeper periodically force-finishes overdue sessions. It is off by
// default; clients normally finish on their own timer.
type ExpirySweeper struct {
	sessions SessionExpirer
	interval time.Duration
	grace    time.Duration
	log      zerolog.Logger
}

// NewExpirySweeper creates a new ExpirySweeper.
func NewExpirySweeper(sessions SessionExpirer, interval, grace time.Duration, log zerolog.Logger) *ExpirySweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ExpirySweeper{
		sessions: sessions,
		interval: interval,
		grace:    grace,
		log:      log.With().Str("component", "expiry_sweeper").Logger(),
	}
}

// Start sweeps every interval until ctx is cancelled.
func (s *ExpirySweeper) Start(ctx context.Context) {
	s.log.Info().
		Dur("interval", s.interval).
		Dur("grace", s.grace).
		Msg("Expiry sweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Expiry sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass and returns the number of sessions closed.
func (s *ExpirySweeper) Sweep(ctx context.Context) int {
	closed, err := s.sessions.ExpireOverdue(ctx, s.grace)
	if err != nil {
		s.log.Error().Err(err).Int("closed", closed).Msg("Expiry sweep failed")
		return closed
	}
	if closed > 0 {
		s.log.Info().Int("closed", closed).Msg("Expired overdue sessions")
	}
	return closed
}
