package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/session"
)

// MonitorService builds the live monitor snapshots for proctors.
type MonitorService struct {
	monitor MonitorStore
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(monitor MonitorStore) *MonitorService {
	return &MonitorService{monitor: monitor}
}

// ExamProgress holds answered and violation counts per student.
type ExamProgress struct {
	ByStatus        map[string]int64 `json:"by_status"`
	AnsweredCounts  map[int]int64    `json:"answered_counts"`
	ViolationCounts map[int]int64    `json:"violation_counts"`
	TotalViolations int64            `json:"total_violations"`
}

// Progress fetches the three counters concurrently. Status and answered
// counts are required; violation counts are best-effort. Readmitted
// sessions count as mengerjakan.
func (s *MonitorService) Progress(ctx context.Context, examID uuid.UUID) (*ExamProgress, error) {
	var (
		byStatus   map[string]int64
		answered   map[int]int64
		violations map[int]int64

		statusErr, answeredErr, violationErr error
		wg                                   sync.WaitGroup
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		byStatus, statusErr = s.monitor.StatusCounts(ctx, examID)
	}()
	go func() {
		defer wg.Done()
		answered, answeredErr = s.monitor.AnsweredCounts(ctx, examID)
	}()
	go func() {
		defer wg.Done()
		violations, violationErr = s.monitor.ViolationCounts(ctx, examID)
	}()
	wg.Wait()

	if statusErr != nil {
		return nil, statusErr
	}
	if answeredErr != nil {
		return nil, answeredErr
	}

	p := &ExamProgress{
		ByStatus:        make(map[string]int64, len(byStatus)),
		AnsweredCounts:  answered,
		ViolationCounts: map[int]int64{},
	}
	for st, n := range byStatus {
		p.ByStatus[string(session.Reported(model.AttendanceStatus(st)))] += n
	}
	if p.AnsweredCounts == nil {
		p.AnsweredCounts = map[int]int64{}
	}
	if violationErr == nil && violations != nil {
		p.ViolationCounts = violations
		for _, n := range violations {
			p.TotalViolations += n
		}
	}
	return p, nil
}

// Stats condenses a progress snapshot for the monitor header.
func (p *ExamProgress) Stats(enrolled int64) model.MonitorStats {
	return model.MonitorStats{
		Enrolled:   enrolled,
		ByStatus:   p.ByStatus,
		Violations: p.TotalViolations,
	}
}
