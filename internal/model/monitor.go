package model

import (
	"time"

	"github.com/google/uuid"
)

// MonitorEventType names a live monitor event.
type MonitorEventType string

const (
	MonitorEntered     MonitorEventType = "entered"
	MonitorFinished    MonitorEventType = "finished"
	MonitorViolation   MonitorEventType = "violation"
	MonitorAllowed     MonitorEventType = "allowed"
	MonitorReset       MonitorEventType = "reset"
	MonitorForceFinish MonitorEventType = "force_finished"
	MonitorExpired     MonitorEventType = "expired"
)

// MonitorEvent is published whenever an attendance row changes state.
type MonitorEvent struct {
	Type      MonitorEventType `json:"type"`
	ExamID    uuid.UUID        `json:"exam_id"`
	StudentID int              `json:"student_id"`
	Status    AttendanceStatus `json:"status"`
	At        time.Time        `json:"at"`
}

// MonitorStats summarises an exam for the live monitor.
type MonitorStats struct {
	Enrolled   int64            `json:"enrolled"`
	ByStatus   map[string]int64 `json:"by_status"`
	Violations int64            `json:"violations"`
}
