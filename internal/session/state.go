// Package session holds the attendance state machine. It is pure: callers
// load the current row, ask Next for the outcome and persist the result.
package session

import (
	"fmt"

	"github.com/stemsi/exstem-cbt/internal/model"
)

// State is the lifecycle state of one (exam, student) pair.
type State int

const (
	NotEntered State = iota
	Working
	Done
	Violation
)

func (s State) String() string {
	switch s {
	case NotEntered:
		return "not_entered"
	case Working:
		return "working"
	case Done:
		return "done"
	case Violation:
		return "violation"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Status returns the status token reported to clients for s.
func (s State) Status() model.AttendanceStatus {
	switch s {
	case Working:
		return model.AttendanceWorking
	case Done:
		return model.AttendanceDone
	case Violation:
		return model.AttendanceViolation
	}
	return model.AttendanceNotEntered
}

// FromStatus maps a stored token to its state. Unknown tokens report false.
func FromStatus(st model.AttendanceStatus) (State, bool) {
	switch st {
	case model.AttendanceWorking, model.AttendanceAllowed:
		return Working, true
	case model.AttendanceDone:
		return Done, true
	case model.AttendanceViolation:
		return Violation, true
	case model.AttendanceNotEntered, "":
		return NotEntered, true
	}
	return NotEntered, false
}

// Reported maps a stored token to the token clients see. izinkan reads as
// mengerjakan; unknown tokens pass through unchanged.
func Reported(st model.AttendanceStatus) model.AttendanceStatus {
	s, ok := FromStatus(st)
	if !ok {
		return st
	}
	return s.Status()
}

// Of returns the state of an optional attendance row; nil means NotEntered.
func Of(a *model.Attendance) (State, error) {
	if a == nil {
		return NotEntered, nil
	}
	s, ok := FromStatus(a.Status)
	if !ok {
		return NotEntered, fmt.Errorf("unknown attendance status %q", a.Status)
	}
	return s, nil
}

// StoredAs lists the stored tokens that represent s, for conditional updates.
func StoredAs(s State) []model.AttendanceStatus {
	switch s {
	case Working:
		return []model.AttendanceStatus{model.AttendanceWorking, model.AttendanceAllowed}
	case Done:
		return []model.AttendanceStatus{model.AttendanceDone}
	case Violation:
		return []model.AttendanceStatus{model.AttendanceViolation}
	}
	return nil
}

// Event is a requested lifecycle action.
type Event int

const (
	Enter Event = iota
	Finish
	ReportViolation
	Allow
	Repeat
	ForceFinish
	// Work covers reading questions and saving answers.
	Work
)

func (e Event) String() string {
	switch e {
	case Enter:
		return "enter"
	case Finish:
		return "finish"
	case ReportViolation:
		return "violation"
	case Allow:
		return "allow"
	case Repeat:
		return "repeat"
	case ForceFinish:
		return "force_finish"
	case Work:
		return "work"
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// TeacherAction reports whether e is a proctor override.
func (e Event) TeacherAction() bool {
	return e == Allow || e == Repeat || e == ForceFinish
}

// Target is the stored token written when e is applied. Repeat deletes the
// row and has no target.
func (e Event) Target() model.AttendanceStatus {
	switch e {
	case Enter:
		return model.AttendanceWorking
	case Allow:
		return model.AttendanceAllowed
	case Finish, ForceFinish:
		return model.AttendanceDone
	case ReportViolation:
		return model.AttendanceViolation
	}
	return ""
}

// Outcome tells the caller whether storage must change.
type Outcome int

const (
	Applied Outcome = iota
	NoOp
)

// TransitionError rejects an event in the current state.
type TransitionError struct {
	From  State
	Event Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Event, e.From)
}

// Next applies ev to cur. It never touches storage.
func Next(cur State, ev Event) (State, Outcome, error) {
	reject := func() (State, Outcome, error) {
		return cur, NoOp, &TransitionError{From: cur, Event: ev}
	}

	switch ev {
	case Enter:
		if cur == NotEntered {
			return Working, Applied, nil
		}
		return reject()

	case Finish:
		switch cur {
		case Working:
			return Done, Applied, nil
		case Done:
			return Done, NoOp, nil
		}
		return reject()

	case ReportViolation:
		switch cur {
		case Working:
			return Violation, Applied, nil
		case Violation:
			return Violation, NoOp, nil
		}
		return reject()

	case Allow:
		if cur == NotEntered {
			return reject()
		}
		return Working, Applied, nil

	case Repeat:
		if cur == NotEntered {
			return reject()
		}
		return NotEntered, Applied, nil

	case ForceFinish:
		if cur == NotEntered {
			return reject()
		}
		return Done, Applied, nil

	case Work:
		if cur == Working {
			return Working, NoOp, nil
		}
		return reject()
	}

	return reject()
}

// RequireWorking guards reads and writes that only make sense mid-exam.
func RequireWorking(cur State) error {
	_, _, err := Next(cur, Work)
	return err
}
