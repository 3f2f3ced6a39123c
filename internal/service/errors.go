package service

import (
	"errors"
	"fmt"

	"github.com/stemsi/exstem-cbt/internal/model"
)

// Lookup and authorization errors shared by the session, proctor and recap
// services.
var (
	ErrExamNotFound       = errors.New("exam not found")
	ErrExamInactive       = errors.New("exam is not active")
	ErrExamNotAssigned    = errors.New("exam is not assigned to the student's class")
	ErrNotEnrolled        = errors.New("student has no class in the active period")
	ErrInvalidExamToken   = errors.New("invalid exam token")
	ErrAttendanceNotFound = errors.New("log not found")
	ErrQuestionNotInExam  = errors.New("question does not belong to the exam")
	ErrAnswerNotFound     = errors.New("answer not found")
	ErrNotManuallyGraded  = errors.New("question type is scored automatically")
	ErrScoreOutOfRange    = errors.New("score exceeds question points")
	ErrForbidden          = errors.New("caller does not own the resource")
	ErrNoActivePeriod     = errors.New("no active academic period")
	ErrClassNotFound      = errors.New("class not found")
)

// StateError rejects an operation because of the session's current status.
// Status is what the client should reconcile its UI to.
type StateError struct {
	Status model.AttendanceStatus
	Op     string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s rejected: session is %s", e.Op, e.Status)
}

// AsStateError unwraps err into a *StateError.
func AsStateError(err error) (*StateError, bool) {
	var se *StateError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
