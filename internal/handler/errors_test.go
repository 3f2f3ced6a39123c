package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		status        int
		code          response.ErrCode
		sessionStatus string
		known         bool
	}{
		{"exam not found", service.ErrExamNotFound, http.StatusNotFound, response.ErrExamNotFound, "", true},
		{"wrapped lookup", fmt.Errorf("load: %w", service.ErrAttendanceNotFound), http.StatusNotFound, response.ErrLogNotFound, "", true},
		{"bad token", service.ErrInvalidExamToken, http.StatusBadRequest, response.ErrInvalidEntryToken, "", true},
		{"not owner", service.ErrForbidden, http.StatusForbidden, response.ErrForbidden, "", true},
		{"violation", &service.StateError{Status: model.AttendanceViolation, Op: "save_answer"}, http.StatusForbidden, response.ErrSessionViolation, "pelanggaran", true},
		{"done", &service.StateError{Status: model.AttendanceDone, Op: "save_answer"}, http.StatusForbidden, response.ErrSessionDone, "selesai", true},
		{"wrapped state", fmt.Errorf("enter: %w", &service.StateError{Status: model.AttendanceWorking}), http.StatusForbidden, response.ErrSessionInProgress, "mengerjakan", true},
		{"not entered", &service.StateError{Status: model.AttendanceNotEntered}, http.StatusForbidden, response.ErrSessionNotEntered, "belum_masuk", true},
		{"unmapped status", &service.StateError{Status: model.AttendanceAllowed}, http.StatusForbidden, response.ErrForbidden, "izinkan", true},
		{"unexpected", errors.New("connection reset"), http.StatusInternalServerError, response.ErrInternal, "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, code, sessionStatus, known := mapError(tc.err)
			if status != tc.status || code != tc.code || sessionStatus != tc.sessionStatus || known != tc.known {
				t.Fatalf("mapError = (%d, %s, %q, %v), want (%d, %s, %q, %v)",
					status, code, sessionStatus, known, tc.status, tc.code, tc.sessionStatus, tc.known)
			}
		})
	}
}
