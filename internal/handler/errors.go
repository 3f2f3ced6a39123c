package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
)

type errMapping struct {
	status int
	code   response.ErrCode
}

var serviceErrors = map[error]errMapping{
	service.ErrExamNotFound:       {http.StatusNotFound, response.ErrExamNotFound},
	service.ErrQuestionNotInExam:  {http.StatusNotFound, response.ErrQuestionNotFound},
	service.ErrAttendanceNotFound: {http.StatusNotFound, response.ErrLogNotFound},
	service.ErrAnswerNotFound:     {http.StatusNotFound, response.ErrAnswerNotFound},
	service.ErrClassNotFound:      {http.StatusNotFound, response.ErrClassNotFound},
	service.ErrNoActivePeriod:     {http.StatusNotFound, response.ErrNoActivePeriod},
	service.ErrExamInactive:       {http.StatusForbidden, response.ErrExamNotAvailable},
	service.ErrExamNotAssigned:    {http.StatusForbidden, response.ErrExamNotAssigned},
	service.ErrNotEnrolled:        {http.StatusForbidden, response.ErrNotEnrolled},
	service.ErrInvalidExamToken:   {http.StatusBadRequest, response.ErrInvalidEntryToken},
	service.ErrNotManuallyGraded:  {http.StatusBadRequest, response.ErrNotManualQuestion},
	service.ErrScoreOutOfRange:    {http.StatusBadRequest, response.ErrScoreOutOfRange},
	service.ErrForbidden:          {http.StatusForbidden, response.ErrForbidden},
}

var stateCodes = map[model.AttendanceStatus]response.ErrCode{
	model.AttendanceViolation:  response.ErrSessionViolation,
	model.AttendanceDone:       response.ErrSessionDone,
	model.AttendanceWorking:    response.ErrSessionInProgress,
	model.AttendanceNotEntered: response.ErrSessionNotEntered,
}

// mapError resolves a service error into an HTTP status, an error code and,
// for state conflicts, the session status. ok is false for unexpected errors.
func mapError(err error) (status int, code response.ErrCode, sessionStatus string, ok bool) {
	if se, isState := service.AsStateError(err); isState {
		code, found := stateCodes[se.Status]
		if !found {
			code = response.ErrForbidden
		}
		return http.StatusForbidden, code, string(se.Status), true
	}

	for target, m := range serviceErrors {
		if errors.Is(err, target) {
			return m.status, m.code, "", true
		}
	}
	return http.StatusInternalServerError, response.ErrInternal, "", false
}

// writeError maps a service error onto the response envelope. State
// conflicts carry the session status so the client can reconcile.
func writeError(c *gin.Context, log zerolog.Logger, err error) {
	status, code, sessionStatus, ok := mapError(err)
	if !ok {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}
	if sessionStatus != "" {
		response.FailWithStatus(c, status, code, sessionStatus)
		return
	}
	response.Fail(c, status, code)
}
