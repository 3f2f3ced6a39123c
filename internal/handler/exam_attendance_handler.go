package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
	"github.com/stemsi/exstem-cbt/internal/validator"
)

// ExamAttendanceHandler handles proctor endpoints: roster, overrides,
// scores and manual grading.
type ExamAttendanceHandler struct {
	proctorService *service.ProctorService
	log            zerolog.Logger
}

// NewExamAttendanceHandler creates a new ExamAttendanceHandler.
func NewExamAttendanceHandler(proctorService *service.ProctorService, log zerolog.Logger) *ExamAttendanceHandler {
	return &ExamAttendanceHandler{
		proctorService: proctorService,
		log:            log.With().Str("component", "exam_attendance_handler").Logger(),
	}
}

// Roster godoc
// GET /api/v1/exam-attendance/:id
// Lists eligible students with their session status. Students without a
// row are reported as belum_masuk.
func (h *ExamAttendanceHandler) Roster(c *gin.Context) {
	p, examID, ok := principalAndExam(c)
	if !ok {
		return
	}

	var q model.RosterQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	filter := model.RosterFilter{
		ClassID: q.ClassID,
		Search:  q.Search,
		Page:    q.Page,
		PerPage: q.PerPage,
	}
	switch status := model.AttendanceStatus(q.Status); {
	case status == "":
	case status == model.AttendanceNotEntered:
		filter.NotEntered = true
	default:
		filter.Statuses = []model.AttendanceStatus{status}
	}

	entries, total, filter, err := h.proctorService.Roster(c.Request.Context(), p, examID, filter)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"students": entries},
		response.NewPagination(filter.Page, filter.PerPage, total))
}

// Allow godoc
// PUT /api/v1/exam-attendance/:id/allow
// Readmits a student after a violation, optionally discarding one answer.
func (h *ExamAttendanceHandler) Allow(c *gin.Context) {
	p, examID, ok := principalAndExam(c)
	if !ok {
		return
	}

	var req model.AllowRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	var questionID *uuid.UUID
	if req.QuestionID != nil && *req.QuestionID != "" {
		id, err := uuid.Parse(*req.QuestionID)
		if err != nil {
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
			return
		}
		questionID = &id
	}

	if err := h.proctorService.Allow(c.Request.Context(), p, examID, req.StudentID, questionID); err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"student_id": req.StudentID, "status": model.AttendanceAllowed})
}

// Repeat godoc
// DELETE /api/v1/exam-attendance/:id/repeat
// Wipes the student's answers and attendance so they can enter again.
func (h *ExamAttendanceHandler) Repeat(c *gin.Context) {
	p, examID, ok := principalAndExam(c)
	if !ok {
		return
	}

	var req model.StudentActionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.proctorService.Repeat(c.Request.Context(), p, examID, req.StudentID); err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"student_id": req.StudentID, "status": model.AttendanceNotEntered})
}

// ForceFinish godoc
// PUT /api/v1/exam-attendance/:id/finish
func (h *ExamAttendanceHandler) ForceFinish(c *gin.Context) {
	p, examID, ok := principalAndExam(c)
	if !ok {
		return
	}

	var req model.StudentActionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.proctorService.ForceFinish(c.Request.Context(), p, examID, req.StudentID); err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"student_id": req.StudentID, "status": model.AttendanceDone})
}

// Scores godoc
// GET /api/v1/exam-attendance/:id/scores
// Recomputes every student's score from stored answers.
func (h *ExamAttendanceHandler) Scores(c *gin.Context) {
	p, examID, ok := principalAndExam(c)
	if !ok {
		return
	}

	scores, err := h.proctorService.Scores(c.Request.Context(), p, examID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"scores": scores})
}

// StudentAnswers godoc
// GET /api/v1/exam-attendance/:id/student/:sid/answers
func (h *ExamAttendanceHandler) StudentAnswers(c *gin.Context) {
	p, examID, ok := principalAndExam(c)
	if !ok {
		return
	}
	studentID, ok := studentParam(c)
	if !ok {
		return
	}

	review, err := h.proctorService.StudentAnswers(c.Request.Context(), p, examID, studentID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, review)
}

// GradeAnswer godoc
// PUT /api/v1/exam-attendance/:id/student/:sid/answers/:qid/score
func (h *ExamAttendanceHandler) GradeAnswer(c *gin.Context) {
	p, examID, ok := principalAndExam(c)
	if !ok {
		return
	}
	studentID, ok := studentParam(c)
	if !ok {
		return
	}
	questionID, err := uuid.Parse(c.Param("qid"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.GradeAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.proctorService.GradeAnswer(c.Request.Context(), p, examID, studentID, questionID, *req.Score); err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"student_id":   studentID,
		"question_id":  questionID,
		"manual_score": *req.Score,
	})
}

func studentParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("sid"))
	if err != nil || id < 1 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, false
	}
	return id, true
}
