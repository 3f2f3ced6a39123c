package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/middleware"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/monitoring"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
	"github.com/stemsi/exstem-cbt/internal/validator"
)

// StudentExamHandler handles the exam-taking endpoints.
type StudentExamHandler struct {
	sessionService *service.ExamSessionService
	log            zerolog.Logger
}

// NewStudentExamHandler creates a new StudentExamHandler.
func NewStudentExamHandler(sessionService *service.ExamSessionService, log zerolog.Logger) *StudentExamHandler {
	return &StudentExamHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "student_exam_handler").Logger(),
	}
}

// Enter godoc
// POST /api/v1/student-exams/enter
// Validates the entry token and opens the session.
func (h *StudentExamHandler) Enter(c *gin.Context) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.EnterExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	examID, err := uuid.Parse(req.ExamID)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	client := service.ClientInfo{
		IP:        middleware.GetClientIP(c),
		UserAgent: c.Request.UserAgent(),
	}
	att, err := h.sessionService.Enter(c.Request.Context(), p.ID, examID, req.Token, client)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"log_id":   att.ID,
		"status":   att.Status,
		"start_at": att.StartAt,
	})
}

// ListQuestions godoc
// GET /api/v1/student-exams/:id/questions
func (h *StudentExamHandler) ListQuestions(c *gin.Context) {
	p, examID, ok := principalAndExam(c)
	if !ok {
		return
	}

	paper, err := h.sessionService.ListQuestions(c.Request.Context(), p.ID, examID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, paper)
}

// ListAnswers godoc
// GET /api/v1/student-exams/:id/answers
func (h *StudentExamHandler) ListAnswers(c *gin.Context) {
	p, examID, ok := principalAndExam(c)
	if !ok {
		return
	}

	answers, err := h.sessionService.Answers(c.Request.Context(), p.ID, examID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"answers": answers})
}

// SaveAnswer godoc
// POST /api/v1/student-exams/:id/answers
// Autosave target. Value and doubt flag are optional and independent.
func (h *StudentExamHandler) SaveAnswer(c *gin.Context) {
	p, examID, ok := principalAndExam(c)
	if !ok {
		return
	}

	var req model.SaveAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	questionID, err := uuid.Parse(req.QuestionID)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	err = h.sessionService.SaveAnswer(c.Request.Context(), p.ID, examID, service.AnswerInput{
		QuestionID: questionID,
		Value:      req.Value,
		IsDoubt:    req.IsDoubt,
	})
	if err != nil {
		monitoring.AnswersSaved.WithLabelValues("http", "rejected").Inc()
		writeError(c, h.log, err)
		return
	}

	monitoring.AnswersSaved.WithLabelValues("http", "saved").Inc()
	response.Success(c, http.StatusOK, gin.H{"question_id": questionID, "saved": true})
}

// State godoc
// GET /api/v1/student-exams/:id/state
// Used by the client to recover after a page reload.
func (h *StudentExamHandler) State(c *gin.Context) {
	p, examID, ok := principalAndExam(c)
	if !ok {
		return
	}

	view, err := h.sessionService.State(c.Request.Context(), p.ID, examID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// ReportViolation godoc
// POST /api/v1/student-exams/:id/violation
func (h *StudentExamHandler) ReportViolation(c *gin.Context) {
	p, examID, ok := principalAndExam(c)
	if !ok {
		return
	}

	var req model.ReportViolationRequest
	if c.Request.ContentLength > 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	status, err := h.sessionService.ReportViolation(c.Request.Context(), p.ID, examID, req.Reason)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": status})
}

// Finish godoc
// POST /api/v1/student-exams/:id/finish
func (h *StudentExamHandler) Finish(c *gin.Context) {
	p, examID, ok := principalAndExam(c)
	if !ok {
		return
	}

	status, err := h.sessionService.Finish(c.Request.Context(), p.ID, examID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": status})
}

// principalAndExam reads the principal and the :id exam parameter, writing
// the error response itself when either is missing.
func principalAndExam(c *gin.Context) (model.Principal, uuid.UUID, bool) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return p, uuid.Nil, false
	}
	examID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return p, uuid.Nil, false
	}
	return p, examID, true
}
