package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/middleware"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
	"github.com/stemsi/exstem-cbt/internal/validator"
)

// RecapHandler serves the gradebook recap reports.
type RecapHandler struct {
	recapService *service.RecapService
	log          zerolog.Logger
}

// NewRecapHandler creates a new RecapHandler.
func NewRecapHandler(recapService *service.RecapService, log zerolog.Logger) *RecapHandler {
	return &RecapHandler{
		recapService: recapService,
		log:          log.With().Str("component", "recap_handler").Logger(),
	}
}

// StudentSubjectReport godoc
// GET /api/v1/recap/student-subject-report
func (h *RecapHandler) StudentSubjectReport(c *gin.Context) {
	serveRecap(c, h.log, func(ctx context.Context, p model.Principal, q model.RecapQuery) (any, error) {
		return h.recapService.StudentSubjectReport(ctx, p, q)
	})
}

// MonthlyScores godoc
// GET /api/v1/recap/score-monthly
func (h *RecapHandler) MonthlyScores(c *gin.Context) {
	serveRecap(c, h.log, func(ctx context.Context, p model.Principal, q model.RecapQuery) (any, error) {
		return h.recapService.MonthlyFormative(ctx, p, q)
	})
}

// SummativeScores godoc
// GET /api/v1/recap/score-summative
func (h *RecapHandler) SummativeScores(c *gin.Context) {
	serveRecap(c, h.log, func(ctx context.Context, p model.Principal, q model.RecapQuery) (any, error) {
		return h.recapService.Summative(ctx, p, q)
	})
}

// FinalScores godoc
// GET /api/v1/recap/final-score
func (h *RecapHandler) FinalScores(c *gin.Context) {
	serveRecap(c, h.log, func(ctx context.Context, p model.Principal, q model.RecapQuery) (any, error) {
		return h.recapService.FinalScores(ctx, p, q)
	})
}

// Attendance godoc
// GET /api/v1/recap/attendance
func (h *RecapHandler) Attendance(c *gin.Context) {
	serveRecap(c, h.log, func(ctx context.Context, p model.Principal, q model.RecapQuery) (any, error) {
		return h.recapService.Attendance(ctx, p, q)
	})
}

type recapFunc func(ctx context.Context, p model.Principal, q model.RecapQuery) (any, error)

func serveRecap(c *gin.Context, log zerolog.Logger, fn recapFunc) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var q model.RecapQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	report, err := fn(c.Request.Context(), p, q)
	if err != nil {
		writeError(c, log, err)
		return
	}
	response.Success(c, http.StatusOK, report)
}
