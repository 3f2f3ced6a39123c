package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/response"
)

const healthTimeout = 3 * time.Second

// HealthHandler reports whether PostgreSQL and Redis are reachable.
type HealthHandler struct {
	check     func(ctx context.Context) error
	startTime time.Time
	log       zerolog.Logger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(check func(ctx context.Context) error, log zerolog.Logger) *HealthHandler {
	return &HealthHandler{
		check:     check,
		startTime: time.Now(),
		log:       log.With().Str("component", "health_handler").Logger(),
	}
}

// Health godoc
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	if err := h.check(ctx); err != nil {
		h.log.Warn().Err(err).Msg("Health check failed")
		response.Fail(c, http.StatusServiceUnavailable, response.ErrUnavailable)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(h.startTime).Truncate(time.Second).String(),
	})
}
