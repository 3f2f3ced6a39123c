package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/monitoring"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
	ws "github.com/stemsi/exstem-cbt/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// FrameLimiter throttles autosave frames per student.
type FrameLimiter interface {
	Allow(key string) bool
}

// WSHandler runs the student autosave stream. Every action goes through the
// same session service as the HTTP endpoints.
type WSHandler struct {
	sessionService *service.ExamSessionService
	limiter        FrameLimiter
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler. limiter may be nil.
func NewWSHandler(sessionService *service.ExamSessionService, limiter FrameLimiter, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		limiter:        limiter,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// ExamWebSocketStream godoc
// WS /ws/student-exams/:id/stream
// Upgrades to WebSocket for autosave, doubt toggles, violation reports and
// finishing.
func (h *WSHandler) ExamWebSocketStream(c *gin.Context) {
	p, examID, ok := principalAndExam(c)
	if !ok {
		return
	}

	// Refuse the upgrade unless the session is working, so the client gets
	// a normal HTTP error it can act on.
	view, err := h.sessionService.State(c.Request.Context(), p.ID, examID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	if view.Status != model.AttendanceWorking && view.Status != model.AttendanceAllowed {
		status, code, _, _ := mapError(&service.StateError{Status: view.Status, Op: "stream"})
		response.FailWithStatus(c, status, code, string(view.Status))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()
	ws.Prepare(conn)

	wsLog := h.log.With().
		Int("student_id", p.ID).
		Str("exam_id", examID.String()).
		Logger()
	wsLog.Info().Msg("Student connected")

	rateKey := "student:" + strconv.Itoa(p.ID)
	ctx := c.Request.Context()

	for {
		var msg ws.Request
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var werr error
		switch msg.Action {
		case ws.ActionAutosave, ws.ActionDoubt:
			if h.limiter != nil && !h.limiter.Allow(rateKey) {
				werr = ws.WriteError(conn, msg.Seq, string(response.ErrRateLimitExceeded), response.GetMessage(response.ErrRateLimitExceeded), "")
				break
			}
			werr = h.handleSave(ctx, conn, p.ID, examID, &msg)
		case ws.ActionViolation:
			status, err := h.sessionService.ReportViolation(ctx, p.ID, examID, msg.Reason)
			werr = h.writeStatus(conn, msg.Seq, string(status), err)
		case ws.ActionFinish:
			status, err := h.sessionService.Finish(ctx, p.ID, examID)
			werr = h.writeStatus(conn, msg.Seq, string(status), err)
		case ws.ActionPing:
			werr = ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong, Seq: msg.Seq})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			werr = ws.WriteError(conn, msg.Seq, string(response.ErrInvalidPayload), "unknown action: "+string(msg.Action), "")
		}
		if werr != nil {
			wsLog.Debug().Err(werr).Msg("Write failed, closing")
			return
		}
	}
}

// handleSave routes autosave and doubt frames to SaveAnswer. A doubt frame
// never touches the stored value.
func (h *WSHandler) handleSave(ctx context.Context, conn *websocket.Conn, studentID int, examID uuid.UUID, msg *ws.Request) error {
	questionID, err := uuid.Parse(msg.QuestionID)
	if err != nil {
		return ws.WriteError(conn, msg.Seq, string(response.ErrInvalidID), "invalid question_id", "")
	}

	in := service.AnswerInput{QuestionID: questionID, IsDoubt: msg.IsDoubt}
	if msg.Action == ws.ActionAutosave {
		in.Value = msg.Value
	} else if msg.IsDoubt == nil {
		return ws.WriteError(conn, msg.Seq, string(response.ErrValidation), "is_doubt is required", "")
	}

	if err := h.sessionService.SaveAnswer(ctx, studentID, examID, in); err != nil {
		monitoring.AnswersSaved.WithLabelValues("ws", "rejected").Inc()
		return h.writeServiceError(conn, msg.Seq, err)
	}

	monitoring.AnswersSaved.WithLabelValues("ws", "saved").Inc()
	return ws.WriteTyped(conn, ws.SavedResponse{Event: ws.EventSaved, Seq: msg.Seq, QuestionID: questionID.String()})
}

func (h *WSHandler) writeStatus(conn *websocket.Conn, seq int64, status string, err error) error {
	if err != nil {
		return h.writeServiceError(conn, seq, err)
	}
	return ws.WriteTyped(conn, ws.StatusResponse{Event: ws.EventStatus, Seq: seq, Status: status})
}

func (h *WSHandler) writeServiceError(conn *websocket.Conn, seq int64, err error) error {
	_, code, status, ok := mapError(err)
	if !ok {
		h.log.Error().Err(err).Msg("Stream action failed")
	}
	return ws.WriteError(conn, seq, string(code), response.GetMessage(code), status)
}
