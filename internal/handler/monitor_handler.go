package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop

	snapshotPageSize = 100
	snapshotMaxPages = 20
)

// MonitorSubscriber opens the Redis channel carrying an exam's monitor events.
type MonitorSubscriber interface {
	Subscribe(ctx context.Context, examID string) *redis.PubSub
}

// MonitorHandler streams the live proctor view over Server-Sent Events.
type MonitorHandler struct {
	proctorService *service.ProctorService
	monitorService *service.MonitorService
	subscriber     MonitorSubscriber
	log            zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(
	proctorService *service.ProctorService,
	monitorService *service.MonitorService,
	subscriber MonitorSubscriber,
	log zerolog.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		proctorService: proctorService,
		monitorService: monitorService,
		subscriber:     subscriber,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorExamSSE godoc
// GET /api/v1/exam-attendance/:id/monitor
// Sends a roster snapshot, then forwards state changes as they happen and a
// compact progress refresh every few seconds.
func (h *MonitorHandler) MonitorExamSSE(c *gin.Context) {
	p, examID, ok := principalAndExam(c)
	if !ok {
		return
	}

	reqCtx := c.Request.Context()
	exam, err := h.proctorService.Authorize(reqCtx, p, examID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	if err := h.sendSnapshot(c, reqCtx, p, exam); err != nil {
		h.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to build monitor snapshot")
	}

	pubsub := h.subscriber.Subscribe(reqCtx, examID.String())
	defer pubsub.Close()
	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()
	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	h.log.Info().
		Str("exam_id", examID.String()).
		Int("proctor_id", p.ID).
		Msg("Proctor attached to live monitor")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("exam_id", examID.String()).Msg("Proctor detached from live monitor")
			return

		case msg, open := <-ch:
			if !open {
				return
			}
			// The payload is already a JSON-encoded MonitorEvent.
			c.Render(-1, sseRaw{event: "change", data: msg.Payload})
			c.Writer.Flush()

		case <-refreshTicker.C:
			h.sendRefresh(c, reqCtx, examID)

		case <-keepAliveTicker.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			c.Writer.Flush()
		}
	}
}

// sendSnapshot writes the full roster and status counts.
func (h *MonitorHandler) sendSnapshot(c *gin.Context, ctx context.Context, p model.Principal, exam *model.Exam) error {
	fetchCtx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	var (
		students []model.RosterEntry
		total    int64
	)
	for page := 1; page <= snapshotMaxPages; page++ {
		entries, n, _, err := h.proctorService.Roster(fetchCtx, p, exam.ID, model.RosterFilter{Page: page, PerPage: snapshotPageSize})
		if err != nil {
			return err
		}
		total = n
		students = append(students, entries...)
		if int64(len(students)) >= total || len(entries) == 0 {
			break
		}
	}

	stats := model.MonitorStats{Enrolled: total, ByStatus: map[string]int64{}}
	if progress, err := h.monitorService.Progress(fetchCtx, exam.ID); err == nil {
		stats = progress.Stats(total)
	}

	c.SSEvent("snapshot", gin.H{
		"exam":     exam.Summary(),
		"stats":    stats,
		"students": students,
	})
	c.Writer.Flush()
	return nil
}

// sendRefresh polls the counters and sends a compact refresh event.
func (h *MonitorHandler) sendRefresh(c *gin.Context, parentCtx context.Context, examID uuid.UUID) {
	ctx, cancel := context.WithTimeout(parentCtx, refreshTimeout)
	defer cancel()

	progress, err := h.monitorService.Progress(ctx, examID)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to fetch exam progress for refresh")
		return
	}

	c.SSEvent("refresh", progress)
	c.Writer.Flush()
}

// sseRaw writes an already-encoded JSON payload as one SSE event.
type sseRaw struct {
	event string
	data  string
}

func (r sseRaw) Render(w http.ResponseWriter) error {
	_, err := w.Write([]byte("event:" + r.event + "\ndata:" + r.data + "\n\n"))
	return err
}

func (r sseRaw) WriteContentType(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
}
