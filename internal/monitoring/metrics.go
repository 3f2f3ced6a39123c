// Package monitoring exposes Prometheus metrics for the HTTP layer and the
// exam session lifecycle.
package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cbt_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cbt_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// SessionTransitions counts attendance changes by event and outcome
	// (applied, noop, rejected).
	SessionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cbt_session_transitions_total",
			Help: "Attendance state transitions by event and outcome",
		},
		[]string{"event", "outcome"},
	)

	AnswersSaved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cbt_answers_saved_total",
			Help: "Autosave calls by transport and result",
		},
		[]string{"transport", "result"},
	)

	ScoringDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cbt_scoring_duration_seconds",
			Help:    "Time spent scoring a whole exam",
			Buckets: prometheus.DefBuckets,
		},
	)

	ViolationsPersisted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cbt_violation_logs_persisted_total",
			Help: "Violation log rows written by the worker",
		},
	)

	SessionsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cbt_sessions_expired_total",
			Help: "Working sessions force-finished by the expiry sweep",
		},
	)
)

var initOnce sync.Once

// Init registers every collector with the default registry. Safe to call
// more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			SessionTransitions,
			AnswersSaved,
			ScoringDuration,
			ViolationsPersisted,
			SessionsExpired,
		)
	})
}

// MetricsMiddleware records count and latency per route template.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		RequestCounter.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			endpoint,
		).Observe(time.Since(start).Seconds())
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
