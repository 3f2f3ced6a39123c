package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/handler"
	"github.com/stemsi/exstem-cbt/internal/logger"
	"github.com/stemsi/exstem-cbt/internal/middleware"
	"github.com/stemsi/exstem-cbt/internal/monitoring"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/tracing"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	StudentExam    *handler.StudentExamHandler
	ExamAttendance *handler.ExamAttendanceHandler
	Recap          *handler.RecapHandler
	Monitor        *handler.MonitorHandler
	WS             *handler.WSHandler
	Health         *handler.HealthHandler
}

// Middlewares carries the stateful middleware built in main.
type Middlewares struct {
	Auth          middleware.TokenValidator
	IPResolver    *middleware.IPResolver
	AnswerLimiter *middleware.RateLimiter
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(handlers *Handlers, mw *Middlewares, cfg *config.Config, log zerolog.Logger) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Request ID first so the access log and every envelope share it.
	router.Use(response.RequestIDMiddleware())
	router.Use(mw.IPResolver.Middleware())
	router.Use(logger.GinMiddleware(log))
	if cfg.TracingEnabled {
		router.Use(tracing.GinMiddleware())
	}
	if cfg.MetricsEnabled {
		router.Use(monitoring.MetricsMiddleware())
		router.GET("/metrics", monitoring.PrometheusHandler())
	}
	router.Use(middleware.Compress(middleware.CompressConfig{SkipPrefixes: []string{"/ws/", "/metrics"}}))

	router.GET("/health", handlers.Health.Health)

	api := router.Group("/api/v1")
	api.Use(middleware.RequireAuth(mw.Auth), middleware.NoStore())

	// ─── 1. Student exam session ───────────────────────────────────────
	student := api.Group("/student-exams")
	student.Use(middleware.RequireStudent())
	{
		student.POST("/enter", handlers.StudentExam.Enter)
		student.GET("/:id/questions", handlers.StudentExam.ListQuestions)
		student.GET("/:id/answers", handlers.StudentExam.ListAnswers)
		student.POST("/:id/answers", mw.AnswerLimiter.Middleware(), handlers.StudentExam.SaveAnswer)
		student.GET("/:id/state", handlers.StudentExam.State)
		student.POST("/:id/violation", handlers.StudentExam.ReportViolation)
		student.POST("/:id/finish", handlers.StudentExam.Finish)
	}

	// ─── 2. Proctor (teacher / admin) ──────────────────────────────────
	attendance := api.Group("/exam-attendance")
	attendance.Use(middleware.RequireStaff())
	{
		attendance.GET("/:id", handlers.ExamAttendance.Roster)
		attendance.PUT("/:id/allow", handlers.ExamAttendance.Allow)
		attendance.DELETE("/:id/repeat", handlers.ExamAttendance.Repeat)
		attendance.PUT("/:id/finish", handlers.ExamAttendance.ForceFinish)
		attendance.GET("/:id/scores", handlers.ExamAttendance.Scores)
		attendance.GET("/:id/student/:sid/answers", handlers.ExamAttendance.StudentAnswers)
		attendance.PUT("/:id/student/:sid/answers/:qid/score", handlers.ExamAttendance.GradeAnswer)
		attendance.GET("/:id/monitor", handlers.Monitor.MonitorExamSSE)
	}

	// ─── 3. Recap ──────────────────────────────────────────────────────
	recap := api.Group("/recap")
	recap.Use(middleware.RequireStaff())
	{
		recap.GET("/student-subject-report", handlers.Recap.StudentSubjectReport)
		recap.GET("/score-monthly", handlers.Recap.MonthlyScores)
		recap.GET("/score-summative", handlers.Recap.SummativeScores)
		recap.GET("/final-score", handlers.Recap.FinalScores)
		recap.GET("/attendance", handlers.Recap.Attendance)
	}

	// ─── 4. WebSocket (token via query) ────────────────────────────────
	ws := router.Group("/ws")
	ws.Use(middleware.RequireAuth(mw.Auth), middleware.RequireStudent())
	{
		ws.GET("/student-exams/:id/stream", handlers.WS.ExamWebSocketStream)
	}

	return router
}
