package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/cache"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/database"
	"github.com/stemsi/exstem-cbt/internal/handler"
	"github.com/stemsi/exstem-cbt/internal/logger"
	"github.com/stemsi/exstem-cbt/internal/middleware"
	"github.com/stemsi/exstem-cbt/internal/monitoring"
	"github.com/stemsi/exstem-cbt/internal/repository"
	"github.com/stemsi/exstem-cbt/internal/router"
	"github.com/stemsi/exstem-cbt/internal/service"
	"github.com/stemsi/exstem-cbt/internal/tracing"
	"github.com/stemsi/exstem-cbt/internal/validator"
	"github.com/stemsi/exstem-cbt/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting ExStem CBT")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	// ─── Observability ─────────────────────────────────────────────────
	if cfg.MetricsEnabled {
		monitoring.Init()
	}
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer("exstem-cbt", cfg.JaegerEndpoint)
		if err != nil {
			log.Warn().Err(err).Msg("Tracing disabled")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tp.Shutdown(ctx); err != nil {
					log.Error().Err(err).Msg("Tracer shutdown error")
				}
			}()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	examRepo := repository.NewExamRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	studentRepo := repository.NewStudentRepository(pool)
	attendanceRepo := repository.NewAttendanceRepository(pool)
	answerRepo := repository.NewAnswerRepository(pool)
	monitorRepo := repository.NewMonitorRepository(pool)
	recapRepo := repository.NewRecapRepository(pool)
	violationRepo := repository.NewViolationRepository(pool)

	// ─── Redis-backed Helpers ──────────────────────────────────────────
	paperCache := cache.NewPaperCache(rdb, cfg.ExamCacheTTL)
	publisher := cache.NewPublisher(rdb)
	violationQueue := cache.NewViolationQueue(rdb)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg.JWTSecret, cfg.JWTExpiry)
	paperService := service.NewPaperService(examRepo, questionRepo, paperCache, log)
	sessionService := service.NewExamSessionService(paperService, studentRepo, attendanceRepo, answerRepo, publisher, violationQueue, log)
	scoringService := service.NewScoringService(paperService, attendanceRepo, answerRepo, log)
	proctorService := service.NewProctorService(paperService, attendanceRepo, answerRepo, scoringService, publisher, log)
	recapService := service.NewRecapService(recapRepo, studentRepo, log)
	monitorService := service.NewMonitorService(monitorRepo)

	// ─── Stateful Middleware ──────────────────────────────────────────
	answerLimiter := middleware.NewRateLimiter(cfg.AutosaveRatePerSec, cfg.AutosaveBurst)
	limiterDone := make(chan struct{})
	defer close(limiterDone)
	go answerLimiter.RunCleanup(limiterDone)

	mw := &router.Middlewares{
		Auth:          authService,
		IPResolver:    middleware.NewIPResolver(cfg.TrustedProxies),
		AnswerLimiter: answerLimiter,
	}

	// ─── Initialize Handlers ──────────────────────────────────────────
	health := func(ctx context.Context) error { return database.Health(ctx, pool, rdb) }
	handlers := &router.Handlers{
		StudentExam:    handler.NewStudentExamHandler(sessionService, log),
		ExamAttendance: handler.NewExamAttendanceHandler(proctorService, log),
		Recap:          handler.NewRecapHandler(recapService, log),
		Monitor:        handler.NewMonitorHandler(proctorService, monitorService, publisher, log),
		WS:             handler.NewWSHandler(sessionService, answerLimiter, log, cfg.AllowedOrigins),
		Health:         handler.NewHealthHandler(health, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	violationWorker := worker.NewViolationLogWorker(violationQueue, violationRepo, log)
	workers.Add(1)
	go func() {
		defer workers.Done()
		violationWorker.Start(workerCtx)
	}()

	if cfg.ExpirySweepEnabled {
		sweeper := worker.NewExpirySweeper(sessionService, cfg.ExpirySweepInterval, cfg.ExpiryGrace, log)
		workers.Add(1)
		go func() {
			defer workers.Done()
			sweeper.Start(workerCtx)
		}()
	}

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load active exam papers before accepting traffic.
	if err := paperService.Prewarm(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(handlers, mw, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers; the violation worker flushes its buffer.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
