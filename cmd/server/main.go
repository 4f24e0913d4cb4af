package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/testhub/testhub-backend/internal/config"
	"github.com/testhub/testhub-backend/internal/database"
	"github.com/testhub/testhub-backend/internal/handler"
	"github.com/testhub/testhub-backend/internal/logger"
	"github.com/testhub/testhub-backend/internal/repository"
	"github.com/testhub/testhub-backend/internal/router"
	"github.com/testhub/testhub-backend/internal/service"
	"github.com/testhub/testhub-backend/internal/storage"
	"github.com/testhub/testhub-backend/internal/validator"
	"github.com/testhub/testhub-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Str("storage", cfg.StorageDriver).
		Msg("Starting TestHub Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

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

	// ─── Object Storage ────────────────────────────────────────────────
	store, err := storage.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize object storage")
	}
	urls := storage.NewResolver(store, storage.NewRedisURLCache(rdb), cfg.SignedURLTTL, log)
	localStore, _ := store.(*storage.LocalStore)

	// ─── Initialize Repositories ───────────────────────────────────────
	userRepo := repository.NewUserRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	examRepo := repository.NewExamRepository(pool)
	submissionRepo := repository.NewSubmissionRepository(pool)
	resultsRepo := repository.NewResultsRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, userRepo, rdb, log)
	userService := service.NewUserService(userRepo, authService, log)
	questionService := service.NewQuestionService(questionRepo, urls, log)
	examService := service.NewExamService(pool, examRepo, questionRepo, rdb, log)
	submissionService := service.NewSubmissionService(cfg, pool, submissionRepo, questionRepo, userRepo, examService, urls, rdb, log)
	resultsService := service.NewResultsService(resultsRepo, submissionRepo, userRepo, examRepo, questionRepo, examService, rdb)
	mediaService := service.NewMediaService(cfg, store, urls)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:          handler.NewAuthHandler(authService, userService),
		User:          handler.NewUserHandler(userService),
		Question:      handler.NewQuestionHandler(questionService),
		Exam:          handler.NewExamHandler(examService),
		StudentPortal: handler.NewStudentPortalHandler(submissionService),
		Results:       handler.NewResultsHandler(resultsService, submissionService, log),
		Media:         handler.NewMediaHandler(mediaService, localStore),
		WS:            handler.NewWSHandler(submissionService, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	autosaveWorker := worker.NewAutosaveWorker(submissionRepo, rdb, log)
	scoringWorker := worker.NewScoringWorker(resultsRepo, rdb, log)

	workers.Go(func() { autosaveWorker.Start(workerCtx) })
	workers.Go(func() { scoringWorker.Start(workerCtx) })

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load visible exams into Redis before accepting traffic.
	if err := examService.PrewarmAllCaches(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(ctx, authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

	// 2. Stop background workers and wait for their queues to drain.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
