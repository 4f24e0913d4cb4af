package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/testhub/testhub-backend/internal/config"
	"github.com/testhub/testhub-backend/internal/handler"
	"github.com/testhub/testhub-backend/internal/middleware"
	"github.com/testhub/testhub-backend/internal/model"
	"github.com/testhub/testhub-backend/internal/response"
	"github.com/testhub/testhub-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth          *handler.AuthHandler
	User          *handler.UserHandler
	Question      *handler.QuestionHandler
	Exam          *handler.ExamHandler
	StudentPortal *handler.StudentPortalHandler
	Results       *handler.ResultsHandler
	Media         *handler.MediaHandler
	WS            *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// ctx bounds background work owned by the router, such as rate limiter sweeps.
func SetupRouter(
	ctx context.Context,
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Retry-After"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.Brotli())

	// Signed local media. Signatures expire, so browsers may cache briefly.
	router.GET("/uploads/*key", middleware.PrivateCache(5*time.Minute), handlers.Media.ServeUpload)

	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	api.Use(middleware.NoStore())

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	loginLimiter := middleware.NewRateLimiter(ctx, 10, time.Minute)
	auth := api.Group("/auth")
	{
		auth.POST("/login", loginLimiter.Middleware(), handlers.Auth.Login)

		authed := auth.Group("", middleware.RequireJWT(authService), middleware.CheckSingleDeviceSession(authService))
		authed.GET("/me", handlers.Auth.Me)
		authed.POST("/logout", handlers.Auth.Logout)
	}

	// ─── 2. Student Group (JWT + Single Device) ────────────────────────
	studentAPI := api.Group("/student")
	studentAPI.Use(
		middleware.RequireStudentJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		studentAPI.GET("/exams", handlers.StudentPortal.GetLobby)
		studentAPI.POST("/exams/:exam_id/attempts", handlers.StudentPortal.StartAttempt)
		studentAPI.GET("/submissions", handlers.StudentPortal.ListSubmissions)
		studentAPI.GET("/submissions/:id", handlers.StudentPortal.GetAttempt)
		studentAPI.PUT("/submissions/:id/answers/:question_id", handlers.StudentPortal.SubmitAnswer)
		studentAPI.POST("/submissions/:id/complete", handlers.StudentPortal.CompleteAttempt)
	}

	// ─── 3. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(
		middleware.RequireStudentWSAuth(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		ws.GET("/student/submissions/:id/stream", handlers.WS.AttemptStream)
	}

	// ─── 4. Lecturer Group (JWT + Role) ────────────────────────────────
	// Administrators pass every lecturer route and act on every owner.
	lecturerAPI := api.Group("/lecturer")
	lecturerAPI.Use(
		middleware.RequireJWT(authService),
		middleware.RequireRole(model.RoleLecturer, model.RoleAdmin),
	)
	{
		lecturerAPI.POST("/media/upload", handlers.Media.UploadMedia)

		lecturerAPI.GET("/questions", handlers.Question.ListQuestions)
		lecturerAPI.POST("/questions", handlers.Question.CreateQuestion)
		lecturerAPI.GET("/questions/:id", handlers.Question.GetQuestion)
		lecturerAPI.PUT("/questions/:id", handlers.Question.UpdateQuestion)
		lecturerAPI.DELETE("/questions/:id", handlers.Question.DeleteQuestion)

		lecturerAPI.GET("/exams", handlers.Exam.ListExams)
		lecturerAPI.POST("/exams", handlers.Exam.CreateExam)
		lecturerAPI.GET("/exams/:id", handlers.Exam.GetExam)
		lecturerAPI.PATCH("/exams/:id", handlers.Exam.UpdateExam)
		lecturerAPI.DELETE("/exams/:id", handlers.Exam.DeleteExam)
		lecturerAPI.PUT("/exams/:id/questions", handlers.Exam.SetQuestions)
		lecturerAPI.PATCH("/exams/:id/visibility", handlers.Exam.SetVisibility)
		lecturerAPI.GET("/exams/:id/preview", handlers.Exam.PreviewSelection)

		lecturerAPI.GET("/exams/:id/results", handlers.Results.ListResults)
		lecturerAPI.GET("/exams/:id/results/summary", handlers.Results.GetSummary)
		lecturerAPI.GET("/exams/:id/results/stream", handlers.Results.StreamResults)
		lecturerAPI.GET("/submissions/:id", handlers.Results.GetReview)
		lecturerAPI.PUT("/submissions/:id/questions/:question_id/grade", handlers.Results.GradeEssay)
	}

	// ─── 5. Admin Group (JWT + Role) ───────────────────────────────────
	adminAPI := api.Group("/admin")
	adminAPI.Use(
		middleware.RequireJWT(authService),
		middleware.RequireRole(model.RoleAdmin),
	)
	{
		adminAPI.GET("/dashboard", handlers.Results.GetDashboard)
		adminAPI.GET("/users", handlers.User.ListUsers)
		adminAPI.POST("/users", handlers.User.CreateUser)
		adminAPI.PUT("/users/:id/password", handlers.User.ResetPassword)
	}

	return router
}
