package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/testhub/testhub-backend/internal/middleware"
	"github.com/testhub/testhub-backend/internal/model"
	"github.com/testhub/testhub-backend/internal/response"
	"github.com/testhub/testhub-backend/internal/service"
	"github.com/testhub/testhub-backend/internal/validator"
)

const keepAliveInterval = 30 * time.Second

// ResultsHandler serves results, reviews, manual grading and the live feed.
type ResultsHandler struct {
	resultsService    *service.ResultsService
	submissionService *service.SubmissionService
	log               zerolog.Logger
}

// NewResultsHandler creates a new ResultsHandler.
func NewResultsHandler(
	resultsService *service.ResultsService,
	submissionService *service.SubmissionService,
	log zerolog.Logger,
) *ResultsHandler {
	return &ResultsHandler{
		resultsService:    resultsService,
		submissionService: submissionService,
		log:               log.With().Str("component", "results_handler").Logger(),
	}
}

// GetDashboard godoc
// GET /api/v1/admin/dashboard
func (h *ResultsHandler) GetDashboard(c *gin.Context) {
	dashboard, err := h.resultsService.Dashboard(c.Request.Context())
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, dashboard)
}

// ListResults godoc
// GET /api/v1/lecturer/exams/:id/results?status=COMPLETED
func (h *ResultsHandler) ListResults(c *gin.Context) {
	examID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	status := model.SubmissionStatus(c.Query("status"))
	switch status {
	case "", model.SubmissionInProgress, model.SubmissionCompleted:
	default:
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
			map[string]string{"status": "must be one of IN_PROGRESS, COMPLETED"})
		return
	}
	page, perPage := validator.Page(c)

	rows, pagination, err := h.submissionService.ListExamResults(c.Request.Context(), examID, middleware.OwnerScope(c), status, page, perPage)
	if err != nil {
		failFromError(c, err)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"results": rows}, pagination)
}

// GetSummary godoc
// GET /api/v1/lecturer/exams/:id/results/summary
func (h *ResultsHandler) GetSummary(c *gin.Context) {
	examID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	stats, err := h.resultsService.Summary(c.Request.Context(), examID, middleware.OwnerScope(c))
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"summary": stats})
}

// GetReview godoc
// GET /api/v1/lecturer/submissions/:id
// Returns a submission with the answer key next to the student's answers.
func (h *ResultsHandler) GetReview(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	review, err := h.submissionService.Review(c.Request.Context(), id, middleware.OwnerScope(c))
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"submission": review})
}

// GradeEssay godoc
// PUT /api/v1/lecturer/submissions/:id/questions/:question_id/grade
// Sets the score of an essay row and recomputes the submission total.
func (h *ResultsHandler) GradeEssay(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	questionID, ok := uuidParam(c, "question_id")
	if !ok {
		return
	}

	var req model.GradeEssayRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.submissionService.GradeEssay(c.Request.Context(), id, questionID, middleware.OwnerScope(c), req)
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// StreamResults godoc
// GET /api/v1/lecturer/exams/:id/results/stream
// Server-sent events: a summary snapshot, then one event per completed or
// regraded submission.
func (h *ResultsHandler) StreamResults(c *gin.Context) {
	examID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	summary, err := h.resultsService.Summary(ctx, examID, middleware.OwnerScope(c))
	if err != nil {
		failFromError(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.SSEvent("snapshot", summary)
	c.Writer.Flush()

	pubsub := h.resultsService.Subscribe(ctx, examID)
	defer pubsub.Close()
	ch := pubsub.Channel()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	log := h.log.With().Str("exam_id", examID.String()).Logger()
	log.Info().Msg("Attached to results stream")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Detached from results stream")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Payload is already a JSON ResultEvent.
			c.Writer.Write([]byte("event: result\ndata: "))
			c.Writer.Write([]byte(msg.Payload))
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()

		case <-keepAlive.C:
			c.Writer.Write([]byte(": ping\n\n"))
			c.Writer.Flush()
		}
	}
}
