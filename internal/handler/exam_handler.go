package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/testhub/testhub-backend/internal/middleware"
	"github.com/testhub/testhub-backend/internal/model"
	"github.com/testhub/testhub-backend/internal/response"
	"github.com/testhub/testhub-backend/internal/service"
	"github.com/testhub/testhub-backend/internal/validator"
)

// ExamHandler handles exam authoring endpoints.
type ExamHandler struct {
	examService *service.ExamService
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(examService *service.ExamService) *ExamHandler {
	return &ExamHandler{examService: examService}
}

// ListExams godoc
// GET /api/v1/lecturer/exams
// Lecturers see their own exams; administrators see all.
func (h *ExamHandler) ListExams(c *gin.Context) {
	page, perPage := validator.Page(c)

	exams, pagination, err := h.examService.List(c.Request.Context(), middleware.OwnerScope(c), page, perPage)
	if err != nil {
		failFromError(c, err)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"exams": exams}, pagination)
}

// GetExam godoc
// GET /api/v1/lecturer/exams/:id
// Returns the exam together with its question pool.
func (h *ExamHandler) GetExam(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	owner := middleware.OwnerScope(c)

	exam, err := h.examService.Get(ctx, id, owner)
	if err != nil {
		failFromError(c, err)
		return
	}
	questions, err := h.examService.Questions(ctx, id, owner)
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam, "questions": questions})
}

// CreateExam godoc
// POST /api/v1/lecturer/exams
// Creates a hidden exam with its question pool.
func (h *ExamHandler) CreateExam(c *gin.Context) {
	var req model.CreateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	claims := middleware.GetClaims(c)
	exam, err := h.examService.Create(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"exam": exam})
}

// UpdateExam godoc
// PATCH /api/v1/lecturer/exams/:id
func (h *ExamHandler) UpdateExam(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req model.UpdateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.Update(c.Request.Context(), id, middleware.OwnerScope(c), &req)
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// SetQuestions godoc
// PUT /api/v1/lecturer/exams/:id/questions
// Replaces the exam's question pool. Existing attempts keep their snapshot.
func (h *ExamHandler) SetQuestions(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req model.SetExamQuestionsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.SetQuestions(c.Request.Context(), id, middleware.OwnerScope(c), req.QuestionIDs)
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// SetVisibility godoc
// PATCH /api/v1/lecturer/exams/:id/visibility
// Publishes or hides an exam. Publishing warms the definition cache.
func (h *ExamHandler) SetVisibility(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req model.SetVisibilityRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.SetVisibility(c.Request.Context(), id, middleware.OwnerScope(c), *req.IsVisible)
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// DeleteExam godoc
// DELETE /api/v1/lecturer/exams/:id
func (h *ExamHandler) DeleteExam(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.examService.Delete(c.Request.Context(), id, middleware.OwnerScope(c)); err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// PreviewSelection godoc
// GET /api/v1/lecturer/exams/:id/preview
// Runs the selector once against the current pool without storing anything.
func (h *ExamHandler) PreviewSelection(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	preview, err := h.examService.PreviewSelection(c.Request.Context(), id, middleware.OwnerScope(c))
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, preview)
}
