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

// StudentPortalHandler handles student-facing endpoints (lobby, attempts).
type StudentPortalHandler struct {
	submissionService *service.SubmissionService
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(submissionService *service.SubmissionService) *StudentPortalHandler {
	return &StudentPortalHandler{submissionService: submissionService}
}

// GetLobby godoc
// GET /api/v1/student/exams
// Returns visible exams with the student's latest attempt status.
func (h *StudentPortalHandler) GetLobby(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	lobby, err := h.submissionService.Lobby(c.Request.Context(), claims.UserID)
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exams": lobby})
}

// StartAttempt godoc
// POST /api/v1/student/exams/:exam_id/attempts
// Starts an attempt or resumes the one in progress. Questions come back
// without answer keys.
func (h *StudentPortalHandler) StartAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID, ok := uuidParam(c, "exam_id")
	if !ok {
		return
	}

	state, err := h.submissionService.StartAttempt(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": state})
}

// GetAttempt godoc
// GET /api/v1/student/submissions/:id
// Returns the attempt state with saved answers and the remaining time.
func (h *StudentPortalHandler) GetAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	state, err := h.submissionService.GetAttemptState(c.Request.Context(), id, claims.UserID)
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": state})
}

// SubmitAnswer godoc
// PUT /api/v1/student/submissions/:id/answers/:question_id
// Records the latest answer for one question.
func (h *StudentPortalHandler) SubmitAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	questionID, ok := uuidParam(c, "question_id")
	if !ok {
		return
	}

	var req model.AnswerPayload
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.submissionService.SubmitAnswer(c.Request.Context(), id, claims.UserID, questionID, req); err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"question_id": questionID})
}

// CompleteAttempt godoc
// POST /api/v1/student/submissions/:id/complete
// Grades and closes the attempt. Repeating the call returns the stored result.
func (h *StudentPortalHandler) CompleteAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req model.CompleteSubmissionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.submissionService.CompleteSubmission(c.Request.Context(), id, claims.UserID, req)
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// ListSubmissions godoc
// GET /api/v1/student/submissions
func (h *StudentPortalHandler) ListSubmissions(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	subs, err := h.submissionService.ListStudentSubmissions(c.Request.Context(), claims.UserID)
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"submissions": subs})
}
