package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/testhub/testhub-backend/internal/repository"
	"github.com/testhub/testhub-backend/internal/response"
	"github.com/testhub/testhub-backend/internal/selection"
	"github.com/testhub/testhub-backend/internal/service"
)

// errorCodes maps sentinel errors to their HTTP status and API code.
var errorCodes = []struct {
	err    error
	status int
	code   response.ErrCode
}{
	{repository.ErrNotFound, http.StatusNotFound, response.ErrNotFound},
	{repository.ErrDuplicateUsername, http.StatusConflict, response.ErrConflict},
	{repository.ErrQuestionInUse, http.StatusConflict, response.ErrDependencyExists},
	{service.ErrNotOwner, http.StatusForbidden, response.ErrNotOwner},

	{service.ErrInvalidSelection, http.StatusUnprocessableEntity, response.ErrInvalidSelection},
	{service.ErrInvalidMembership, http.StatusUnprocessableEntity, response.ErrValidation},
	{service.ErrExamNotAvailable, http.StatusForbidden, response.ErrExamNotAvailable},

	{service.ErrAttemptNotFound, http.StatusNotFound, response.ErrAttemptNotFound},
	{service.ErrAttemptLimitReached, http.StatusConflict, response.ErrAttemptLimitReached},
	{service.ErrAttemptCompleted, http.StatusConflict, response.ErrAttemptCompleted},
	{service.ErrAttemptNotCompleted, http.StatusConflict, response.ErrConflict},
	{service.ErrQuestionNotInAttempt, http.StatusNotFound, response.ErrQuestionNotInAttempt},
	{service.ErrInvalidAnswer, http.StatusUnprocessableEntity, response.ErrInvalidAnswer},
	{service.ErrSubmitInProgress, http.StatusConflict, response.ErrSubmitInProgress},
	{service.ErrNotEssay, http.StatusUnprocessableEntity, response.ErrNotEssay},
	{service.ErrInvalidGrade, http.StatusUnprocessableEntity, response.ErrValidation},

	{service.ErrUnsupportedFileType, http.StatusBadRequest, response.ErrUnsupportedFile},
	{service.ErrFileTooLarge, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge},
}

// classifyError returns the status and API code for a service error.
func classifyError(err error) (int, response.ErrCode) {
	var insufficient *selection.InsufficientQuestionsError
	if errors.As(err, &insufficient) {
		return http.StatusUnprocessableEntity, response.ErrInsufficientQuestions
	}
	var invalid *service.QuestionValidationError
	if errors.As(err, &invalid) {
		return http.StatusUnprocessableEntity, response.ErrValidation
	}
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.status, e.code
		}
	}
	return http.StatusInternalServerError, response.ErrInternal
}

// failFromError maps a service error onto the API error envelope.
func failFromError(c *gin.Context, err error) {
	status, code := classifyError(err)

	var insufficient *selection.InsufficientQuestionsError
	var invalid *service.QuestionValidationError
	switch {
	case errors.As(err, &insufficient):
		details := gin.H{"requested": insufficient.Requested, "available": insufficient.Available}
		if insufficient.Bucket != nil {
			details["bucket"] = insufficient.Bucket
		}
		response.FailWithDetails(c, status, code, details)
	case errors.As(err, &invalid):
		response.FailWithFields(c, status, code, map[string]string{invalid.Field: invalid.Message})
	case errors.Is(err, service.ErrInvalidGrade):
		response.FailWithFields(c, status, code, map[string]string{"score": "exceeds the question weight"})
	default:
		response.Fail(c, status, code)
	}
}

// uuidParam parses a path parameter, failing the request when malformed.
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
