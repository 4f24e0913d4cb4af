package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/testhub/testhub-backend/internal/model"
	"github.com/testhub/testhub-backend/internal/repository"
	"github.com/testhub/testhub-backend/internal/response"
	"github.com/testhub/testhub-backend/internal/selection"
	"github.com/testhub/testhub-backend/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   response.ErrCode
	}{
		{"not found", repository.ErrNotFound, http.StatusNotFound, response.ErrNotFound},
		{"wrapped owner", fmt.Errorf("update: %w", service.ErrNotOwner), http.StatusForbidden, response.ErrNotOwner},
		{"limit", service.ErrAttemptLimitReached, http.StatusConflict, response.ErrAttemptLimitReached},
		{"invalid answer", service.ErrInvalidAnswer, http.StatusUnprocessableEntity, response.ErrInvalidAnswer},
		{"malformed answer", model.ErrMalformedAnswer, http.StatusInternalServerError, response.ErrInternal},
		{"insufficient", &selection.InsufficientQuestionsError{Requested: 5, Available: 2}, http.StatusUnprocessableEntity, response.ErrInsufficientQuestions},
		{"question field", &service.QuestionValidationError{Field: "options", Message: "x"}, http.StatusUnprocessableEntity, response.ErrValidation},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, response.ErrInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := classifyError(tt.err)
			if status != tt.status || code != tt.code {
				t.Errorf("classifyError = (%d, %s), want (%d, %s)", status, code, tt.status, tt.code)
			}
		})
	}
}

func TestFailFromErrorInsufficientDetails(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	bucket := selection.Bucket{Type: model.QuestionTypeEssay, Format: model.QuestionFormatApplying}
	failFromError(c, fmt.Errorf("select: %w", &selection.InsufficientQuestionsError{
		Bucket: &bucket, Requested: 3, Available: 1,
	}))

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Details struct {
				Bucket    selection.Bucket `json:"bucket"`
				Requested int              `json:"requested"`
				Available int              `json:"available"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Error.Code != string(response.ErrInsufficientQuestions) {
		t.Errorf("code = %s", body.Error.Code)
	}
	if body.Error.Details.Bucket != bucket || body.Error.Details.Requested != 3 || body.Error.Details.Available != 1 {
		t.Errorf("details = %+v", body.Error.Details)
	}
}

func TestUUIDParam(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: "not-a-uuid"}}

	if _, ok := uuidParam(c, "id"); ok {
		t.Fatal("expected failure")
	}
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
}
