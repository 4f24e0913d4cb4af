package session

import (
	"fmt"

	"github.com/google/uuid"
)

// AttemptLoadError leaves the session in NOT_FOUND.
type AttemptLoadError struct {
	ExamID uuid.UUID
	Err    error
}

func (e *AttemptLoadError) Error() string {
	return fmt.Sprintf("load attempt for exam %s: %v", e.ExamID, e.Err)
}

func (e *AttemptLoadError) Unwrap() error { return e.Err }

// AnswerSubmitError is a failed per-question save. Local state is kept.
type AnswerSubmitError struct {
	QuestionID uuid.UUID
	Err        error
}

func (e *AnswerSubmitError) Error() string {
	return fmt.Sprintf("save answer %s: %v", e.QuestionID, e.Err)
}

func (e *AnswerSubmitError) Unwrap() error { return e.Err }

// FinalSubmitError is a failed final submit. The submit may be retried.
type FinalSubmitError struct {
	Err error
}

func (e *FinalSubmitError) Error() string {
	return fmt.Sprintf("submit exam: %v", e.Err)
}

func (e *FinalSubmitError) Unwrap() error { return e.Err }
