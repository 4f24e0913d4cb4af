package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/testhub/testhub-backend/internal/model"
)

// Event is an input to Step.
type Event interface{ isEvent() }

// Start requests the attempt for an exam.
type Start struct {
	ExamID    uuid.UUID
	StudentID int
}

// AttemptLoaded carries the server's attempt, fresh or resumed.
type AttemptLoaded struct {
	ExamID  uuid.UUID
	Attempt *model.AttemptState
	Now     time.Time
}

// AttemptLoadFailed reports that no attempt could be obtained.
type AttemptLoadFailed struct {
	ExamID uuid.UUID
	Err    error
}

// SelectOption overwrites a single-choice answer.
type SelectOption struct {
	QuestionID uuid.UUID
	OptionID   string
}

// ToggleOption flips one option of a multiple-choice answer.
type ToggleOption struct {
	QuestionID uuid.UUID
	OptionID   string
}

// WriteEssay overwrites an essay answer.
type WriteEssay struct {
	QuestionID uuid.UUID
	Text       string
}

// Jump moves to a question by zero-based index.
type Jump struct{ Index int }

// Next moves to the following question.
type Next struct{}

// Prev moves to the preceding question.
type Prev struct{}

// SubmitAnswer sends the local answer of one question.
type SubmitAnswer struct{ QuestionID uuid.UUID }

// AnswerSent acknowledges a SendAnswer request.
type AnswerSent struct {
	SubmissionID uuid.UUID
	QuestionID   uuid.UUID
	Seq          uint64
}

// AnswerFailed reports a failed SendAnswer request.
type AnswerFailed struct {
	SubmissionID uuid.UUID
	QuestionID   uuid.UUID
	Seq          uint64
	Err          error
}

// Tick is one countdown step.
type Tick struct{ Now time.Time }

// SubmitFinal is the student's manual final submit.
type SubmitFinal struct{ Now time.Time }

// FinalSubmitted acknowledges the final submit.
type FinalSubmitted struct {
	SubmissionID uuid.UUID
	Result       *model.SubmissionResult
}

// FinalFailed reports a failed final submit.
type FinalFailed struct {
	SubmissionID uuid.UUID
	Err          error
}

func (Start) isEvent()             {}
func (AttemptLoaded) isEvent()     {}
func (AttemptLoadFailed) isEvent() {}
func (SelectOption) isEvent()      {}
func (ToggleOption) isEvent()      {}
func (WriteEssay) isEvent()        {}
func (Jump) isEvent()              {}
func (Next) isEvent()              {}
func (Prev) isEvent()              {}
func (SubmitAnswer) isEvent()      {}
func (AnswerSent) isEvent()        {}
func (AnswerFailed) isEvent()      {}
func (Tick) isEvent()              {}
func (SubmitFinal) isEvent()       {}
func (FinalSubmitted) isEvent()    {}
func (FinalFailed) isEvent()       {}
