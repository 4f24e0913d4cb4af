package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/testhub/testhub-backend/internal/model"
)

// Effect is a side-effect intent emitted by Step for the host to execute.
type Effect interface{ isEffect() }

type LoadAttempt struct{ ExamID uuid.UUID }

type StartTimer struct{ Interval time.Duration }

type StopTimer struct{}

type SendAnswer struct {
	SubmissionID uuid.UUID
	QuestionID   uuid.UUID
	Seq          uint64
	Payload      model.AnswerPayload
}

type SendFinal struct {
	SubmissionID uuid.UUID
	Request      model.CompleteSubmissionRequest
}

// Notify surfaces a transient error to the student.
type Notify struct{ Err error }

// Exit ends the session after a successful final submit.
type Exit struct{ Result *model.SubmissionResult }

func (LoadAttempt) isEffect() {}
func (StartTimer) isEffect()  {}
func (StopTimer) isEffect()   {}
func (SendAnswer) isEffect()  {}
func (SendFinal) isEffect()   {}
func (Notify) isEffect()      {}
func (Exit) isEffect()        {}
