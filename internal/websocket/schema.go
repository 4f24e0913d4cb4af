package websocket

import (
	"github.com/google/uuid"
	"github.com/testhub/testhub-backend/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer   Action = "answer"
	ActionComplete Action = "complete"
	ActionPing     Action = "ping"
)

// Request is a client frame. Ref is echoed on the matching response so a
// client can pipeline requests.
type Request struct {
	Action     Action                           `json:"action"`
	Ref        string                           `json:"ref,omitempty"`
	QuestionID uuid.UUID                        `json:"question_id,omitzero"`
	Answer     *model.AnswerPayload             `json:"answer,omitempty"`
	Complete   *model.CompleteSubmissionRequest `json:"complete,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventSaved     Event = "saved"
	EventCompleted Event = "completed"
	EventError     Event = "error"
	EventPong      Event = "pong"
)

// Response is a server frame. Only the fields of its Event are set.
type Response struct {
	Event      Event                   `json:"event"`
	Ref        string                  `json:"ref,omitempty"`
	QuestionID *uuid.UUID              `json:"question_id,omitzero"`
	Result     *model.SubmissionResult `json:"result,omitempty"`
	Code       string                  `json:"code,omitempty"`
	Error      string                  `json:"error,omitempty"`
}

func Saved(ref string, questionID uuid.UUID) Response {
	return Response{Event: EventSaved, Ref: ref, QuestionID: &questionID}
}

func Completed(ref string, result *model.SubmissionResult) Response {
	return Response{Event: EventCompleted, Ref: ref, Result: result}
}

func Error(ref, code, msg string) Response {
	return Response{Event: EventError, Ref: ref, Code: code, Error: msg}
}

func Pong(ref string) Response {
	return Response{Event: EventPong, Ref: ref}
}
