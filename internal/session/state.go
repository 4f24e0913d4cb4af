package session

import (
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/testhub/testhub-backend/internal/model"
)

// Phase is the top-level lifecycle state of an exam session.
type Phase string

const (
	PhaseNotStarted Phase = "NOT_STARTED"
	PhaseLoading    Phase = "LOADING"
	PhaseInProgress Phase = "IN_PROGRESS"
	PhaseSubmitted  Phase = "SUBMITTED"
	PhaseNotFound   Phase = "NOT_FOUND"
)

// Terminal reports whether the phase accepts no further events.
func (p Phase) Terminal() bool {
	return p == PhaseSubmitted || p == PhaseNotFound
}

// TimerState is the countdown sub-state while IN_PROGRESS.
type TimerState int

const (
	TimerOff TimerState = iota
	// TimerJustInitialized: started but not yet ticked. Expiry is not
	// evaluated until the first tick arms the countdown.
	TimerJustInitialized
	TimerArmedCountdown
	TimerStopped
)

// FinalState tracks the final-submit request.
type FinalState int

const (
	FinalStateIdle FinalState = iota
	FinalStateInFlight
	FinalStateFailed
)

// SendStatus is the delivery state of one question's answer.
type SendStatus int

const (
	SendNone SendStatus = iota
	SendPending
	SendSaved
	SendFailed
)

// TickInterval is the countdown resolution.
const TickInterval = time.Second

// State is the complete session state. Values are treated as immutable;
// Step returns a new State and never mutates the maps of its input.
type State struct {
	Phase     Phase
	ExamID    uuid.UUID
	StudentID int

	Attempt   *model.Attempt
	StartedAt time.Time
	EndedAt   time.Time
	Remaining int // seconds
	Timer     TimerState
	Final     FinalState

	Current int
	Answers map[uuid.UUID]model.Answer
	Sends   map[uuid.UUID]SendStatus
	// lastSeq is the sequence number of the latest answer request per question.
	lastSeq map[uuid.UUID]uint64
	seq     uint64

	Notice error
	Err    error
	Result *model.SubmissionResult
}

// New returns a session in NOT_STARTED.
func New() State {
	return State{Phase: PhaseNotStarted}
}

// SubmissionID returns the id of the loaded attempt, or uuid.Nil.
func (s State) SubmissionID() uuid.UUID {
	if s.Attempt == nil {
		return uuid.Nil
	}
	return s.Attempt.SubmissionID
}

// Question returns the materialized question with id.
func (s State) Question(id uuid.UUID) (model.AttemptQuestion, bool) {
	if s.Attempt == nil {
		return model.AttemptQuestion{}, false
	}
	for _, q := range s.Attempt.Questions {
		if q.QuestionID == id {
			return q, true
		}
	}
	return model.AttemptQuestion{}, false
}

// Answer returns the local answer for a question, if any.
func (s State) Answer(id uuid.UUID) (model.Answer, bool) {
	a, ok := s.Answers[id]
	return a, ok
}

// editable reports whether answers may still change.
func (s State) editable() bool {
	return s.Phase == PhaseInProgress && s.Final == FinalStateIdle
}

func (s State) withAnswer(id uuid.UUID, a model.Answer) State {
	s.Answers = maps.Clone(s.Answers)
	if s.Answers == nil {
		s.Answers = make(map[uuid.UUID]model.Answer)
	}
	s.Answers[id] = a
	return s
}

func (s State) withSend(id uuid.UUID, status SendStatus) State {
	s.Sends = maps.Clone(s.Sends)
	if s.Sends == nil {
		s.Sends = make(map[uuid.UUID]SendStatus)
	}
	s.Sends[id] = status
	return s
}
