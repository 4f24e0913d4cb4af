package session

import (
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/testhub/testhub-backend/internal/model"
)

// Step applies ev to s and returns the next state with the effects the
// host must execute. Events that do not apply to the current phase,
// attempt or request sequence are ignored: s is returned unchanged with
// no effects.
func Step(s State, ev Event) (State, []Effect) {
	if s.Phase.Terminal() {
		return s, nil
	}

	switch e := ev.(type) {
	case Start:
		if s.Phase != PhaseNotStarted {
			return s, nil
		}
		s.Phase = PhaseLoading
		s.ExamID = e.ExamID
		s.StudentID = e.StudentID
		return s, []Effect{LoadAttempt{ExamID: e.ExamID}}

	case AttemptLoaded:
		if s.Phase != PhaseLoading || e.ExamID != s.ExamID || e.Attempt == nil {
			return s, nil
		}
		return loaded(s, e)

	case AttemptLoadFailed:
		if s.Phase != PhaseLoading || e.ExamID != s.ExamID {
			return s, nil
		}
		s.Phase = PhaseNotFound
		s.Err = &AttemptLoadError{ExamID: e.ExamID, Err: e.Err}
		return s, nil

	case SelectOption:
		q, ok := s.editableQuestion(e.QuestionID, model.QuestionTypeSingleChoice)
		if !ok || !hasOption(q, e.OptionID) {
			return s, nil
		}
		return s.withAnswer(q.QuestionID, model.SingleChoiceAnswer{OptionID: e.OptionID}), nil

	case ToggleOption:
		q, ok := s.editableQuestion(e.QuestionID, model.QuestionTypeMultipleChoice)
		if !ok || !hasOption(q, e.OptionID) {
			return s, nil
		}
		cur, _ := s.Answers[q.QuestionID].(model.MultipleChoiceAnswer)
		return s.withAnswer(q.QuestionID, cur.Toggle(e.OptionID)), nil

	case WriteEssay:
		q, ok := s.editableQuestion(e.QuestionID, model.QuestionTypeEssay)
		if !ok {
			return s, nil
		}
		return s.withAnswer(q.QuestionID, model.EssayAnswer{Text: e.Text}), nil

	case Jump:
		if s.Phase != PhaseInProgress || e.Index < 0 || e.Index >= len(s.Attempt.Questions) {
			return s, nil
		}
		s.Current = e.Index
		return s, nil

	case Next:
		if s.Phase != PhaseInProgress || s.Current+1 >= len(s.Attempt.Questions) {
			return s, nil
		}
		s.Current++
		return s, nil

	case Prev:
		if s.Phase != PhaseInProgress || s.Current == 0 {
			return s, nil
		}
		s.Current--
		return s, nil

	case SubmitAnswer:
		return submitAnswer(s, e)

	case AnswerSent:
		if !s.currentRequest(e.SubmissionID, e.QuestionID, e.Seq) {
			return s, nil
		}
		return s.withSend(e.QuestionID, SendSaved), nil

	case AnswerFailed:
		if !s.currentRequest(e.SubmissionID, e.QuestionID, e.Seq) {
			return s, nil
		}
		s = s.withSend(e.QuestionID, SendFailed)
		s.Notice = &AnswerSubmitError{QuestionID: e.QuestionID, Err: e.Err}
		return s, []Effect{Notify{Err: s.Notice}}

	case Tick:
		return tick(s, e.Now)

	case SubmitFinal:
		if s.Phase != PhaseInProgress {
			return s, nil
		}
		return triggerFinal(s, e.Now)

	case FinalSubmitted:
		if s.Phase != PhaseInProgress || s.Final != FinalStateInFlight || e.SubmissionID != s.SubmissionID() {
			return s, nil
		}
		s.Phase = PhaseSubmitted
		s.Final = FinalStateIdle
		s.Timer = TimerStopped
		s.Result = e.Result
		s.Notice = nil
		return s, []Effect{StopTimer{}, Exit{Result: e.Result}}

	case FinalFailed:
		if s.Phase != PhaseInProgress || s.Final != FinalStateInFlight || e.SubmissionID != s.SubmissionID() {
			return s, nil
		}
		s.Final = FinalStateFailed
		s.Notice = &FinalSubmitError{Err: e.Err}
		return s, []Effect{Notify{Err: s.Notice}}
	}
	return s, nil
}

func loaded(s State, e AttemptLoaded) (State, []Effect) {
	a := e.Attempt.Attempt
	s.Phase = PhaseInProgress
	s.Attempt = &a
	s.StartedAt = a.StartedAt
	if s.StartedAt.IsZero() {
		s.StartedAt = e.Now
	}
	s.Remaining = max(e.Attempt.RemainingSeconds, 0)
	s.Timer = TimerJustInitialized
	s.Final = FinalStateIdle
	s.Current = 0
	s.Answers = make(map[uuid.UUID]model.Answer, len(e.Attempt.Answers))
	s.Sends = make(map[uuid.UUID]SendStatus, len(e.Attempt.Answers))
	s.lastSeq = make(map[uuid.UUID]uint64)

	// Answers saved before a resume count as delivered.
	for id, p := range e.Attempt.Answers {
		q, ok := s.Question(id)
		if !ok || p.QuestionType != q.Type {
			continue
		}
		ans, err := p.Answer()
		if err != nil {
			continue
		}
		s.Answers[id] = ans
		s.Sends[id] = SendSaved
	}
	return s, []Effect{StartTimer{Interval: TickInterval}}
}

func submitAnswer(s State, e SubmitAnswer) (State, []Effect) {
	if !s.editable() {
		return s, nil
	}
	q, ok := s.Question(e.QuestionID)
	if !ok {
		return s, nil
	}
	payload, err := BuildPayload(q, s.Answers[q.QuestionID])
	if err != nil {
		s.Notice = &AnswerSubmitError{QuestionID: q.QuestionID, Err: err}
		return s, []Effect{Notify{Err: s.Notice}}
	}

	s.seq++
	s.lastSeq = maps.Clone(s.lastSeq)
	if s.lastSeq == nil {
		s.lastSeq = make(map[uuid.UUID]uint64)
	}
	s.lastSeq[q.QuestionID] = s.seq
	s = s.withSend(q.QuestionID, SendPending)
	return s, []Effect{SendAnswer{
		SubmissionID: s.SubmissionID(),
		QuestionID:   q.QuestionID,
		Seq:          s.seq,
		Payload:      payload,
	}}
}

func tick(s State, now time.Time) (State, []Effect) {
	if s.Phase != PhaseInProgress {
		return s, nil
	}
	switch s.Timer {
	case TimerJustInitialized:
		s.Timer = TimerArmedCountdown
	case TimerArmedCountdown:
	default:
		return s, nil
	}
	if s.Remaining > 0 {
		s.Remaining--
	}
	if s.Remaining == 0 {
		return triggerFinal(s, now)
	}
	return s, nil
}

// triggerFinal starts the final submit. The first trigger fixes the end
// time and stops the countdown; a trigger after a failure resends with the
// same end time; a trigger while a request is in flight is ignored.
func triggerFinal(s State, now time.Time) (State, []Effect) {
	var effects []Effect
	switch s.Final {
	case FinalStateInFlight:
		return s, nil
	case FinalStateIdle:
		s.EndedAt = now
		s.Timer = TimerStopped
		effects = append(effects, StopTimer{})
	case FinalStateFailed:
	}
	s.Final = FinalStateInFlight
	s.Notice = nil
	effects = append(effects, SendFinal{
		SubmissionID: s.SubmissionID(),
		Request: model.CompleteSubmissionRequest{
			StartedAt:             s.StartedAt,
			EndedAt:               s.EndedAt,
			ExpectedQuestionCount: len(s.Attempt.Questions),
		},
	})
	return s, effects
}

func (s State) editableQuestion(id uuid.UUID, want model.QuestionType) (model.AttemptQuestion, bool) {
	if !s.editable() {
		return model.AttemptQuestion{}, false
	}
	q, ok := s.Question(id)
	if !ok || q.Type != want {
		return model.AttemptQuestion{}, false
	}
	return q, true
}

func (s State) currentRequest(submissionID, questionID uuid.UUID, seq uint64) bool {
	return s.Phase == PhaseInProgress &&
		submissionID == s.SubmissionID() &&
		s.lastSeq[questionID] == seq && seq != 0
}
