package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/testhub/testhub-backend/internal/model"
)

// Gateway is the persistence/API boundary used by the Runner.
type Gateway interface {
	StartAttempt(ctx context.Context, examID uuid.UUID) (*model.AttemptState, error)
	SubmitAnswer(ctx context.Context, submissionID, questionID uuid.UUID, payload model.AnswerPayload) error
	CompleteSubmission(ctx context.Context, submissionID uuid.UUID, req model.CompleteSubmissionRequest) (*model.SubmissionResult, error)
}

// Runner hosts one session. Events are applied on the goroutine running
// Run; gateway calls run concurrently and post their outcome back as events.
type Runner struct {
	gw       Gateway
	sched    Scheduler
	now      func() time.Time
	onUpdate func(View)
	log      zerolog.Logger

	events chan Event
	done   chan struct{}

	mu    sync.RWMutex
	state State

	cancelTimer Cancel
}

// NewRunner creates a Runner. onUpdate, if non-nil, receives the view
// after every event.
func NewRunner(gw Gateway, sched Scheduler, log zerolog.Logger, onUpdate func(View)) *Runner {
	return &Runner{
		gw:       gw,
		sched:    sched,
		now:      time.Now,
		onUpdate: onUpdate,
		log:      log.With().Str("component", "session_runner").Logger(),
		events:   make(chan Event, 64),
		done:     make(chan struct{}),
		state:    New(),
	}
}

// Dispatch queues an event. It returns false once the runner has stopped.
func (r *Runner) Dispatch(ev Event) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.events <- ev:
		return true
	case <-r.done:
		return false
	}
}

// View returns the current view.
func (r *Runner) View() View {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.View()
}

// State returns a snapshot of the current state.
func (r *Runner) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Run starts the session for examID and processes events until the exam
// is submitted, the attempt cannot be loaded, or ctx is cancelled.
func (r *Runner) Run(ctx context.Context, examID uuid.UUID, studentID int) (*model.SubmissionResult, error) {
	defer close(r.done)
	defer r.stopTimer()

	r.apply(ctx, Start{ExamID: examID, StudentID: studentID})

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev := <-r.events:
			st := r.apply(ctx, ev)
			switch st.Phase {
			case PhaseSubmitted:
				return st.Result, nil
			case PhaseNotFound:
				return nil, st.Err
			}
		}
	}
}

func (r *Runner) apply(ctx context.Context, ev Event) State {
	r.mu.Lock()
	next, effects := Step(r.state, ev)
	r.state = next
	r.mu.Unlock()

	for _, eff := range effects {
		r.execute(ctx, eff)
	}
	if r.onUpdate != nil {
		r.onUpdate(next.View())
	}
	return next
}

func (r *Runner) execute(ctx context.Context, eff Effect) {
	switch e := eff.(type) {
	case LoadAttempt:
		go func() {
			att, err := r.gw.StartAttempt(ctx, e.ExamID)
			if err != nil {
				r.Dispatch(AttemptLoadFailed{ExamID: e.ExamID, Err: err})
				return
			}
			r.Dispatch(AttemptLoaded{ExamID: e.ExamID, Attempt: att, Now: r.now()})
		}()

	case StartTimer:
		r.stopTimer()
		r.cancelTimer = r.sched.Every(e.Interval, func() {
			r.Dispatch(Tick{Now: r.now()})
		})

	case StopTimer:
		r.stopTimer()

	case SendAnswer:
		go func() {
			if err := r.gw.SubmitAnswer(ctx, e.SubmissionID, e.QuestionID, e.Payload); err != nil {
				r.Dispatch(AnswerFailed{SubmissionID: e.SubmissionID, QuestionID: e.QuestionID, Seq: e.Seq, Err: err})
				return
			}
			r.Dispatch(AnswerSent{SubmissionID: e.SubmissionID, QuestionID: e.QuestionID, Seq: e.Seq})
		}()

	case SendFinal:
		go func() {
			res, err := r.gw.CompleteSubmission(ctx, e.SubmissionID, e.Request)
			if err != nil {
				r.Dispatch(FinalFailed{SubmissionID: e.SubmissionID, Err: err})
				return
			}
			r.Dispatch(FinalSubmitted{SubmissionID: e.SubmissionID, Result: res})
		}()

	case Notify:
		r.log.Warn().Err(e.Err).Msg("Session notice")

	case Exit:
		r.log.Info().Msg("Exam submitted")
	}
}

func (r *Runner) stopTimer() {
	if r.cancelTimer != nil {
		r.cancelTimer()
		r.cancelTimer = nil
	}
}
