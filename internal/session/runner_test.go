package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/testhub/testhub-backend/internal/model"
)

type fakeGateway struct {
	attempt    *model.AttemptState
	startErr   error
	failFinals int32

	answers atomic.Int32
	finals  atomic.Int32
}

func (g *fakeGateway) StartAttempt(_ context.Context, _ uuid.UUID) (*model.AttemptState, error) {
	if g.startErr != nil {
		return nil, g.startErr
	}
	return g.attempt, nil
}

func (g *fakeGateway) SubmitAnswer(_ context.Context, _, _ uuid.UUID, _ model.AnswerPayload) error {
	g.answers.Add(1)
	return nil
}

func (g *fakeGateway) CompleteSubmission(_ context.Context, id uuid.UUID, req model.CompleteSubmissionRequest) (*model.SubmissionResult, error) {
	n := g.finals.Add(1)
	if n <= g.failFinals {
		return nil, errors.New("service unavailable")
	}
	return &model.SubmissionResult{SubmissionID: id, Status: model.SubmissionCompleted, EndedAt: req.EndedAt}, nil
}

// manualScheduler fires its task only when the test calls fire.
type manualScheduler struct {
	mu    sync.Mutex
	fn    func()
	armed chan struct{}
	once  sync.Once
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{armed: make(chan struct{})}
}

func (m *manualScheduler) Every(_ time.Duration, fn func()) Cancel {
	m.mu.Lock()
	m.fn = fn
	m.mu.Unlock()
	m.once.Do(func() { close(m.armed) })
	return func() {
		m.mu.Lock()
		m.fn = nil
		m.mu.Unlock()
	}
}

func (m *manualScheduler) fire() {
	m.mu.Lock()
	fn := m.fn
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

type runResult struct {
	res *model.SubmissionResult
	err error
}

func startRunner(t *testing.T, r *Runner) (<-chan runResult, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	out := make(chan runResult, 1)
	go func() {
		res, err := r.Run(ctx, testExamID, 7)
		out <- runResult{res, err}
	}()
	return out, cancel
}

func waitArmed(t *testing.T, sched *manualScheduler) {
	t.Helper()
	select {
	case <-sched.armed:
	case <-time.After(5 * time.Second):
		t.Fatal("timer was never started")
	}
}

func TestRunnerAutoSubmitsOnExpiry(t *testing.T) {
	gw := &fakeGateway{attempt: fixtureAttempt(1)}
	sched := newManualScheduler()
	r := NewRunner(gw, sched, zerolog.Nop(), nil)
	done, _ := startRunner(t, r)

	waitArmed(t, sched)
	for i := 0; i < 70; i++ {
		sched.fire()
	}

	got := <-done
	if got.err != nil {
		t.Fatalf("Run: %v", got.err)
	}
	if got.res == nil || got.res.SubmissionID != testSubmissionID {
		t.Fatalf("result = %+v", got.res)
	}
	if n := gw.finals.Load(); n != 1 {
		t.Fatalf("CompleteSubmission called %d times, want 1", n)
	}
	if r.Dispatch(Tick{}) {
		t.Fatal("Dispatch accepted an event after Run returned")
	}
	if r.View().Phase != PhaseSubmitted {
		t.Fatalf("final phase %s", r.View().Phase)
	}
}

func TestRunnerRetriesFailedFinalSubmit(t *testing.T) {
	gw := &fakeGateway{attempt: fixtureAttempt(5), failFinals: 1}
	sched := newManualScheduler()
	views := make(chan View, 256)
	r := NewRunner(gw, sched, zerolog.Nop(), func(v View) {
		select {
		case views <- v:
		default:
		}
	})
	done, _ := startRunner(t, r)

	waitArmed(t, sched)
	r.Dispatch(SelectOption{QuestionID: qSingle, OptionID: "a"})
	r.Dispatch(SubmitAnswer{QuestionID: qSingle})
	r.Dispatch(SubmitFinal{Now: time.Now()})

	deadline := time.After(5 * time.Second)
	for failed := false; !failed; {
		select {
		case v := <-views:
			failed = v.Notice != "" && !v.Submitting
		case <-deadline:
			t.Fatal("final submit failure was never reported")
		}
	}
	r.Dispatch(SubmitFinal{Now: time.Now()})

	got := <-done
	if got.err != nil || got.res == nil {
		t.Fatalf("Run: %v %v", got.res, got.err)
	}
	if n := gw.finals.Load(); n != 2 {
		t.Fatalf("CompleteSubmission called %d times, want 2", n)
	}
}

func TestRunnerAttemptNotFound(t *testing.T) {
	gw := &fakeGateway{startErr: errors.New("exam not found")}
	r := NewRunner(gw, newManualScheduler(), zerolog.Nop(), nil)
	done, _ := startRunner(t, r)

	got := <-done
	var loadErr *AttemptLoadError
	if !errors.As(got.err, &loadErr) {
		t.Fatalf("err = %v, want AttemptLoadError", got.err)
	}
	if r.View().Phase != PhaseNotFound {
		t.Fatalf("phase %s", r.View().Phase)
	}
}

func TestTickerSchedulerCancel(t *testing.T) {
	var n atomic.Int32
	cancel := TickerScheduler{}.Every(time.Millisecond, func() { n.Add(1) })
	time.Sleep(20 * time.Millisecond)
	cancel()
	cancel()
	seen := n.Load()
	time.Sleep(20 * time.Millisecond)
	if n.Load() > seen+1 {
		t.Fatalf("ticks continued after cancel: %d -> %d", seen, n.Load())
	}
}
