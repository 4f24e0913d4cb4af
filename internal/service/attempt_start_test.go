package service

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/testhub/testhub-backend/internal/model"
)

func TestDecideStart(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	exam := func(practice, visible bool, ends *time.Time) *model.Exam {
		return &model.Exam{IsPractice: practice, IsVisible: visible, EndsAt: ends, DurationMinutes: 30}
	}
	sub := func(status model.SubmissionStatus, practice bool) *model.Submission {
		return &model.Submission{Status: status, IsPractice: practice}
	}

	tests := []struct {
		name    string
		exam    *model.Exam
		latest  *model.Submission
		want    startAction
		wantErr error
	}{
		{"first attempt", exam(false, true, nil), nil, startCreate, nil},
		{"running attempt resumes", exam(false, true, nil), sub(model.SubmissionInProgress, false), startResume, nil},
		{"one-shot exam already taken", exam(false, true, nil), sub(model.SubmissionCompleted, false), 0, ErrAttemptLimitReached},
		{"practice retake", exam(true, true, nil), sub(model.SubmissionCompleted, true), startCreate, nil},
		{"practice resumes running attempt", exam(true, true, nil), sub(model.SubmissionInProgress, true), startResume, nil},
		{"exam switched to one-shot counts practice attempts", exam(false, true, nil), sub(model.SubmissionCompleted, true), 0, ErrAttemptLimitReached},
		{"hidden exam resumes running attempt", exam(false, false, nil), sub(model.SubmissionInProgress, false), startResume, nil},
		{"closed window resumes running attempt", exam(false, true, &past), sub(model.SubmissionInProgress, false), startResume, nil},
		{"hidden exam rejects new attempt", exam(true, false, nil), nil, 0, ErrExamNotAvailable},
		{"closed window rejects new attempt", exam(true, true, &past), nil, 0, ErrExamNotAvailable},
		{"open window", exam(true, true, &future), nil, startCreate, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decideStart(tt.exam, tt.latest, now)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("action = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecideStartBeforeWindow(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	starts := now.Add(time.Minute)
	exam := &model.Exam{IsVisible: true, StartsAt: &starts}

	if _, err := decideStart(exam, nil, now); !errors.Is(err, ErrExamNotAvailable) {
		t.Errorf("expected ErrExamNotAvailable, got %v", err)
	}
}

func TestDrawsFromBank(t *testing.T) {
	tests := []struct {
		mode model.SelectionMode
		want bool
	}{
		{model.SelectionManual, false},
		{model.SelectionRandomN, false},
		{model.SelectionByType, true},
	}
	for _, tt := range tests {
		if got := drawsFromBank(&model.Exam{SelectionMode: tt.mode}); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.mode, got, tt.want)
		}
	}
}

func TestSettleLateAnswer(t *testing.T) {
	reloadAs := func(status model.SubmissionStatus) func() (*model.Submission, error) {
		return func() (*model.Submission, error) { return &model.Submission{Status: status}, nil }
	}

	t.Run("running attempt keeps the answer", func(t *testing.T) {
		dropped := false
		err := settleLateAnswer(reloadAs(model.SubmissionInProgress), func() error { dropped = true; return nil }, zerolog.Nop())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dropped {
			t.Error("answers of a running attempt were dropped")
		}
	})

	t.Run("completed meanwhile drops the hash", func(t *testing.T) {
		dropped := false
		err := settleLateAnswer(reloadAs(model.SubmissionCompleted), func() error { dropped = true; return nil }, zerolog.Nop())
		if !errors.Is(err, ErrAttemptCompleted) {
			t.Fatalf("expected ErrAttemptCompleted, got %v", err)
		}
		if !dropped {
			t.Error("late answers hash was not dropped")
		}
	})

	t.Run("failed drop still rejects", func(t *testing.T) {
		err := settleLateAnswer(reloadAs(model.SubmissionCompleted), func() error { return errors.New("redis down") }, zerolog.Nop())
		if !errors.Is(err, ErrAttemptCompleted) {
			t.Fatalf("expected ErrAttemptCompleted, got %v", err)
		}
	})

	t.Run("reload failure", func(t *testing.T) {
		boom := errors.New("db down")
		err := settleLateAnswer(func() (*model.Submission, error) { return nil, boom }, func() error { return nil }, zerolog.Nop())
		if !errors.Is(err, boom) {
			t.Fatalf("expected wrapped reload error, got %v", err)
		}
	})
}
