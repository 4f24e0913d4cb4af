package service

import (
	"context"
	"time"

	"github.com/testhub/testhub-backend/internal/model"
	"github.com/testhub/testhub-backend/internal/repository"
	"github.com/testhub/testhub-backend/internal/selection"
)

type startAction int

const (
	startCreate startAction = iota
	startResume
)

// decideStart decides what a start request does, given the exam and the
// student's latest submission for it (nil when there is none).
//
// A running attempt always resumes, even once the exam is hidden or its
// window has closed. The exam's current practice flag decides whether a
// finished attempt may be followed by another one, so an exam switched to
// one-shot counts earlier practice attempts too.
func decideStart(exam *model.Exam, latest *model.Submission, now time.Time) (startAction, error) {
	if latest != nil && latest.Status == model.SubmissionInProgress {
		return startResume, nil
	}
	if latest != nil && !exam.IsPractice {
		return 0, ErrAttemptLimitReached
	}
	if !exam.IsVisible || !exam.OpenAt(now) {
		return 0, ErrExamNotAvailable
	}
	return startCreate, nil
}

// drawsFromBank reports whether the exam samples the owner's whole bank
// instead of its membership list.
func drawsFromBank(exam *model.Exam) bool {
	return exam.SelectionMode == model.SelectionByType
}

// selectionPool loads the questions the selector draws from: the owner's
// bank for BY_TYPE, the exam's membership in position order otherwise.
func selectionPool(ctx context.Context, questions *repository.QuestionRepository, db repository.DBTX, exam *model.Exam) ([]model.Question, error) {
	if drawsFromBank(exam) {
		return questions.ListByOwnerBuckets(ctx, db, exam.OwnerID, selection.MergeDistribution(exam.Distribution))
	}
	return questions.ListByExam(ctx, db, exam.ID)
}
