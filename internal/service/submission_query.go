package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/testhub/testhub-backend/internal/model"
	"github.com/testhub/testhub-backend/internal/repository"
	"github.com/testhub/testhub-backend/internal/response"
	"github.com/testhub/testhub-backend/internal/selection"
	"github.com/testhub/testhub-backend/internal/session"
)

// LobbyStatus represents the state of an exam in the student lobby.
type LobbyStatus string

const (
	LobbyStatusUpcoming   LobbyStatus = "UPCOMING"
	LobbyStatusAvailable  LobbyStatus = "AVAILABLE"
	LobbyStatusInProgress LobbyStatus = "IN_PROGRESS"
	LobbyStatusCompleted  LobbyStatus = "COMPLETED"
	LobbyStatusClosed     LobbyStatus = "CLOSED"
)

// LobbyExam represents an exam as displayed in the student lobby.
type LobbyExam struct {
	model.Exam
	LobbyStatus  LobbyStatus   `json:"lobby_status"`
	SubmissionID *uuid.UUID    `json:"submission_id,omitempty"`
	TotalScore   *float64      `json:"total_score,omitempty"`
	Rating       *model.Rating `json:"rating,omitempty"`
}

// ReviewOption is an option of a reviewed question with its key and the
// student's choice.
type ReviewOption struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
	Selected  bool   `json:"selected"`
}

// ReviewItem is one graded row of a submission as seen by its lecturer.
type ReviewItem struct {
	QuestionID      uuid.UUID            `json:"question_id"`
	Position        int                  `json:"position"`
	Text            string               `json:"text"`
	Type            model.QuestionType   `json:"question_type"`
	Format          model.QuestionFormat `json:"question_format"`
	Options         []ReviewOption       `json:"options,omitempty"`
	ReferenceAnswer *string              `json:"reference_answer,omitempty"`
	EssayText       string               `json:"essay_text,omitempty"`
	IsCorrect       *bool                `json:"is_correct"`
	Score           float64              `json:"score"`
	AnsweredAt      *time.Time           `json:"answered_at,omitempty"`
}

// SubmissionReview is a completed submission with every graded row.
type SubmissionReview struct {
	model.Submission
	Items []ReviewItem `json:"items"`
}

// Lobby lists visible exams with the student's latest attempt overlaid.
func (s *SubmissionService) Lobby(ctx context.Context, studentID int) ([]LobbyExam, error) {
	exams, err := s.exams.ListVisible(ctx)
	if err != nil {
		return nil, fmt.Errorf("list visible exams: %w", err)
	}
	history, err := s.subRepo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}

	latest := make(map[uuid.UUID]repository.SubmissionSummary, len(history))
	for _, h := range history {
		cur, seen := latest[h.ExamID]
		if !seen || (h.Status == model.SubmissionInProgress && cur.Status != model.SubmissionInProgress) {
			latest[h.ExamID] = h
		}
	}

	now := s.now()
	lobby := make([]LobbyExam, 0, len(exams))
	for _, exam := range exams {
		entry := LobbyExam{Exam: exam}
		h, attempted := latest[exam.ID]
		switch {
		case attempted && h.Status == model.SubmissionInProgress:
			entry.LobbyStatus = LobbyStatusInProgress
		case attempted && !exam.IsPractice:
			entry.LobbyStatus = LobbyStatusCompleted
		case exam.StartsAt != nil && now.Before(*exam.StartsAt):
			entry.LobbyStatus = LobbyStatusUpcoming
		case !exam.OpenAt(now):
			entry.LobbyStatus = LobbyStatusClosed
		default:
			entry.LobbyStatus = LobbyStatusAvailable
		}
		if attempted {
			id := h.ID
			entry.SubmissionID = &id
			entry.TotalScore = h.TotalScore
			entry.Rating = h.Rating
		}
		lobby = append(lobby, entry)
	}
	return lobby, nil
}

// ListStudentSubmissions returns the student's attempts, newest first.
func (s *SubmissionService) ListStudentSubmissions(ctx context.Context, studentID int) ([]repository.SubmissionSummary, error) {
	return s.subRepo.ListByStudent(ctx, studentID)
}

// ListExamResults returns a page of an exam's submissions. ownerID 0 skips
// the ownership check.
func (s *SubmissionService) ListExamResults(ctx context.Context, examID uuid.UUID, ownerID int, status model.SubmissionStatus, page, perPage int) ([]repository.ExamResultRow, *response.Pagination, error) {
	if _, err := s.exams.Get(ctx, examID, ownerID); err != nil {
		return nil, nil, err
	}
	rows, total, err := s.subRepo.ListByExam(ctx, examID, status, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	return rows, response.NewPagination(page, perPage, total), nil
}

// Review returns a submission with its answer key and the student's
// answers. ownerID 0 skips the ownership check.
func (s *SubmissionService) Review(ctx context.Context, submissionID uuid.UUID, ownerID int) (*SubmissionReview, error) {
	sub, err := s.subRepo.GetByID(ctx, s.db, submissionID)
	if err != nil {
		return nil, err
	}
	exam, err := s.exams.Get(ctx, sub.ExamID, ownerID)
	if err != nil {
		return nil, err
	}
	rows, err := s.subRepo.ListQuestions(ctx, s.db, submissionID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	answers, err := s.currentAnswers(ctx, sub, rows)
	if err != nil {
		return nil, err
	}
	attempt := s.buildAttempt(ctx, exam, sub, rows)

	review := &SubmissionReview{Submission: *sub, Items: make([]ReviewItem, len(rows))}
	for i, row := range rows {
		var item ReviewItem
		if err := copier.Copy(&item, &row); err != nil {
			return nil, fmt.Errorf("copy row: %w", err)
		}
		item.Text = row.Question.Text
		item.Type = row.Question.Type
		item.Format = row.Question.Format
		item.ReferenceAnswer = row.Question.ReferenceAnswer

		a := answers[i]
		if essay, ok := a.(model.EssayAnswer); ok {
			item.EssayText = essay.Text
		}
		if row.Question.Type.IsChoice() {
			payload, err := session.BuildPayload(attempt.Questions[i], a)
			if err != nil {
				return nil, fmt.Errorf("build payload: %w", err)
			}
			for _, o := range payload.Options {
				idx := selection.Resolve(row.OptionMap, o.ID)
				item.Options = append(item.Options, ReviewOption{
					ID:        o.ID,
					Text:      o.Text,
					IsCorrect: idx >= 0 && idx < len(row.Question.Options) && row.Question.Options[idx].IsCorrect,
					Selected:  o.IsCorrect,
				})
			}
		}
		review.Items[i] = item
	}
	return review, nil
}
