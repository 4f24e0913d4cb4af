package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/testhub/testhub-backend/internal/model"
	"github.com/testhub/testhub-backend/internal/repository"
	"github.com/testhub/testhub-backend/internal/response"
	"github.com/testhub/testhub-backend/internal/storage"
)

// ErrNotOwner is returned when a lecturer touches another lecturer's resource.
var ErrNotOwner = errors.New("not the owner of this resource")

// QuestionValidationError reports a question that breaks an option rule.
type QuestionValidationError struct {
	Field   string
	Message string
}

func (e *QuestionValidationError) Error() string {
	return fmt.Sprintf("invalid question: %s %s", e.Field, e.Message)
}

// ValidateQuestion checks the option rules of each question type.
func ValidateQuestion(req *model.QuestionRequest) error {
	switch req.Type {
	case model.QuestionTypeSingleChoice, model.QuestionTypeMultipleChoice:
		if len(req.Options) < 2 {
			return &QuestionValidationError{Field: "options", Message: "must contain at least 2 options"}
		}
		correct := 0
		for _, o := range req.Options {
			if o.IsCorrect {
				correct++
			}
		}
		if req.Type == model.QuestionTypeSingleChoice && correct != 1 {
			return &QuestionValidationError{Field: "options", Message: "must have exactly one correct option"}
		}
		if req.Type == model.QuestionTypeMultipleChoice && correct < 1 {
			return &QuestionValidationError{Field: "options", Message: "must have at least one correct option"}
		}
		if req.ReferenceAnswer != nil {
			return &QuestionValidationError{Field: "reference_answer", Message: "is only allowed on essays"}
		}
	case model.QuestionTypeEssay:
		if len(req.Options) > 0 {
			return &QuestionValidationError{Field: "options", Message: "are not allowed on essays"}
		}
	default:
		return &QuestionValidationError{Field: "question_type", Message: "is unknown"}
	}
	return nil
}

// QuestionService handles question bank business logic.
type QuestionService struct {
	questionRepo *repository.QuestionRepository
	urls         *storage.Resolver
	log          zerolog.Logger
}

// NewQuestionService creates a new QuestionService.
func NewQuestionService(questionRepo *repository.QuestionRepository, urls *storage.Resolver, log zerolog.Logger) *QuestionService {
	return &QuestionService{
		questionRepo: questionRepo,
		urls:         urls,
		log:          log.With().Str("component", "question_service").Logger(),
	}
}

// List retrieves questions with pagination. ownerID 0 lists every owner.
func (s *QuestionService) List(ctx context.Context, ownerID int, filter model.QuestionFilter, page, perPage int) ([]model.Question, *response.Pagination, error) {
	questions, total, err := s.questionRepo.ListByOwner(ctx, ownerID, filter, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	for i := range questions {
		questions[i].ImageURL = s.urls.ResolveOptional(ctx, questions[i].ImageRef)
	}
	return questions, response.NewPagination(page, perPage, total), nil
}

// Get retrieves a question. ownerID 0 skips the ownership check.
func (s *QuestionService) Get(ctx context.Context, id uuid.UUID, ownerID int) (*model.Question, error) {
	q, err := s.questionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ownerID != 0 && q.OwnerID != ownerID {
		return nil, ErrNotOwner
	}
	q.ImageURL = s.urls.ResolveOptional(ctx, q.ImageRef)
	return q, nil
}

// Create adds a question to the owner's bank.
func (s *QuestionService) Create(ctx context.Context, ownerID int, req *model.QuestionRequest) (*model.Question, error) {
	if err := ValidateQuestion(req); err != nil {
		return nil, err
	}
	q := questionFromRequest(req)
	q.OwnerID = ownerID
	if err := s.questionRepo.Create(ctx, q); err != nil {
		return nil, fmt.Errorf("create question: %w", err)
	}
	q.ImageURL = s.urls.ResolveOptional(ctx, q.ImageRef)
	return q, nil
}

// Update replaces a question's content. Submissions already materialized
// keep their own snapshot.
func (s *QuestionService) Update(ctx context.Context, id uuid.UUID, ownerID int, req *model.QuestionRequest) (*model.Question, error) {
	existing, err := s.questionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ownerID != 0 && existing.OwnerID != ownerID {
		return nil, ErrNotOwner
	}
	if err := ValidateQuestion(req); err != nil {
		return nil, err
	}

	q := questionFromRequest(req)
	q.ID = existing.ID
	q.OwnerID = existing.OwnerID
	q.CreatedAt = existing.CreatedAt
	if err := s.questionRepo.Update(ctx, q); err != nil {
		return nil, fmt.Errorf("update question: %w", err)
	}
	q.ImageURL = s.urls.ResolveOptional(ctx, q.ImageRef)
	return q, nil
}

// Delete removes a question that no exam uses.
func (s *QuestionService) Delete(ctx context.Context, id uuid.UUID, ownerID int) error {
	existing, err := s.questionRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if ownerID != 0 && existing.OwnerID != ownerID {
		return ErrNotOwner
	}
	if err := s.questionRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info().Str("question_id", id.String()).Msg("Question deleted")
	return nil
}

func questionFromRequest(req *model.QuestionRequest) *model.Question {
	options := req.Options
	if !req.Type.IsChoice() || options == nil {
		options = []model.Option{}
	}
	return &model.Question{
		Text:            req.Text,
		Type:            req.Type,
		Format:          req.Format,
		Topic:           req.Topic,
		ImageRef:        req.ImageRef,
		Options:         options,
		ReferenceAnswer: req.ReferenceAnswer,
	}
}
