package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testhub/testhub-backend/internal/config"
	"github.com/testhub/testhub-backend/internal/database"
	"github.com/testhub/testhub-backend/internal/model"
	"github.com/testhub/testhub-backend/internal/repository"
	"github.com/testhub/testhub-backend/internal/response"
	"github.com/testhub/testhub-backend/internal/selection"
)

// Domain Errors
var (
	ErrExamNotAvailable  = errors.New("exam is not available")
	ErrInvalidSelection  = errors.New("invalid selection settings")
	ErrInvalidMembership = errors.New("invalid exam questions")
)

// ExamPreview is a dry run of the selector on an exam's current pool.
type ExamPreview struct {
	Mode      model.SelectionMode `json:"selection_mode"`
	PoolSize  int                 `json:"pool_size"`
	Questions []model.Question    `json:"questions"`
}

// ExamService handles exam authoring and the exam definition cache.
type ExamService struct {
	db           *pgxpool.Pool
	examRepo     *repository.ExamRepository
	questionRepo *repository.QuestionRepository
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(
	db *pgxpool.Pool,
	examRepo *repository.ExamRepository,
	questionRepo *repository.QuestionRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		db:           db,
		examRepo:     examRepo,
		questionRepo: questionRepo,
		rdb:          rdb,
		log:          log.With().Str("component", "exam_service").Logger(),
	}
}

// normalizeSelection merges the distribution and validates the selection settings.
func normalizeSelection(e *model.Exam) error {
	e.Distribution = selection.MergeDistribution(e.Distribution)
	if e.SelectionMode != model.SelectionRandomN {
		e.SampleSize = 0
	}
	if e.SelectionMode != model.SelectionByType {
		e.Distribution = []model.DistributionEntry{}
	}
	if err := selection.ConfigFromExam(e).Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSelection, err)
	}
	if e.StartsAt != nil && e.EndsAt != nil && !e.EndsAt.After(*e.StartsAt) {
		return fmt.Errorf("%w: ends_at must be after starts_at", ErrInvalidSelection)
	}
	return nil
}

// checkMembership rejects duplicates and questions the owner does not own.
func (s *ExamService) checkMembership(ctx context.Context, ownerID int, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: question %s listed twice", ErrInvalidMembership, id)
		}
		seen[id] = struct{}{}
	}
	owned, err := s.questionRepo.CountOwned(ctx, ownerID, ids)
	if err != nil {
		return fmt.Errorf("count owned questions: %w", err)
	}
	if owned != len(ids) {
		return fmt.Errorf("%w: %d of %d questions are unknown or not owned", ErrInvalidMembership, len(ids)-owned, len(ids))
	}
	return nil
}

// Get retrieves an exam. ownerID 0 skips the ownership check.
func (s *ExamService) Get(ctx context.Context, id uuid.UUID, ownerID int) (*model.Exam, error) {
	exam, err := s.examRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ownerID != 0 && exam.OwnerID != ownerID {
		return nil, ErrNotOwner
	}
	return exam, nil
}

// List retrieves exams, filtered by owner unless ownerID is 0.
func (s *ExamService) List(ctx context.Context, ownerID, page, perPage int) ([]model.Exam, *response.Pagination, error) {
	exams, total, err := s.examRepo.ListByOwnerPaginated(ctx, ownerID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	return exams, response.NewPagination(page, perPage, total), nil
}

// Questions returns the exam's pool in membership order.
func (s *ExamService) Questions(ctx context.Context, id uuid.UUID, ownerID int) ([]model.Question, error) {
	if _, err := s.Get(ctx, id, ownerID); err != nil {
		return nil, err
	}
	questions, err := s.questionRepo.ListByExam(ctx, s.db, id)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if questions == nil {
		questions = []model.Question{}
	}
	return questions, nil
}

// Create inserts a hidden exam and its membership in one transaction.
func (s *ExamService) Create(ctx context.Context, ownerID int, req *model.CreateExamRequest) (*model.Exam, error) {
	exam := &model.Exam{
		Title:           req.Title,
		Topic:           req.Topic,
		OwnerID:         ownerID,
		StartsAt:        req.StartsAt,
		EndsAt:          req.EndsAt,
		DurationMinutes: req.DurationMinutes,
		IsPractice:      req.IsPractice,
		SelectionMode:   req.SelectionMode,
		SampleSize:      req.SampleSize,
		Distribution:    req.Distribution,
	}
	if err := normalizeSelection(exam); err != nil {
		return nil, err
	}
	if err := s.checkMembership(ctx, ownerID, req.QuestionIDs); err != nil {
		return nil, err
	}

	err := database.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := s.examRepo.Create(ctx, tx, exam); err != nil {
			return fmt.Errorf("create exam: %w", err)
		}
		if err := s.examRepo.SetQuestions(ctx, tx, exam.ID, req.QuestionIDs); err != nil {
			return fmt.Errorf("set questions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	exam.QuestionCount = len(req.QuestionIDs)

	s.log.Info().Str("exam_id", exam.ID.String()).Str("mode", string(exam.SelectionMode)).Msg("Exam created")
	return exam, nil
}

// Update modifies an exam. Submissions already materialized are unaffected.
func (s *ExamService) Update(ctx context.Context, id uuid.UUID, ownerID int, req *model.UpdateExamRequest) (*model.Exam, error) {
	exam, err := s.Get(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	if req.Title != "" {
		exam.Title = req.Title
	}
	if req.Topic != nil {
		exam.Topic = *req.Topic
	}
	if req.StartsAt != nil {
		exam.StartsAt = req.StartsAt
	}
	if req.EndsAt != nil {
		exam.EndsAt = req.EndsAt
	}
	if req.DurationMinutes > 0 {
		exam.DurationMinutes = req.DurationMinutes
	}
	if req.IsPractice != nil {
		exam.IsPractice = *req.IsPractice
	}
	if req.SelectionMode != "" {
		exam.SelectionMode = req.SelectionMode
	}
	if req.SampleSize != nil {
		exam.SampleSize = *req.SampleSize
	}
	if req.Distribution != nil {
		exam.Distribution = req.Distribution
	}
	if err := normalizeSelection(exam); err != nil {
		return nil, err
	}

	if err := s.examRepo.Update(ctx, exam); err != nil {
		return nil, fmt.Errorf("update exam: %w", err)
	}
	s.refreshIfVisible(ctx, exam)
	return exam, nil
}

// SetQuestions replaces the exam's membership.
func (s *ExamService) SetQuestions(ctx context.Context, id uuid.UUID, ownerID int, ids []uuid.UUID) (*model.Exam, error) {
	exam, err := s.Get(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if err := s.checkMembership(ctx, exam.OwnerID, ids); err != nil {
		return nil, err
	}
	err = database.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		return s.examRepo.SetQuestions(ctx, tx, id, ids)
	})
	if err != nil {
		return nil, fmt.Errorf("set questions: %w", err)
	}
	exam.QuestionCount = len(ids)
	s.refreshIfVisible(ctx, exam)
	return exam, nil
}

// SetVisibility shows or hides an exam and updates the definition cache.
func (s *ExamService) SetVisibility(ctx context.Context, id uuid.UUID, ownerID int, visible bool) (*model.Exam, error) {
	exam, err := s.Get(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if err := s.examRepo.SetVisibility(ctx, id, visible); err != nil {
		return nil, fmt.Errorf("set visibility: %w", err)
	}
	exam.IsVisible = visible

	if visible {
		if err := s.WarmExamCache(ctx, exam); err != nil {
			s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Failed to warm exam cache")
		}
	} else {
		s.evict(ctx, id)
	}
	s.log.Info().Str("exam_id", id.String()).Bool("visible", visible).Msg("Exam visibility changed")
	return exam, nil
}

// Delete removes an exam and its submissions.
func (s *ExamService) Delete(ctx context.Context, id uuid.UUID, ownerID int) error {
	if _, err := s.Get(ctx, id, ownerID); err != nil {
		return err
	}
	if err := s.examRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.evict(ctx, id)
	return nil
}

// PreviewSelection runs the selector with a throw-away seed.
func (s *ExamService) PreviewSelection(ctx context.Context, id uuid.UUID, ownerID int) (*ExamPreview, error) {
	exam, err := s.Get(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	pool, err := selectionPool(ctx, s.questionRepo, s.db, exam)
	if err != nil {
		return nil, fmt.Errorf("list pool: %w", err)
	}

	selected, err := selection.Select(selection.ConfigFromExam(exam), pool, selection.NewSource(selection.NewSeed()))
	if err != nil {
		return nil, err
	}
	if selected == nil {
		selected = []model.Question{}
	}
	return &ExamPreview{Mode: exam.SelectionMode, PoolSize: len(pool), Questions: selected}, nil
}

// ─── Definition cache ──────────────────────────────────────────────────────

func (s *ExamService) refreshIfVisible(ctx context.Context, exam *model.Exam) {
	if !exam.IsVisible {
		return
	}
	if err := s.WarmExamCache(ctx, exam); err != nil {
		s.log.Warn().Err(err).Str("exam_id", exam.ID.String()).Msg("Failed to refresh exam cache")
	}
}

func (s *ExamService) evict(ctx context.Context, id uuid.UUID) {
	if err := s.rdb.Del(ctx, config.CacheKey.ExamDefinitionKey(id.String())).Err(); err != nil {
		s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Failed to evict exam cache")
	}
}

// WarmExamCache stores the exam definition in Redis until it ends.
func (s *ExamService) WarmExamCache(ctx context.Context, exam *model.Exam) error {
	data, err := json.Marshal(exam)
	if err != nil {
		return fmt.Errorf("marshal exam: %w", err)
	}

	var ttl time.Duration
	if exam.EndsAt != nil {
		ttl = time.Until(*exam.EndsAt) + time.Duration(exam.DurationMinutes)*time.Minute
		if ttl <= 0 {
			s.evict(ctx, exam.ID)
			return nil
		}
	}
	if err := s.rdb.Set(ctx, config.CacheKey.ExamDefinitionKey(exam.ID.String()), data, ttl).Err(); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().Str("exam_id", exam.ID.String()).Msg("Cache warmed")
	return nil
}

// PrewarmAllCaches loads all visible exams into Redis on application startup.
func (s *ExamService) PrewarmAllCaches(ctx context.Context) error {
	exams, err := s.examRepo.ListVisible(ctx)
	if err != nil {
		return fmt.Errorf("list visible exams: %w", err)
	}

	if len(exams) == 0 {
		s.log.Info().Msg("No visible exams to prewarm")
		return nil
	}

	s.log.Info().Int("count", len(exams)).Msg("Prewarming visible exams...")

	warmed := 0
	for i := range exams {
		if err := s.WarmExamCache(ctx, &exams[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("exam_id", exams[i].ID.String()).
				Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(exams)).
		Msg("Prewarming complete")
	return nil
}

// Definition returns a visible exam, reading through the Redis cache.
func (s *ExamService) Definition(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.ExamDefinitionKey(id.String())).Bytes()
	if err == nil {
		var exam model.Exam
		if jsonErr := json.Unmarshal(data, &exam); jsonErr == nil {
			return &exam, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Exam cache read failed")
	}

	exam, err := s.examRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExamNotAvailable
		}
		return nil, err
	}
	if !exam.IsVisible {
		return nil, ErrExamNotAvailable
	}
	if err := s.WarmExamCache(ctx, exam); err != nil {
		s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Failed to warm exam cache")
	}
	return exam, nil
}

// ListVisible returns the exams shown in the student lobby.
func (s *ExamService) ListVisible(ctx context.Context) ([]model.Exam, error) {
	return s.examRepo.ListVisible(ctx)
}
