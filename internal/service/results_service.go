package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/testhub/testhub-backend/internal/config"
	"github.com/testhub/testhub-backend/internal/model"
	"github.com/testhub/testhub-backend/internal/repository"
)

// ResultsService serves aggregated results and the live result stream.
type ResultsService struct {
	resultsRepo  *repository.ResultsRepository
	subRepo      *repository.SubmissionRepository
	userRepo     *repository.UserRepository
	examRepo     *repository.ExamRepository
	questionRepo *repository.QuestionRepository
	exams        *ExamService
	rdb          *redis.Client
}

// NewResultsService creates a new ResultsService.
func NewResultsService(
	resultsRepo *repository.ResultsRepository,
	subRepo *repository.SubmissionRepository,
	userRepo *repository.UserRepository,
	examRepo *repository.ExamRepository,
	questionRepo *repository.QuestionRepository,
	exams *ExamService,
	rdb *redis.Client,
) *ResultsService {
	return &ResultsService{
		resultsRepo:  resultsRepo,
		subRepo:      subRepo,
		userRepo:     userRepo,
		examRepo:     examRepo,
		questionRepo: questionRepo,
		exams:        exams,
		rdb:          rdb,
	}
}

// Summary returns the statistics of one exam. The stats row and the
// in-progress count are fetched in parallel.
func (s *ResultsService) Summary(ctx context.Context, examID uuid.UUID, ownerID int) (*model.ExamResultStats, error) {
	if _, err := s.exams.Get(ctx, examID, ownerID); err != nil {
		return nil, err
	}

	var (
		stats      *model.ExamResultStats
		inProgress int
		statsErr   error
		countErr   error
		wg         sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		stats, statsErr = s.resultsRepo.GetStats(ctx, examID)
	}()
	go func() {
		defer wg.Done()
		inProgress, countErr = s.subRepo.CountInProgress(ctx, examID)
	}()
	wg.Wait()

	if statsErr != nil {
		return nil, fmt.Errorf("get stats: %w", statsErr)
	}
	if countErr != nil {
		return nil, fmt.Errorf("count in progress: %w", countErr)
	}
	stats.InProgress = inProgress
	return stats, nil
}

// Dashboard returns the administrator overview.
func (s *ResultsService) Dashboard(ctx context.Context) (*model.Dashboard, error) {
	roles, err := s.userRepo.CountByRole(ctx)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	exams, visible, err := s.examRepo.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("count exams: %w", err)
	}
	questions, err := s.questionRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count questions: %w", err)
	}
	recent, err := s.resultsRepo.RecentResults(ctx, 5)
	if err != nil {
		return nil, fmt.Errorf("recent results: %w", err)
	}
	if recent == nil {
		recent = []model.ExamResultSummary{}
	}

	return &model.Dashboard{
		Students:      roles[model.RoleStudent],
		Lecturers:     roles[model.RoleLecturer],
		Exams:         exams,
		VisibleExams:  visible,
		Questions:     questions,
		RecentResults: recent,
	}, nil
}

// Subscribe opens the live result channel of an exam. The caller closes it.
func (s *ResultsService) Subscribe(ctx context.Context, examID uuid.UUID) *redis.PubSub {
	return s.rdb.Subscribe(ctx, config.CacheKey.ExamResultsChannel(examID.String()))
}
