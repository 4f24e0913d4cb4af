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
	"github.com/testhub/testhub-backend/internal/selection"
	"github.com/testhub/testhub-backend/internal/session"
	"github.com/testhub/testhub-backend/internal/storage"
)

// Attempt errors.
var (
	ErrAttemptNotFound      = errors.New("attempt not found")
	ErrAttemptCompleted     = errors.New("attempt is already completed")
	ErrAttemptNotCompleted  = errors.New("attempt is still in progress")
	ErrAttemptLimitReached  = errors.New("exam was already taken")
	ErrQuestionNotInAttempt = errors.New("question is not part of this attempt")
	ErrSubmitInProgress     = errors.New("final submit already in progress")
	ErrNotEssay             = errors.New("question is not an essay")
	ErrInvalidGrade         = errors.New("grade exceeds the question weight")
)

const completeLockTTL = 30 * time.Second

// SubmissionService runs attempts: selection and materialization, answer
// capture, grading and completion.
type SubmissionService struct {
	cfg          *config.Config
	db           *pgxpool.Pool
	subRepo      *repository.SubmissionRepository
	questionRepo *repository.QuestionRepository
	userRepo     *repository.UserRepository
	exams        *ExamService
	urls         *storage.Resolver
	rdb          *redis.Client
	log          zerolog.Logger
	now          func() time.Time
}

// NewSubmissionService creates a new SubmissionService.
func NewSubmissionService(
	cfg *config.Config,
	db *pgxpool.Pool,
	subRepo *repository.SubmissionRepository,
	questionRepo *repository.QuestionRepository,
	userRepo *repository.UserRepository,
	exams *ExamService,
	urls *storage.Resolver,
	rdb *redis.Client,
	log zerolog.Logger,
) *SubmissionService {
	return &SubmissionService{
		cfg:          cfg,
		db:           db,
		subRepo:      subRepo,
		questionRepo: questionRepo,
		userRepo:     userRepo,
		exams:        exams,
		urls:         urls,
		rdb:          rdb,
		log:          log.With().Str("component", "submission_service").Logger(),
		now:          time.Now,
	}
}

// ─── Attempt start ─────────────────────────────────────────────────────────

// StartAttempt returns the student's running attempt for the exam or
// materializes a new one. Non-practice exams are selected once; practice
// exams get a fresh selection for every new attempt.
func (s *SubmissionService) StartAttempt(ctx context.Context, examID uuid.UUID, studentID int) (*model.AttemptState, error) {
	exam, err := s.startExam(ctx, examID)
	if err != nil {
		return nil, err
	}

	var (
		sub     *model.Submission
		rows    []model.SubmissionQuestion
		created bool
	)
	err = database.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := s.subRepo.LockExamStudent(ctx, tx, examID, studentID); err != nil {
			return fmt.Errorf("lock attempt: %w", err)
		}

		latest, err := s.subRepo.FindLatest(ctx, tx, examID, studentID)
		if errors.Is(err, repository.ErrNotFound) {
			latest, err = nil, nil
		}
		if err != nil {
			return fmt.Errorf("find submission: %w", err)
		}

		action, err := decideStart(exam, latest, s.now())
		if err != nil {
			return err
		}
		if action == startResume {
			sub = latest
			return nil
		}

		pool, err := selectionPool(ctx, s.questionRepo, tx, exam)
		if err != nil {
			return fmt.Errorf("list pool: %w", err)
		}
		seed := selection.NewSeed()
		rng := selection.NewSource(seed)
		selected, err := selection.Select(selection.ConfigFromExam(exam), pool, rng)
		if err != nil {
			return err
		}
		items := selection.Materialize(selected, rng)

		sub = &model.Submission{
			ExamID:                examID,
			StudentID:             studentID,
			IsPractice:            exam.IsPractice,
			SelectionSeed:         seed,
			ExpectedQuestionCount: len(items),
		}
		if err := s.subRepo.Create(ctx, tx, sub); err != nil {
			if errors.Is(err, repository.ErrDuplicateAttempt) {
				return ErrAttemptLimitReached
			}
			return fmt.Errorf("create submission: %w", err)
		}

		rows = make([]model.SubmissionQuestion, len(items))
		for i, it := range items {
			rows[i] = model.SubmissionQuestion{
				SubmissionID: sub.ID,
				QuestionID:   it.Question.ID,
				Position:     it.Position,
				OptionMap:    it.OptionMap,
				Question:     it.Question,
			}
		}
		if err := s.subRepo.InsertQuestions(ctx, tx, sub.ID, rows); err != nil {
			return fmt.Errorf("insert questions: %w", err)
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if created {
		s.cacheStart(ctx, exam, sub)
		s.log.Info().
			Str("submission_id", sub.ID.String()).
			Str("exam_id", examID.String()).
			Int("student_id", studentID).
			Int("questions", len(rows)).
			Msg("Attempt started")
	} else {
		rows, err = s.subRepo.ListQuestions(ctx, s.db, sub.ID)
		if err != nil {
			return nil, fmt.Errorf("list questions: %w", err)
		}
		s.log.Info().Str("submission_id", sub.ID.String()).Msg("Attempt resumed")
	}

	return s.buildState(ctx, exam, sub, rows)
}

// startExam loads the exam for a start request. Hidden exams are not in the
// definition cache but are still loaded, so a running attempt can resume.
func (s *SubmissionService) startExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	exam, err := s.exams.Definition(ctx, examID)
	if !errors.Is(err, ErrExamNotAvailable) {
		return exam, err
	}
	exam, err = s.exams.Get(ctx, examID, 0)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrExamNotAvailable
	}
	return exam, err
}

func (s *SubmissionService) cacheStart(ctx context.Context, exam *model.Exam, sub *model.Submission) {
	ttl := s.attemptDuration(exam) + s.cfg.SubmitGrace + time.Hour
	key := config.CacheKey.SubmissionStartKey(sub.ID.String())
	if err := s.rdb.Set(ctx, key, sub.StartedAt.Unix(), ttl).Err(); err != nil {
		s.log.Warn().Err(err).Str("submission_id", sub.ID.String()).Msg("Failed to cache start time")
	}
}

func (s *SubmissionService) attemptDuration(exam *model.Exam) time.Duration {
	return time.Duration(exam.DurationMinutes) * time.Minute
}

// GetAttemptState returns a running or finished attempt of the student with
// its stored answers and remaining time.
func (s *SubmissionService) GetAttemptState(ctx context.Context, submissionID uuid.UUID, studentID int) (*model.AttemptState, error) {
	sub, err := s.loadOwned(ctx, submissionID, studentID)
	if err != nil {
		return nil, err
	}
	exam, err := s.exams.Get(ctx, sub.ExamID, 0)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	rows, err := s.subRepo.ListQuestions(ctx, s.db, sub.ID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return s.buildState(ctx, exam, sub, rows)
}

func (s *SubmissionService) buildState(ctx context.Context, exam *model.Exam, sub *model.Submission, rows []model.SubmissionQuestion) (*model.AttemptState, error) {
	attempt := s.buildAttempt(ctx, exam, sub, rows)

	stored, err := s.currentAnswers(ctx, sub, rows)
	if err != nil {
		return nil, err
	}
	answers := make(map[uuid.UUID]model.AnswerPayload, len(stored))
	for i, q := range attempt.Questions {
		a, ok := stored[i]
		if !ok {
			continue
		}
		p, err := session.BuildPayload(q, a)
		if err != nil {
			s.log.Warn().Err(err).Str("question_id", q.QuestionID.String()).Msg("Dropping stored answer")
			continue
		}
		answers[q.QuestionID] = p
	}

	remaining := 0
	if sub.Status == model.SubmissionInProgress {
		end := sub.StartedAt.Add(s.attemptDuration(exam))
		remaining = max(int(end.Sub(s.now())/time.Second), 0)
	}

	return &model.AttemptState{
		Attempt:          attempt,
		Answers:          answers,
		RemainingSeconds: remaining,
	}, nil
}

func (s *SubmissionService) buildAttempt(ctx context.Context, exam *model.Exam, sub *model.Submission, rows []model.SubmissionQuestion) model.Attempt {
	questions := make([]model.AttemptQuestion, len(rows))
	for i, row := range rows {
		q := row.Question
		aq := model.AttemptQuestion{
			QuestionID: row.QuestionID,
			Position:   row.Position,
			Text:       q.Text,
			Type:       q.Type,
			Format:     q.Format,
			Topic:      q.Topic,
			ImageURL:   s.urls.ResolveOptional(ctx, q.ImageRef),
		}
		for _, ref := range row.OptionMap {
			if ref.Index < 0 || ref.Index >= len(q.Options) {
				continue
			}
			aq.Options = append(aq.Options, model.DisplayOption{ID: ref.DisplayID, Text: q.Options[ref.Index].Text})
		}
		questions[i] = aq
	}

	return model.Attempt{
		SubmissionID:    sub.ID,
		ExamID:          exam.ID,
		Title:           exam.Title,
		DurationMinutes: exam.DurationMinutes,
		IsPractice:      sub.IsPractice,
		StartedAt:       sub.StartedAt,
		Questions:       questions,
	}
}

// currentAnswers merges the Redis fast lane over the persisted answers,
// keyed by row index.
func (s *SubmissionService) currentAnswers(ctx context.Context, sub *model.Submission, rows []model.SubmissionQuestion) (map[int]model.Answer, error) {
	var fast map[string]string
	if sub.Status == model.SubmissionInProgress {
		var err error
		fast, err = s.rdb.HGetAll(ctx, config.CacheKey.SubmissionAnswersKey(sub.ID.String())).Result()
		if err != nil {
			return nil, fmt.Errorf("get answers: %w", err)
		}
	}

	answers := make(map[int]model.Answer, len(rows))
	for i, row := range rows {
		raw := row.Answer
		if v, ok := fast[row.QuestionID.String()]; ok {
			raw = json.RawMessage(v)
		}
		if len(raw) == 0 {
			continue
		}
		a, err := model.DecodeAnswer(raw)
		if err != nil {
			s.log.Warn().Err(err).
				Str("submission_id", sub.ID.String()).
				Str("question_id", row.QuestionID.String()).
				Msg("Skipping undecodable answer")
			continue
		}
		if a.QuestionType() != row.Question.Type {
			continue
		}
		answers[i] = a
	}
	return answers, nil
}

// VerifyOwner checks that the submission exists and belongs to the student.
func (s *SubmissionService) VerifyOwner(ctx context.Context, submissionID uuid.UUID, studentID int) error {
	_, err := s.loadOwned(ctx, submissionID, studentID)
	return err
}

func (s *SubmissionService) loadOwned(ctx context.Context, submissionID uuid.UUID, studentID int) (*model.Submission, error) {
	sub, err := s.subRepo.GetByID(ctx, s.db, submissionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get submission: %w", err)
	}
	if sub.StudentID != studentID {
		return nil, ErrAttemptNotFound
	}
	return sub, nil
}

// ─── Answer capture ────────────────────────────────────────────────────────

// SubmitAnswer validates and records one answer of a running attempt. The
// answer lands in Redis at once and is persisted by the autosave worker.
func (s *SubmissionService) SubmitAnswer(ctx context.Context, submissionID uuid.UUID, studentID int, questionID uuid.UUID, payload model.AnswerPayload) error {
	sub, err := s.loadOwned(ctx, submissionID, studentID)
	if err != nil {
		return err
	}
	if sub.Status != model.SubmissionInProgress {
		return ErrAttemptCompleted
	}

	row, err := s.subRepo.GetQuestion(ctx, s.db, submissionID, questionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrQuestionNotInAttempt
		}
		return fmt.Errorf("get question: %w", err)
	}

	a, err := CheckAnswer(row, payload)
	if err != nil {
		return err
	}
	enc, err := model.EncodeAnswer(a)
	if err != nil {
		return fmt.Errorf("encode answer: %w", err)
	}
	record, err := json.Marshal(model.AnswerRecord{
		SubmissionID: submissionID,
		QuestionID:   questionID,
		Answer:       enc,
		AnsweredAt:   s.now(),
	})
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	answersKey := config.CacheKey.SubmissionAnswersKey(submissionID.String())
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, answersKey, questionID.String(), enc)
	pipe.Expire(ctx, answersKey, 24*time.Hour)
	pipe.RPush(ctx, config.WorkerKey.PersistAnswersQueue, record)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store answer: %w", err)
	}

	return settleLateAnswer(
		func() (*model.Submission, error) { return s.subRepo.GetByID(ctx, s.db, submissionID) },
		func() error { return s.rdb.Del(ctx, answersKey).Err() },
		s.log.With().Str("submission_id", submissionID.String()).Logger(),
	)
}

// settleLateAnswer checks the submission again once an answer is stored. A
// completion that committed between the first status check and the write
// has already read and dropped the answers hash, so the late hash is
// dropped too and the answer is rejected.
func settleLateAnswer(reload func() (*model.Submission, error), drop func() error, log zerolog.Logger) error {
	sub, err := reload()
	if err != nil {
		return fmt.Errorf("recheck submission: %w", err)
	}
	if sub.Status == model.SubmissionInProgress {
		return nil
	}
	if err := drop(); err != nil {
		log.Warn().Err(err).Msg("Failed to drop late answers")
	}
	return ErrAttemptCompleted
}

// ─── Completion ────────────────────────────────────────────────────────────

// CompleteSubmission grades and freezes a running attempt. Completing an
// already completed attempt returns its stored result.
func (s *SubmissionService) CompleteSubmission(ctx context.Context, submissionID uuid.UUID, studentID int, req model.CompleteSubmissionRequest) (*model.SubmissionResult, error) {
	sub, err := s.loadOwned(ctx, submissionID, studentID)
	if err != nil {
		return nil, err
	}
	if sub.Status == model.SubmissionCompleted {
		return s.storedResult(ctx, sub)
	}

	lockKey := config.CacheKey.SubmissionCompleteLockKey(submissionID.String())
	acquired, err := s.rdb.SetNX(ctx, lockKey, s.now().Unix(), completeLockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire submit lock: %w", err)
	}
	if !acquired {
		return nil, ErrSubmitInProgress
	}
	defer s.rdb.Del(context.WithoutCancel(ctx), lockKey)

	exam, err := s.exams.Get(ctx, sub.ExamID, 0)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	rows, err := s.subRepo.ListQuestions(ctx, s.db, sub.ID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if req.ExpectedQuestionCount != len(rows) {
		s.log.Warn().
			Str("submission_id", sub.ID.String()).
			Int("expected", req.ExpectedQuestionCount).
			Int("materialized", len(rows)).
			Msg("Question count mismatch, using materialized count")
	}

	answers, err := s.currentAnswers(ctx, sub, rows)
	if err != nil {
		return nil, err
	}
	grading := GradeSubmission(rows, answers)
	rating := model.RatingForScore(grading.Total)
	endedAt := s.clampEnd(exam, sub, req.EndedAt)

	alreadyDone := false
	err = database.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		locked, err := s.subRepo.GetByIDForUpdate(ctx, tx, sub.ID)
		if err != nil {
			return fmt.Errorf("lock submission: %w", err)
		}
		if locked.Status == model.SubmissionCompleted {
			alreadyDone = true
			return nil
		}
		if err := s.subRepo.SaveGrades(ctx, tx, sub.ID, grading.Rows); err != nil {
			return fmt.Errorf("save grades: %w", err)
		}
		ok, err := s.subRepo.Complete(ctx, tx, sub.ID, endedAt, grading.Total, rating)
		if err != nil {
			return fmt.Errorf("complete submission: %w", err)
		}
		alreadyDone = !ok
		return nil
	})
	if err != nil {
		return nil, err
	}
	if alreadyDone {
		fresh, err := s.subRepo.GetByID(ctx, s.db, sub.ID)
		if err != nil {
			return nil, fmt.Errorf("reload submission: %w", err)
		}
		return s.storedResult(ctx, fresh)
	}

	s.rdb.Del(ctx,
		config.CacheKey.SubmissionAnswersKey(sub.ID.String()),
		config.CacheKey.SubmissionStartKey(sub.ID.String()),
	)
	s.announce(ctx, model.ResultEvent{
		SubmissionID: sub.ID,
		ExamID:       sub.ExamID,
		StudentID:    sub.StudentID,
		TotalScore:   grading.Total,
		Rating:       rating,
		EndedAt:      endedAt,
	})

	s.log.Info().
		Str("submission_id", sub.ID.String()).
		Float64("score", grading.Total).
		Str("rating", string(rating)).
		Msg("Attempt completed")

	return &model.SubmissionResult{
		SubmissionID: sub.ID,
		Status:       model.SubmissionCompleted,
		TotalScore:   grading.Total,
		Rating:       rating,
		Correct:      grading.Correct,
		Total:        len(rows),
		EndedAt:      endedAt,
	}, nil
}

// clampEnd bounds the reported end time to [started, started+duration]
// and never past now.
func (s *SubmissionService) clampEnd(exam *model.Exam, sub *model.Submission, reported time.Time) time.Time {
	now := s.now()
	end := reported
	if end.IsZero() || end.After(now) {
		end = now
	}
	if limit := sub.StartedAt.Add(s.attemptDuration(exam)); end.After(limit) {
		end = limit
	}
	if end.Before(sub.StartedAt) {
		end = sub.StartedAt
	}
	return end
}

func (s *SubmissionService) storedResult(ctx context.Context, sub *model.Submission) (*model.SubmissionResult, error) {
	rows, err := s.subRepo.ListQuestions(ctx, s.db, sub.ID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	res := &model.SubmissionResult{
		SubmissionID: sub.ID,
		Status:       sub.Status,
		Total:        len(rows),
	}
	for _, r := range rows {
		if r.IsCorrect != nil && *r.IsCorrect {
			res.Correct++
		}
	}
	if sub.TotalScore != nil {
		res.TotalScore = *sub.TotalScore
	}
	if sub.Rating != nil {
		res.Rating = *sub.Rating
	}
	if sub.EndedAt != nil {
		res.EndedAt = *sub.EndedAt
	}
	return res, nil
}

// announce publishes a result to the exam's live channel and queues it for
// the statistics worker.
func (s *SubmissionService) announce(ctx context.Context, ev model.ResultEvent) {
	if ev.StudentName == "" {
		if u, err := s.userRepo.GetByID(ctx, ev.StudentID); err == nil {
			ev.StudentName = u.Name
		}
	}
	data, err := json.Marshal(ev)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to encode result event")
		return
	}

	pipe := s.rdb.Pipeline()
	pipe.RPush(ctx, config.WorkerKey.PersistScoresQueue, data)
	pipe.Publish(ctx, config.CacheKey.ExamResultsChannel(ev.ExamID.String()), data)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Error().Err(err).
			Str("submission_id", ev.SubmissionID.String()).
			Msg("Failed to announce result")
	}
}

// ─── Manual grading ────────────────────────────────────────────────────────

// GradeEssay sets the score of an essay row of a completed attempt and
// recomputes the total and rating. ownerID 0 skips the ownership check.
func (s *SubmissionService) GradeEssay(ctx context.Context, submissionID, questionID uuid.UUID, ownerID int, req model.GradeEssayRequest) (*model.SubmissionResult, error) {
	sub, err := s.subRepo.GetByID(ctx, s.db, submissionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get submission: %w", err)
	}
	if _, err := s.exams.Get(ctx, sub.ExamID, ownerID); err != nil {
		return nil, err
	}
	if sub.Status != model.SubmissionCompleted {
		return nil, ErrAttemptNotCompleted
	}

	var total float64
	err = database.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		locked, err := s.subRepo.GetByIDForUpdate(ctx, tx, submissionID)
		if err != nil {
			return fmt.Errorf("lock submission: %w", err)
		}
		sub = locked

		rows, err := s.subRepo.ListQuestions(ctx, tx, submissionID)
		if err != nil {
			return fmt.Errorf("list questions: %w", err)
		}
		idx := -1
		for i := range rows {
			if rows[i].QuestionID == questionID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return ErrQuestionNotInAttempt
		}
		if rows[idx].Question.Type != model.QuestionTypeEssay {
			return ErrNotEssay
		}
		if weight := model.MaxScore / float64(len(rows)); *req.Score > weight+1e-9 {
			return fmt.Errorf("%w: max %.2f", ErrInvalidGrade, weight)
		}

		if err := s.subRepo.SetQuestionGrade(ctx, tx, submissionID, questionID, *req.Score, req.IsCorrect); err != nil {
			return fmt.Errorf("set grade: %w", err)
		}
		rows[idx].Score = *req.Score
		total = SumScores(rows)
		return s.subRepo.UpdateScore(ctx, tx, submissionID, total, model.RatingForScore(total))
	})
	if err != nil {
		return nil, err
	}

	rating := model.RatingForScore(total)
	ev := model.ResultEvent{
		SubmissionID:   sub.ID,
		ExamID:         sub.ExamID,
		StudentID:      sub.StudentID,
		TotalScore:     total,
		Rating:         rating,
		PreviousScore:  sub.TotalScore,
		PreviousRating: sub.Rating,
	}
	if sub.EndedAt != nil {
		ev.EndedAt = *sub.EndedAt
	}
	s.announce(ctx, ev)

	sub.TotalScore, sub.Rating = &total, &rating
	return s.storedResult(ctx, sub)
}
