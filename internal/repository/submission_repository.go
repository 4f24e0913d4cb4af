package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testhub/testhub-backend/internal/model"
)

// ErrDuplicateAttempt is returned when a second non-practice submission is inserted.
var ErrDuplicateAttempt = errors.New("submission already exists for this exam")

// SubmissionSummary is a row of a student's submission history.
type SubmissionSummary struct {
	ID         uuid.UUID              `json:"id"`
	ExamID     uuid.UUID              `json:"exam_id"`
	ExamTitle  string                 `json:"exam_title"`
	IsPractice bool                   `json:"is_practice"`
	Status     model.SubmissionStatus `json:"status"`
	StartedAt  time.Time              `json:"started_at"`
	EndedAt    *time.Time             `json:"ended_at"`
	TotalScore *float64               `json:"total_score"`
	Rating     *model.Rating          `json:"rating"`
}

// ExamResultRow is a row of an exam's result listing.
type ExamResultRow struct {
	SubmissionID uuid.UUID              `json:"submission_id"`
	StudentID    int                    `json:"student_id"`
	Username     string                 `json:"username"`
	Name         string                 `json:"name"`
	Status       model.SubmissionStatus `json:"status"`
	StartedAt    time.Time              `json:"started_at"`
	EndedAt      *time.Time             `json:"ended_at"`
	TotalScore   *float64               `json:"total_score"`
	Rating       *model.Rating          `json:"rating"`
}

const submissionColumns = `id, exam_id, student_id, is_practice, status, started_at, ended_at,
	selection_seed, expected_question_count, total_score, rating`

// SubmissionRepository handles submission data access.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

func scanSubmission(row pgx.Row) (*model.Submission, error) {
	s := &model.Submission{}
	err := row.Scan(&s.ID, &s.ExamID, &s.StudentID, &s.IsPractice, &s.Status, &s.StartedAt, &s.EndedAt,
		&s.SelectionSeed, &s.ExpectedQuestionCount, &s.TotalScore, &s.Rating)
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

// GetByID retrieves a submission.
func (r *SubmissionRepository) GetByID(ctx context.Context, db DBTX, id uuid.UUID) (*model.Submission, error) {
	return scanSubmission(db.QueryRow(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id))
}

// GetByIDForUpdate retrieves a submission and locks its row for the transaction.
func (r *SubmissionRepository) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Submission, error) {
	return scanSubmission(tx.QueryRow(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = $1 FOR UPDATE`, id))
}

// FindLatest returns the student's in-progress submission for the exam if
// there is one, otherwise the most recent one.
func (r *SubmissionRepository) FindLatest(ctx context.Context, db DBTX, examID uuid.UUID, studentID int) (*model.Submission, error) {
	return scanSubmission(db.QueryRow(ctx,
		`SELECT `+submissionColumns+`
		 FROM submissions
		 WHERE exam_id = $1 AND student_id = $2
		 ORDER BY (status = 'IN_PROGRESS') DESC, started_at DESC
		 LIMIT 1`, examID, studentID))
}

// LockExamStudent takes a transaction-scoped advisory lock on (exam, student).
func (r *SubmissionRepository) LockExamStudent(ctx context.Context, tx pgx.Tx, examID uuid.UUID, studentID int) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1::text), $2)`, examID.String(), studentID)
	return err
}

// Create inserts a new IN_PROGRESS submission.
func (r *SubmissionRepository) Create(ctx context.Context, tx pgx.Tx, s *model.Submission) error {
	err := tx.QueryRow(ctx,
		`INSERT INTO submissions (exam_id, student_id, is_practice, selection_seed, expected_question_count)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, status, started_at`,
		s.ExamID, s.StudentID, s.IsPractice, s.SelectionSeed, s.ExpectedQuestionCount,
	).Scan(&s.ID, &s.Status, &s.StartedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateAttempt
	}
	return err
}

// InsertQuestions writes the materialized question rows of a submission.
func (r *SubmissionRepository) InsertQuestions(ctx context.Context, tx pgx.Tx, submissionID uuid.UUID, rows []model.SubmissionQuestion) error {
	qids := make([]uuid.UUID, len(rows))
	positions := make([]int32, len(rows))
	optionMaps := make([]string, len(rows))
	snapshots := make([]string, len(rows))
	for i, row := range rows {
		om, err := json.Marshal(row.OptionMap)
		if err != nil {
			return fmt.Errorf("encode option map: %w", err)
		}
		snap, err := json.Marshal(row.Question)
		if err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
		qids[i] = row.QuestionID
		positions[i] = int32(row.Position)
		optionMaps[i] = string(om)
		snapshots[i] = string(snap)
	}

	_, err := tx.Exec(ctx,
		`INSERT INTO submission_questions (submission_id, question_id, position, option_map, snapshot)
		 SELECT $1, t.qid, t.pos, t.om::jsonb, t.snap::jsonb
		 FROM UNNEST($2::uuid[], $3::int[], $4::text[], $5::text[]) AS t(qid, pos, om, snap)`,
		submissionID, qids, positions, optionMaps, snapshots)
	return err
}

// ListQuestions returns the materialized rows of a submission in presentation order.
func (r *SubmissionRepository) ListQuestions(ctx context.Context, db DBTX, submissionID uuid.UUID) ([]model.SubmissionQuestion, error) {
	rows, err := db.Query(ctx,
		`SELECT submission_id, question_id, position, option_map, snapshot, answer, is_correct, score, answered_at
		 FROM submission_questions
		 WHERE submission_id = $1
		 ORDER BY position`, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SubmissionQuestion
	for rows.Next() {
		var sq model.SubmissionQuestion
		var answer []byte
		if err := rows.Scan(&sq.SubmissionID, &sq.QuestionID, &sq.Position, &sq.OptionMap, &sq.Question,
			&answer, &sq.IsCorrect, &sq.Score, &sq.AnsweredAt); err != nil {
			return nil, err
		}
		if answer != nil {
			sq.Answer = json.RawMessage(answer)
		}
		out = append(out, sq)
	}
	return out, rows.Err()
}

// GetQuestion returns one materialized row of a submission.
func (r *SubmissionRepository) GetQuestion(ctx context.Context, db DBTX, submissionID, questionID uuid.UUID) (*model.SubmissionQuestion, error) {
	var sq model.SubmissionQuestion
	var answer []byte
	err := db.QueryRow(ctx,
		`SELECT submission_id, question_id, position, option_map, snapshot, answer, is_correct, score, answered_at
		 FROM submission_questions
		 WHERE submission_id = $1 AND question_id = $2`, submissionID, questionID,
	).Scan(&sq.SubmissionID, &sq.QuestionID, &sq.Position, &sq.OptionMap, &sq.Question,
		&answer, &sq.IsCorrect, &sq.Score, &sq.AnsweredAt)
	if err != nil {
		return nil, notFound(err)
	}
	if answer != nil {
		sq.Answer = json.RawMessage(answer)
	}
	return &sq, nil
}

// SaveGrades writes final answers and grades for every row of a submission.
func (r *SubmissionRepository) SaveGrades(ctx context.Context, tx pgx.Tx, submissionID uuid.UUID, rows []model.SubmissionQuestion) error {
	qids := make([]uuid.UUID, len(rows))
	answers := make([]*string, len(rows))
	correct := make([]*bool, len(rows))
	scores := make([]float64, len(rows))
	for i, row := range rows {
		qids[i] = row.QuestionID
		if row.Answer != nil {
			a := string(row.Answer)
			answers[i] = &a
		}
		correct[i] = row.IsCorrect
		scores[i] = row.Score
	}

	_, err := tx.Exec(ctx,
		`UPDATE submission_questions sq
		 SET answer = COALESCE(t.answer::jsonb, sq.answer),
		     is_correct = t.is_correct,
		     score = t.score
		 FROM UNNEST($2::uuid[], $3::text[], $4::bool[], $5::float8[]) AS t(qid, answer, is_correct, score)
		 WHERE sq.submission_id = $1 AND sq.question_id = t.qid`,
		submissionID, qids, answers, correct, scores)
	return err
}

// SaveAnswers writes captured answers onto their rows. Rows of completed
// submissions and rows holding a newer answer are left untouched. It
// returns the number of rows written.
func (r *SubmissionRepository) SaveAnswers(ctx context.Context, records []model.AnswerRecord) (int64, error) {
	subIDs := make([]uuid.UUID, len(records))
	qids := make([]uuid.UUID, len(records))
	answers := make([]string, len(records))
	at := make([]time.Time, len(records))
	for i, rec := range records {
		subIDs[i] = rec.SubmissionID
		qids[i] = rec.QuestionID
		answers[i] = string(rec.Answer)
		at[i] = rec.AnsweredAt
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE submission_questions sq
		 SET answer = t.answer::jsonb, answered_at = t.answered_at
		 FROM UNNEST($1::uuid[], $2::uuid[], $3::text[], $4::timestamptz[])
		      AS t(submission_id, question_id, answer, answered_at),
		      submissions s
		 WHERE sq.submission_id = t.submission_id
		   AND sq.question_id = t.question_id
		   AND s.id = t.submission_id
		   AND s.status = 'IN_PROGRESS'
		   AND (sq.answered_at IS NULL OR sq.answered_at <= t.answered_at)`,
		subIDs, qids, answers, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Complete freezes an IN_PROGRESS submission. It reports false if the
// submission was not IN_PROGRESS.
func (r *SubmissionRepository) Complete(ctx context.Context, tx pgx.Tx, id uuid.UUID, endedAt time.Time, score float64, rating model.Rating) (bool, error) {
	tag, err := tx.Exec(ctx,
		`UPDATE submissions
		 SET status = 'COMPLETED', ended_at = $1, total_score = $2, rating = $3
		 WHERE id = $4 AND status = 'IN_PROGRESS'`,
		endedAt, score, rating, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetQuestionGrade overrides the grade of one row.
func (r *SubmissionRepository) SetQuestionGrade(ctx context.Context, tx pgx.Tx, submissionID, questionID uuid.UUID, score float64, isCorrect *bool) error {
	tag, err := tx.Exec(ctx,
		`UPDATE submission_questions SET score = $1, is_correct = $2
		 WHERE submission_id = $3 AND question_id = $4`,
		score, isCorrect, submissionID, questionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateScore rewrites the total score and rating of a completed submission.
func (r *SubmissionRepository) UpdateScore(ctx context.Context, tx pgx.Tx, id uuid.UUID, score float64, rating model.Rating) error {
	_, err := tx.Exec(ctx,
		`UPDATE submissions SET total_score = $1, rating = $2 WHERE id = $3`, score, rating, id)
	return err
}

// ListByStudent returns the student's submissions, newest first.
func (r *SubmissionRepository) ListByStudent(ctx context.Context, studentID int) ([]SubmissionSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.id, s.exam_id, e.title, s.is_practice, s.status, s.started_at, s.ended_at, s.total_score, s.rating
		 FROM submissions s
		 JOIN exams e ON e.id = s.exam_id
		 WHERE s.student_id = $1
		 ORDER BY s.started_at DESC`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []SubmissionSummary{}
	for rows.Next() {
		var s SubmissionSummary
		if err := rows.Scan(&s.ID, &s.ExamID, &s.ExamTitle, &s.IsPractice, &s.Status,
			&s.StartedAt, &s.EndedAt, &s.TotalScore, &s.Rating); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListByExam returns the submissions of an exam with student details.
// An empty status lists every submission.
func (r *SubmissionRepository) ListByExam(ctx context.Context, examID uuid.UUID, status model.SubmissionStatus, limit, offset int) ([]ExamResultRow, int, error) {
	base := ` FROM submissions s JOIN users u ON u.id = s.student_id WHERE s.exam_id = $1`
	args := []any{examID}
	if status != "" {
		args = append(args, status)
		base += ` AND s.status = ` + placeholder(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+base, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.pool.Query(ctx,
		`SELECT s.id, s.student_id, u.username, u.name, s.status, s.started_at, s.ended_at, s.total_score, s.rating`+
			base+` ORDER BY s.total_score DESC NULLS LAST, u.name
			LIMIT `+placeholder(len(args)-1)+` OFFSET `+placeholder(len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []ExamResultRow{}
	for rows.Next() {
		var row ExamResultRow
		if err := rows.Scan(&row.SubmissionID, &row.StudentID, &row.Username, &row.Name, &row.Status,
			&row.StartedAt, &row.EndedAt, &row.TotalScore, &row.Rating); err != nil {
			return nil, 0, err
		}
		out = append(out, row)
	}
	return out, total, rows.Err()
}

// CountInProgress returns how many submissions of an exam are still running.
func (r *SubmissionRepository) CountInProgress(ctx context.Context, examID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM submissions WHERE exam_id = $1 AND status = 'IN_PROGRESS'`, examID,
	).Scan(&n)
	return n, err
}
