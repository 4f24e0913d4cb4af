package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testhub/testhub-backend/internal/model"
)

const examColumns = `e.id, e.title, e.topic, e.owner_id, e.starts_at, e.ends_at, e.duration_minutes,
	e.is_practice, e.selection_mode, e.sample_size, e.distribution, e.is_visible,
	(SELECT COUNT(*) FROM exam_questions eq WHERE eq.exam_id = e.id),
	e.created_at, e.updated_at`

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

func scanExam(row interface{ Scan(...any) error }, e *model.Exam) error {
	return row.Scan(&e.ID, &e.Title, &e.Topic, &e.OwnerID, &e.StartsAt, &e.EndsAt, &e.DurationMinutes,
		&e.IsPractice, &e.SelectionMode, &e.SampleSize, &e.Distribution, &e.IsVisible,
		&e.QuestionCount, &e.CreatedAt, &e.UpdatedAt)
}

func collectExams(rows pgx.Rows) ([]model.Exam, error) {
	defer rows.Close()
	exams := []model.Exam{}
	for rows.Next() {
		var e model.Exam
		if err := scanExam(rows, &e); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// GetByID retrieves an exam by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	if err := scanExam(r.pool.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams e WHERE e.id = $1`, id), e); err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

// ListByOwnerPaginated retrieves exams owned by ownerID. ownerID 0 lists all exams.
func (r *ExamRepository) ListByOwnerPaginated(ctx context.Context, ownerID, limit, offset int) ([]model.Exam, int, error) {
	where := ``
	args := []any{}
	if ownerID > 0 {
		args = append(args, ownerID)
		where = ` WHERE e.owner_id = $1`
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM exams e`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exams e`+where+
			` ORDER BY e.created_at DESC LIMIT `+placeholder(len(args)-1)+` OFFSET `+placeholder(len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	exams, err := collectExams(rows)
	return exams, total, err
}

// ListVisible returns all exams students can see.
// Used by the lobby and for cache prewarming on startup.
func (r *ExamRepository) ListVisible(ctx context.Context) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exams e WHERE e.is_visible ORDER BY e.starts_at NULLS FIRST, e.created_at DESC`)
	if err != nil {
		return nil, err
	}
	return collectExams(rows)
}

// Create inserts a new exam.
func (r *ExamRepository) Create(ctx context.Context, db DBTX, e *model.Exam) error {
	return db.QueryRow(ctx,
		`INSERT INTO exams (title, topic, owner_id, starts_at, ends_at, duration_minutes,
		                    is_practice, selection_mode, sample_size, distribution)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, is_visible, created_at, updated_at`,
		e.Title, e.Topic, e.OwnerID, e.StartsAt, e.EndsAt, e.DurationMinutes,
		e.IsPractice, e.SelectionMode, e.SampleSize, e.Distribution,
	).Scan(&e.ID, &e.IsVisible, &e.CreatedAt, &e.UpdatedAt)
}

// Update writes the editable fields of an exam.
func (r *ExamRepository) Update(ctx context.Context, e *model.Exam) error {
	err := r.pool.QueryRow(ctx,
		`UPDATE exams
		 SET title = $1, topic = $2, starts_at = $3, ends_at = $4, duration_minutes = $5,
		     is_practice = $6, selection_mode = $7, sample_size = $8, distribution = $9, updated_at = NOW()
		 WHERE id = $10
		 RETURNING updated_at`,
		e.Title, e.Topic, e.StartsAt, e.EndsAt, e.DurationMinutes,
		e.IsPractice, e.SelectionMode, e.SampleSize, e.Distribution, e.ID,
	).Scan(&e.UpdatedAt)
	return notFound(err)
}

// SetVisibility toggles whether students can see the exam.
func (r *ExamRepository) SetVisibility(ctx context.Context, id uuid.UUID, visible bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exams SET is_visible = $1, updated_at = NOW() WHERE id = $2`, visible, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetQuestions replaces the exam membership; positions follow the order of ids.
func (r *ExamRepository) SetQuestions(ctx context.Context, db DBTX, examID uuid.UUID, ids []uuid.UUID) error {
	if _, err := db.Exec(ctx, `DELETE FROM exam_questions WHERE exam_id = $1`, examID); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	_, err := db.Exec(ctx,
		`INSERT INTO exam_questions (exam_id, question_id, position)
		 SELECT $1, t.question_id, t.position
		 FROM UNNEST($2::uuid[]) WITH ORDINALITY AS t(question_id, position)`,
		examID, ids)
	return err
}

// Delete removes an exam and, by cascade, its membership and submissions.
func (r *ExamRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM exams WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Counts returns total and visible exam counts.
func (r *ExamRepository) Counts(ctx context.Context) (total, visible int, err error) {
	err = r.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE is_visible) FROM exams`,
	).Scan(&total, &visible)
	return
}
