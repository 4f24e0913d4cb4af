package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testhub/testhub-backend/internal/model"
)

// ErrQuestionInUse is returned when deleting a question that exams still reference.
var ErrQuestionInUse = errors.New("question is used by an exam")

const questionColumns = `id, owner_id, text, question_type, question_format, topic,
	image_ref, options, reference_answer, created_at, updated_at`

// QuestionRepository handles question bank data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

func scanQuestion(row interface{ Scan(...any) error }, q *model.Question) error {
	return row.Scan(&q.ID, &q.OwnerID, &q.Text, &q.Type, &q.Format, &q.Topic,
		&q.ImageRef, &q.Options, &q.ReferenceAnswer, &q.CreatedAt, &q.UpdatedAt)
}

// GetByID retrieves a question by its UUID.
func (r *QuestionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error) {
	q := &model.Question{}
	if err := scanQuestion(r.pool.QueryRow(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE id = $1`, id), q); err != nil {
		return nil, notFound(err)
	}
	return q, nil
}

// ListByOwner retrieves a lecturer's questions with filters and pagination.
// ownerID 0 lists every owner.
func (r *QuestionRepository) ListByOwner(ctx context.Context, ownerID int, f model.QuestionFilter, limit, offset int) ([]model.Question, int, error) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, strings.ReplaceAll(cond, "?", placeholder(len(args))))
	}
	if ownerID > 0 {
		add("owner_id = ?", ownerID)
	}
	if f.Type != "" {
		add("question_type = ?", f.Type)
	}
	if f.Format != "" {
		add("question_format = ?", f.Format)
	}
	if f.Topic != "" {
		add("topic = ?", f.Topic)
	}
	if f.Search != "" {
		add("text ILIKE ?", "%"+f.Search+"%")
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM questions`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+` FROM questions`+where+
			` ORDER BY created_at DESC LIMIT `+placeholder(len(args)-1)+` OFFSET `+placeholder(len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	questions := []model.Question{}
	for rows.Next() {
		var q model.Question
		if err := scanQuestion(rows, &q); err != nil {
			return nil, 0, err
		}
		questions = append(questions, q)
	}
	return questions, total, rows.Err()
}

// ListByExam returns the exam's question pool in membership order.
func (r *QuestionRepository) ListByExam(ctx context.Context, db DBTX, examID uuid.UUID) ([]model.Question, error) {
	rows, err := db.Query(ctx,
		`SELECT q.id, q.owner_id, q.text, q.question_type, q.question_format, q.topic,
		        q.image_ref, q.options, q.reference_answer, q.created_at, q.updated_at
		 FROM exam_questions eq
		 JOIN questions q ON q.id = eq.question_id
		 WHERE eq.exam_id = $1
		 ORDER BY eq.position`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := scanQuestion(rows, &q); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// ListByOwnerBuckets returns the owner's questions that fall into one of
// the distribution's (type, format) buckets, oldest first.
func (r *QuestionRepository) ListByOwnerBuckets(ctx context.Context, db DBTX, ownerID int, entries []model.DistributionEntry) ([]model.Question, error) {
	types := make([]string, len(entries))
	formats := make([]string, len(entries))
	for i, e := range entries {
		types[i] = string(e.QuestionType)
		formats[i] = string(e.QuestionFormat)
	}

	rows, err := db.Query(ctx,
		`SELECT `+questionColumns+`
		 FROM questions
		 WHERE owner_id = $1
		   AND (question_type, question_format) IN (
		       SELECT b.question_type, b.question_format
		       FROM UNNEST($2::text[], $3::text[]) AS b(question_type, question_format))
		 ORDER BY created_at, id`, ownerID, types, formats)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := scanQuestion(rows, &q); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// CountOwned returns how many of ids exist and belong to ownerID.
func (r *QuestionRepository) CountOwned(ctx context.Context, ownerID int, ids []uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM questions WHERE owner_id = $1 AND id = ANY($2)`, ownerID, ids,
	).Scan(&n)
	return n, err
}

// Create inserts a new question.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO questions (owner_id, text, question_type, question_format, topic, image_ref, options, reference_answer)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at, updated_at`,
		q.OwnerID, q.Text, q.Type, q.Format, q.Topic, q.ImageRef, q.Options, q.ReferenceAnswer,
	).Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt)
}

// Update replaces a question's content.
func (r *QuestionRepository) Update(ctx context.Context, q *model.Question) error {
	err := r.pool.QueryRow(ctx,
		`UPDATE questions
		 SET text = $1, question_type = $2, question_format = $3, topic = $4,
		     image_ref = $5, options = $6, reference_answer = $7, updated_at = NOW()
		 WHERE id = $8
		 RETURNING updated_at`,
		q.Text, q.Type, q.Format, q.Topic, q.ImageRef, q.Options, q.ReferenceAnswer, q.ID,
	).Scan(&q.UpdatedAt)
	return notFound(err)
}

// Delete removes a question from the bank.
func (r *QuestionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM questions WHERE id = $1`, id)
	if isForeignKeyViolation(err) {
		return ErrQuestionInUse
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of questions in the bank.
func (r *QuestionRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM questions`).Scan(&n)
	return n, err
}
