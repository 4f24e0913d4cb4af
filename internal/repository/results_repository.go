package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testhub/testhub-backend/internal/model"
)

// ResultsRepository reads the aggregated result statistics.
type ResultsRepository struct {
	pool *pgxpool.Pool
}

// NewResultsRepository creates a new ResultsRepository.
func NewResultsRepository(pool *pgxpool.Pool) *ResultsRepository {
	return &ResultsRepository{pool: pool}
}

// StatDelta is a change to one exam's statistics row.
type StatDelta struct {
	ExamID   uuid.UUID
	Attempts int
	ScoreSum float64
	Ratings  map[model.Rating]int
}

// ApplyDeltas adds each delta to its exam's statistics row, creating the
// row when missing.
func (r *ResultsRepository) ApplyDeltas(ctx context.Context, deltas []StatDelta) error {
	n := len(deltas)
	examIDs := make([]uuid.UUID, n)
	attempts := make([]int, n)
	sums := make([]float64, n)
	excellent := make([]int, n)
	good := make([]int, n)
	average := make([]int, n)
	poor := make([]int, n)
	for i, d := range deltas {
		examIDs[i] = d.ExamID
		attempts[i] = d.Attempts
		sums[i] = d.ScoreSum
		excellent[i] = d.Ratings[model.RatingExcellent]
		good[i] = d.Ratings[model.RatingGood]
		average[i] = d.Ratings[model.RatingAverage]
		poor[i] = d.Ratings[model.RatingPoor]
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO exam_result_stats AS s (exam_id, attempts, score_sum, excellent, good, average, poor, updated_at)
		 SELECT t.exam_id, t.attempts, t.score_sum, t.excellent, t.good, t.average, t.poor, NOW()
		 FROM UNNEST($1::uuid[], $2::int[], $3::float8[], $4::int[], $5::int[], $6::int[], $7::int[])
		      AS t(exam_id, attempts, score_sum, excellent, good, average, poor)
		 JOIN exams e ON e.id = t.exam_id
		 ON CONFLICT (exam_id) DO UPDATE
		 SET attempts  = s.attempts + EXCLUDED.attempts,
		     score_sum = s.score_sum + EXCLUDED.score_sum,
		     excellent = s.excellent + EXCLUDED.excellent,
		     good      = s.good + EXCLUDED.good,
		     average   = s.average + EXCLUDED.average,
		     poor      = s.poor + EXCLUDED.poor,
		     updated_at = NOW()`,
		examIDs, attempts, sums, excellent, good, average, poor)
	return err
}

// GetStats returns the statistics of an exam. An exam without completed
// submissions yields zero values.
func (r *ResultsRepository) GetStats(ctx context.Context, examID uuid.UUID) (*model.ExamResultStats, error) {
	st := &model.ExamResultStats{ExamID: examID, Ratings: map[model.Rating]int{
		model.RatingExcellent: 0, model.RatingGood: 0, model.RatingAverage: 0, model.RatingPoor: 0,
	}}
	var excellent, good, average, poor int
	err := r.pool.QueryRow(ctx,
		`SELECT attempts, score_sum, excellent, good, average, poor, updated_at
		 FROM exam_result_stats WHERE exam_id = $1`, examID,
	).Scan(&st.Attempts, &st.ScoreSum, &excellent, &good, &average, &poor, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return nil, err
	}

	st.Ratings[model.RatingExcellent] = excellent
	st.Ratings[model.RatingGood] = good
	st.Ratings[model.RatingAverage] = average
	st.Ratings[model.RatingPoor] = poor
	if st.Attempts > 0 {
		st.AverageScore = st.ScoreSum / float64(st.Attempts)
	}
	return st, nil
}

// RecentResults returns exams with the most recently updated statistics.
func (r *ResultsRepository) RecentResults(ctx context.Context, limit int) ([]model.ExamResultSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT e.id, e.title, s.attempts,
		        CASE WHEN s.attempts > 0 THEN s.score_sum / s.attempts ELSE 0 END,
		        s.updated_at
		 FROM exam_result_stats s
		 JOIN exams e ON e.id = s.exam_id
		 ORDER BY s.updated_at DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.ExamResultSummary{}
	for rows.Next() {
		var s model.ExamResultSummary
		if err := rows.Scan(&s.ExamID, &s.Title, &s.Attempts, &s.AverageScore, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
