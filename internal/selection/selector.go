package selection

import (
	"fmt"
	mrand "math/rand/v2"
	"slices"

	"github.com/testhub/testhub-backend/internal/model"
)

// Config is the selection-relevant part of an exam definition.
type Config struct {
	Mode         model.SelectionMode
	SampleSize   int
	Distribution []model.DistributionEntry
}

// ConfigFromExam extracts the selection config of an exam.
func ConfigFromExam(e *model.Exam) Config {
	return Config{
		Mode:         e.SelectionMode,
		SampleSize:   e.SampleSize,
		Distribution: e.Distribution,
	}
}

// Validate checks the config without looking at a pool.
func (c Config) Validate() error {
	switch c.Mode {
	case model.SelectionManual:
		return nil
	case model.SelectionRandomN:
		if c.SampleSize <= 0 {
			return fmt.Errorf("%w: sample size must be positive", ErrInvalidConfig)
		}
		return nil
	case model.SelectionByType:
		merged := MergeDistribution(c.Distribution)
		if len(merged) == 0 {
			return fmt.Errorf("%w: distribution is empty", ErrInvalidConfig)
		}
		for _, e := range merged {
			if !slices.Contains(model.QuestionTypes, e.QuestionType) ||
				!slices.Contains(model.QuestionFormats, e.QuestionFormat) {
				return fmt.Errorf("%w: unknown bucket (%s, %s)", ErrInvalidConfig, e.QuestionType, e.QuestionFormat)
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMode, c.Mode)
	}
}

// Select picks the questions of one attempt from pool, which must be in
// membership order. The pool is never modified.
func Select(cfg Config, pool []model.Question, rng *mrand.Rand) ([]model.Question, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Mode {
	case model.SelectionManual:
		if len(pool) == 0 {
			return nil, &InsufficientQuestionsError{Requested: 1, Available: 0}
		}
		return slices.Clone(pool), nil

	case model.SelectionRandomN:
		if len(pool) < cfg.SampleSize {
			return nil, &InsufficientQuestionsError{Requested: cfg.SampleSize, Available: len(pool)}
		}
		out := make([]model.Question, 0, cfg.SampleSize)
		for _, i := range sample(rng, len(pool), cfg.SampleSize) {
			out = append(out, pool[i])
		}
		return out, nil

	default: // BY_TYPE, validated above
		return selectByType(MergeDistribution(cfg.Distribution), pool, rng)
	}
}

func selectByType(entries []model.DistributionEntry, pool []model.Question, rng *mrand.Rand) ([]model.Question, error) {
	buckets := make(map[Bucket][]int)
	for i, q := range pool {
		b := Bucket{Type: q.Type, Format: q.Format}
		buckets[b] = append(buckets[b], i)
	}

	// Check every bucket before drawing so the first short one is reported.
	for _, e := range entries {
		b := Bucket{Type: e.QuestionType, Format: e.QuestionFormat}
		if got := len(buckets[b]); got < e.Quantity {
			return nil, &InsufficientQuestionsError{Bucket: &b, Requested: e.Quantity, Available: got}
		}
	}

	out := make([]model.Question, 0, TotalQuantity(entries))
	for _, e := range entries {
		members := buckets[Bucket{Type: e.QuestionType, Format: e.QuestionFormat}]
		for _, i := range sample(rng, len(members), e.Quantity) {
			out = append(out, pool[members[i]])
		}
	}
	return out, nil
}
