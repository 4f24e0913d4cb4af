package service

import (
	"fmt"
	"math"
	"slices"

	"github.com/testhub/testhub-backend/internal/model"
	"github.com/testhub/testhub-backend/internal/selection"
)

// ErrInvalidAnswer is returned when a payload does not fit its question.
var ErrInvalidAnswer = fmt.Errorf("invalid answer: %w", model.ErrMalformedAnswer)

// CheckAnswer validates a payload against a materialized question and
// returns the tagged answer it carries.
func CheckAnswer(sq *model.SubmissionQuestion, p model.AnswerPayload) (model.Answer, error) {
	if p.QuestionType != sq.Question.Type {
		return nil, fmt.Errorf("%w: %s payload for %s question", ErrInvalidAnswer, p.QuestionType, sq.Question.Type)
	}
	if p.QuestionType == model.QuestionTypeEssay && len(p.Options) > 0 {
		return nil, fmt.Errorf("%w: essay answers carry no options", ErrInvalidAnswer)
	}
	for _, o := range p.Options {
		if selection.Resolve(sq.OptionMap, o.ID) < 0 {
			return nil, fmt.Errorf("%w: unknown option %q", ErrInvalidAnswer, o.ID)
		}
	}

	a, err := p.Answer()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAnswer, err)
	}
	return a, nil
}

// GradeQuestion grades one answer. Unanswered and essay rows get a nil
// verdict; only a correct choice answer scores.
func GradeQuestion(sq *model.SubmissionQuestion, a model.Answer, weight float64) (*bool, float64) {
	if a == nil || a.Empty() {
		return nil, 0
	}

	var correct bool
	switch v := a.(type) {
	case model.SingleChoiceAnswer:
		idx := selection.Resolve(sq.OptionMap, v.OptionID)
		correct = idx >= 0 && idx < len(sq.Question.Options) && sq.Question.Options[idx].IsCorrect
	case model.MultipleChoiceAnswer:
		chosen := make([]int, 0, len(v.OptionIDs))
		for _, id := range v.OptionIDs {
			chosen = append(chosen, selection.Resolve(sq.OptionMap, id))
		}
		slices.Sort(chosen)
		var key []int
		for i, o := range sq.Question.Options {
			if o.IsCorrect {
				key = append(key, i)
			}
		}
		correct = slices.Equal(slices.Compact(chosen), key)
	case model.EssayAnswer:
		return nil, 0
	default:
		return nil, 0
	}

	if correct {
		return &correct, weight
	}
	return &correct, 0
}

// Grading is the outcome of grading a whole submission.
type Grading struct {
	Rows    []model.SubmissionQuestion
	Total   float64
	Correct int
}

// GradeSubmission grades every row with the given answers. The 10-point
// scale is split evenly across the materialized rows.
func GradeSubmission(rows []model.SubmissionQuestion, answers map[int]model.Answer) Grading {
	g := Grading{Rows: make([]model.SubmissionQuestion, len(rows))}
	if len(rows) == 0 {
		return g
	}
	weight := model.MaxScore / float64(len(rows))

	for i := range rows {
		row := rows[i]
		a := answers[i]
		if a != nil {
			if enc, err := model.EncodeAnswer(a); err == nil {
				row.Answer = enc
			}
		}
		row.IsCorrect, row.Score = GradeQuestion(&row, a, weight)
		if row.IsCorrect != nil && *row.IsCorrect {
			g.Correct++
		}
		g.Total += row.Score
		g.Rows[i] = row
	}
	g.Total = roundScore(g.Total)
	return g
}

// SumScores totals row scores, capped at the top of the scale.
func SumScores(rows []model.SubmissionQuestion) float64 {
	total := 0.0
	for _, r := range rows {
		total += r.Score
	}
	return roundScore(min(total, model.MaxScore))
}

func roundScore(v float64) float64 {
	return math.Round(v*100) / 100
}
