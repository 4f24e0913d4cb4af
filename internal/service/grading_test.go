package service

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/testhub/testhub-backend/internal/model"
)

// row builds a materialized question whose display ids d0, d1, ... map to
// the bank options in reverse order.
func row(qt model.QuestionType, correct ...bool) model.SubmissionQuestion {
	opts := make([]model.Option, len(correct))
	refs := make([]model.OptionRef, len(correct))
	for i, c := range correct {
		opts[i] = model.Option{Text: "opt", IsCorrect: c}
	}
	for i := range refs {
		idx := len(correct) - 1 - i
		refs[i] = model.OptionRef{DisplayID: "d" + string(rune('0'+i)), Index: idx}
	}
	return model.SubmissionQuestion{
		QuestionID: uuid.New(),
		OptionMap:  refs,
		Question:   model.Question{Type: qt, Options: opts},
	}
}

func TestGradeQuestion(t *testing.T) {
	// Bank order [false, true, false]: display d1 maps to index 1.
	single := row(model.QuestionTypeSingleChoice, false, true, false)
	// Bank order [true, false, true]: correct indices 0 and 2 are displayed as d2 and d0.
	multiple := row(model.QuestionTypeMultipleChoice, true, false, true)
	essay := row(model.QuestionTypeEssay)

	tests := []struct {
		name      string
		sq        model.SubmissionQuestion
		answer    model.Answer
		wantNil   bool
		wantRight bool
		wantScore float64
	}{
		{"single correct", single, model.SingleChoiceAnswer{OptionID: "d1"}, false, true, 2},
		{"single wrong", single, model.SingleChoiceAnswer{OptionID: "d0"}, false, false, 0},
		{"single unanswered", single, model.SingleChoiceAnswer{}, true, false, 0},
		{"nil answer", single, nil, true, false, 0},
		{"multiple exact", multiple, model.NewMultipleChoiceAnswer("d0", "d2"), false, true, 2},
		{"multiple subset", multiple, model.NewMultipleChoiceAnswer("d0"), false, false, 0},
		{"multiple superset", multiple, model.NewMultipleChoiceAnswer("d0", "d1", "d2"), false, false, 0},
		{"multiple unknown id", multiple, model.NewMultipleChoiceAnswer("d0", "zz"), false, false, 0},
		{"essay never graded", essay, model.EssayAnswer{Text: "chlorophyll"}, true, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, score := GradeQuestion(&tt.sq, tt.answer, 2)
			if tt.wantNil {
				if verdict != nil {
					t.Fatalf("verdict = %v, want nil", *verdict)
				}
			} else if verdict == nil || *verdict != tt.wantRight {
				t.Fatalf("verdict = %v, want %v", verdict, tt.wantRight)
			}
			if score != tt.wantScore {
				t.Fatalf("score = %v, want %v", score, tt.wantScore)
			}
		})
	}
}

func TestGradeSubmission(t *testing.T) {
	rows := []model.SubmissionQuestion{
		row(model.QuestionTypeSingleChoice, true, false),
		row(model.QuestionTypeSingleChoice, true, false),
		row(model.QuestionTypeEssay),
	}
	answers := map[int]model.Answer{
		0: model.SingleChoiceAnswer{OptionID: "d1"}, // index 0, correct
		1: model.SingleChoiceAnswer{OptionID: "d0"}, // index 1, wrong
		2: model.EssayAnswer{Text: "text"},
	}

	g := GradeSubmission(rows, answers)
	if g.Correct != 1 {
		t.Fatalf("correct = %d, want 1", g.Correct)
	}
	if g.Total != 3.33 {
		t.Fatalf("total = %v, want 3.33", g.Total)
	}
	if g.Rows[2].IsCorrect != nil || g.Rows[2].Score != 0 {
		t.Fatalf("essay row graded: %+v", g.Rows[2])
	}
	if g.Rows[0].Answer == nil {
		t.Fatal("answer not recorded on graded row")
	}
	if rows[0].IsCorrect != nil {
		t.Fatal("input rows were mutated")
	}
}

func TestGradeSubmissionAllCorrectScoresTen(t *testing.T) {
	rows := make([]model.SubmissionQuestion, 3)
	answers := map[int]model.Answer{}
	for i := range rows {
		rows[i] = row(model.QuestionTypeSingleChoice, false, true)
		answers[i] = model.SingleChoiceAnswer{OptionID: "d0"}
	}
	g := GradeSubmission(rows, answers)
	if g.Total != model.MaxScore {
		t.Fatalf("total = %v, want %v", g.Total, model.MaxScore)
	}
	if model.RatingForScore(g.Total) != model.RatingExcellent {
		t.Fatalf("rating = %s", model.RatingForScore(g.Total))
	}
}

func TestRatingForScore(t *testing.T) {
	tests := []struct {
		score float64
		want  model.Rating
	}{
		{10, model.RatingExcellent},
		{8.5, model.RatingExcellent},
		{8.49, model.RatingGood},
		{7, model.RatingGood},
		{6.99, model.RatingAverage},
		{5, model.RatingAverage},
		{4.99, model.RatingPoor},
		{0, model.RatingPoor},
	}
	for _, tt := range tests {
		if got := model.RatingForScore(tt.score); got != tt.want {
			t.Errorf("RatingForScore(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestCheckAnswer(t *testing.T) {
	single := row(model.QuestionTypeSingleChoice, false, true, false)

	ok := model.AnswerPayload{
		QuestionType: model.QuestionTypeSingleChoice,
		Options:      []model.PayloadOption{{ID: "d0"}, {ID: "d1", IsCorrect: true}, {ID: "d2"}},
	}
	a, err := CheckAnswer(&single, ok)
	if err != nil {
		t.Fatalf("CheckAnswer: %v", err)
	}
	if a != (model.SingleChoiceAnswer{OptionID: "d1"}) {
		t.Fatalf("answer = %#v", a)
	}

	bad := []model.AnswerPayload{
		{QuestionType: model.QuestionTypeEssay, Text: "x"},
		{QuestionType: model.QuestionTypeSingleChoice, Options: []model.PayloadOption{{ID: "nope", IsCorrect: true}}},
		{QuestionType: model.QuestionTypeSingleChoice, Options: []model.PayloadOption{{ID: "d0", IsCorrect: true}, {ID: "d1", IsCorrect: true}}},
	}
	for i, p := range bad {
		if _, err := CheckAnswer(&single, p); !errors.Is(err, ErrInvalidAnswer) {
			t.Errorf("case %d: err = %v, want ErrInvalidAnswer", i, err)
		}
	}
}
