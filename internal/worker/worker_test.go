package worker

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testhub/testhub-backend/internal/model"
)

func TestCollapseAnswersKeepsNewest(t *testing.T) {
	sub := uuid.New()
	q1, q2 := uuid.New(), uuid.New()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	batch := []model.AnswerRecord{
		{SubmissionID: sub, QuestionID: q1, Answer: json.RawMessage(`"a"`), AnsweredAt: t0},
		{SubmissionID: sub, QuestionID: q2, Answer: json.RawMessage(`"x"`), AnsweredAt: t0},
		{SubmissionID: sub, QuestionID: q1, Answer: json.RawMessage(`"b"`), AnsweredAt: t0.Add(time.Second)},
		// Arrives late but was answered earlier.
		{SubmissionID: sub, QuestionID: q1, Answer: json.RawMessage(`"stale"`), AnsweredAt: t0.Add(-time.Second)},
	}

	got := collapseAnswers(batch)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].QuestionID != q1 || string(got[0].Answer) != `"b"` {
		t.Errorf("q1 = %+v", got[0])
	}
	if got[1].QuestionID != q2 {
		t.Errorf("order changed: %+v", got[1])
	}
}

func TestAggregateResults(t *testing.T) {
	examA, examB := uuid.New(), uuid.New()
	prevScore := 4.0
	prevRating := model.RatingPoor

	events := []model.ResultEvent{
		{ExamID: examA, TotalScore: 9, Rating: model.RatingExcellent},
		{ExamID: examB, TotalScore: 6, Rating: model.RatingAverage},
		{ExamID: examA, TotalScore: 4, Rating: model.RatingPoor},
		// Regrade of an already counted examA submission: 4 -> 7.5.
		{ExamID: examA, TotalScore: 7.5, Rating: model.RatingGood, PreviousScore: &prevScore, PreviousRating: &prevRating},
	}

	deltas := aggregateResults(events)
	if len(deltas) != 2 {
		t.Fatalf("len = %d, want 2", len(deltas))
	}

	a := deltas[0]
	if a.ExamID != examA || a.Attempts != 2 {
		t.Errorf("exam A = %+v", a)
	}
	if math.Abs(a.ScoreSum-16.5) > 1e-9 {
		t.Errorf("exam A score sum = %v, want 16.5", a.ScoreSum)
	}
	want := map[model.Rating]int{model.RatingExcellent: 1, model.RatingGood: 1, model.RatingPoor: 0}
	for r, n := range want {
		if a.Ratings[r] != n {
			t.Errorf("exam A %s = %d, want %d", r, a.Ratings[r], n)
		}
	}

	b := deltas[1]
	if b.ExamID != examB || b.Attempts != 1 || b.Ratings[model.RatingAverage] != 1 {
		t.Errorf("exam B = %+v", b)
	}
}
