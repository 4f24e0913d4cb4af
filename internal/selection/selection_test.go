package selection

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/testhub/testhub-backend/internal/model"
)

func makePool(t *testing.T, counts map[Bucket]int) []model.Question {
	t.Helper()
	var pool []model.Question
	for _, typ := range model.QuestionTypes {
		for _, format := range model.QuestionFormats {
			for i := 0; i < counts[Bucket{Type: typ, Format: format}]; i++ {
				q := model.Question{
					ID:     uuid.New(),
					Text:   fmt.Sprintf("%s/%s #%d", typ, format, i),
					Type:   typ,
					Format: format,
				}
				if typ.IsChoice() {
					q.Options = []model.Option{{Text: "a", IsCorrect: true}, {Text: "b"}, {Text: "c"}}
				}
				pool = append(pool, q)
			}
		}
	}
	return pool
}

func assertDistinctFromPool(t *testing.T, got, pool []model.Question) {
	t.Helper()
	inPool := make(map[uuid.UUID]bool, len(pool))
	for _, q := range pool {
		inPool[q.ID] = true
	}
	seen := make(map[uuid.UUID]bool, len(got))
	for _, q := range got {
		if !inPool[q.ID] {
			t.Fatalf("question %s not drawn from pool", q.ID)
		}
		if seen[q.ID] {
			t.Fatalf("question %s selected twice", q.ID)
		}
		seen[q.ID] = true
	}
}

var (
	scKnowledge = Bucket{Type: model.QuestionTypeSingleChoice, Format: model.QuestionFormatKnowledge}
	mcApplying  = Bucket{Type: model.QuestionTypeMultipleChoice, Format: model.QuestionFormatApplying}
	essayAdv    = Bucket{Type: model.QuestionTypeEssay, Format: model.QuestionFormatAdvanced}
)

func TestMergeDistribution(t *testing.T) {
	a := model.DistributionEntry{QuestionType: model.QuestionTypeSingleChoice, QuestionFormat: model.QuestionFormatKnowledge, Quantity: 3}
	b := model.DistributionEntry{QuestionType: model.QuestionTypeSingleChoice, QuestionFormat: model.QuestionFormatKnowledge, Quantity: 2}
	want := model.DistributionEntry{QuestionType: model.QuestionTypeSingleChoice, QuestionFormat: model.QuestionFormatKnowledge, Quantity: 5}

	for _, in := range [][]model.DistributionEntry{{a, b}, {b, a}} {
		got := MergeDistribution(in)
		if len(got) != 1 || got[0] != want {
			t.Fatalf("MergeDistribution(%v) = %v, want [%v]", in, got, want)
		}
	}
}

func TestMergeDistributionCanonicalOrder(t *testing.T) {
	essay := model.DistributionEntry{QuestionType: model.QuestionTypeEssay, QuestionFormat: model.QuestionFormatAdvanced, Quantity: 1}
	mc := model.DistributionEntry{QuestionType: model.QuestionTypeMultipleChoice, QuestionFormat: model.QuestionFormatApplying, Quantity: 2}
	sc := model.DistributionEntry{QuestionType: model.QuestionTypeSingleChoice, QuestionFormat: model.QuestionFormatUnderstanding, Quantity: 4}
	zero := model.DistributionEntry{QuestionType: model.QuestionTypeSingleChoice, QuestionFormat: model.QuestionFormatKnowledge, Quantity: 0}

	first := MergeDistribution([]model.DistributionEntry{essay, zero, mc, sc})
	second := MergeDistribution([]model.DistributionEntry{sc, mc, essay})
	if len(first) != 3 || len(second) != 3 {
		t.Fatalf("unexpected lengths %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("merge depends on input order: %v vs %v", first, second)
		}
	}
	if first[0] != sc || first[1] != mc || first[2] != essay {
		t.Fatalf("not in canonical order: %v", first)
	}
}

func TestSelectManualKeepsMembershipOrder(t *testing.T) {
	pool := makePool(t, map[Bucket]int{scKnowledge: 3, essayAdv: 2})
	got, err := Select(Config{Mode: model.SelectionManual}, pool, NewSource(1))
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(got) != len(pool) {
		t.Fatalf("got %d questions, want %d", len(got), len(pool))
	}
	for i := range pool {
		if got[i].ID != pool[i].ID {
			t.Fatalf("position %d: got %s, want %s", i, got[i].ID, pool[i].ID)
		}
	}
}

func TestSelectRandomN(t *testing.T) {
	pool := makePool(t, map[Bucket]int{scKnowledge: 6, mcApplying: 4, essayAdv: 2})
	for seed := int64(0); seed < 200; seed++ {
		for _, n := range []int{1, 5, len(pool)} {
			got, err := Select(Config{Mode: model.SelectionRandomN, SampleSize: n}, pool, NewSource(seed))
			if err != nil {
				t.Fatalf("seed %d n %d: %v", seed, n, err)
			}
			if len(got) != n {
				t.Fatalf("seed %d: got %d questions, want %d", seed, len(got), n)
			}
			assertDistinctFromPool(t, got, pool)
		}
	}
}

func TestSelectRandomNInsufficient(t *testing.T) {
	pool := makePool(t, map[Bucket]int{scKnowledge: 2})
	_, err := Select(Config{Mode: model.SelectionRandomN, SampleSize: 3}, pool, NewSource(7))

	var insufficient *InsufficientQuestionsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientQuestionsError, got %v", err)
	}
	if insufficient.Bucket != nil || insufficient.Requested != 3 || insufficient.Available != 2 {
		t.Fatalf("unexpected error fields: %+v", insufficient)
	}
}

func TestSelectByType(t *testing.T) {
	pool := makePool(t, map[Bucket]int{scKnowledge: 5, mcApplying: 3, essayAdv: 3})
	dist := []model.DistributionEntry{
		{QuestionType: model.QuestionTypeEssay, QuestionFormat: model.QuestionFormatAdvanced, Quantity: 1},
		{QuestionType: model.QuestionTypeSingleChoice, QuestionFormat: model.QuestionFormatKnowledge, Quantity: 2},
		{QuestionType: model.QuestionTypeMultipleChoice, QuestionFormat: model.QuestionFormatApplying, Quantity: 3},
		{QuestionType: model.QuestionTypeSingleChoice, QuestionFormat: model.QuestionFormatKnowledge, Quantity: 1},
	}
	want := map[Bucket]int{scKnowledge: 3, mcApplying: 3, essayAdv: 1}

	for seed := int64(0); seed < 200; seed++ {
		got, err := Select(Config{Mode: model.SelectionByType, Distribution: dist}, pool, NewSource(seed))
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		if len(got) != 7 {
			t.Fatalf("seed %d: got %d questions, want 7", seed, len(got))
		}
		assertDistinctFromPool(t, got, pool)
		counts := make(map[Bucket]int)
		for _, q := range got {
			counts[Bucket{Type: q.Type, Format: q.Format}]++
		}
		for b, n := range want {
			if counts[b] != n {
				t.Fatalf("seed %d: bucket %s has %d, want %d", seed, b, counts[b], n)
			}
		}
	}
}

func TestSelectByTypeScenario(t *testing.T) {
	pool := makePool(t, map[Bucket]int{scKnowledge: 5, essayAdv: 3})
	cfg := Config{Mode: model.SelectionByType, Distribution: []model.DistributionEntry{
		{QuestionType: model.QuestionTypeSingleChoice, QuestionFormat: model.QuestionFormatKnowledge, Quantity: 2},
		{QuestionType: model.QuestionTypeEssay, QuestionFormat: model.QuestionFormatAdvanced, Quantity: 1},
	}}

	got, err := Select(cfg, pool, NewSource(42))
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d questions, want 3", len(got))
	}
	assertDistinctFromPool(t, got, pool)
	if got[0].Type != model.QuestionTypeSingleChoice || got[1].Type != model.QuestionTypeSingleChoice || got[2].Type != model.QuestionTypeEssay {
		t.Fatalf("draws not in entry order: %s %s %s", got[0].Type, got[1].Type, got[2].Type)
	}
}

func TestSelectByTypeInsufficientBucket(t *testing.T) {
	pool := makePool(t, map[Bucket]int{scKnowledge: 5, essayAdv: 1})
	cfg := Config{Mode: model.SelectionByType, Distribution: []model.DistributionEntry{
		{QuestionType: model.QuestionTypeSingleChoice, QuestionFormat: model.QuestionFormatKnowledge, Quantity: 2},
		{QuestionType: model.QuestionTypeEssay, QuestionFormat: model.QuestionFormatAdvanced, Quantity: 2},
	}}

	_, err := Select(cfg, pool, NewSource(1))
	var insufficient *InsufficientQuestionsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientQuestionsError, got %v", err)
	}
	if insufficient.Bucket == nil || *insufficient.Bucket != essayAdv {
		t.Fatalf("bucket = %v, want %s", insufficient.Bucket, essayAdv)
	}
	if insufficient.Requested != 2 || insufficient.Available != 1 {
		t.Fatalf("requested/available = %d/%d, want 2/1", insufficient.Requested, insufficient.Available)
	}
}

func TestSelectInvalidConfig(t *testing.T) {
	pool := makePool(t, map[Bucket]int{scKnowledge: 2})
	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{"unknown mode", Config{Mode: "WHATEVER"}, ErrUnknownMode},
		{"zero sample", Config{Mode: model.SelectionRandomN}, ErrInvalidConfig},
		{"empty distribution", Config{Mode: model.SelectionByType}, ErrInvalidConfig},
		{"only zero entries", Config{Mode: model.SelectionByType, Distribution: []model.DistributionEntry{
			{QuestionType: model.QuestionTypeEssay, QuestionFormat: model.QuestionFormatAdvanced},
		}}, ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Select(tt.cfg, pool, NewSource(1)); !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSelectIsDeterministicForSeed(t *testing.T) {
	pool := makePool(t, map[Bucket]int{scKnowledge: 10, essayAdv: 4})
	cfg := Config{Mode: model.SelectionRandomN, SampleSize: 6}

	a, _ := Select(cfg, pool, NewSource(99))
	b, _ := Select(cfg, pool, NewSource(99))
	for i := range a {
		if a[i].ID != b[i].ID {
			t.Fatalf("same seed produced different selections at %d", i)
		}
	}
}

func TestMaterialize(t *testing.T) {
	pool := makePool(t, map[Bucket]int{scKnowledge: 4, mcApplying: 2, essayAdv: 2})
	before := make([]uuid.UUID, len(pool))
	for i, q := range pool {
		before[i] = q.ID
	}

	items := Materialize(pool, NewSource(5))
	if len(items) != len(pool) {
		t.Fatalf("got %d items, want %d", len(items), len(pool))
	}
	for i, q := range pool {
		if q.ID != before[i] {
			t.Fatal("input slice was reordered")
		}
	}

	seen := make(map[uuid.UUID]bool)
	for i, it := range items {
		if it.Position != i+1 {
			t.Fatalf("item %d has position %d", i, it.Position)
		}
		seen[it.Question.ID] = true

		if !it.Question.Type.IsChoice() {
			if it.OptionMap != nil {
				t.Fatalf("essay %s has an option map", it.Question.ID)
			}
			continue
		}
		if len(it.OptionMap) != len(it.Question.Options) {
			t.Fatalf("option map size %d, want %d", len(it.OptionMap), len(it.Question.Options))
		}
		ids := make(map[string]bool)
		indexes := make(map[int]bool)
		for _, ref := range it.OptionMap {
			if ids[ref.DisplayID] {
				t.Fatalf("duplicate display id %q", ref.DisplayID)
			}
			ids[ref.DisplayID] = true
			indexes[ref.Index] = true
			if Resolve(it.OptionMap, ref.DisplayID) != ref.Index {
				t.Fatalf("Resolve(%q) mismatch", ref.DisplayID)
			}
		}
		if len(indexes) != len(it.Question.Options) {
			t.Fatalf("option map is not a permutation: %v", it.OptionMap)
		}
	}
	if len(seen) != len(pool) {
		t.Fatalf("materialized %d distinct questions, want %d", len(seen), len(pool))
	}
	if Resolve(items[0].OptionMap, "missing") != -1 {
		t.Fatal("Resolve of unknown id should be -1")
	}
}
