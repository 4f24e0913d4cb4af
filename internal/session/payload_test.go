package session

import (
	"errors"
	"testing"

	"github.com/testhub/testhub-backend/internal/model"
)

func TestBuildPayload(t *testing.T) {
	att := fixtureAttempt(1)
	single, multiple, essay := att.Questions[0], att.Questions[1], att.Questions[2]

	tests := []struct {
		name     string
		q        model.AttemptQuestion
		answer   model.Answer
		selected []string
		text     string
	}{
		{"single", single, model.SingleChoiceAnswer{OptionID: "b"}, []string{"b"}, ""},
		{"single unanswered", single, nil, nil, ""},
		{"multiple", multiple, model.NewMultipleChoiceAnswer("z", "x"), []string{"x", "z"}, ""},
		{"multiple empty", multiple, model.MultipleChoiceAnswer{}, nil, ""},
		{"essay", essay, model.EssayAnswer{Text: "42"}, nil, "42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := BuildPayload(tt.q, tt.answer)
			if err != nil {
				t.Fatalf("BuildPayload: %v", err)
			}
			if p.QuestionType != tt.q.Type || p.Text != tt.text {
				t.Fatalf("payload = %+v", p)
			}
			if tt.q.Type.IsChoice() && len(p.Options) != len(tt.q.Options) {
				t.Fatalf("payload lists %d options, want all %d", len(p.Options), len(tt.q.Options))
			}
			var got []string
			for _, o := range p.Options {
				if o.IsCorrect {
					got = append(got, o.ID)
				}
			}
			if len(got) != len(tt.selected) {
				t.Fatalf("selected = %v, want %v", got, tt.selected)
			}
			for i := range got {
				if got[i] != tt.selected[i] {
					t.Fatalf("selected = %v, want %v", got, tt.selected)
				}
			}

			back, err := p.Answer()
			if err != nil {
				t.Fatalf("payload does not convert back: %v", err)
			}
			if back.QuestionType() != tt.q.Type {
				t.Fatalf("round trip type %s", back.QuestionType())
			}
		})
	}
}

func TestBuildPayloadTypeMismatch(t *testing.T) {
	att := fixtureAttempt(1)
	_, err := BuildPayload(att.Questions[2], model.SingleChoiceAnswer{OptionID: "a"})
	if !errors.Is(err, model.ErrMalformedAnswer) {
		t.Fatalf("err = %v, want ErrMalformedAnswer", err)
	}
}
