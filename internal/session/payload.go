package session

import (
	"fmt"

	"github.com/testhub/testhub-backend/internal/model"
)

// BuildPayload turns a local answer into the wire payload for q. Choice
// payloads list every option of q, tagged with the student's selection.
// A nil answer yields an empty payload of q's type.
func BuildPayload(q model.AttemptQuestion, a model.Answer) (model.AnswerPayload, error) {
	if a == nil {
		a = emptyAnswer(q.Type)
		if a == nil {
			return model.AnswerPayload{}, fmt.Errorf("%w: unknown question type %q", model.ErrMalformedAnswer, q.Type)
		}
	}
	if a.QuestionType() != q.Type {
		return model.AnswerPayload{}, fmt.Errorf("%w: %s answer for %s question",
			model.ErrMalformedAnswer, a.QuestionType(), q.Type)
	}

	switch v := a.(type) {
	case model.SingleChoiceAnswer:
		return choicePayload(q, func(id string) bool { return id == v.OptionID }), nil
	case model.MultipleChoiceAnswer:
		return choicePayload(q, v.Has), nil
	case model.EssayAnswer:
		return model.AnswerPayload{QuestionType: model.QuestionTypeEssay, Text: v.Text}, nil
	default:
		return model.AnswerPayload{}, fmt.Errorf("%w: unsupported answer %T", model.ErrMalformedAnswer, a)
	}
}

func choicePayload(q model.AttemptQuestion, selected func(string) bool) model.AnswerPayload {
	opts := make([]model.PayloadOption, len(q.Options))
	for i, o := range q.Options {
		opts[i] = model.PayloadOption{ID: o.ID, Text: o.Text, IsCorrect: selected(o.ID)}
	}
	return model.AnswerPayload{QuestionType: q.Type, Options: opts}
}

func emptyAnswer(t model.QuestionType) model.Answer {
	switch t {
	case model.QuestionTypeSingleChoice:
		return model.SingleChoiceAnswer{}
	case model.QuestionTypeMultipleChoice:
		return model.MultipleChoiceAnswer{}
	case model.QuestionTypeEssay:
		return model.EssayAnswer{}
	}
	return nil
}

func hasOption(q model.AttemptQuestion, id string) bool {
	for _, o := range q.Options {
		if o.ID == id {
			return true
		}
	}
	return false
}
