package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

var ErrMalformedAnswer = errors.New("malformed answer")

// Answer is a student's answer to one question. It is one of
// SingleChoiceAnswer, MultipleChoiceAnswer or EssayAnswer.
type Answer interface {
	QuestionType() QuestionType
	// Empty reports whether the answer carries no selection or text.
	Empty() bool
	isAnswer()
}

// SingleChoiceAnswer holds the display id of the chosen option.
type SingleChoiceAnswer struct {
	OptionID string
}

// MultipleChoiceAnswer holds the display ids of the chosen options,
// sorted and without duplicates.
type MultipleChoiceAnswer struct {
	OptionIDs []string
}

// EssayAnswer holds free text.
type EssayAnswer struct {
	Text string
}

func (SingleChoiceAnswer) QuestionType() QuestionType   { return QuestionTypeSingleChoice }
func (MultipleChoiceAnswer) QuestionType() QuestionType { return QuestionTypeMultipleChoice }
func (EssayAnswer) QuestionType() QuestionType          { return QuestionTypeEssay }

func (a SingleChoiceAnswer) Empty() bool   { return a.OptionID == "" }
func (a MultipleChoiceAnswer) Empty() bool { return len(a.OptionIDs) == 0 }
func (a EssayAnswer) Empty() bool          { return a.Text == "" }

func (SingleChoiceAnswer) isAnswer()   {}
func (MultipleChoiceAnswer) isAnswer() {}
func (EssayAnswer) isAnswer()          {}

// Toggle returns a copy with id added if absent, or removed if present.
func (a MultipleChoiceAnswer) Toggle(id string) MultipleChoiceAnswer {
	out := make([]string, 0, len(a.OptionIDs)+1)
	found := false
	for _, existing := range a.OptionIDs {
		if existing == id {
			found = true
			continue
		}
		out = append(out, existing)
	}
	if !found {
		out = append(out, id)
		slices.Sort(out)
	}
	return MultipleChoiceAnswer{OptionIDs: out}
}

// Has reports whether id is selected.
func (a MultipleChoiceAnswer) Has(id string) bool {
	return slices.Contains(a.OptionIDs, id)
}

// NewMultipleChoiceAnswer normalizes ids into a sorted set.
func NewMultipleChoiceAnswer(ids ...string) MultipleChoiceAnswer {
	out := slices.Clone(ids)
	slices.Sort(out)
	return MultipleChoiceAnswer{OptionIDs: slices.Compact(out)}
}

// storedAnswer is the JSON form persisted in submission_questions.answer
// and in the Redis answer hash.
type storedAnswer struct {
	Type      QuestionType `json:"type"`
	OptionID  string       `json:"option_id,omitempty"`
	OptionIDs []string     `json:"option_ids,omitempty"`
	Text      string       `json:"text,omitempty"`
}

// EncodeAnswer serializes an answer with its type tag.
func EncodeAnswer(a Answer) ([]byte, error) {
	var s storedAnswer
	switch v := a.(type) {
	case SingleChoiceAnswer:
		s = storedAnswer{Type: QuestionTypeSingleChoice, OptionID: v.OptionID}
	case MultipleChoiceAnswer:
		s = storedAnswer{Type: QuestionTypeMultipleChoice, OptionIDs: v.OptionIDs}
	case EssayAnswer:
		s = storedAnswer{Type: QuestionTypeEssay, Text: v.Text}
	default:
		return nil, fmt.Errorf("%w: unsupported answer %T", ErrMalformedAnswer, a)
	}
	return json.Marshal(s)
}

// DecodeAnswer parses the output of EncodeAnswer.
func DecodeAnswer(data []byte) (Answer, error) {
	var s storedAnswer
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAnswer, err)
	}
	switch s.Type {
	case QuestionTypeSingleChoice:
		return SingleChoiceAnswer{OptionID: s.OptionID}, nil
	case QuestionTypeMultipleChoice:
		return NewMultipleChoiceAnswer(s.OptionIDs...), nil
	case QuestionTypeEssay:
		return EssayAnswer{Text: s.Text}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedAnswer, s.Type)
	}
}

// PayloadOption is one option of a submitted choice answer. IsCorrect marks
// the student's selection, not the answer key.
type PayloadOption struct {
	ID        string `json:"id" binding:"required"`
	Text      string `json:"text,omitempty"`
	IsCorrect bool   `json:"is_correct"`
}

// AnswerPayload is the wire form of a per-question answer submission.
type AnswerPayload struct {
	QuestionType QuestionType    `json:"question_type" binding:"required,question_type"`
	Options      []PayloadOption `json:"options,omitempty" binding:"omitempty,max=10,dive"`
	Text         string          `json:"text,omitempty" binding:"omitempty,max=20000"`
}

// Answer converts the payload back into the tagged answer.
func (p AnswerPayload) Answer() (Answer, error) {
	switch p.QuestionType {
	case QuestionTypeSingleChoice:
		chosen := ""
		for _, o := range p.Options {
			if !o.IsCorrect {
				continue
			}
			if chosen != "" {
				return nil, fmt.Errorf("%w: single choice with several selections", ErrMalformedAnswer)
			}
			chosen = o.ID
		}
		return SingleChoiceAnswer{OptionID: chosen}, nil
	case QuestionTypeMultipleChoice:
		ids := make([]string, 0, len(p.Options))
		for _, o := range p.Options {
			if o.IsCorrect {
				ids = append(ids, o.ID)
			}
		}
		return NewMultipleChoiceAnswer(ids...), nil
	case QuestionTypeEssay:
		return EssayAnswer{Text: p.Text}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedAnswer, p.QuestionType)
	}
}
