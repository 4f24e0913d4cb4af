package model

import (
	"time"

	"github.com/google/uuid"
)

type QuestionType string

const (
	QuestionTypeSingleChoice   QuestionType = "SINGLE_CHOICE"
	QuestionTypeMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionTypeEssay          QuestionType = "ESSAY"
)

// QuestionTypes lists every type in canonical order.
var QuestionTypes = []QuestionType{
	QuestionTypeSingleChoice,
	QuestionTypeMultipleChoice,
	QuestionTypeEssay,
}

// IsChoice reports whether answers to this type pick from options.
func (t QuestionType) IsChoice() bool {
	return t == QuestionTypeSingleChoice || t == QuestionTypeMultipleChoice
}

// QuestionFormat is the cognitive level (difficulty) of a question.
type QuestionFormat string

const (
	QuestionFormatKnowledge     QuestionFormat = "KNOWLEDGE"
	QuestionFormatUnderstanding QuestionFormat = "UNDERSTANDING"
	QuestionFormatApplying      QuestionFormat = "APPLYING"
	QuestionFormatAdvanced      QuestionFormat = "ADVANCED"
)

// QuestionFormats lists every format in canonical order.
var QuestionFormats = []QuestionFormat{
	QuestionFormatKnowledge,
	QuestionFormatUnderstanding,
	QuestionFormatApplying,
	QuestionFormatAdvanced,
}

// Option is one answer choice of a choice-type question.
type Option struct {
	Text      string `json:"text" binding:"required,min=1,max=2000"`
	IsCorrect bool   `json:"is_correct"`
}

// Question represents a question bank item.
type Question struct {
	ID              uuid.UUID      `json:"id"`
	OwnerID         int            `json:"owner_id"`
	Text            string         `json:"text"`
	Type            QuestionType   `json:"question_type"`
	Format          QuestionFormat `json:"question_format"`
	Topic           string         `json:"topic"`
	ImageRef        *string        `json:"image_ref,omitempty"`
	ImageURL        string         `json:"image_url,omitempty"`
	Options         []Option       `json:"options"`
	ReferenceAnswer *string        `json:"reference_answer,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// CorrectCount returns how many options are flagged correct.
func (q *Question) CorrectCount() int {
	n := 0
	for _, o := range q.Options {
		if o.IsCorrect {
			n++
		}
	}
	return n
}

// QuestionRequest is the payload for creating or replacing a question.
type QuestionRequest struct {
	Text            string         `json:"text" binding:"required,min=1,max=10000"`
	Type            QuestionType   `json:"question_type" binding:"required,question_type"`
	Format          QuestionFormat `json:"question_format" binding:"required,question_format"`
	Topic           string         `json:"topic" binding:"omitempty,max=255"`
	ImageRef        *string        `json:"image_ref" binding:"omitempty,max=1024"`
	Options         []Option       `json:"options" binding:"omitempty,max=10,dive"`
	ReferenceAnswer *string        `json:"reference_answer" binding:"omitempty,max=10000"`
}

// QuestionFilter narrows question bank listings.
type QuestionFilter struct {
	Type   QuestionType
	Format QuestionFormat
	Topic  string
	Search string
}
