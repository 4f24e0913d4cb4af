package model

import (
	"time"

	"github.com/google/uuid"
)

// SelectionMode decides how the questions of an attempt are picked from the exam pool.
type SelectionMode string

const (
	SelectionManual  SelectionMode = "MANUAL"
	SelectionRandomN SelectionMode = "RANDOM_N"
	SelectionByType  SelectionMode = "BY_TYPE"
)

// DistributionEntry is one stratum of a BY_TYPE exam.
type DistributionEntry struct {
	QuestionType   QuestionType   `json:"question_type" binding:"required,question_type"`
	QuestionFormat QuestionFormat `json:"question_format" binding:"required,question_format"`
	Quantity       int            `json:"quantity" binding:"min=0,max=500"`
}

// Exam represents an exam definition owned by a lecturer.
type Exam struct {
	ID              uuid.UUID           `json:"id"`
	Title           string              `json:"title"`
	Topic           string              `json:"topic"`
	OwnerID         int                 `json:"owner_id"`
	StartsAt        *time.Time          `json:"starts_at,omitempty"`
	EndsAt          *time.Time          `json:"ends_at,omitempty"`
	DurationMinutes int                 `json:"duration_minutes"`
	IsPractice      bool                `json:"is_practice"`
	SelectionMode   SelectionMode       `json:"selection_mode"`
	SampleSize      int                 `json:"sample_size"`
	Distribution    []DistributionEntry `json:"distribution"`
	IsVisible       bool                `json:"is_visible"`
	QuestionCount   int                 `json:"question_count"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// OpenAt reports whether the exam's time window contains t.
func (e *Exam) OpenAt(t time.Time) bool {
	if e.StartsAt != nil && t.Before(*e.StartsAt) {
		return false
	}
	if e.EndsAt != nil && t.After(*e.EndsAt) {
		return false
	}
	return true
}

// CreateExamRequest is the payload for creating a new exam.
type CreateExamRequest struct {
	Title           string              `json:"title" binding:"required,min=3,max=255"`
	Topic           string              `json:"topic" binding:"omitempty,max=255"`
	StartsAt        *time.Time          `json:"starts_at" binding:"omitempty"`
	EndsAt          *time.Time          `json:"ends_at" binding:"omitempty,gtfield=StartsAt"`
	DurationMinutes int                 `json:"duration_minutes" binding:"required,min=1,max=480"`
	IsPractice      bool                `json:"is_practice"`
	SelectionMode   SelectionMode       `json:"selection_mode" binding:"required,selection_mode"`
	SampleSize      int                 `json:"sample_size" binding:"required_if=SelectionMode RANDOM_N,min=0,max=500"`
	Distribution    []DistributionEntry `json:"distribution" binding:"required_if=SelectionMode BY_TYPE,dive"`
	QuestionIDs     []uuid.UUID         `json:"question_ids" binding:"omitempty,max=1000"`
}

// UpdateExamRequest is the payload for updating an existing exam.
// Absent fields keep their stored value.
type UpdateExamRequest struct {
	Title           string              `json:"title" binding:"omitempty,min=3,max=255"`
	Topic           *string             `json:"topic" binding:"omitempty,max=255"`
	StartsAt        *time.Time          `json:"starts_at" binding:"omitempty"`
	EndsAt          *time.Time          `json:"ends_at" binding:"omitempty"`
	DurationMinutes int                 `json:"duration_minutes" binding:"omitempty,min=1,max=480"`
	IsPractice      *bool               `json:"is_practice" binding:"omitempty"`
	SelectionMode   SelectionMode       `json:"selection_mode" binding:"omitempty,selection_mode"`
	SampleSize      *int                `json:"sample_size" binding:"omitempty,min=0,max=500"`
	Distribution    []DistributionEntry `json:"distribution" binding:"omitempty,dive"`
}

// SetExamQuestionsRequest replaces the exam's question membership.
type SetExamQuestionsRequest struct {
	QuestionIDs []uuid.UUID `json:"question_ids" binding:"max=1000"`
}

// SetVisibilityRequest toggles whether students can see the exam.
type SetVisibilityRequest struct {
	IsVisible *bool `json:"is_visible" binding:"required"`
}
