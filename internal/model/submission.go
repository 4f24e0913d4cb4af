package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SubmissionStatus enumerates attempt states.
type SubmissionStatus string

const (
	SubmissionInProgress SubmissionStatus = "IN_PROGRESS"
	SubmissionCompleted  SubmissionStatus = "COMPLETED"
)

// Rating is the qualitative grade derived from the total score.
type Rating string

const (
	RatingExcellent Rating = "EXCELLENT"
	RatingGood      Rating = "GOOD"
	RatingAverage   Rating = "AVERAGE"
	RatingPoor      Rating = "POOR"
)

// MaxScore is the top of the scoring scale.
const MaxScore = 10.0

// RatingForScore maps a 0..10 score to its rating band.
func RatingForScore(score float64) Rating {
	switch {
	case score >= 8.5:
		return RatingExcellent
	case score >= 7:
		return RatingGood
	case score >= 5:
		return RatingAverage
	default:
		return RatingPoor
	}
}

// Submission is one exam attempt by one student.
type Submission struct {
	ID                    uuid.UUID        `json:"id"`
	ExamID                uuid.UUID        `json:"exam_id"`
	StudentID             int              `json:"student_id"`
	IsPractice            bool             `json:"is_practice"`
	Status                SubmissionStatus `json:"status"`
	StartedAt             time.Time        `json:"started_at"`
	EndedAt               *time.Time       `json:"ended_at,omitempty"`
	SelectionSeed         int64            `json:"-"`
	ExpectedQuestionCount int              `json:"expected_question_count"`
	TotalScore            *float64         `json:"total_score,omitempty"`
	Rating                *Rating          `json:"rating,omitempty"`
}

// OptionRef maps a per-attempt display id to the option's index in the bank question.
type OptionRef struct {
	DisplayID string `json:"id"`
	Index     int    `json:"index"`
}

// SubmissionQuestion is one materialized question of a submission.
type SubmissionQuestion struct {
	SubmissionID uuid.UUID   `json:"submission_id"`
	QuestionID   uuid.UUID   `json:"question_id"`
	Position     int         `json:"position"`
	OptionMap    []OptionRef `json:"option_map"`
	// Question is the bank question as it was when the attempt was materialized.
	Question   Question        `json:"question"`
	Answer     json.RawMessage `json:"answer,omitempty"`
	IsCorrect  *bool           `json:"is_correct,omitempty"`
	Score      float64         `json:"score"`
	AnsweredAt *time.Time      `json:"answered_at,omitempty"`
}

// DisplayOption is an option as shown to the student: display id and text only.
type DisplayOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// AttemptQuestion is a materialized question without its answer key.
type AttemptQuestion struct {
	QuestionID uuid.UUID       `json:"question_id"`
	Position   int             `json:"position"`
	Text       string          `json:"text"`
	Type       QuestionType    `json:"question_type"`
	Format     QuestionFormat  `json:"question_format"`
	Topic      string          `json:"topic"`
	ImageURL   string          `json:"image_url,omitempty"`
	Options    []DisplayOption `json:"options,omitempty"`
}

// Attempt is returned by startAttempt: the fixed question list of a submission.
type Attempt struct {
	SubmissionID    uuid.UUID         `json:"submission_id"`
	ExamID          uuid.UUID         `json:"exam_id"`
	Title           string            `json:"title"`
	DurationMinutes int               `json:"duration_minutes"`
	IsPractice      bool              `json:"is_practice"`
	StartedAt       time.Time         `json:"started_at"`
	Questions       []AttemptQuestion `json:"questions"`
}

// AttemptState is the resumable state of an in-progress attempt.
type AttemptState struct {
	Attempt
	Answers          map[uuid.UUID]AnswerPayload `json:"answers"`
	RemainingSeconds int                         `json:"remaining_seconds"`
}

// CompleteSubmissionRequest is the final-submit payload.
type CompleteSubmissionRequest struct {
	StartedAt             time.Time `json:"started_at" binding:"required"`
	EndedAt               time.Time `json:"ended_at" binding:"required"`
	ExpectedQuestionCount int       `json:"expected_question_count" binding:"min=0,max=1000"`
}

// SubmissionResult is the outcome of a completed submission.
type SubmissionResult struct {
	SubmissionID uuid.UUID        `json:"submission_id"`
	Status       SubmissionStatus `json:"status"`
	TotalScore   float64          `json:"total_score"`
	Rating       Rating           `json:"rating"`
	Correct      int              `json:"correct"`
	Total        int              `json:"total"`
	EndedAt      time.Time        `json:"ended_at"`
}

// GradeEssayRequest is a lecturer's manual grade for an essay row.
type GradeEssayRequest struct {
	Score     *float64 `json:"score" binding:"required,min=0"`
	IsCorrect *bool    `json:"is_correct"`
}

// AnswerRecord is a captured answer queued for persistence.
type AnswerRecord struct {
	SubmissionID uuid.UUID       `json:"submission_id"`
	QuestionID   uuid.UUID       `json:"question_id"`
	Answer       json.RawMessage `json:"answer"`
	AnsweredAt   time.Time       `json:"answered_at"`
}
