package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamResultStats aggregates completed submissions of one exam.
type ExamResultStats struct {
	ExamID       uuid.UUID      `json:"exam_id"`
	Attempts     int            `json:"attempts"`
	ScoreSum     float64        `json:"-"`
	AverageScore float64        `json:"average_score"`
	Ratings      map[Rating]int `json:"ratings"`
	InProgress   int            `json:"in_progress"`
	UpdatedAt    *time.Time     `json:"updated_at,omitempty"`
}

// ResultEvent is published on an exam's results channel and queued for
// the statistics worker when a submission completes.
type ResultEvent struct {
	SubmissionID uuid.UUID `json:"submission_id"`
	ExamID       uuid.UUID `json:"exam_id"`
	StudentID    int       `json:"student_id"`
	StudentName  string    `json:"student_name,omitempty"`
	TotalScore   float64   `json:"total_score"`
	// PreviousScore and PreviousRating are set when a regrade replaces an
	// already counted result.
	PreviousScore  *float64  `json:"previous_score,omitempty"`
	PreviousRating *Rating   `json:"previous_rating,omitempty"`
	Rating         Rating    `json:"rating"`
	EndedAt        time.Time `json:"ended_at"`
}

// Dashboard is the administrator overview.
type Dashboard struct {
	Students      int                 `json:"students"`
	Lecturers     int                 `json:"lecturers"`
	Exams         int                 `json:"exams"`
	VisibleExams  int                 `json:"visible_exams"`
	Questions     int                 `json:"questions"`
	RecentResults []ExamResultSummary `json:"recent_results"`
}

// ExamResultSummary is a dashboard line for one exam.
type ExamResultSummary struct {
	ExamID       uuid.UUID `json:"exam_id"`
	Title        string    `json:"title"`
	Attempts     int       `json:"attempts"`
	AverageScore float64   `json:"average_score"`
	UpdatedAt    time.Time `json:"updated_at"`
}
