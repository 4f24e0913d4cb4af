package selection

import (
	"errors"
	"fmt"

	"github.com/testhub/testhub-backend/internal/model"
)

var (
	ErrUnknownMode   = errors.New("unknown selection mode")
	ErrInvalidConfig = errors.New("invalid selection config")
)

// Bucket identifies one stratum of a BY_TYPE selection.
type Bucket struct {
	Type   model.QuestionType   `json:"question_type"`
	Format model.QuestionFormat `json:"question_format"`
}

func (b Bucket) String() string {
	return fmt.Sprintf("(%s, %s)", b.Type, b.Format)
}

// InsufficientQuestionsError is returned when the pool cannot satisfy a draw.
// Bucket is nil for RANDOM_N.
type InsufficientQuestionsError struct {
	Bucket    *Bucket
	Requested int
	Available int
}

func (e *InsufficientQuestionsError) Error() string {
	if e.Bucket != nil {
		return fmt.Sprintf("not enough questions for %s: requested %d, available %d",
			e.Bucket, e.Requested, e.Available)
	}
	return fmt.Sprintf("not enough questions: requested %d, available %d", e.Requested, e.Available)
}
