package session

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/testhub/testhub-backend/internal/model"
)

// Visual is the navigator state of one question.
type Visual string

const (
	VisualCurrent    Visual = "CURRENT"
	VisualAnswered   Visual = "ANSWERED"
	VisualUnanswered Visual = "UNANSWERED"
)

type QuestionView struct {
	QuestionID uuid.UUID
	Position   int
	Visual     Visual
	Send       SendStatus
}

// View is the read-only projection of a State for display.
type View struct {
	Phase      Phase
	Title      string
	Current    int
	Questions  []QuestionView
	Remaining  string
	Submitting bool
	Notice     string
	Err        error
	Result     *model.SubmissionResult
}

// View projects s for display.
func (s State) View() View {
	v := View{
		Phase:      s.Phase,
		Current:    s.Current,
		Remaining:  FormatRemaining(s.Remaining),
		Submitting: s.Final == FinalStateInFlight,
		Err:        s.Err,
		Result:     s.Result,
	}
	if s.Notice != nil {
		v.Notice = s.Notice.Error()
	}
	if s.Attempt == nil {
		return v
	}
	v.Title = s.Attempt.Title
	v.Questions = make([]QuestionView, len(s.Attempt.Questions))
	for i, q := range s.Attempt.Questions {
		qv := QuestionView{QuestionID: q.QuestionID, Position: q.Position, Send: s.Sends[q.QuestionID], Visual: VisualUnanswered}
		switch {
		case i == s.Current:
			qv.Visual = VisualCurrent
		case s.Answers[q.QuestionID] != nil && !s.Answers[q.QuestionID].Empty():
			qv.Visual = VisualAnswered
		}
		v.Questions[i] = qv
	}
	return v
}

// FormatRemaining renders seconds as MM:SS. Minutes are not capped at 59.
func FormatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
