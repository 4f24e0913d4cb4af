package session

import "testing"

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{0, "00:00"},
		{59, "00:59"},
		{60, "01:00"},
		{61, "01:01"},
		{3599, "59:59"},
		{5400, "90:00"},
		{28800, "480:00"},
		{-3, "00:00"},
	}
	for _, tt := range tests {
		if got := FormatRemaining(tt.seconds); got != tt.want {
			t.Errorf("FormatRemaining(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestViewVisualStates(t *testing.T) {
	s := started(t, 2)
	s, _ = Step(s, SelectOption{QuestionID: qSingle, OptionID: "a"})
	s, _ = Step(s, ToggleOption{QuestionID: qMultiple, OptionID: "x"})
	s, _ = Step(s, ToggleOption{QuestionID: qMultiple, OptionID: "x"})
	s, _ = Step(s, Jump{Index: 2})
	s, _ = Step(s, Tick{})

	v := s.View()
	if v.Phase != PhaseInProgress || v.Title != "Algebra" || v.Remaining != "01:59" {
		t.Fatalf("view = %+v", v)
	}
	want := []Visual{VisualAnswered, VisualUnanswered, VisualCurrent}
	for i, q := range v.Questions {
		if q.Visual != want[i] {
			t.Errorf("question %d visual = %s, want %s", i, q.Visual, want[i])
		}
	}
}

func TestViewBeforeLoad(t *testing.T) {
	v := New().View()
	if v.Phase != PhaseNotStarted || v.Questions != nil || v.Remaining != "00:00" {
		t.Fatalf("view = %+v", v)
	}
}
