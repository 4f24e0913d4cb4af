package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/testhub/testhub-backend/internal/model"
	"github.com/testhub/testhub-backend/internal/session"
)

const helpText = `Commands:
  n / p          next / previous question
  g <N>          go to question N
  a <X>          answer with option X (letter or number); toggles on multiple choice
  w <text>       write an essay answer
  l              list questions and their state
  submit         submit the exam
  q              leave; the attempt can be resumed later
  h              this help`

var errQuit = errors.New("quit")

// screen prints the session whenever something a student cares about
// changes.
type screen struct {
	out io.Writer

	mu   sync.Mutex
	last string
	mark string
}

func (s *screen) update(st session.State, v session.View) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := fmt.Sprintf("%s|%d|%v|%s|%v", v.Phase, v.Current, v.Submitting, v.Notice, v.Err)
	if key != s.last {
		s.last = key
		render(s.out, st, v)
		return
	}
	if v.Phase == session.PhaseInProgress && (v.Remaining == "05:00" || v.Remaining == "01:00") && v.Remaining != s.mark {
		s.mark = v.Remaining
		fmt.Fprintf(s.out, "-- %s remaining --\n", v.Remaining)
	}
}

func render(w io.Writer, st session.State, v session.View) {
	switch v.Phase {
	case session.PhaseLoading:
		fmt.Fprintln(w, "Loading attempt...")
		return
	case session.PhaseNotFound, session.PhaseSubmitted, session.PhaseNotStarted:
		return
	}

	if v.Notice != "" {
		fmt.Fprintln(w, "!", v.Notice)
	}
	if v.Submitting {
		fmt.Fprintln(w, "Submitting...")
		return
	}
	if v.Err != nil {
		fmt.Fprintln(w, "!", v.Err)
	}
	if st.Attempt == nil || v.Current >= len(st.Attempt.Questions) {
		return
	}

	q := st.Attempt.Questions[v.Current]
	fmt.Fprintf(w, "\n%s  [%d/%d]  %s left\n", v.Title, v.Current+1, len(st.Attempt.Questions), v.Remaining)
	fmt.Fprintf(w, "%d. %s\n", q.Position, q.Text)
	if q.ImageURL != "" {
		fmt.Fprintln(w, "   image:", q.ImageURL)
	}

	answer, _ := st.Answer(q.QuestionID)
	switch q.Type {
	case model.QuestionTypeEssay:
		if a, ok := answer.(model.EssayAnswer); ok && a.Text != "" {
			fmt.Fprintln(w, "   your answer:", a.Text)
		} else {
			fmt.Fprintln(w, "   (essay, answer with: w <text>)")
		}
	default:
		for i, o := range q.Options {
			box := "[ ]"
			if selected(answer, o.ID) {
				box = "[x]"
			}
			fmt.Fprintf(w, "   %s %c) %s\n", box, 'A'+i, o.Text)
		}
	}
}

func selected(a model.Answer, optionID string) bool {
	switch a := a.(type) {
	case model.SingleChoiceAnswer:
		return a.OptionID == optionID
	case model.MultipleChoiceAnswer:
		return a.Has(optionID)
	}
	return false
}

func listQuestions(w io.Writer, v session.View) {
	for _, q := range v.Questions {
		mark := " "
		switch q.Visual {
		case session.VisualCurrent:
			mark = ">"
		case session.VisualAnswered:
			mark = "*"
		}
		state := ""
		switch q.Send {
		case session.SendPending:
			state = " saving"
		case session.SendFailed:
			state = " not saved"
		}
		fmt.Fprintf(w, " %s %3d%s\n", mark, q.Position, state)
	}
}

// parseCommand turns one input line into session events.
func parseCommand(line string, st session.State, now time.Time) ([]session.Event, error) {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "":
		return nil, nil
	case "n":
		return []session.Event{session.Next{}}, nil
	case "p":
		return []session.Event{session.Prev{}}, nil
	case "g":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return nil, fmt.Errorf("usage: g <N>")
		}
		return []session.Event{session.Jump{Index: n - 1}}, nil
	case "submit":
		return []session.Event{session.SubmitFinal{Now: now}}, nil
	case "q":
		return nil, errQuit
	}

	if st.Attempt == nil || st.Current >= len(st.Attempt.Questions) {
		return nil, errors.New("no question is open")
	}
	q := st.Attempt.Questions[st.Current]

	switch strings.ToLower(cmd) {
	case "a":
		if !q.Type.IsChoice() {
			return nil, errors.New("this is an essay question, use: w <text>")
		}
		optionID, err := optionFor(q, arg)
		if err != nil {
			return nil, err
		}
		var ev session.Event = session.SelectOption{QuestionID: q.QuestionID, OptionID: optionID}
		if q.Type == model.QuestionTypeMultipleChoice {
			ev = session.ToggleOption{QuestionID: q.QuestionID, OptionID: optionID}
		}
		return []session.Event{ev, session.SubmitAnswer{QuestionID: q.QuestionID}}, nil
	case "w":
		if q.Type != model.QuestionTypeEssay {
			return nil, errors.New("this is a choice question, use: a <X>")
		}
		return []session.Event{
			session.WriteEssay{QuestionID: q.QuestionID, Text: arg},
			session.SubmitAnswer{QuestionID: q.QuestionID},
		}, nil
	}
	return nil, fmt.Errorf("unknown command %q, type h for help", cmd)
}

// optionFor resolves a letter (A, b) or 1-based number to a display option id.
func optionFor(q model.AttemptQuestion, arg string) (string, error) {
	idx := -1
	if n, err := strconv.Atoi(arg); err == nil {
		idx = n - 1
	} else if len(arg) == 1 {
		c := strings.ToUpper(arg)[0]
		idx = int(c) - 'A'
	}
	if idx < 0 || idx >= len(q.Options) {
		return "", fmt.Errorf("no option %q", arg)
	}
	return q.Options[idx].ID, nil
}

// takeExam runs one exam session against the server, reading commands
// from in until the exam is submitted or the student leaves.
func takeExam(ctx context.Context, api *apiClient, log zerolog.Logger, examID uuid.UUID, studentID int, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	gw := newGateway(api, log)
	defer gw.Close()

	scr := &screen{out: out}
	var runner *session.Runner
	runner = session.NewRunner(gw, session.TickerScheduler{}, log, func(v session.View) {
		scr.update(runner.State(), v)
	})

	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			line := scanner.Text()
			switch strings.TrimSpace(line) {
			case "h":
				fmt.Fprintln(out, helpText)
				continue
			case "l":
				listQuestions(out, runner.View())
				continue
			}
			events, err := parseCommand(line, runner.State(), time.Now())
			if errors.Is(err, errQuit) {
				fmt.Fprintln(out, "Leaving. Run the same command again to resume.")
				cancel()
				return
			}
			if err != nil {
				fmt.Fprintln(out, err)
				continue
			}
			for _, ev := range events {
				if !runner.Dispatch(ev) {
					return
				}
			}
		}
	}()

	fmt.Fprintln(out, "Type h for help.")
	result, err := runner.Run(ctx, examID, studentID)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\nSubmitted. Score %.2f / 10 (%s), %d of %d correct.\n",
		result.TotalScore, result.Rating, result.Correct, result.Total)
	return nil
}
