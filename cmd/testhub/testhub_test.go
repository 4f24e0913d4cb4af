package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/testhub/testhub-backend/internal/model"
	"github.com/testhub/testhub-backend/internal/session"
	ws "github.com/testhub/testhub-backend/internal/websocket"
)

func attemptState(q ...model.AttemptQuestion) session.State {
	st := session.New()
	st.Phase = session.PhaseInProgress
	st.Attempt = &model.Attempt{Questions: q}
	return st
}

func TestParseCommand(t *testing.T) {
	single := model.AttemptQuestion{
		QuestionID: uuid.New(), Position: 1, Type: model.QuestionTypeSingleChoice,
		Options: []model.DisplayOption{{ID: "o1", Text: "one"}, {ID: "o2", Text: "two"}},
	}
	multi := model.AttemptQuestion{
		QuestionID: uuid.New(), Position: 1, Type: model.QuestionTypeMultipleChoice,
		Options: []model.DisplayOption{{ID: "m1"}, {ID: "m2"}},
	}
	essay := model.AttemptQuestion{QuestionID: uuid.New(), Position: 1, Type: model.QuestionTypeEssay}
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("navigation", func(t *testing.T) {
		st := attemptState(single)
		evs, err := parseCommand("g 3", st, now)
		if err != nil || len(evs) != 1 || evs[0] != (session.Jump{Index: 2}) {
			t.Fatalf("got %v, %v", evs, err)
		}
		evs, _ = parseCommand(" n ", st, now)
		if len(evs) != 1 || evs[0] != (session.Next{}) {
			t.Fatalf("got %v", evs)
		}
	})

	t.Run("single choice by letter", func(t *testing.T) {
		evs, err := parseCommand("a b", attemptState(single), now)
		if err != nil {
			t.Fatal(err)
		}
		if len(evs) != 2 {
			t.Fatalf("expected 2 events, got %d", len(evs))
		}
		if evs[0] != (session.SelectOption{QuestionID: single.QuestionID, OptionID: "o2"}) {
			t.Errorf("unexpected first event %#v", evs[0])
		}
		if evs[1] != (session.SubmitAnswer{QuestionID: single.QuestionID}) {
			t.Errorf("unexpected second event %#v", evs[1])
		}
	})

	t.Run("multiple choice toggles by number", func(t *testing.T) {
		evs, err := parseCommand("a 1", attemptState(multi), now)
		if err != nil {
			t.Fatal(err)
		}
		if evs[0] != (session.ToggleOption{QuestionID: multi.QuestionID, OptionID: "m1"}) {
			t.Errorf("unexpected event %#v", evs[0])
		}
	})

	t.Run("essay", func(t *testing.T) {
		evs, err := parseCommand("w photosynthesis needs light", attemptState(essay), now)
		if err != nil {
			t.Fatal(err)
		}
		if evs[0] != (session.WriteEssay{QuestionID: essay.QuestionID, Text: "photosynthesis needs light"}) {
			t.Errorf("unexpected event %#v", evs[0])
		}
	})

	t.Run("errors", func(t *testing.T) {
		cases := []struct {
			line string
			st   session.State
		}{
			{"a z", attemptState(single)},
			{"a 1", attemptState(essay)},
			{"w text", attemptState(single)},
			{"g x", attemptState(single)},
			{"frobnicate", attemptState(single)},
			{"a 1", session.New()},
		}
		for _, tc := range cases {
			if _, err := parseCommand(tc.line, tc.st, now); err == nil {
				t.Errorf("%q: expected an error", tc.line)
			}
		}
	})

	t.Run("quit and submit", func(t *testing.T) {
		if _, err := parseCommand("q", session.New(), now); !errors.Is(err, errQuit) {
			t.Errorf("expected errQuit, got %v", err)
		}
		evs, _ := parseCommand("submit", session.New(), now)
		if evs[0] != (session.SubmitFinal{Now: now}) {
			t.Errorf("unexpected event %#v", evs[0])
		}
	})
}

func TestRenderMarksSelection(t *testing.T) {
	q := model.AttemptQuestion{
		QuestionID: uuid.New(), Position: 1, Text: "Pick one", Type: model.QuestionTypeSingleChoice,
		Options: []model.DisplayOption{{ID: "o1", Text: "red"}, {ID: "o2", Text: "blue"}},
	}
	st := attemptState(q)
	st.Answers = map[uuid.UUID]model.Answer{q.QuestionID: model.SingleChoiceAnswer{OptionID: "o2"}}

	var b strings.Builder
	render(&b, st, st.View())
	out := b.String()
	if !strings.Contains(out, "[x] B) blue") || !strings.Contains(out, "[ ] A) red") {
		t.Errorf("unexpected render:\n%s", out)
	}
}

func writeEnvelope(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"data": data, "metadata": map[string]any{}})
}

func TestGatewayUsesStream(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var restCalls int
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/v1/student/submissions/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "tok" {
			http.Error(w, "no token", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			req, err := ws.ReadRequest(conn)
			if err != nil {
				return
			}
			switch req.Action {
			case ws.ActionAnswer:
				if req.QuestionID == uuid.Nil {
					ws.WriteError(conn, req.Ref, "INVALID_ANSWER", "missing question")
					continue
				}
				ws.WriteResponse(conn, ws.Saved(req.Ref, req.QuestionID))
			case ws.ActionComplete:
				ws.WriteResponse(conn, ws.Completed(req.Ref, &model.SubmissionResult{TotalScore: 7.5, Rating: model.RatingGood}))
			}
		}
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		restCalls++
		writeEnvelope(w, http.StatusOK, nil)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	gw := newGateway(newAPIClient(srv.URL, "tok"), zerolog.Nop())
	defer gw.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := uuid.New()
	if err := gw.SubmitAnswer(ctx, sub, uuid.New(), model.AnswerPayload{}); err != nil {
		t.Fatalf("answer: %v", err)
	}

	err := gw.SubmitAnswer(ctx, sub, uuid.Nil, model.AnswerPayload{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "INVALID_ANSWER" {
		t.Fatalf("expected INVALID_ANSWER, got %v", err)
	}

	res, err := gw.CompleteSubmission(ctx, sub, model.CompleteSubmissionRequest{})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.Rating != model.RatingGood || res.TotalScore != 7.5 {
		t.Errorf("unexpected result %+v", res)
	}
	if restCalls != 0 {
		t.Errorf("expected no REST calls, got %d", restCalls)
	}
}

func TestGatewayFallsBackToREST(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/ws/") {
			http.NotFound(w, r)
			return
		}
		paths = append(paths, r.Method+" "+r.URL.Path)
		if strings.HasSuffix(r.URL.Path, "/complete") {
			writeEnvelope(w, http.StatusOK, map[string]any{"result": model.SubmissionResult{TotalScore: 10, Rating: model.RatingExcellent}})
			return
		}
		writeEnvelope(w, http.StatusOK, map[string]string{"message": "saved"})
	}))
	defer srv.Close()

	gw := newGateway(newAPIClient(srv.URL, "tok"), zerolog.Nop())
	ctx := context.Background()
	sub, q := uuid.New(), uuid.New()

	if err := gw.SubmitAnswer(ctx, sub, q, model.AnswerPayload{}); err != nil {
		t.Fatalf("answer: %v", err)
	}
	res, err := gw.CompleteSubmission(ctx, sub, model.CompleteSubmissionRequest{})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.Rating != model.RatingExcellent {
		t.Errorf("unexpected result %+v", res)
	}

	want := []string{
		"PUT /api/v1/student/submissions/" + sub.String() + "/answers/" + q.String(),
		"POST /api/v1/student/submissions/" + sub.String() + "/complete",
	}
	if strings.Join(paths, ",") != strings.Join(want, ",") {
		t.Errorf("paths = %v, want %v", paths, want)
	}
}

func TestAPIErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"data":null,"error":{"code":"EXAM_NOT_AVAILABLE","message":"closed"},"metadata":{}}`))
	}))
	defer srv.Close()

	_, err := newGateway(newAPIClient(srv.URL, "tok"), zerolog.Nop()).StartAttempt(context.Background(), uuid.New())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Status != http.StatusForbidden || apiErr.Code != "EXAM_NOT_AVAILABLE" {
		t.Errorf("unexpected error %+v", apiErr)
	}
}

func TestLogoutRemovesTokenWhenServerFails(t *testing.T) {
	var logoutCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/auth/logout" {
			logoutCalls++
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"data":null,"error":{"code":"INTERNAL_ERROR","message":"down"},"metadata":{}}`))
	}))
	defer srv.Close()

	tokenFile := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(tokenFile, []byte("tok"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := logout(context.Background(), newAPIClient(srv.URL, "tok"), tokenFile, zerolog.Nop()); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if logoutCalls != 1 {
		t.Errorf("expected one logout call, got %d", logoutCalls)
	}
	if _, err := os.Stat(tokenFile); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("token file still present: %v", err)
	}

	// A second logout with the file already gone is not an error.
	if err := logout(context.Background(), newAPIClient(srv.URL, "tok"), tokenFile, zerolog.Nop()); err != nil {
		t.Errorf("second logout: %v", err)
	}
}
