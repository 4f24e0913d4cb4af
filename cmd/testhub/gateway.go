package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/testhub/testhub-backend/internal/model"
	"github.com/testhub/testhub-backend/internal/response"
	ws "github.com/testhub/testhub-backend/internal/websocket"
)

var errStreamClosed = errors.New("attempt stream closed")

// gateway implements session.Gateway. The attempt starts over REST; answers
// and the final submit travel over the attempt stream, falling back to REST
// when the stream cannot be opened.
type gateway struct {
	api    *apiClient
	dialer *websocket.Dialer
	log    zerolog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	connSub uuid.UUID
	pending map[string]chan ws.Response

	writeMu sync.Mutex
	nextRef atomic.Uint64
}

func newGateway(api *apiClient, log zerolog.Logger) *gateway {
	return &gateway{
		api:     api,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:     log.With().Str("component", "gateway").Logger(),
		pending: make(map[string]chan ws.Response),
	}
}

func (g *gateway) StartAttempt(ctx context.Context, examID uuid.UUID) (*model.AttemptState, error) {
	var out struct {
		Attempt *model.AttemptState `json:"attempt"`
	}
	if err := g.api.do(ctx, http.MethodPost, "/api/v1/student/exams/"+examID.String()+"/attempts", nil, &out); err != nil {
		return nil, err
	}
	if out.Attempt == nil {
		return nil, errors.New("empty attempt in response")
	}
	return out.Attempt, nil
}

func (g *gateway) SubmitAnswer(ctx context.Context, submissionID, questionID uuid.UUID, payload model.AnswerPayload) error {
	_, err := g.call(ctx, submissionID, ws.Request{Action: ws.ActionAnswer, QuestionID: questionID, Answer: &payload})
	if errors.Is(err, errStreamClosed) {
		path := fmt.Sprintf("/api/v1/student/submissions/%s/answers/%s", submissionID, questionID)
		return g.api.do(ctx, http.MethodPut, path, payload, nil)
	}
	return err
}

func (g *gateway) CompleteSubmission(ctx context.Context, submissionID uuid.UUID, req model.CompleteSubmissionRequest) (*model.SubmissionResult, error) {
	res, err := g.call(ctx, submissionID, ws.Request{Action: ws.ActionComplete, Complete: &req})
	if errors.Is(err, errStreamClosed) {
		var out struct {
			Result *model.SubmissionResult `json:"result"`
		}
		path := fmt.Sprintf("/api/v1/student/submissions/%s/complete", submissionID)
		if err := g.api.do(ctx, http.MethodPost, path, req, &out); err != nil {
			return nil, err
		}
		return out.Result, nil
	}
	if err != nil {
		return nil, err
	}
	return res.Result, nil
}

// Close ends the attempt stream.
func (g *gateway) Close() error {
	g.mu.Lock()
	conn := g.conn
	g.conn = nil
	g.mu.Unlock()
	if conn == nil {
		return nil
	}
	g.writeMu.Lock()
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	g.writeMu.Unlock()
	return conn.Close()
}

// call sends one request on the stream and waits for the response with
// the same ref.
func (g *gateway) call(ctx context.Context, submissionID uuid.UUID, req ws.Request) (ws.Response, error) {
	conn, err := g.connection(ctx, submissionID)
	if err != nil {
		g.log.Debug().Err(err).Msg("Stream unavailable")
		return ws.Response{}, errStreamClosed
	}

	req.Ref = strconv.FormatUint(g.nextRef.Add(1), 10)
	ch := make(chan ws.Response, 1)
	g.mu.Lock()
	g.pending[req.Ref] = ch
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		delete(g.pending, req.Ref)
		g.mu.Unlock()
	}()

	g.writeMu.Lock()
	err = ws.WriteRequest(conn, req)
	g.writeMu.Unlock()
	if err != nil {
		g.drop(conn)
		return ws.Response{}, errStreamClosed
	}

	select {
	case res, ok := <-ch:
		if !ok {
			return ws.Response{}, errStreamClosed
		}
		if res.Event == ws.EventError {
			return res, &APIError{Code: response.ErrCode(res.Code), Message: res.Error}
		}
		return res, nil
	case <-ctx.Done():
		return ws.Response{}, ctx.Err()
	}
}

// connection returns the stream of submissionID, dialing it if needed.
func (g *gateway) connection(ctx context.Context, submissionID uuid.UUID) (*websocket.Conn, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn != nil && g.connSub == submissionID {
		return g.conn, nil
	}

	u := g.api.wsURL("/ws/v1/student/submissions/"+submissionID.String()+"/stream") +
		"?token=" + url.QueryEscape(g.api.token)
	conn, _, err := g.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	g.conn = conn
	g.connSub = submissionID
	go g.readLoop(conn)
	return conn, nil
}

func (g *gateway) readLoop(conn *websocket.Conn) {
	for {
		res, err := ws.ReadResponse(conn)
		if err != nil {
			g.drop(conn)
			return
		}
		g.mu.Lock()
		ch, ok := g.pending[res.Ref]
		if ok {
			delete(g.pending, res.Ref)
			ch <- res
		}
		g.mu.Unlock()
		if !ok {
			g.log.Debug().Str("ref", res.Ref).Str("event", string(res.Event)).Msg("Unmatched frame")
		}
	}
}

// drop forgets conn and fails every request waiting on it.
func (g *gateway) drop(conn *websocket.Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn != conn {
		return
	}
	g.conn = nil
	conn.Close()
	for ref, ch := range g.pending {
		close(ch)
		delete(g.pending, ref)
	}
}
