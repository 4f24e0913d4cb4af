package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/testhub/testhub-backend/internal/middleware"
	"github.com/testhub/testhub-backend/internal/response"
	"github.com/testhub/testhub-backend/internal/service"
	"github.com/testhub/testhub-backend/internal/validator"
	ws "github.com/testhub/testhub-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler serves the attempt stream: answers and the final submit over a
// single connection.
type WSHandler struct {
	submissionService *service.SubmissionService
	log               zerolog.Logger
	upgrader          websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(submissionService *service.SubmissionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		submissionService: submissionService,
		log:               log.With().Str("component", "ws_handler").Logger(),
		upgrader:          buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/student/submissions/:id/stream?token=
// Frames are processed in order; each response echoes the request ref.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	submissionID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	studentID := claims.UserID

	if err := h.submissionService.VerifyOwner(c.Request.Context(), submissionID, studentID); err != nil {
		failFromError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("student_id", studentID).
		Str("submission_id", submissionID.String()).
		Logger()
	wsLog.Info().Msg("Student connected")

	ctx := c.Request.Context()
	for {
		req, err := ws.ReadRequest(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		res := h.handle(ctx, submissionID, studentID, req)
		if err := ws.WriteResponse(conn, res); err != nil {
			wsLog.Warn().Err(err).Msg("Write failed")
			return
		}
		if res.Event == ws.EventCompleted {
			wsLog.Info().Float64("score", res.Result.TotalScore).Msg("Attempt completed over websocket")
		}
	}
}

func (h *WSHandler) handle(ctx context.Context, submissionID uuid.UUID, studentID int, req ws.Request) ws.Response {
	switch req.Action {
	case ws.ActionPing:
		return ws.Pong(req.Ref)

	case ws.ActionAnswer:
		if req.Answer == nil || req.QuestionID == uuid.Nil {
			return ws.Error(req.Ref, string(response.ErrInvalidPayload), "question_id and answer are required")
		}
		if fields := validator.Struct(req.Answer); fields != nil {
			return ws.Error(req.Ref, string(response.ErrValidation), firstField(fields))
		}
		if err := h.submissionService.SubmitAnswer(ctx, submissionID, studentID, req.QuestionID, *req.Answer); err != nil {
			return wsError(req.Ref, err)
		}
		return ws.Saved(req.Ref, req.QuestionID)

	case ws.ActionComplete:
		if req.Complete == nil {
			return ws.Error(req.Ref, string(response.ErrInvalidPayload), "complete is required")
		}
		if fields := validator.Struct(req.Complete); fields != nil {
			return ws.Error(req.Ref, string(response.ErrValidation), firstField(fields))
		}
		result, err := h.submissionService.CompleteSubmission(ctx, submissionID, studentID, *req.Complete)
		if err != nil {
			return wsError(req.Ref, err)
		}
		return ws.Completed(req.Ref, result)

	default:
		return ws.Error(req.Ref, string(response.ErrInvalidPayload), "unknown action: "+string(req.Action))
	}
}

func wsError(ref string, err error) ws.Response {
	_, code := classifyError(err)
	return ws.Error(ref, string(code), response.GetMessage(code))
}

// firstField renders one validation failure as "field: message".
func firstField(fields map[string]string) string {
	for f, msg := range fields {
		return f + ": " + msg
	}
	return ""
}
