package stream

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/assessli/carebot/backend/internal/apperr"
	chathandler "github.com/assessli/carebot/backend/internal/handler/chat"
	"github.com/assessli/carebot/backend/internal/model/turn"
	"github.com/assessli/carebot/backend/internal/observability"
	"github.com/assessli/carebot/backend/internal/service/orchestrator"
	"github.com/assessli/carebot/backend/pkg/utils"
)

// Handler 通过 Server-Sent Events 推送请求的状态变化与最终结果
type Handler struct {
	pipeline chathandler.Pipeline
}

// New creates a new stream handler
func New(pipeline chathandler.Pipeline) *Handler {
	return &Handler{pipeline: pipeline}
}

// RegisterRoutes 注册流式路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{threadID}", h.handleStream)
}

// StateEvent is emitted for every transition of the turn.
type StateEvent struct {
	ThreadID string     `json:"threadId"`
	From     turn.State `json:"from,omitempty"`
	State    turn.State `json:"state"`
}

// ErrorEvent closes a stream whose turn failed.
type ErrorEvent struct {
	ThreadID string `json:"threadId"`
	Status   int    `json:"status"`
	Error    string `json:"error"`
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	message := r.URL.Query().Get("message")
	if message == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	utils.SetupSSEHeaders(w)

	if err := h.HandleStreamRequest(r.Context(), w, flusher, threadID, message); err != nil {
		observability.LoggerFromContext(r.Context()).Warn("stream turn failed",
			"component", "handler.stream", "thread_id", threadID, "error", err)
	}
}

// HandleStreamRequest runs the turn and writes state, result and error
// events. Headers must already be set.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, threadID, message string) error {
	observer := orchestrator.ObserverFunc(func(_ context.Context, id string, from, to turn.State) {
		utils.SendSSEEvent(w, flusher, "state", StateEvent{ThreadID: id, From: from, State: to})
	})

	resp, err := h.pipeline.Handle(ctx, turn.NewText(threadID, message), observer)
	if err != nil {
		// 客户端已断开
		if errors.Is(err, context.Canceled) {
			return err
		}
		status := apperr.HTTPStatus(err)
		msg := err.Error()
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
		utils.SendSSEEvent(w, flusher, "error", ErrorEvent{ThreadID: threadID, Status: status, Error: msg})
		return err
	}

	utils.SendSSEEvent(w, flusher, "result", chathandler.NewTurnResponse(resp))
	return nil
}
