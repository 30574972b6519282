package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/assessli/carebot/backend/internal/audio"
	chatmodel "github.com/assessli/carebot/backend/internal/model/chat"
	"github.com/assessli/carebot/backend/internal/model/turn"
	"github.com/assessli/carebot/backend/internal/observability"
	"github.com/assessli/carebot/backend/internal/service/orchestrator"
	"github.com/assessli/carebot/backend/pkg/utils"
)

// DefaultUserID 未指定用户时使用的线程
const DefaultUserID = "default_user"

const (
	maxUploadBytes      = 25 << 20
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// Pipeline runs one conversational turn.
type Pipeline interface {
	Handle(ctx context.Context, req turn.Request, observers ...orchestrator.Observer) (*turn.Response, error)
}

// History reads back a thread.
type History interface {
	Thread(ctx context.Context, threadID string, n int) (chatmodel.Thread, error)
}

// Handler 聊天服务的HTTP处理器
type Handler struct {
	pipeline Pipeline
	history  History
}

// New 创建聊天处理器
func New(pipeline Pipeline, history History) *Handler {
	return &Handler{pipeline: pipeline, history: history}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/text", h.handleText)
	r.Post("/voice", h.handleVoice)
	r.Get("/threads/{threadID}/messages", h.handleListMessages)
}

type legacyMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type textRequest struct {
	UserID       string          `json:"userId"`
	LegacyUserID string          `json:"user_id"`
	Message      string          `json:"message"`
	Messages     []legacyMessage `json:"messages"`
}

// TurnResponse is the wire shape of a finished turn.
type TurnResponse struct {
	Answer     string   `json:"answer"`
	Transcript string   `json:"transcript,omitempty"`
	Emotion    string   `json:"emotion"`
	Valence    float64  `json:"valence"`
	Arousal    *float64 `json:"arousal,omitempty"`
	State      string   `json:"state"`
	Degraded   bool     `json:"degraded"`
}

// NewTurnResponse flattens an orchestrator response.
func NewTurnResponse(resp *turn.Response) TurnResponse {
	return TurnResponse{
		Answer:     resp.Reply,
		Transcript: resp.Transcript,
		Emotion:    resp.EmotionLabel,
		Valence:    resp.Valence,
		Arousal:    resp.Arousal,
		State:      string(resp.State),
		Degraded:   resp.Degraded,
	}
}

// message 优先；兼容旧客户端只传 messages 数组，取最后一条
func (r textRequest) text() string {
	if strings.TrimSpace(r.Message) != "" {
		return r.Message
	}
	if n := len(r.Messages); n > 0 {
		return r.Messages[n-1].Content
	}
	return ""
}

// userIDOrDefault 取第一个非空的用户标识；旧客户端使用 user_id
func userIDOrDefault(candidates ...string) string {
	for _, raw := range candidates {
		if id := strings.TrimSpace(raw); id != "" {
			return id
		}
	}
	return DefaultUserID
}

func (h *Handler) handleText(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.pipeline.Handle(r.Context(), turn.NewText(userIDOrDefault(req.UserID, req.LegacyUserID), req.text()))
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, NewTurnResponse(resp))
}

func (h *Handler) handleVoice(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	samples, err := audio.DecodeWAV(file)
	if err != nil {
		observability.LoggerFromContext(r.Context()).Warn("decode upload failed", "component", "handler.chat", "error", err)
		utils.RespondError(w, http.StatusBadRequest, "file must be a PCM wav")
		return
	}

	req := turn.NewAudio(userIDOrDefault(r.FormValue("userId"), r.FormValue("user_id")), samples, audio.RequiredSampleRate)
	resp, err := h.pipeline.Handle(r.Context(), req)
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, NewTurnResponse(resp))
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			utils.RespondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	thread, err := h.history.Thread(r.Context(), threadID, limit)
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, thread)
}
