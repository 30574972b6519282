package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/assessli/carebot/backend/internal/apperr"
	"github.com/assessli/carebot/backend/internal/audio"
	chathandler "github.com/assessli/carebot/backend/internal/handler/chat"
	"github.com/assessli/carebot/backend/internal/model/turn"
	"github.com/assessli/carebot/backend/internal/observability"
	"github.com/assessli/carebot/backend/internal/service/orchestrator"
)

const (
	defaultReadTimeout = 60 * time.Second
	pingInterval       = 54 * time.Second
	writeTimeout       = 10 * time.Second
	maxBufferBytes     = 10 << 20

	formatWAV   = "wav"
	formatPCM16 = "pcm16"
)

// WebSocketHandler 实时对话：文本直接处理，音频分片缓存到 isFinal 后整体处理
type WebSocketHandler struct {
	pipeline    chathandler.Pipeline
	upgrader    websocket.Upgrader
	readTimeout time.Duration
	log         *slog.Logger
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(pipeline chathandler.Pipeline) *WebSocketHandler {
	return &WebSocketHandler{
		pipeline: pipeline,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		readTimeout: defaultReadTimeout,
		log:         observability.Component("handler.realtime"),
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{threadID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	ThreadID  string          `json:"threadId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// AudioMessage 音频分片；AudioData 在 JSON 中为 base64
type AudioMessage struct {
	AudioData  []byte `json:"audioData"`
	Format     string `json:"format"`
	SampleRate int    `json:"sampleRate"`
	IsFinal    bool   `json:"isFinal"`
	ChunkIndex int    `json:"chunkIndex"`
}

// TextMessage 文本消息
type TextMessage struct {
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	ThreadID  string      `json:"threadId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type connectionState struct {
	threadID    string
	audioFormat string
	sampleRate  int
	buffer      bytes.Buffer
}

func newConnectionState(threadID string) *connectionState {
	return &connectionState{
		threadID:    threadID,
		audioFormat: formatWAV,
		sampleRate:  audio.RequiredSampleRate,
	}
}

func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	threadID := strings.TrimSpace(chi.URLParam(r, "threadID"))
	if threadID == "" {
		http.Error(w, "threadID is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	h.log.Info("connection opened", "thread_id", threadID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	})

	go h.pingLoop(ctx, conn)

	state := newConnectionState(threadID)
	h.send(conn, "connected", threadID, map[string]any{"threadId": threadID})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("read error", "thread_id", threadID, "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(h.readTimeout))

		if msg.ThreadID != "" && msg.ThreadID != threadID {
			h.sendError(conn, threadID, "thread mismatch")
			continue
		}
		h.handleMessage(ctx, conn, state, &msg)
		// 一轮对话可能超过读超时，处理完重新计时
		conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, conn *websocket.Conn, state *connectionState, msg *inboundMessage) {
	switch msg.Type {
	case "audio":
		h.handleAudioMessage(ctx, conn, state, msg.Data)
	case "text":
		h.handleTextMessage(ctx, conn, state, msg.Data)
	default:
		h.sendError(conn, state.threadID, "unsupported message type: "+msg.Type)
	}
}

func (h *WebSocketHandler) handleTextMessage(ctx context.Context, conn *websocket.Conn, state *connectionState, raw json.RawMessage) {
	var text TextMessage
	if err := json.Unmarshal(raw, &text); err != nil {
		h.sendError(conn, state.threadID, "invalid text payload")
		return
	}
	h.runTurn(ctx, conn, turn.NewText(state.threadID, text.Text))
}

func (h *WebSocketHandler) handleAudioMessage(ctx context.Context, conn *websocket.Conn, state *connectionState, raw json.RawMessage) {
	var chunk AudioMessage
	if err := json.Unmarshal(raw, &chunk); err != nil {
		h.sendError(conn, state.threadID, "invalid audio payload")
		return
	}

	if chunk.Format != "" {
		state.audioFormat = strings.ToLower(chunk.Format)
	}
	if chunk.SampleRate > 0 {
		state.sampleRate = chunk.SampleRate
	}
	if state.buffer.Len()+len(chunk.AudioData) > maxBufferBytes {
		state.buffer.Reset()
		h.sendError(conn, state.threadID, "audio buffer limit exceeded")
		return
	}
	state.buffer.Write(chunk.AudioData)

	if !chunk.IsFinal {
		return
	}

	samples, err := state.drain()
	if err != nil {
		h.sendError(conn, state.threadID, err.Error())
		return
	}
	h.runTurn(ctx, conn, turn.NewAudio(state.threadID, samples, audio.RequiredSampleRate))
}

// drain 取出缓存的音频并转为 16 kHz 单声道
func (s *connectionState) drain() ([]float32, error) {
	data := bytes.Clone(s.buffer.Bytes())
	s.buffer.Reset()
	if len(data) == 0 {
		return nil, errors.New("audio is empty")
	}

	switch s.audioFormat {
	case formatWAV:
		samples, err := audio.DecodeWAV(bytes.NewReader(data))
		if err != nil {
			return nil, errors.New("invalid wav audio")
		}
		return samples, nil
	case formatPCM16:
		return audio.ResampleLinear(audio.PCM16ToFloat(data), s.sampleRate, audio.RequiredSampleRate), nil
	default:
		return nil, errors.New("unsupported audio format: " + s.audioFormat)
	}
}

func (h *WebSocketHandler) runTurn(ctx context.Context, conn *websocket.Conn, req turn.Request) {
	observer := orchestrator.ObserverFunc(func(_ context.Context, threadID string, from, to turn.State) {
		h.send(conn, "state", threadID, map[string]any{"from": from, "state": to})
	})

	resp, err := h.pipeline.Handle(ctx, req, observer)
	if err != nil {
		h.log.Warn("turn failed", "thread_id", req.ThreadID, "kind", string(req.Kind), "error", err)
		msg := err.Error()
		if apperr.HTTPStatus(err) == http.StatusInternalServerError {
			msg = "internal error"
		}
		h.sendError(conn, req.ThreadID, msg)
		return
	}
	h.send(conn, "result", req.ThreadID, chathandler.NewTurnResponse(resp))
}

func (h *WebSocketHandler) send(conn *websocket.Conn, kind, threadID string, data interface{}) {
	msg := outgoingMessage{
		Type:      kind,
		ThreadID:  threadID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		h.log.Warn("write failed", "thread_id", threadID, "type", kind, "error", err)
	}
}

func (h *WebSocketHandler) sendError(conn *websocket.Conn, threadID, message string) {
	h.send(conn, "error", threadID, map[string]string{"message": message})
}

// pingLoop 定期发送ping消息；WriteControl 可与 WriteJSON 并发调用
func (h *WebSocketHandler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
