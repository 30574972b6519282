// Package orchestrator sequences one conversational turn: emotion detection,
// bounded history, reply generation and delivery.
package orchestrator

import (
	"context"
	"log/slog"
	"strings"

	analysis "github.com/assessli/carebot/backend/internal/analysis/emotion"
	"github.com/assessli/carebot/backend/internal/model/chat"
	"github.com/assessli/carebot/backend/internal/model/profile"
	"github.com/assessli/carebot/backend/internal/model/turn"
	"github.com/assessli/carebot/backend/internal/observability"
	"github.com/assessli/carebot/backend/internal/service/ai"
)

// DefaultFallbackReply is surfaced when the generation service fails.
const DefaultFallbackReply = "I'm here to listen."

// DefaultHistoryWindow is how many messages feed each prompt.
const DefaultHistoryWindow = 10

// EmotionDetector runs the emotion stage for a request.
type EmotionDetector interface {
	Detect(ctx context.Context, req turn.Request) (analysis.Result, error)
}

// Memory is the conversation log as seen by the orchestrator.
type Memory interface {
	Lock(ctx context.Context, threadID string) (func(), error)
	Append(ctx context.Context, threadID string, role chat.Role, content string) (chat.Message, error)
	ReadLast(ctx context.Context, threadID string, n int) ([]chat.Message, error)
}

// ProfileReader loads the profile used to personalise replies.
type ProfileReader interface {
	Get(ctx context.Context, userID string) (*profile.Profile, bool, error)
}

// Responder produces the assistant reply.
type Responder interface {
	Reply(ctx context.Context, req ai.ReplyRequest) (string, error)
}

// Config tunes the orchestrator.
type Config struct {
	HistoryWindow int
	FallbackReply string
}

// Service 对话编排：RECEIVED → EMOTION_DETECTED → RESPONSE_GENERATED → DELIVERED
type Service struct {
	detector  EmotionDetector
	memory    Memory
	profiles  ProfileReader
	responder Responder
	cfg       Config
	observers []Observer
	log       *slog.Logger
}

// NewService wires the orchestrator. observers are notified for every request.
func NewService(detector EmotionDetector, memory Memory, profiles ProfileReader, responder Responder, cfg Config, observers ...Observer) *Service {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultHistoryWindow
	}
	if strings.TrimSpace(cfg.FallbackReply) == "" {
		cfg.FallbackReply = DefaultFallbackReply
	}
	return &Service{
		detector:  detector,
		memory:    memory,
		profiles:  profiles,
		responder: responder,
		cfg:       cfg,
		observers: observers,
		log:       observability.Component("orchestrator"),
	}
}

// Handle runs one request through the state machine. Requests on the same
// thread are serialized from emotion detection through the final write.
//
// Generation failures are not returned: the caller gets the fallback reply
// with State FAILED and Degraded set, and the thread keeps only the user turn.
func (s *Service) Handle(ctx context.Context, req turn.Request, observers ...Observer) (*turn.Response, error) {
	log := observability.LoggerFromContext(ctx).With("component", "orchestrator", "thread_id", req.ThreadID)
	m := newMachine(ctx, req.ThreadID, append(append([]Observer(nil), s.observers...), observers...))

	if err := req.Validate(); err != nil {
		m.fail(ctx)
		return nil, err
	}

	unlock, err := s.memory.Lock(ctx, req.ThreadID)
	if err != nil {
		m.fail(ctx)
		return nil, err
	}
	defer unlock()

	result, err := s.detector.Detect(ctx, req)
	if err != nil {
		log.Warn("emotion stage failed", "kind", string(req.Kind), "error", err)
		m.fail(ctx)
		return nil, err
	}
	if err := m.advance(ctx, turn.StateEmotionDetected); err != nil {
		return nil, err
	}

	resp := &turn.Response{
		EmotionLabel: string(result.Label),
		Valence:      result.Valence,
		Arousal:      result.Arousal,
	}
	if req.Kind == turn.KindAudio {
		resp.Transcript = result.Transcript
	}

	userProfile := s.loadProfile(ctx, log, req.ThreadID)

	if _, err := s.memory.Append(ctx, req.ThreadID, chat.RoleUser, result.Transcript); err != nil {
		m.fail(ctx)
		return nil, err
	}
	window, err := s.memory.ReadLast(ctx, req.ThreadID, s.cfg.HistoryWindow)
	if err != nil {
		m.fail(ctx)
		return nil, err
	}

	reply, err := s.responder.Reply(ctx, ai.ReplyRequest{
		ThreadID: req.ThreadID,
		Profile:  userProfile,
		Emotion:  string(result.Label),
		History:  window,
	})
	if err != nil {
		log.Warn("generation failed, use fallback reply", "error", err)
		m.fail(ctx)
		resp.Reply = s.cfg.FallbackReply
		resp.Degraded = true
		resp.State = turn.StateFailed
		return resp, nil
	}

	if _, err := s.memory.Append(ctx, req.ThreadID, chat.RoleAssistant, reply); err != nil {
		m.fail(ctx)
		return nil, err
	}
	if err := m.advance(ctx, turn.StateResponseGenerated); err != nil {
		return nil, err
	}
	if err := m.advance(ctx, turn.StateDelivered); err != nil {
		return nil, err
	}

	resp.Reply = reply
	resp.State = turn.StateDelivered
	log.Info("turn delivered", "emotion", resp.EmotionLabel, "window", len(window))
	return resp, nil
}

// loadProfile 按 threadId 读取档案；读取失败时不带档案继续
func (s *Service) loadProfile(ctx context.Context, log *slog.Logger, userID string) *profile.Profile {
	if s.profiles == nil {
		return nil
	}
	p, ok, err := s.profiles.Get(ctx, userID)
	if err != nil {
		log.Warn("profile lookup failed", "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	return p
}
