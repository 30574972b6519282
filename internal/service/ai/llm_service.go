package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/assessli/carebot/backend/internal/model/chat"
	"github.com/assessli/carebot/backend/internal/model/profile"
	"github.com/assessli/carebot/backend/internal/observability"
)

// ReplyRequest carries everything needed to phrase one reply.
type ReplyRequest struct {
	ThreadID string
	Profile  *profile.Profile
	Emotion  string
	// History is the bounded window, oldest first, ending with the user turn.
	History []chat.Message
}

// Service 负责把情绪、档案与历史拼成提示词并调用生成服务
type Service struct {
	generator Generator
	template  prompt.ChatTemplate
}

// NewService creates a reply service on top of generator.
func NewService(generator Generator) *Service {
	if generator == nil {
		generator = Disabled{}
	}
	return &Service{
		generator: generator,
		template: prompt.FromMessages(
			schema.FString,
			schema.SystemMessage("{system}"),
			schema.MessagesPlaceholder("history", false),
		),
	}
}

// BuildMessages renders [system instruction] + history.
func (s *Service) BuildMessages(ctx context.Context, req ReplyRequest) ([]*schema.Message, error) {
	messages, err := s.template.Format(ctx, map[string]any{
		"system":  BuildSystemPrompt(req.Profile, req.Emotion),
		"history": buildHistoryMessages(req.History),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to format prompt: %w", err)
	}
	return messages, nil
}

// Reply generates the assistant's answer.
func (s *Service) Reply(ctx context.Context, req ReplyRequest) (string, error) {
	messages, err := s.BuildMessages(ctx, req)
	if err != nil {
		return "", err
	}

	text, err := s.generator.Complete(ctx, messages)
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	observability.LoggerFromContext(ctx).Info("generated response",
		"component", "ai",
		"thread_id", req.ThreadID,
		"bucket", string(ClassifyBucket(req.Emotion)),
		"history", len(req.History),
		"length", len(text))
	return text, nil
}

func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	history := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return history
}
