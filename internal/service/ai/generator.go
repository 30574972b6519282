package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/assessli/carebot/backend/internal/apperr"
	"github.com/assessli/carebot/backend/internal/observability"
	"github.com/assessli/carebot/backend/pkg/retry"
)

// Generator completes an ordered message list into reply text.
type Generator interface {
	Complete(ctx context.Context, messages []*schema.Message) (string, error)
}

// ErrEmptyCompletion is returned when a backend answers with no content.
var ErrEmptyCompletion = errors.New("empty completion")

// ChatModelGenerator runs an eino chat model behind a compiled chain.
type ChatModelGenerator struct {
	chain compose.Runnable[[]*schema.Message, *schema.Message]
}

// NewChatModelGenerator compiles a single-node chain around chatModel.
func NewChatModelGenerator(ctx context.Context, chatModel model.BaseChatModel) (*ChatModelGenerator, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}

	chain := compose.NewChain[[]*schema.Message, *schema.Message]()
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}
	return &ChatModelGenerator{chain: runnable}, nil
}

// Complete implements Generator.
func (g *ChatModelGenerator) Complete(ctx context.Context, messages []*schema.Message) (string, error) {
	msg, err := g.chain.Invoke(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", ErrEmptyCompletion
	}
	return msg.Content, nil
}

// RetryingGenerator applies a timeout and bounded retries to another Generator.
// Escalated failures are reported as apperr.ErrExternalService.
type RetryingGenerator struct {
	next   Generator
	policy retry.Policy
	name   string
	log    *slog.Logger
}

// WithRetry wraps next. name tags log lines ("reply", "sentiment", "extraction").
func WithRetry(next Generator, policy retry.Policy, name string) *RetryingGenerator {
	return &RetryingGenerator{
		next:   next,
		policy: policy,
		name:   name,
		log:    observability.Component("ai").With("call", name),
	}
}

// Complete implements Generator.
func (g *RetryingGenerator) Complete(ctx context.Context, messages []*schema.Message) (string, error) {
	var out string
	err := retry.Do(ctx, g.policy, func(ctx context.Context) error {
		text, err := g.next.Complete(ctx, messages)
		if err != nil {
			return err
		}
		out = text
		return nil
	}, func(attempt int, err error, wait time.Duration) {
		g.log.Warn("generation attempt failed, retrying",
			"attempt", attempt, "wait", wait.String(), "error", err)
	})
	if err != nil {
		return "", apperr.ExternalService("%s: %v", g.name, err)
	}
	return out, nil
}

// Disabled is a Generator for deployments without model credentials. Every
// call fails with apperr.ErrExternalService.
type Disabled struct{}

// Complete implements Generator.
func (Disabled) Complete(context.Context, []*schema.Message) (string, error) {
	return "", apperr.ExternalService("generation service is not configured")
}
