package emotion

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	analysis "github.com/assessli/carebot/backend/internal/analysis/emotion"
	"github.com/assessli/carebot/backend/internal/apperr"
	"github.com/assessli/carebot/backend/internal/observability"
	"github.com/assessli/carebot/backend/internal/service/ai"
)

// Classifier turns text into a normalized negative/neutral/positive distribution.
type Classifier interface {
	Classify(ctx context.Context, text string) (analysis.Probabilities, error)
}

// CPUBound is implemented by classifiers that never leave the process.
// Only those are scheduled on the worker pool.
type CPUBound interface {
	CPUBound() bool
}

// LexiconClassifier 基于关键词的确定性分类器，无需外部模型。
type LexiconClassifier struct{}

// CPUBound implements CPUBound.
func (LexiconClassifier) CPUBound() bool { return true }

// Classify implements Classifier.
func (LexiconClassifier) Classify(_ context.Context, text string) (analysis.Probabilities, error) {
	return analysis.ClassifyLexicon(text), nil
}

// LLMClassifier asks the generation service for a probability triple and falls
// back to another classifier whenever the call or its output is unusable.
type LLMClassifier struct {
	generator ai.Generator
	template  prompt.ChatTemplate
	fallback  Classifier
	log       *slog.Logger
}

// NewLLMClassifier builds an LLM-backed classifier. fallback defaults to the lexicon.
func NewLLMClassifier(generator ai.Generator, fallback Classifier) *LLMClassifier {
	if fallback == nil {
		fallback = LexiconClassifier{}
	}
	return &LLMClassifier{
		generator: generator,
		template: prompt.FromMessages(
			schema.FString,
			schema.SystemMessage(sentimentSystemPrompt),
			schema.UserMessage(sentimentUserPrompt),
		),
		fallback: fallback,
		log:      observability.Component("emotion"),
	}
}

// Classify implements Classifier.
func (c *LLMClassifier) Classify(ctx context.Context, text string) (analysis.Probabilities, error) {
	text = strings.TrimSpace(text)
	if text == "" || c.generator == nil {
		return c.fallback.Classify(ctx, text)
	}

	messages, err := c.template.Format(ctx, map[string]any{"text": text})
	if err != nil {
		c.log.Warn("sentiment prompt format failed, use fallback", "error", err)
		return c.fallback.Classify(ctx, text)
	}

	out, err := c.generator.Complete(ctx, messages)
	if err != nil {
		c.log.Warn("sentiment classifier invoke failed, use fallback", "error", err)
		return c.fallback.Classify(ctx, text)
	}

	probs, err := parseClassifierOutput(out)
	if err != nil {
		c.log.Warn("sentiment classifier output parse failed, use fallback", "error", err)
		return c.fallback.Classify(ctx, text)
	}
	return probs, nil
}

type classifierPayload struct {
	Negative *float64 `json:"negative"`
	Neutral  *float64 `json:"neutral"`
	Positive *float64 `json:"positive"`
}

// parseClassifierOutput 解析大模型返回的 JSON。
func parseClassifierOutput(content string) (analysis.Probabilities, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return analysis.Probabilities{}, apperr.Parse("missing json object")
	}

	var payload classifierPayload
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &payload); err != nil {
		return analysis.Probabilities{}, apperr.Parse("%v", err)
	}
	if payload.Negative == nil || payload.Neutral == nil || payload.Positive == nil {
		return analysis.Probabilities{}, apperr.Parse("missing probability field")
	}

	raw := analysis.Probabilities{*payload.Negative, *payload.Neutral, *payload.Positive}
	var sum float64
	for i, v := range raw {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return analysis.Probabilities{}, apperr.Parse("invalid %s probability %v", analysis.Labels[i], v)
		}
		sum += v
	}
	if sum == 0 {
		return analysis.Probabilities{}, apperr.Parse("all probabilities are zero")
	}

	probs := raw.Normalize()
	if err := probs.Validate(); err != nil {
		return analysis.Probabilities{}, fmt.Errorf("%w: %v", apperr.ErrParse, err)
	}
	return probs, nil
}

const sentimentSystemPrompt = "You are a sentiment classifier for a healthcare assistant. Read the user's message and estimate how likely it is to be negative, neutral or positive in emotional tone.\nOutput requirements: return only a JSON object with the numeric fields negative, neutral and positive. Each value lies between 0 and 1 and the three values sum to 1. Do not output any other text."

const sentimentUserPrompt = "User message:\n{text}"
