package profile

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/assessli/carebot/backend/internal/apperr"
	"github.com/assessli/carebot/backend/internal/service/ai"
)

// Extractor 调用大模型从用户描述中提取症状/健康状况
type Extractor struct {
	generator ai.Generator
	template  prompt.ChatTemplate
}

// NewExtractor builds an extractor over generator.
func NewExtractor(generator ai.Generator) *Extractor {
	return &Extractor{
		generator: generator,
		template: prompt.FromMessages(
			schema.FString,
			schema.SystemMessage(extractionSystemPrompt),
			schema.UserMessage(extractionUserPrompt),
		),
	}
}

// Extract returns the symptom phrases mentioned in text. Transport failures
// are returned; malformed model output yields an empty list and a nil error.
func (e *Extractor) Extract(ctx context.Context, text string) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []string{}, nil
	}

	messages, err := e.template.Format(ctx, map[string]any{"text": text})
	if err != nil {
		return nil, err
	}

	out, err := e.generator.Complete(ctx, messages)
	if err != nil {
		return nil, err
	}

	conditions, err := ParseConditions(out)
	if err != nil {
		return []string{}, nil
	}
	return conditions, nil
}

// ParseConditions accepts only a JSON array of strings, optionally wrapped in
// surrounding prose or a code fence. Entries are trimmed, blanks dropped and
// case-insensitive duplicates removed.
func ParseConditions(content string) ([]string, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "[")
	end := strings.LastIndex(trimmed, "]")
	if start == -1 || end == -1 || end <= start {
		return nil, apperr.Parse("missing json array")
	}

	var items []string
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &items); err != nil {
		return nil, apperr.Parse("%v", err)
	}

	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		key := strings.ToLower(item)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out, nil
}

const extractionSystemPrompt = "You are a highly trained medical assistant. From the patient-written text, extract every medical symptom or health condition mentioned, whether explicitly stated or implied. This includes physical symptoms, psychological symptoms, behavioral signs, neurological issues, or any detail relevant to medical diagnosis or history. Capture symptoms described in layman terms, such as sick, pain, sore throat, body aches, fever, cough, cold or headache. Do not include general emotions or vague feelings unless they clearly indicate a medical concern.\nReturn only a JSON array of strings, one distinct symptom or condition per entry, for example [\"headache\", \"fever\"]. Return [] when nothing is mentioned. No explanations, no summaries."

const extractionUserPrompt = "Text: {text}"
