package speech

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/assessli/carebot/backend/internal/audio"
)

// WhisperConfig 描述 OpenAI 兼容的转写接口
type WhisperConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
}

// WhisperRecognizer sends voiced audio to an OpenAI-compatible
// /audio/transcriptions endpoint as a 16-bit WAV upload.
type WhisperRecognizer struct {
	client   *openai.Client
	model    string
	language string
}

// NewWhisperRecognizer builds a recognizer; an empty model means whisper-1.
func NewWhisperRecognizer(cfg WhisperConfig) *WhisperRecognizer {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = openai.Whisper1
	}
	return &WhisperRecognizer{
		client:   openai.NewClientWithConfig(config),
		model:    model,
		language: cfg.Language,
	}
}

// Transcribe implements Recognizer.
func (w *WhisperRecognizer) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	payload, err := audio.EncodeWAV(samples, sampleRate)
	if err != nil {
		return "", fmt.Errorf("encode upload: %w", err)
	}

	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: "utterance.wav",
		Reader:   bytes.NewReader(payload),
		Language: w.language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("create transcription: %w", err)
	}
	return resp.Text, nil
}
