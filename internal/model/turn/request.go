package turn

import (
	"strings"

	"github.com/assessli/carebot/backend/internal/apperr"
)

// Kind distinguishes text turns from audio turns.
type Kind string

const (
	KindText  Kind = "text"
	KindAudio Kind = "audio"
)

// Request is one inbound utterance for a thread. Text is set for KindText,
// Samples and SampleRate for KindAudio.
type Request struct {
	Kind       Kind      `json:"kind"`
	ThreadID   string    `json:"threadId"`
	Text       string    `json:"text,omitempty"`
	Samples    []float32 `json:"-"`
	SampleRate int       `json:"sampleRate,omitempty"`
}

// NewText builds a text request.
func NewText(threadID, text string) Request {
	return Request{Kind: KindText, ThreadID: threadID, Text: text}
}

// NewAudio builds an audio request.
func NewAudio(threadID string, samples []float32, sampleRate int) Request {
	return Request{Kind: KindAudio, ThreadID: threadID, Samples: samples, SampleRate: sampleRate}
}

// Validate checks the request shape. Sample-rate constraints are enforced by
// the audio stage itself.
func (r Request) Validate() error {
	if strings.TrimSpace(r.ThreadID) == "" {
		return apperr.InvalidInput("thread id is required")
	}
	switch r.Kind {
	case KindText:
		if strings.TrimSpace(r.Text) == "" {
			return apperr.InvalidInput("text is empty")
		}
	case KindAudio:
		if len(r.Samples) == 0 {
			return apperr.InvalidInput("audio is empty")
		}
		if r.SampleRate <= 0 {
			return apperr.InvalidInput("sample rate must be positive")
		}
	default:
		return apperr.InvalidInput("unknown request kind %q", r.Kind)
	}
	return nil
}
