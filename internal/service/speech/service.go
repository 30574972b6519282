package speech

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/assessli/carebot/backend/internal/apperr"
	"github.com/assessli/carebot/backend/internal/observability"
	"github.com/assessli/carebot/backend/pkg/retry"
)

// Recognizer is a batch speech-recognition backend. It receives a bounded
// voiced buffer and returns its text; unintelligible audio yields "".
type Recognizer interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error)
}

// ErrNotConfigured is returned when audio arrives but no recognizer is set up.
var ErrNotConfigured = errors.New("speech recognition is not configured")

// Service 语音识别适配层：超时、重试与错误归类
type Service struct {
	recognizer Recognizer
	policy     retry.Policy
	log        *slog.Logger
}

// NewService wraps recognizer with the given retry policy. recognizer may be
// nil, in which case every call fails with a transcription error.
func NewService(recognizer Recognizer, policy retry.Policy) *Service {
	return &Service{
		recognizer: recognizer,
		policy:     policy,
		log:        observability.Component("speech"),
	}
}

// Enabled reports whether a recognizer is configured.
func (s *Service) Enabled() bool {
	return s != nil && s.recognizer != nil
}

// Transcribe converts samples to text. Backend failures that survive the
// retry policy surface as apperr.ErrTranscription.
func (s *Service) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	if !s.Enabled() {
		return "", apperr.Transcription("%v", ErrNotConfigured)
	}
	if len(samples) == 0 {
		return "", apperr.InvalidInput("no audio to transcribe")
	}

	var text string
	start := time.Now()
	err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		out, err := s.recognizer.Transcribe(ctx, samples, sampleRate)
		if err != nil {
			if errors.Is(err, apperr.ErrInvalidInput) {
				return retry.Permanent(err)
			}
			return err
		}
		text = out
		return nil
	}, func(attempt int, err error, wait time.Duration) {
		s.log.Warn("transcription attempt failed, retrying",
			"attempt", attempt, "wait", wait.String(), "error", err)
	})
	if err != nil {
		if errors.Is(err, apperr.ErrInvalidInput) {
			return "", err
		}
		return "", apperr.Transcription("%v", err)
	}

	text = strings.TrimSpace(text)
	observability.LoggerFromContext(ctx).Debug("transcription complete",
		"component", "speech",
		"samples", len(samples),
		"chars", len(text),
		"elapsed_ms", time.Since(start).Milliseconds())
	return text, nil
}
