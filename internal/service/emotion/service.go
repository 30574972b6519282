package emotion

import (
	"context"
	"log/slog"
	"strings"

	analysis "github.com/assessli/carebot/backend/internal/analysis/emotion"
	"github.com/assessli/carebot/backend/internal/apperr"
	"github.com/assessli/carebot/backend/internal/audio"
	"github.com/assessli/carebot/backend/internal/model/turn"
	"github.com/assessli/carebot/backend/internal/observability"
	"github.com/assessli/carebot/backend/pkg/workerpool"
)

var errNoTranscriber = apperr.Transcription("speech recognition is not configured")

// SilenceRemover strips unvoiced frames from a waveform.
type SilenceRemover interface {
	RemoveSilence(samples []float32, sampleRate int) ([]float32, error)
}

// Transcriber converts voiced audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error)
}

// TranscriptSink receives every resolved transcript. Submit must not block
// and must not depend on ctx staying alive.
type TranscriptSink interface {
	Submit(ctx context.Context, threadID, transcript string)
}

// Service 情绪识别聚合：静音裁剪、转写、分类与能量估计。
type Service struct {
	classifier  Classifier
	frames      SilenceRemover
	transcriber Transcriber
	pool        *workerpool.Pool
	sink        TranscriptSink
	log         *slog.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithPool runs silence removal and classification on pool.
func WithPool(pool *workerpool.Pool) Option {
	return func(s *Service) { s.pool = pool }
}

// WithTranscriptSink installs the side channel fed with each transcript.
func WithTranscriptSink(sink TranscriptSink) Option {
	return func(s *Service) { s.sink = sink }
}

// WithSilenceRemover overrides the default energy-based frame processor.
func WithSilenceRemover(frames SilenceRemover) Option {
	return func(s *Service) { s.frames = frames }
}

// NewService wires the aggregator. classifier defaults to the lexicon;
// transcriber may be nil when only text input is expected.
func NewService(classifier Classifier, transcriber Transcriber, opts ...Option) *Service {
	if classifier == nil {
		classifier = LexiconClassifier{}
	}
	s := &Service{
		classifier:  classifier,
		transcriber: transcriber,
		frames:      audio.NewFrameProcessor(nil),
		log:         observability.Component("emotion"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Detect produces the emotion result for one request. Audio failures in the
// transcription step are returned as-is so the caller can fail the turn.
func (s *Service) Detect(ctx context.Context, req turn.Request) (analysis.Result, error) {
	if err := req.Validate(); err != nil {
		return analysis.Result{}, err
	}

	var (
		transcript string
		arousal    *float64
	)

	switch req.Kind {
	case turn.KindAudio:
		voiced, err := workerpool.Run(ctx, s.pool, func() ([]float32, error) {
			return s.frames.RemoveSilence(req.Samples, req.SampleRate)
		})
		if err != nil {
			return analysis.Result{}, err
		}

		transcript, err = s.transcribe(ctx, voiced, req.SampleRate)
		if err != nil {
			return analysis.Result{}, err
		}

		energy := audio.MeanAbsAmplitude(voiced)
		arousal = &energy
	default:
		transcript = strings.TrimSpace(req.Text)
	}

	probs, err := s.classify(ctx, transcript)
	if err != nil {
		return analysis.Result{}, err
	}

	result := analysis.Aggregate(probs, transcript, arousal)
	s.log.Debug("emotion detected",
		"thread_id", req.ThreadID,
		"kind", string(req.Kind),
		"label", string(result.Label),
		"valence", result.Valence)

	if s.sink != nil && transcript != "" {
		s.sink.Submit(ctx, req.ThreadID, transcript)
	}
	return result, nil
}

func (s *Service) transcribe(ctx context.Context, voiced []float32, sampleRate int) (string, error) {
	if s.transcriber == nil {
		return "", errNoTranscriber
	}
	return s.transcriber.Transcribe(ctx, voiced, sampleRate)
}

// classify 仅把本地计算的分类器放进 CPU 池，远程调用不占槽位。
func (s *Service) classify(ctx context.Context, text string) (analysis.Probabilities, error) {
	if c, ok := s.classifier.(CPUBound); ok && c.CPUBound() {
		return workerpool.Run(ctx, s.pool, func() (analysis.Probabilities, error) {
			return s.classifier.Classify(ctx, text)
		})
	}
	return s.classifier.Classify(ctx, text)
}
