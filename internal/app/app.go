// Package app assembles the conversation pipeline from configuration. Both
// the HTTP server and the terminal client build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/assessli/carebot/backend/internal/audio"
	"github.com/assessli/carebot/backend/internal/config"
	"github.com/assessli/carebot/backend/internal/model/profile"
	"github.com/assessli/carebot/backend/internal/observability"
	"github.com/assessli/carebot/backend/internal/service/ai"
	"github.com/assessli/carebot/backend/internal/service/chat"
	"github.com/assessli/carebot/backend/internal/service/emotion"
	"github.com/assessli/carebot/backend/internal/service/orchestrator"
	profilesvc "github.com/assessli/carebot/backend/internal/service/profile"
	"github.com/assessli/carebot/backend/internal/service/speech"
	"github.com/assessli/carebot/backend/internal/storage/sqlite"
	"github.com/assessli/carebot/backend/pkg/workerpool"
)

// App holds the wired services.
type App struct {
	Pipeline   *orchestrator.Service
	Memory     *chat.Service
	Profiles   profile.Store
	Conditions *profilesvc.ConditionLogger
	Speech     *speech.Service

	closers []func() error
	log     *slog.Logger
}

// Option overrides a component, mainly for tests.
type Option func(*options)

type options struct {
	generator  ai.Generator
	recognizer speech.Recognizer
}

// WithGenerator replaces the configured language model.
func WithGenerator(g ai.Generator) Option {
	return func(o *options) { o.generator = g }
}

// WithRecognizer replaces the configured speech recognizer.
func WithRecognizer(r speech.Recognizer) Option {
	return func(o *options) { o.recognizer = r }
}

// New builds the pipeline described by cfg.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{log: observability.Component("app")}

	messages, profiles, err := a.openStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	a.Memory = chat.NewService(messages)
	a.Profiles = profiles

	policy := cfg.Pipeline.RetryPolicy()

	generator := o.generator
	if generator == nil {
		generator, err = newGenerator(ctx, cfg.AI)
		if err != nil {
			a.log.Warn("language model unavailable, replies fall back", "provider", string(cfg.AI.Provider), "error", err)
			generator = ai.Disabled{}
		}
	}
	// 未配置模型时不做重试，直接走兜底回复
	withRetry := func(name string) ai.Generator {
		if _, off := generator.(ai.Disabled); off {
			return generator
		}
		return ai.WithRetry(generator, policy, name)
	}

	recognizer := o.recognizer
	if recognizer == nil && cfg.Speech.Enabled {
		recognizer = speech.NewWhisperRecognizer(speech.WhisperConfig{
			APIKey:   cfg.Speech.APIKey,
			BaseURL:  cfg.Speech.BaseURL,
			Model:    cfg.Speech.Model,
			Language: cfg.Speech.Language,
		})
	}
	a.Speech = speech.NewService(recognizer, policy)

	var classifier emotion.Classifier = emotion.LexiconClassifier{}
	if cfg.AI.SentimentLLMEnabled {
		classifier = emotion.NewLLMClassifier(withRetry("sentiment"), emotion.LexiconClassifier{})
	}

	a.Conditions = profilesvc.NewConditionLogger(
		profiles,
		profilesvc.NewExtractor(withRetry("extraction")),
		cfg.Pipeline.ExtractionTimeout,
	)

	pool := workerpool.New(cfg.Pipeline.CPUWorkers)
	detector := emotion.NewService(classifier, a.Speech,
		emotion.WithPool(pool),
		emotion.WithSilenceRemover(audio.NewFrameProcessor(audio.NewEnergyDetector(cfg.Pipeline.VADEnergyThreshold))),
		emotion.WithTranscriptSink(a.Conditions),
	)

	a.Pipeline = orchestrator.NewService(detector, a.Memory, profiles, ai.NewService(withRetry("reply")), orchestrator.Config{
		HistoryWindow: cfg.Pipeline.HistoryWindow,
		FallbackReply: cfg.Pipeline.FallbackReply,
	})

	a.log.Info("pipeline ready",
		"storage", cfg.Storage.Driver,
		"provider", string(cfg.AI.Provider),
		"speech", a.Speech.Enabled(),
		"sentiment_llm", cfg.AI.SentimentLLMEnabled,
		"cpu_workers", pool.Size(),
	)
	return a, nil
}

func (a *App) openStorage(ctx context.Context, cfg config.StorageConfig) (chat.Store, profile.Store, error) {
	seed, err := profile.LoadSeed(cfg.SeedPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load profile seed: %w", err)
	}

	if cfg.Driver != config.DriverSQLite {
		profiles := profile.NewMemoryStore(seed)
		a.log.Info("profiles loaded", "driver", "memory", "count", profiles.Len())
		return chat.NewMemoryStore(), profiles, nil
	}

	db, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	a.closers = append(a.closers, db.Close)

	profiles := sqlite.NewProfileStore(db)
	if err := profiles.Seed(ctx, seed); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("seed profiles: %w", err)
	}
	if n, err := profiles.Count(ctx); err != nil {
		a.log.Warn("count profiles failed", "error", err)
	} else {
		a.log.Info("profiles loaded", "driver", "sqlite", "count", n)
	}
	return sqlite.NewMessageStore(db), profiles, nil
}

func newGenerator(ctx context.Context, cfg config.AIConfig) (ai.Generator, error) {
	if !cfg.Enabled() {
		return nil, errors.New("credentials not configured")
	}
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return ai.NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel), nil
	default:
		chatModel, err := cfg.NewChatModel(ctx)
		if err != nil {
			return nil, err
		}
		return ai.NewChatModelGenerator(ctx, chatModel)
	}
}

// Close waits for background extraction and releases storage.
func (a *App) Close() error {
	a.Conditions.Wait()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
