package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/assessli/carebot/backend/pkg/retry"
)

// Config 聚合整个服务的配置项。
type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Server   ServerConfig
	AI       AIConfig
	Speech   SpeechConfig
	Storage  StorageConfig
	Pipeline PipelineConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	addr, err := resolveAddr(cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr

	if err := cfg.AI.loadOptionalKnobs(); err != nil {
		return nil, err
	}
	cfg.Speech.applyFallbacks(cfg.AI)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.AI.Provider == "" {
		c.AI.Provider = ProviderArk
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverMemory
	}
	switch c.AI.Provider {
	case ProviderArk, ProviderOpenAI:
	default:
		return fmt.Errorf("invalid LLM_PROVIDER value: %q", c.AI.Provider)
	}
	switch c.Storage.Driver {
	case DriverMemory, DriverSQLite:
	default:
		return fmt.Errorf("invalid STORAGE_DRIVER value: %q", c.Storage.Driver)
	}
	if c.Storage.Driver == DriverSQLite && strings.TrimSpace(c.Storage.SQLitePath) == "" {
		return fmt.Errorf("STORAGE_SQLITE_PATH is required for the sqlite driver")
	}
	if c.Pipeline.HistoryWindow < 1 {
		return fmt.Errorf("HISTORY_WINDOW must be at least 1, got %d", c.Pipeline.HistoryWindow)
	}
	if c.Pipeline.ExternalMaxRetries < 0 {
		return fmt.Errorf("EXTERNAL_MAX_RETRIES must not be negative")
	}
	return nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Port string `env:"PORT" envDefault:"8080"`
	Addr string `env:"-"`
}

// resolveAddr 解析服务器监听地址。
func resolveAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
}

// Provider names the generation backend.
type Provider string

const (
	ProviderArk    Provider = "ark"
	ProviderOpenAI Provider = "openai"
)

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider Provider `env:"LLM_PROVIDER" envDefault:"ark"`

	APIKey    string `env:"ARK_API_KEY"`
	AccessKey string `env:"ARK_ACCESS_KEY"`
	SecretKey string `env:"ARK_SECRET_KEY"`
	Model     string `env:"Model"`
	BaseURL   string `env:"ARK_BASE_URL" envDefault:"https://ark.cn-beijing.volces.com/api/v3"`
	Region    string `env:"ARK_REGION" envDefault:"cn-beijing"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`
	OpenAIModel   string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`

	// 可选参数：未设置与设置为 0 含义不同
	Temperature *float64 `env:"-"`
	TopP        *float64 `env:"-"`
	MaxTokens   *int     `env:"-"`

	SentimentLLMEnabled bool `env:"AI_SENTIMENT_LLM_ENABLED" envDefault:"false"`
}

func (c *AIConfig) loadOptionalKnobs() error {
	var err error
	if c.Temperature, err = parseOptionalFloatEnv("ARK_TEMPERATURE"); err != nil {
		return err
	}
	if c.TopP, err = parseOptionalFloatEnv("ARK_TOP_P"); err != nil {
		return err
	}
	if c.MaxTokens, err = parseOptionalIntEnv("ARK_MAX_TOKENS"); err != nil {
		return err
	}
	return nil
}

// Enabled 表示当前 provider 是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	switch c.Provider {
	case ProviderOpenAI:
		return c.OpenAIAPIKey != "" && c.OpenAIModel != ""
	default:
		return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
	}
}

// NewChatModel 使用配置创建一个 Ark 模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if c.Model == "" || (c.APIKey == "" && (c.AccessKey == "" || c.SecretKey == "")) {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

// SpeechConfig 描述语音识别配置（OpenAI 兼容的转写接口）
type SpeechConfig struct {
	Enabled  bool   `env:"SPEECH_ENABLED" envDefault:"false"`
	APIKey   string `env:"SPEECH_API_KEY"`
	BaseURL  string `env:"SPEECH_BASE_URL"`
	Model    string `env:"SPEECH_MODEL" envDefault:"whisper-1"`
	Language string `env:"SPEECH_LANGUAGE" envDefault:"en"`
}

// 如果没有专门的语音配置，尝试使用 OpenAI 配置
func (c *SpeechConfig) applyFallbacks(ai AIConfig) {
	if c.APIKey == "" {
		c.APIKey = ai.OpenAIAPIKey
	}
	if c.BaseURL == "" {
		c.BaseURL = ai.OpenAIBaseURL
	}
	if c.APIKey == "" {
		c.Enabled = false
	}
}

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// StorageConfig selects the backing store for memory and profiles.
type StorageConfig struct {
	Driver     string `env:"STORAGE_DRIVER" envDefault:"memory"`
	SQLitePath string `env:"STORAGE_SQLITE_PATH" envDefault:"data/carebot.db"`
	SeedPath   string `env:"PROFILE_SEED_PATH"`
}

// PipelineConfig 控制对话编排的窗口、超时、重试与并发
type PipelineConfig struct {
	HistoryWindow      int           `env:"HISTORY_WINDOW" envDefault:"10"`
	ExternalTimeout    time.Duration `env:"EXTERNAL_TIMEOUT" envDefault:"20s"`
	ExternalMaxRetries int           `env:"EXTERNAL_MAX_RETRIES" envDefault:"2"`
	CPUWorkers         int           `env:"CPU_WORKERS" envDefault:"0"`
	ExtractionTimeout  time.Duration `env:"EXTRACTION_TIMEOUT" envDefault:"30s"`
	FallbackReply      string        `env:"FALLBACK_REPLY" envDefault:"I'm here to listen."`
	VADEnergyThreshold float64       `env:"VAD_ENERGY_THRESHOLD" envDefault:"500"`
}

// RetryPolicy converts the pipeline knobs into a retry policy.
func (c PipelineConfig) RetryPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	if c.ExternalTimeout > 0 {
		p.Timeout = c.ExternalTimeout
	}
	p.MaxRetries = c.ExternalMaxRetries
	return p
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
