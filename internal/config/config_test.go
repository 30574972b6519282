package config

import (
	"os"
	"testing"
	"time"
)

func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	unsetEnv(t, "PORT", "LLM_PROVIDER", "STORAGE_DRIVER", "HISTORY_WINDOW",
		"EXTERNAL_TIMEOUT", "EXTERNAL_MAX_RETRIES", "FALLBACK_REPLY")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected addr %q", cfg.Server.Addr)
	}
	if cfg.AI.Provider != ProviderArk {
		t.Fatalf("unexpected provider %q", cfg.AI.Provider)
	}
	if cfg.Pipeline.HistoryWindow != 10 {
		t.Fatalf("unexpected history window %d", cfg.Pipeline.HistoryWindow)
	}
	if cfg.Pipeline.FallbackReply != "I'm here to listen." {
		t.Fatalf("unexpected fallback %q", cfg.Pipeline.FallbackReply)
	}
	policy := cfg.Pipeline.RetryPolicy()
	if policy.Timeout != 20*time.Second || policy.MaxRetries != 2 {
		t.Fatalf("unexpected retry policy %+v", policy)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("SPEECH_ENABLED", "true")
	t.Setenv("SPEECH_API_KEY", "")
	t.Setenv("ARK_TEMPERATURE", "0.3")
	t.Setenv("EXTERNAL_TIMEOUT", "5s")
	t.Setenv("STORAGE_DRIVER", "sqlite")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Fatalf("unexpected addr %q", cfg.Server.Addr)
	}
	if !cfg.AI.Enabled() {
		t.Fatal("expected openai provider to be enabled")
	}
	if cfg.Speech.APIKey != "sk-test" || !cfg.Speech.Enabled {
		t.Fatalf("expected speech to inherit the OpenAI key, got %+v", cfg.Speech)
	}
	if cfg.AI.Temperature == nil || *cfg.AI.Temperature != 0.3 {
		t.Fatalf("unexpected temperature %v", cfg.AI.Temperature)
	}
	if cfg.Pipeline.RetryPolicy().Timeout != 5*time.Second {
		t.Fatalf("unexpected timeout %v", cfg.Pipeline.RetryPolicy().Timeout)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"provider": {"LLM_PROVIDER": "mystery"},
		"driver":   {"STORAGE_DRIVER": "postgres"},
		"port":     {"PORT": "80 80"},
		"window":   {"HISTORY_WINDOW": "0"},
		"float":    {"ARK_TOP_P": "abc"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range vars {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %v", vars)
			}
		})
	}
}
