package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"

	analysis "github.com/assessli/carebot/backend/internal/analysis/emotion"
	"github.com/assessli/carebot/backend/internal/model/profile"
	"github.com/assessli/carebot/backend/internal/service/ai"
	chatservice "github.com/assessli/carebot/backend/internal/service/chat"
	"github.com/assessli/carebot/backend/internal/service/emotion"
	"github.com/assessli/carebot/backend/internal/service/orchestrator"
)

type cannedGenerator struct{ reply string }

func (g cannedGenerator) Complete(context.Context, []*schema.Message) (string, error) {
	return g.reply, nil
}

func newTestRouter() http.Handler {
	memory := chatservice.NewService(nil)
	profiles := profile.NewMemoryStore(nil)
	detector := emotion.NewService(emotion.LexiconClassifier{}, nil)
	pipeline := orchestrator.NewService(detector, memory, profiles, ai.NewService(cannedGenerator{reply: "I'm sorry to hear that."}), orchestrator.Config{})
	return NewRouter(Dependencies{Pipeline: pipeline, History: memory, Profiles: profiles})
}

func TestHealthz(t *testing.T) {
	resp := httptest.NewRecorder()
	newTestRouter().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestRouterEndToEnd(t *testing.T) {
	r := newTestRouter()

	payload, _ := json.Marshal(map[string]any{"userId": "ada", "name": "Ada", "age": 36})
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/create-profile", bytes.NewReader(payload)))
	if resp.Code != http.StatusCreated {
		t.Fatalf("create-profile: expected 201, got %d", resp.Code)
	}

	payload, _ = json.Marshal(map[string]string{"userId": "ada", "message": "I feel terrible and sick"})
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/text", bytes.NewReader(payload)))
	if resp.Code != http.StatusOK {
		t.Fatalf("text: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var body map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &body)
	if body["answer"] != "I'm sorry to hear that." || body["emotion"] != string(analysis.Negative) {
		t.Fatalf("unexpected body %v", body)
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/threads/ada/messages", nil))
	if !strings.Contains(resp.Body.String(), "I feel terrible and sick") {
		t.Fatalf("thread missing user message: %s", resp.Body.String())
	}
}

func TestRouterCORSPreflight(t *testing.T) {
	resp := httptest.NewRecorder()
	newTestRouter().ServeHTTP(resp, httptest.NewRequest(http.MethodOptions, "/api/text", nil))
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
}
