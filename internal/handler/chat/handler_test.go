package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/assessli/carebot/backend/internal/apperr"
	"github.com/assessli/carebot/backend/internal/audio"
	chatmodel "github.com/assessli/carebot/backend/internal/model/chat"
	"github.com/assessli/carebot/backend/internal/model/turn"
	chatservice "github.com/assessli/carebot/backend/internal/service/chat"
	"github.com/assessli/carebot/backend/internal/service/orchestrator"
)

type fakePipeline struct {
	mu   sync.Mutex
	reqs []turn.Request
	resp *turn.Response
	err  error
}

func (p *fakePipeline) Handle(_ context.Context, req turn.Request, _ ...orchestrator.Observer) (*turn.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reqs = append(p.reqs, req)
	if p.err != nil {
		return nil, p.err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return p.resp, nil
}

func setupRouter(p *fakePipeline) (*chi.Mux, *chatservice.Service) {
	history := chatservice.NewService(nil)
	handler := New(p, history)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, history
}

func postJSON(r http.Handler, path string, body any) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestTextTurn(t *testing.T) {
	p := &fakePipeline{resp: &turn.Response{Reply: "take care", EmotionLabel: "negative", Valence: -0.6, State: turn.StateDelivered}}
	r, _ := setupRouter(p)

	resp := postJSON(r, "/text", map[string]string{"userId": "u1", "message": "my head hurts"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body TurnResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Answer != "take care" || body.Emotion != "negative" || body.Valence != -0.6 || body.State != "DELIVERED" {
		t.Fatalf("unexpected body %+v", body)
	}
	if got := p.reqs[0]; got.ThreadID != "u1" || got.Text != "my head hurts" || got.Kind != turn.KindText {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestTextTurnDefaultsUserAndAcceptsLegacyMessages(t *testing.T) {
	p := &fakePipeline{resp: &turn.Response{Reply: "ok", State: turn.StateDelivered}}
	r, _ := setupRouter(p)

	resp := postJSON(r, "/text", map[string]any{
		"messages": []map[string]string{
			{"role": "user", "content": "earlier"},
			{"role": "user", "content": "latest"},
		},
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if got := p.reqs[0]; got.ThreadID != DefaultUserID || got.Text != "latest" {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestTextTurnAcceptsSnakeCaseUserID(t *testing.T) {
	p := &fakePipeline{resp: &turn.Response{Reply: "ok", State: turn.StateDelivered}}
	r, _ := setupRouter(p)

	resp := postJSON(r, "/text", map[string]any{
		"user_id":  "alice",
		"messages": []map[string]string{{"role": "user", "content": "I have a headache"}},
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if got := p.reqs[0]; got.ThreadID != "alice" || got.Text != "I have a headache" {
		t.Fatalf("unexpected request %+v", got)
	}

	resp = postJSON(r, "/text", map[string]any{"userId": "bob", "user_id": "alice", "message": "hi"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if got := p.reqs[1]; got.ThreadID != "bob" {
		t.Fatalf("userId should win over user_id, got %q", got.ThreadID)
	}
}

func TestTextTurnEmptyMessage(t *testing.T) {
	r, _ := setupRouter(&fakePipeline{})
	if resp := postJSON(r, "/text", map[string]string{"message": "  "}); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestTextTurnInvalidBody(t *testing.T) {
	r, _ := setupRouter(&fakePipeline{})
	req := httptest.NewRequest(http.MethodPost, "/text", bytes.NewReader([]byte("{")))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestTextTurnDegradedStillOK(t *testing.T) {
	p := &fakePipeline{resp: &turn.Response{Reply: "I'm here to listen.", State: turn.StateFailed, Degraded: true}}
	r, _ := setupRouter(p)

	resp := postJSON(r, "/text", map[string]string{"message": "hello"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body TurnResponse
	_ = json.Unmarshal(resp.Body.Bytes(), &body)
	if !body.Degraded || body.State != "FAILED" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func voiceRequest(t *testing.T, userID string, wav []byte) *http.Request {
	t.Helper()
	return voiceRequestWithField(t, "userId", userID, wav)
}

func voiceRequestWithField(t *testing.T, field, userID string, wav []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if userID != "" {
		_ = mw.WriteField(field, userID)
	}
	if wav != nil {
		fw, err := mw.CreateFormFile("file", "clip.wav")
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		_, _ = fw.Write(wav)
	}
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/voice", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestVoiceTurn(t *testing.T) {
	arousal := 0.25
	p := &fakePipeline{resp: &turn.Response{Reply: "rest", Transcript: "I feel dizzy", EmotionLabel: "negative", Arousal: &arousal, State: turn.StateDelivered}}
	r, _ := setupRouter(p)

	samples := make([]float32, 8000)
	for i := range samples {
		samples[i] = 0.3
	}
	wav, err := audio.EncodeWAV(samples, 8000)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, voiceRequest(t, "u2", wav))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var body TurnResponse
	_ = json.Unmarshal(resp.Body.Bytes(), &body)
	if body.Transcript != "I feel dizzy" || body.Arousal == nil || *body.Arousal != 0.25 {
		t.Fatalf("unexpected body %+v", body)
	}

	got := p.reqs[0]
	if got.Kind != turn.KindAudio || got.ThreadID != "u2" || got.SampleRate != audio.RequiredSampleRate {
		t.Fatalf("unexpected request %+v", got)
	}
	if len(got.Samples) != audio.RequiredSampleRate {
		t.Fatalf("expected upload resampled to 16 kHz, got %d samples", len(got.Samples))
	}
}

func TestVoiceTurnAcceptsSnakeCaseUserID(t *testing.T) {
	p := &fakePipeline{resp: &turn.Response{Reply: "rest", State: turn.StateDelivered}}
	r, _ := setupRouter(p)

	wav, err := audio.EncodeWAV(make([]float32, 1600), audio.RequiredSampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, voiceRequestWithField(t, "user_id", "alice", wav))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if got := p.reqs[0]; got.ThreadID != "alice" {
		t.Fatalf("expected thread alice, got %q", got.ThreadID)
	}
}

func TestVoiceTurnRejectsBadUploads(t *testing.T) {
	r, _ := setupRouter(&fakePipeline{})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, voiceRequest(t, "u2", nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("missing file: expected 400, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, voiceRequest(t, "u2", []byte("not a wav")))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("garbage file: expected 400, got %d", resp.Code)
	}
}

func TestVoiceTurnTranscriptionFailure(t *testing.T) {
	r, _ := setupRouter(&fakePipeline{err: apperr.Transcription("recognizer unreachable")})
	wav, _ := audio.EncodeWAV(make([]float32, 1600), audio.RequiredSampleRate)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, voiceRequest(t, "u2", wav))
	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.Code)
	}
}

func TestListMessages(t *testing.T) {
	r, history := setupRouter(&fakePipeline{})
	ctx := context.Background()
	for _, content := range []string{"a", "b", "c"} {
		if _, err := history.Append(ctx, "t1", chatmodel.RoleUser, content); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/threads/t1/messages?limit=2", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var thread chatmodel.Thread
	_ = json.Unmarshal(resp.Body.Bytes(), &thread)
	if thread.ID != "t1" || len(thread.Messages) != 2 || thread.Messages[0].Content != "b" {
		t.Fatalf("unexpected thread %+v", thread)
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/threads/t1/messages?limit=abc", nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
