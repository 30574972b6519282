package speech

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/assessli/carebot/backend/internal/apperr"
	"github.com/assessli/carebot/backend/pkg/retry"
)

type scriptedRecognizer struct {
	calls   atomic.Int32
	failN   int32
	text    string
	failErr error
}

func (r *scriptedRecognizer) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	n := r.calls.Add(1)
	if n <= r.failN {
		return "", r.failErr
	}
	return r.text, nil
}

func fastPolicy() retry.Policy {
	return retry.Policy{
		Timeout:         time.Second,
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func TestServiceTranscribeRetriesTransientFailures(t *testing.T) {
	rec := &scriptedRecognizer{failN: 2, failErr: errors.New("503"), text: "  I have a headache  "}
	svc := NewService(rec, fastPolicy())

	text, err := svc.Transcribe(context.Background(), []float32{0.1, 0.2}, 16000)
	if err != nil {
		t.Fatalf("Transcribe err: %v", err)
	}
	if text != "I have a headache" {
		t.Fatalf("unexpected text %q", text)
	}
	if rec.calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", rec.calls.Load())
	}
}

func TestServiceTranscribeExhaustedRetries(t *testing.T) {
	rec := &scriptedRecognizer{failN: 10, failErr: errors.New("connection refused")}
	svc := NewService(rec, fastPolicy())

	_, err := svc.Transcribe(context.Background(), []float32{0.1}, 16000)
	if !errors.Is(err, apperr.ErrTranscription) {
		t.Fatalf("expected transcription error, got %v", err)
	}
	if rec.calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", rec.calls.Load())
	}
}

func TestServiceTranscribeEmptyTextIsNotAnError(t *testing.T) {
	svc := NewService(&scriptedRecognizer{text: ""}, fastPolicy())
	text, err := svc.Transcribe(context.Background(), []float32{0}, 16000)
	if err != nil {
		t.Fatalf("Transcribe err: %v", err)
	}
	if text != "" {
		t.Fatalf("expected empty text, got %q", text)
	}
}

func TestServiceTranscribeNotConfigured(t *testing.T) {
	svc := NewService(nil, fastPolicy())
	if svc.Enabled() {
		t.Fatal("expected service to be disabled")
	}
	_, err := svc.Transcribe(context.Background(), []float32{0.1}, 16000)
	if !errors.Is(err, apperr.ErrTranscription) {
		t.Fatalf("expected transcription error, got %v", err)
	}
}

func TestWhisperRecognizerUploadsWAV(t *testing.T) {
	var gotPath, gotModel string
	var gotFileHeader []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotModel = r.FormValue("model")
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		gotFileHeader = make([]byte, 4)
		_, _ = file.Read(gotFileHeader)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "I feel dizzy"})
	}))
	defer server.Close()

	rec := NewWhisperRecognizer(WhisperConfig{APIKey: "test", BaseURL: server.URL + "/v1"})
	text, err := rec.Transcribe(context.Background(), make([]float32, 1600), 16000)
	if err != nil {
		t.Fatalf("Transcribe err: %v", err)
	}
	if text != "I feel dizzy" {
		t.Fatalf("unexpected text %q", text)
	}
	if !strings.HasSuffix(gotPath, "/audio/transcriptions") {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotModel != "whisper-1" {
		t.Fatalf("unexpected model %q", gotModel)
	}
	if string(gotFileHeader) != "RIFF" {
		t.Fatalf("expected a RIFF upload, got %q", gotFileHeader)
	}
}
