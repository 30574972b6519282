package main

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/assessli/carebot/backend/internal/app"
	"github.com/assessli/carebot/backend/internal/config"
)

type echoGenerator struct{}

func (echoGenerator) Complete(_ context.Context, messages []*schema.Message) (string, error) {
	return "noted: " + messages[len(messages)-1].Content, nil
}

func TestParseCommand(t *testing.T) {
	cases := []struct {
		line    string
		verb    string
		arg     string
		wantErr bool
	}{
		{line: "text I feel sick", verb: "text", arg: "I feel sick"},
		{line: "  WAV  clip.wav ", verb: "wav", arg: "clip.wav"},
		{line: "end", verb: "end"},
		{line: "profile", verb: "profile"},
		{line: "text", wantErr: true},
		{line: "mic", wantErr: true},
	}
	for _, tc := range cases {
		cmd, err := parseCommand(tc.line)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tc.line)
			}
			continue
		}
		if err != nil || cmd.verb != tc.verb || cmd.arg != tc.arg {
			t.Fatalf("%q: got %+v err=%v", tc.line, cmd, err)
		}
	}
}

func TestSessionCreatesProfileAndChats(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{
		Storage:  config.StorageConfig{Driver: config.DriverMemory},
		Pipeline: config.PipelineConfig{HistoryWindow: 10, ExternalTimeout: time.Second, ExtractionTimeout: time.Second},
	}
	a, err := app.New(ctx, cfg, app.WithGenerator(echoGenerator{}))
	if err != nil {
		t.Fatalf("app.New err: %v", err)
	}
	defer a.Close()

	var out bytes.Buffer
	s := &session{
		app: a,
		in:  bufio.NewReader(strings.NewReader("Ada\n36\ntext hello there\nbogus\nEND\n")),
		out: &out,
	}
	if err := s.ensureProfile(ctx, "u1", "", -1); err != nil {
		t.Fatalf("ensureProfile err: %v", err)
	}
	if err := s.loop(ctx); err != nil {
		t.Fatalf("loop err: %v", err)
	}

	p, ok, _ := a.Profiles.Get(ctx, "u1")
	if !ok || p.Name != "Ada" || p.Age != 36 {
		t.Fatalf("unexpected profile %+v", p)
	}
	text := out.String()
	for _, want := range []string{"Profile created for Ada.", "Bot: noted: hello there", "unknown command", "Goodbye."} {
		if !strings.Contains(text, want) {
			t.Fatalf("output missing %q:\n%s", want, text)
		}
	}
}
