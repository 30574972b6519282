package profile

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/assessli/carebot/backend/internal/apperr"
	profilemodel "github.com/assessli/carebot/backend/internal/model/profile"
)

type scriptedGenerator struct {
	out   string
	err   error
	calls atomic.Int32
	delay time.Duration
	last  []*schema.Message
}

func (g *scriptedGenerator) Complete(ctx context.Context, messages []*schema.Message) (string, error) {
	g.calls.Add(1)
	g.last = messages
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return g.out, g.err
}

func TestParseConditions(t *testing.T) {
	cases := []struct {
		in      string
		want    []string
		wantErr bool
	}{
		{in: `["headache", "fever"]`, want: []string{"headache", "fever"}},
		{in: "```json\n[\"sore throat\", \" cough \", \"\", \"Cough\"]\n```", want: []string{"sore throat", "cough"}},
		{in: `[]`, want: []string{}},
		{in: `["headache", 3]`, wantErr: true},
		{in: `headache, fever`, wantErr: true},
		{in: `__import__('os').system('rm -rf /')`, wantErr: true},
	}

	for _, tc := range cases {
		got, err := ParseConditions(tc.in)
		if tc.wantErr {
			if !errors.Is(err, apperr.ErrParse) {
				t.Fatalf("ParseConditions(%q): expected parse error, got %v", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseConditions(%q) err: %v", tc.in, err)
		}
		if strings.Join(got, "|") != strings.Join(tc.want, "|") {
			t.Fatalf("ParseConditions(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestExtractorMalformedOutputIsEmpty(t *testing.T) {
	ex := NewExtractor(&scriptedGenerator{out: "The patient has a headache."})
	got, err := ex.Extract(context.Background(), "my head hurts")
	if err != nil {
		t.Fatalf("Extract err: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no conditions, got %v", got)
	}
}

func TestExtractorPromptCarriesText(t *testing.T) {
	gen := &scriptedGenerator{out: `["fever"]`}
	ex := NewExtractor(gen)
	if _, err := ex.Extract(context.Background(), "I have a fever {since monday}"); err != nil {
		t.Fatalf("Extract err: %v", err)
	}
	if len(gen.last) != 2 || !strings.Contains(gen.last[1].Content, "I have a fever {since monday}") {
		t.Fatalf("unexpected prompt %+v", gen.last)
	}
}

func TestConditionLoggerAppendsExtractedConditions(t *testing.T) {
	ctx := context.Background()
	store := profilemodel.NewMemoryStore(nil)
	if _, err := store.Create(ctx, "u1", "Ada", 36); err != nil {
		t.Fatalf("Create err: %v", err)
	}

	gen := &scriptedGenerator{out: `["headache", "fever"]`}
	logger := NewConditionLogger(store, NewExtractor(gen), time.Second)

	reqCtx, cancel := context.WithCancel(ctx)
	logger.Submit(reqCtx, "u1", "I have a terrible headache and fever")
	cancel() // request cancellation must not abort extraction
	logger.Wait()

	p, _, _ := store.Get(ctx, "u1")
	if got := strings.Join(p.ConditionNames(), ","); got != "headache,fever" {
		t.Fatalf("unexpected conditions %q", got)
	}
	if p.Conditions[0].Timestamp.IsZero() {
		t.Fatal("expected timestamps on condition entries")
	}
}

func TestConditionLoggerSkipsUnknownUser(t *testing.T) {
	store := profilemodel.NewMemoryStore(nil)
	gen := &scriptedGenerator{out: `["cough"]`}
	logger := NewConditionLogger(store, NewExtractor(gen), time.Second)

	logger.Submit(context.Background(), "ghost", "I keep coughing")
	logger.Wait()

	if gen.calls.Load() != 0 {
		t.Fatalf("expected no model call for unknown user, got %d", gen.calls.Load())
	}
	if store.Len() != 0 {
		t.Fatal("unknown user must not be created")
	}
}

func TestConditionLoggerSwallowsFailures(t *testing.T) {
	ctx := context.Background()
	store := profilemodel.NewMemoryStore([]profilemodel.Profile{{UserID: "u1", Name: "Ada", Age: 36}})

	failing := NewConditionLogger(store, NewExtractor(&scriptedGenerator{err: apperr.ExternalService("down")}), time.Second)
	failing.Submit(ctx, "u1", "I feel sick")
	failing.Wait()

	slow := NewConditionLogger(store, NewExtractor(&scriptedGenerator{out: `["nausea"]`, delay: time.Second}), 20*time.Millisecond)
	start := time.Now()
	slow.Submit(ctx, "u1", "I feel sick")
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("Submit must not block on extraction")
	}
	slow.Wait()

	p, _, _ := store.Get(ctx, "u1")
	if len(p.Conditions) != 0 {
		t.Fatalf("expected no conditions after failures, got %v", p.ConditionNames())
	}

	if n, err := failing.Log(ctx, "u1", "I feel sick"); !errors.Is(err, apperr.ErrExternalService) || n != 0 {
		t.Fatalf("Log should report the failure synchronously, got %d %v", n, err)
	}
}
