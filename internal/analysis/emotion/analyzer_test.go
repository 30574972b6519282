package emotion

import (
	"math"
	"testing"
)

func TestAggregateNegativeDistribution(t *testing.T) {
	result := Aggregate(Probabilities{0.7, 0.2, 0.1}, "I have a terrible headache and fever", nil)
	if result.Label != Negative {
		t.Fatalf("expected negative label, got %s", result.Label)
	}
	if math.Abs(result.Valence-(-0.6)) > 1e-9 {
		t.Fatalf("expected valence -0.6, got %f", result.Valence)
	}
	if result.Arousal != nil {
		t.Fatalf("expected no arousal for text input")
	}
}

func TestArgMaxTieBreaksByPriority(t *testing.T) {
	cases := []struct {
		name  string
		probs Probabilities
		want  Label
	}{
		{"all equal", Probabilities{1.0 / 3, 1.0 / 3, 1.0 / 3}, Negative},
		{"negative neutral tie", Probabilities{0.4, 0.4, 0.2}, Negative},
		{"neutral positive tie", Probabilities{0.2, 0.4, 0.4}, Neutral},
		{"negative positive tie", Probabilities{0.45, 0.1, 0.45}, Negative},
		{"clear positive", Probabilities{0.1, 0.2, 0.7}, Positive},
		{"clear neutral", Probabilities{0.1, 0.8, 0.1}, Neutral},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.probs.ArgMax(); got != tc.want {
				t.Fatalf("ArgMax(%v) = %s, want %s", tc.probs, got, tc.want)
			}
		})
	}
}

func TestValenceStaysInRange(t *testing.T) {
	for n := 0.0; n <= 1.0; n += 0.05 {
		for u := 0.0; n+u <= 1.0; u += 0.05 {
			p := Probabilities{n, u, 1 - n - u}
			v := p.Valence()
			if v < -1 || v > 1 {
				t.Fatalf("valence %f out of range for %v", v, p)
			}
			if math.Abs(v-(p[2]-p[0])) > 1e-9 {
				t.Fatalf("valence %f != p-n for %v", v, p)
			}
		}
	}
}

func TestNormalizeHandlesDegenerateInput(t *testing.T) {
	p := Probabilities{0, 0, 0}.Normalize()
	if p != Uniform() {
		t.Fatalf("expected uniform distribution, got %v", p)
	}

	p = Probabilities{2, -1, 2}.Normalize()
	if p[1] != 0 || math.Abs(p[0]-0.5) > 1e-9 {
		t.Fatalf("unexpected normalization: %v", p)
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("normalized distribution should validate: %v", err)
	}
}

func TestAggregateClampsArousal(t *testing.T) {
	loud := 1.7
	result := Aggregate(Probabilities{0, 1, 0}, "hi", &loud)
	if result.Arousal == nil || *result.Arousal != 1 {
		t.Fatalf("expected arousal clamped to 1, got %v", result.Arousal)
	}
}

func TestClassifyLexiconNegativeSymptoms(t *testing.T) {
	probs := ClassifyLexicon("I have a terrible headache and fever")
	if probs.ArgMax() != Negative {
		t.Fatalf("expected negative, got %s (%v)", probs.ArgMax(), probs)
	}
	if err := probs.Validate(); err != nil {
		t.Fatalf("lexicon output must be a distribution: %v", err)
	}
}

func TestClassifyLexiconPositive(t *testing.T) {
	probs := ClassifyLexicon("Thank you, I feel so much better and relieved!")
	if probs.ArgMax() != Positive {
		t.Fatalf("expected positive, got %s (%v)", probs.ArgMax(), probs)
	}
}

func TestClassifyLexiconNeutralAndEmpty(t *testing.T) {
	if got := ClassifyLexicon("What time is my appointment tomorrow").ArgMax(); got != Neutral {
		t.Fatalf("expected neutral, got %s", got)
	}
	if got := ClassifyLexicon("   ").ArgMax(); got != Neutral {
		t.Fatalf("expected neutral for blank text, got %s", got)
	}
}

func TestClassifyLexiconNegation(t *testing.T) {
	probs := ClassifyLexicon("I am not good today")
	if probs.ArgMax() == Positive {
		t.Fatalf("negated positive word should not classify positive: %v", probs)
	}
}
