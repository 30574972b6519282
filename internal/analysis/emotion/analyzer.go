package emotion

import (
	"fmt"
	"math"
)

// Label 表示三分类情绪标签。
type Label string

const (
	Negative Label = "negative"
	Neutral  Label = "neutral"
	Positive Label = "positive"
)

// Labels lists the classes in distribution order. Index order doubles as the
// tie-break priority: the lowest index wins.
var Labels = [3]Label{Negative, Neutral, Positive}

// Probabilities is a distribution over Labels, indexed negative/neutral/positive.
type Probabilities [3]float64

// Uniform returns the equal-weight distribution.
func Uniform() Probabilities {
	return Probabilities{1.0 / 3, 1.0 / 3, 1.0 / 3}
}

// Normalize rescales p to sum to 1. Negative or non-finite entries are
// treated as zero; an all-zero input yields the uniform distribution.
func (p Probabilities) Normalize() Probabilities {
	var sum float64
	for i, v := range p {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			p[i] = 0
			continue
		}
		sum += v
	}
	if sum == 0 {
		return Uniform()
	}
	for i := range p {
		p[i] /= sum
	}
	return p
}

// Validate reports whether p is a usable distribution without rescaling it.
func (p Probabilities) Validate() error {
	var sum float64
	for i, v := range p {
		if v < 0 || v > 1 || math.IsNaN(v) {
			return fmt.Errorf("probability %s=%v out of range", Labels[i], v)
		}
		sum += v
	}
	if math.Abs(sum-1) > 1e-3 {
		return fmt.Errorf("probabilities sum to %.4f", sum)
	}
	return nil
}

// ArgMax returns the label with the highest probability; ties go to the
// lowest index (negative, then neutral, then positive).
func (p Probabilities) ArgMax() Label {
	best := 0
	for i := 1; i < len(p); i++ {
		if p[i] > p[best] {
			best = i
		}
	}
	return Labels[best]
}

// Valence is P(positive) - P(negative), clamped to [-1, 1].
func (p Probabilities) Valence() float64 {
	return clamp(p[2]-p[0], -1, 1)
}

// Result 是一次情绪识别的完整输出。Arousal 仅在音频输入时存在。
type Result struct {
	Label         Label         `json:"label"`
	Valence       float64       `json:"valence"`
	Arousal       *float64      `json:"arousal,omitempty"`
	Transcript    string        `json:"transcript"`
	Probabilities Probabilities `json:"probabilities"`
}

// Aggregate builds a Result from a classifier distribution. arousal may be nil.
func Aggregate(probs Probabilities, transcript string, arousal *float64) Result {
	if arousal != nil {
		a := clamp(*arousal, 0, 1)
		arousal = &a
	}
	return Result{
		Label:         probs.ArgMax(),
		Valence:       probs.Valence(),
		Arousal:       arousal,
		Transcript:    transcript,
		Probabilities: probs,
	}
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
