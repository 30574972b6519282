package ai

import (
	"strings"

	"github.com/assessli/carebot/backend/internal/model/profile"
)

// Bucket 是根据情绪选择的回复语气类别。
type Bucket string

const (
	BucketNegative Bucket = "negative"
	BucketPositive Bucket = "positive"
	BucketNeutral  Bucket = "neutral"
)

var (
	negativeEmotions = map[string]struct{}{
		"sad": {}, "angry": {}, "anxious": {}, "frustrated": {}, "upset": {}, "negative": {},
	}
	positiveEmotions = map[string]struct{}{
		"happy": {}, "excited": {}, "relieved": {}, "positive": {},
	}
)

// ClassifyBucket maps any emotion word onto a tone bucket. Unknown words fall
// into the neutral bucket.
func ClassifyBucket(emotion string) Bucket {
	key := strings.ToLower(strings.TrimSpace(emotion))
	if _, ok := negativeEmotions[key]; ok {
		return BucketNegative
	}
	if _, ok := positiveEmotions[key]; ok {
		return BucketPositive
	}
	return BucketNeutral
}

var bucketTone = map[Bucket]struct {
	role     string
	guidance string
}{
	BucketNegative: {
		role:     "You are a calm and supportive healthcare assistant.",
		guidance: "Respond with empathy, be brief, comforting, and directly address their concerns.",
	},
	BucketPositive: {
		role:     "You are a warm and encouraging healthcare assistant.",
		guidance: "Respond positively, include relevant health information, and feel free to elaborate helpfully.",
	},
	BucketNeutral: {
		role:     "You are a helpful healthcare assistant.",
		guidance: "Respond clearly and respectfully, and offer relevant medical guidance or follow-up questions. Be concise and talk to them as a friend.",
	},
}

// BuildSystemPrompt combines the profile summary with the tone for emotion.
func BuildSystemPrompt(p *profile.Profile, emotion string) string {
	emotion = strings.ToLower(strings.TrimSpace(emotion))
	if emotion == "" {
		emotion = "neutral"
	}
	tone := bucketTone[ClassifyBucket(emotion)]

	var b strings.Builder
	b.WriteString(profile.Summary(p))
	b.WriteString("\n")
	b.WriteString(tone.role)
	b.WriteString(" The user is currently feeling ")
	b.WriteString(emotion)
	b.WriteString(". ")
	b.WriteString(tone.guidance)
	return b.String()
}
