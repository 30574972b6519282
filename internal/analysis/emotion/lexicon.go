package emotion

import (
	"strings"
	"unicode"
)

var keywordBuckets = map[Label][]string{
	Negative: {
		"sad", "upset", "angry", "furious", "annoyed", "frustrated", "anxious", "worried", "scared", "afraid",
		"terrible", "awful", "horrible", "bad", "worse", "worst", "hate", "depressed", "lonely", "cry", "crying",
		"hurt", "hurts", "pain", "painful", "ache", "aching", "headache", "sick", "ill", "nausea", "dizzy",
		"fever", "tired", "exhausted", "can't sleep", "insomnia", "stressed", "miserable", "unbearable",
	},
	Positive: {
		"happy", "glad", "great", "good", "better", "best", "awesome", "amazing", "wonderful", "fantastic",
		"excited", "relieved", "thanks", "thank you", "love", "grateful", "calm", "fine", "well", "recovered",
		"improving", "healthy", "energetic", "hopeful", "pleased", "nice", "perfect", "enjoy",
	},
}

var negations = []string{"not", "no", "never", "don't", "doesn't", "isn't", "wasn't", "didn't", "can't"}

// neutralBase keeps plain statements neutral and dampens single weak hits.
const neutralBase = 2

// ScoreText 基于关键词统计三类情绪得分，返回未归一化的分数。
func ScoreText(text string) [3]int {
	normalized := normalize(text)
	scores := [3]int{0, neutralBase, 0}
	if normalized == "" {
		return scores
	}

	tokens := tokenize(normalized)
	for label, keywords := range keywordBuckets {
		idx := 0
		if label == Positive {
			idx = 2
		}
		for _, word := range keywords {
			hits := countMatches(normalized, tokens, word)
			for _, negated := range hits {
				if negated {
					// "not good" counts against, "not bad" leans neutral
					if idx == 2 {
						scores[0] += 2
					} else {
						scores[1] += 1
					}
					continue
				}
				scores[idx] += 3
			}
		}
	}

	exclamations := strings.Count(text, "!")
	if exclamations > 0 {
		if scores[0] > scores[2] {
			scores[0] += exclamations
		} else if scores[2] > scores[0] {
			scores[2] += exclamations
		}
	}

	return scores
}

// ClassifyLexicon converts keyword scores into a normalized distribution.
func ClassifyLexicon(text string) Probabilities {
	scores := ScoreText(text)
	var probs Probabilities
	for i, s := range scores {
		probs[i] = float64(s)
	}
	return probs.Normalize()
}

// countMatches returns one entry per occurrence of word; the entry is true when
// the occurrence is preceded by a negation within two tokens.
func countMatches(normalized string, tokens []string, word string) []bool {
	if strings.Contains(word, " ") || strings.Contains(word, "'") {
		n := strings.Count(normalized, word)
		return make([]bool, n)
	}

	var hits []bool
	for i, tok := range tokens {
		if tok != word {
			continue
		}
		negated := false
		for j := i - 1; j >= 0 && j >= i-2; j-- {
			if isNegation(tokens[j]) {
				negated = true
				break
			}
		}
		hits = append(hits, negated)
	}
	return hits
}

func isNegation(tok string) bool {
	for _, n := range negations {
		if tok == n {
			return true
		}
	}
	return false
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func normalize(s string) string {
	return strings.TrimSpace(strings.ToLower(s))
}
