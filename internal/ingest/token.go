package ingest

import "strings"

const tokensPerWord = 1.33

// EstimateTokens gives a rough token count from the word count.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	tokens := int(float64(len(strings.Fields(text))) * tokensPerWord)
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

// TruncateTokens keeps roughly the first limit tokens of text. Text already
// under the limit is returned unchanged.
func TruncateTokens(text string, limit int) string {
	if limit <= 0 || EstimateTokens(text) <= limit {
		return text
	}
	words := strings.Fields(text)
	keep := int(float64(limit) / tokensPerWord)
	if keep < 1 {
		keep = 1
	}
	if keep >= len(words) {
		return text
	}
	return strings.Join(words[:keep], " ")
}
