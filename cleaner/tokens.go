package cleaner

import "unicode/utf8"

// DefaultCharsPerToken is the conservative characters-per-token ratio used
// for mixed-language and accent-heavy text.
const DefaultCharsPerToken = 3

// EstimateTokens estimates the token count of text at DefaultCharsPerToken.
func EstimateTokens(text string) int {
	return EstimateTokensRatio(text, DefaultCharsPerToken)
}

// EstimateTokensRatio estimates tokens as runes / charsPerToken, never
// returning 0 for non-empty text.
func EstimateTokensRatio(text string, charsPerToken int) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	if charsPerToken <= 0 {
		charsPerToken = DefaultCharsPerToken
	}
	if est := n / charsPerToken; est > 0 {
		return est
	}
	return 1
}
