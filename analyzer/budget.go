package analyzer

import (
	"unicode/utf8"

	"github.com/use-agent/prisma/config"
)

// TruncationMarker is appended to content cut to fit the input budget.
const TruncationMarker = "\n\n...[TRUNCATED]..."

// Budget splits the context window between prompt input and generation.
type Budget struct {
	AvailableInput int // tokens for content
	MaxOutput      int // tokens the model may generate
	MaxChars       int // AvailableInput in characters
	Rebalanced     bool
}

// ComputeBudget derives the prompt budget. When the configured output
// leaves less than MinInput tokens of input, the output is shrunk so that
// the input gets TargetInput tokens, capped so OutputReserve tokens of
// output remain.
func ComputeBudget(contextSize, maxTokens int, b config.BudgetConfig) Budget {
	out := Budget{
		AvailableInput: contextSize - maxTokens - b.SafetyMargin,
		MaxOutput:      maxTokens,
	}
	if out.AvailableInput < b.MinInput {
		target := min(b.TargetInput, contextSize-b.SafetyMargin-b.OutputReserve)
		out.MaxOutput = contextSize - target - b.SafetyMargin
		out.AvailableInput = target
		out.Rebalanced = true
	}
	out.MaxChars = out.AvailableInput * b.CharsPerToken
	return out
}

// TruncateContent keeps the first maxChars characters of content and
// appends TruncationMarker. Content within the limit is returned as is.
func TruncateContent(content string, maxChars int) (string, bool) {
	if utf8.RuneCountInString(content) <= maxChars {
		return content, false
	}
	return prefix(content, maxChars) + TruncationMarker, true
}

// prefix returns the first n runes of s.
func prefix(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
