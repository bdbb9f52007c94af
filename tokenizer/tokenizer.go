// Package tokenizer provides token count estimation for context budgeting.
//
// The context window manager only needs an upper-bound style estimate, so
// the default Heuristic estimator trades accuracy for zero dependencies on
// model data. The Tiktoken estimator gives exact counts for OpenAI-family
// encodings when the approximation is not good enough.
package tokenizer

// Estimator estimates the token cost of a text.
type Estimator interface {
	// EstimateTokens returns the estimated token count for text.
	EstimateTokens(text string) int
}

// Heuristic is a character-based token estimator. It assumes roughly 4
// characters per token for Latin text and 1.5 characters per token for CJK
// text. The result is approximate and must not be treated as exact
// tokenizer behavior.
type Heuristic struct{}

// NewHeuristic creates a Heuristic estimator.
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

// EstimateTokens estimates the token count of text. Non-empty text always
// costs at least 1 token.
func (h *Heuristic) EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	var cjkCount, otherCount int
	for _, r := range text {
		if r >= 0x4E00 && r <= 0x9FA5 {
			cjkCount++
		} else {
			otherCount++
		}
	}
	tokens := float64(cjkCount)/1.5 + float64(otherCount)/4.0
	if tokens < 1 {
		return 1
	}
	return int(tokens)
}
