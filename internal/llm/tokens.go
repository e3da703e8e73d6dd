package llm

// EstimateTokens approximates a token count at four characters per token,
// rounding up.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + 3) / 4
}

// EstimateBudgetChars converts a token budget to a character limit.
func EstimateBudgetChars(tokens int) int {
	return tokens * 4
}
