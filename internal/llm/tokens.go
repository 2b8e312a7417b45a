package llm

import "unicode/utf8"

// charsPerToken is the average number of characters per token.
// This is a rough heuristic; real tokenizers vary, but 4 chars/token
// is a well-known approximation for English text.
const charsPerToken = 4

// EstimateTokens returns a rough token count for a string.
func EstimateTokens(s string) int {
	if len(s) == 0 {
		return 0
	}
	return (len(s) + charsPerToken - 1) / charsPerToken // round up
}

// EstimateMessagesTokens returns the estimated tokens for a system prompt plus messages.
func EstimateMessagesTokens(systemPrompt string, messages []Message) int {
	total := EstimateTokens(systemPrompt)
	for _, m := range messages {
		total += 4 // per-message overhead (role tokens, delimiters)
		total += EstimateTokens(m.Content)
	}
	return total
}

// TruncateTokens cuts s so that it fits in roughly maxTokens, appending an
// ellipsis when anything was dropped. The cut never splits a UTF-8 sequence.
func TruncateTokens(s string, maxTokens int) string {
	if maxTokens <= 0 || EstimateTokens(s) <= maxTokens {
		return s
	}
	limit := maxTokens * charsPerToken
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit] + "…"
}
