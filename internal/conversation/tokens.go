package conversation

import (
	"slices"
	"unicode/utf8"

	"github.com/corvus-ai/corvid/internal/provider"
)

// DefaultTokenBudget bounds how much history is replayed to the model.
const DefaultTokenBudget = 8000

// estimateTokens approximates the token cost of a message. Half a token
// per rune is deliberately conservative for CJK-heavy text, which real
// tokenizers also split roughly per character.
func estimateTokens(msg provider.Message) int {
	n := utf8.RuneCountInString(msg.Content)/2 + 4
	for _, tc := range msg.ToolCalls {
		n += utf8.RuneCountInString(tc.Arguments)/2 + utf8.RuneCountInString(tc.Name) + 4
	}
	return n
}

// truncateHistory drops the oldest non-system messages until the
// estimated cost fits budget. The first system message always survives,
// and the newest message is kept even when it alone exceeds the budget,
// because sending the model nothing would be worse than sending it an
// oversized turn.
func truncateHistory(msgs []provider.Message, budget int) []provider.Message {
	if budget <= 0 || len(msgs) == 0 {
		return msgs
	}

	var system *provider.Message
	rest := msgs
	if msgs[0].Role == provider.RoleSystem {
		system = &msgs[0]
		rest = msgs[1:]
	}

	used := 0
	if system != nil {
		used = estimateTokens(*system)
	}

	var kept []provider.Message
	for i := len(rest) - 1; i >= 0; i-- {
		cost := estimateTokens(rest[i])
		if used+cost > budget && len(kept) > 0 {
			break
		}
		kept = append(kept, rest[i])
		used += cost
	}
	slices.Reverse(kept)

	// Never resume history at a dangling tool answer: the model rejects
	// a tool message whose call it has not seen.
	for len(kept) > 0 && kept[0].Role == provider.RoleTool {
		kept = kept[1:]
	}

	if system == nil {
		return kept
	}
	return append([]provider.Message{*system}, kept...)
}
