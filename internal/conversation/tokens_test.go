package conversation

import (
	"strings"
	"testing"

	"github.com/corvus-ai/corvid/internal/provider"
)

func msg(role provider.Role, content string) provider.Message {
	return provider.Message{Role: role, Content: content}
}

func TestTruncateHistoryKeepsSystem(t *testing.T) {
	msgs := []provider.Message{
		msg(provider.RoleSystem, "instructions"),
		msg(provider.RoleUser, strings.Repeat("a", 400)),
		msg(provider.RoleAssistant, strings.Repeat("b", 400)),
		msg(provider.RoleUser, "newest question"),
	}

	got := truncateHistory(msgs, 60)
	if len(got) < 2 {
		t.Fatalf("got %d messages", len(got))
	}
	if got[0].Role != provider.RoleSystem {
		t.Errorf("first message role = %s, want system", got[0].Role)
	}
	if got[len(got)-1].Content != "newest question" {
		t.Errorf("last message = %q, want the newest user message", got[len(got)-1].Content)
	}
	for _, m := range got {
		if strings.HasPrefix(m.Content, "aaaa") {
			t.Error("oldest oversized message survived truncation")
		}
	}
}

func TestTruncateHistoryKeepsNewestEvenOversized(t *testing.T) {
	msgs := []provider.Message{
		msg(provider.RoleSystem, "sys"),
		msg(provider.RoleUser, strings.Repeat("x", 10_000)),
	}
	got := truncateHistory(msgs, 50)
	if len(got) != 2 {
		t.Fatalf("got %d messages, want system + oversized user", len(got))
	}
}

func TestTruncateHistoryNoBudget(t *testing.T) {
	msgs := []provider.Message{msg(provider.RoleUser, "hello")}
	got := truncateHistory(msgs, 0)
	if len(got) != 1 {
		t.Errorf("zero budget altered messages: %v", got)
	}
}

func TestTruncateHistoryPreservesOrder(t *testing.T) {
	msgs := []provider.Message{
		msg(provider.RoleSystem, "sys"),
		msg(provider.RoleUser, "one"),
		msg(provider.RoleAssistant, "two"),
		msg(provider.RoleUser, "three"),
	}
	got := truncateHistory(msgs, 100_000)
	if len(got) != 4 {
		t.Fatalf("got %d messages", len(got))
	}
	for i, want := range []string{"sys", "one", "two", "three"} {
		if got[i].Content != want {
			t.Errorf("message %d = %q, want %q", i, got[i].Content, want)
		}
	}
}

func TestTruncateHistoryDropsDanglingToolMessage(t *testing.T) {
	msgs := []provider.Message{
		msg(provider.RoleSystem, "sys"),
		msg(provider.RoleUser, strings.Repeat("q", 600)),
		{Role: provider.RoleAssistant, ToolCalls: []provider.ToolCall{{ID: "c1", Name: "lookup", Arguments: strings.Repeat("a", 600)}}},
		{Role: provider.RoleTool, ToolCallID: "c1", Content: "result"},
		msg(provider.RoleAssistant, "answer"),
		msg(provider.RoleUser, "next"),
	}

	got := truncateHistory(msgs, 120)
	for i, m := range got {
		if m.Role == provider.RoleTool && (i == 0 || (i == 1 && got[0].Role == provider.RoleSystem)) {
			t.Errorf("history resumes at a dangling tool message: %v", got)
		}
	}
}

func TestEstimateTokensCountsToolCalls(t *testing.T) {
	plain := msg(provider.RoleAssistant, "hello")
	withCall := provider.Message{
		Role:      provider.RoleAssistant,
		Content:   "hello",
		ToolCalls: []provider.ToolCall{{Name: "lookup", Arguments: `{"query":"something long enough"}`}},
	}
	if estimateTokens(withCall) <= estimateTokens(plain) {
		t.Error("tool call arguments not counted")
	}
}
