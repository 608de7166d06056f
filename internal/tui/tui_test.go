package tui

import (
	"context"
	"errors"
	"testing"

	"charm.land/bubbles/v2/textarea"
	"charm.land/bubbles/v2/viewport"
	"github.com/google/uuid"
	"go.uber.org/goleak"

	"github.com/corvus-ai/corvid/internal/conversation"
)

func goleakOptions() []goleak.Option {
	return []goleak.Option{
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	}
}

// newTestModel builds a Model with initialized components but no
// orchestrator; stream startup is not exercised here.
func newTestModel() *Model {
	ta := textarea.New()
	ta.SetHeight(3)
	ta.ShowLineNumbers = false
	return &Model{
		state:    StateInput,
		input:    ta,
		viewport: viewport.New(viewport.WithWidth(80), viewport.WithHeight(20)),
		history:  make([]string, 0),
		styles:   DefaultStyles(),
		markdown: newMarkdownRenderer(80),
		ctx:      context.Background(),
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(context.Background(), nil, "acme", "u1"); err == nil {
		t.Error("New() with nil orchestrator succeeded, want error")
	}
	var orch *conversation.Orchestrator
	//lint:ignore SA1012 testing nil context handling
	if _, err := New(nil, orch, "acme", "u1"); err == nil { //nolint:staticcheck
		t.Error("New() with nil context succeeded, want error")
	}
	if _, err := New(context.Background(), nil, "", "u1"); err == nil {
		t.Error("New() with empty tenant succeeded, want error")
	}
}

func TestInit(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	m := newTestModel()
	if cmd := m.Init(); cmd == nil {
		t.Error("Init() = nil, want blink + spinner commands")
	}
}

func TestHandleSlashCommands(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	tests := []struct {
		name     string
		cmd      string
		wantExit bool
		wantMsgs int // messages added on top of the pre-seeded one
	}{
		{"help", "/help", false, 1},
		{"clear", "/clear", false, 0},
		{"exit", "/exit", true, 0},
		{"quit", "/quit", true, 0},
		{"unknown", "/unknown", false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestModel()
			m.messages = []Message{{Role: roleUser, Text: "hello"}}

			model, cmd := m.handleSlashCommand(tt.cmd)
			result := model.(*Model)

			if tt.wantExit {
				if cmd == nil {
					t.Error("expected quit command")
				}
				return
			}
			if tt.cmd == cmdClear {
				if len(result.messages) != 0 {
					t.Error("/clear should clear messages")
				}
				return
			}
			if len(result.messages) != 1+tt.wantMsgs {
				t.Errorf("messages = %d, want %d", len(result.messages), 1+tt.wantMsgs)
			}
		})
	}
}

func TestSlashNewResetsConversation(t *testing.T) {
	m := newTestModel()
	m.conversationID = uuid.New()
	m.messages = []Message{{Role: roleUser, Text: "old"}}

	model, _ := m.handleSlashCommand(cmdNew)
	result := model.(*Model)

	if result.conversationID != uuid.Nil {
		t.Error("/new did not reset the conversation ID")
	}
	if len(result.messages) != 1 || result.messages[0].Role != roleSystem {
		t.Errorf("messages = %+v, want only the new-conversation notice", result.messages)
	}
}

func TestHistoryNavigation(t *testing.T) {
	m := newTestModel()
	m.history = []string{"first", "second", "third"}
	m.historyIdx = 3

	steps := []struct {
		delta int
		want  string
	}{
		{-1, "third"},
		{-1, "second"},
		{-1, "first"},
		{-1, "first"}, // stays at oldest
		{1, "second"},
		{1, "third"},
		{1, ""}, // past end = empty input
		{1, ""},
	}
	for i, step := range steps {
		m.navigateHistory(step.delta)
		if got := m.input.Value(); got != step.want {
			t.Errorf("step %d: input = %q, want %q", i, got, step.want)
		}
	}
}

func TestListenForStreamMapping(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	convID := uuid.New()
	events := make(chan conversation.Event, 8)
	events <- conversation.Event{Type: conversation.EventDelta, Content: "Hel"}
	events <- conversation.Event{Type: conversation.EventToolStart, Tool: "search_knowledge"}
	events <- conversation.Event{Type: conversation.EventToolDone, Tool: "search_knowledge"}
	events <- conversation.Event{Type: conversation.EventDone, Content: "Hello", ConversationID: convID}
	close(events)

	cmd := listenForStream(events)

	msg := cmd()
	text, ok := msg.(streamTextMsg)
	if !ok || text.text != "Hel" {
		t.Fatalf("first msg = %#v, want streamTextMsg Hel", msg)
	}

	msg = cmd()
	tool, ok := msg.(streamToolMsg)
	if !ok || tool.status == "" {
		t.Fatalf("second msg = %#v, want tool status", msg)
	}

	msg = cmd()
	if tool, ok = msg.(streamToolMsg); !ok || tool.status != "" {
		t.Fatalf("third msg = %#v, want cleared tool status", msg)
	}

	msg = cmd()
	done, ok := msg.(streamDoneMsg)
	if !ok || done.content != "Hello" || done.conversationID != convID {
		t.Fatalf("fourth msg = %#v, want streamDoneMsg", msg)
	}

	// Channel closed after cancellation maps to a canceled error.
	msg = cmd()
	errMsg, ok := msg.(streamErrorMsg)
	if !ok || !errors.Is(errMsg.err, context.Canceled) {
		t.Fatalf("closed channel msg = %#v, want canceled error", msg)
	}
}

func TestStreamDoneUpdatesModel(t *testing.T) {
	m := newTestModel()
	m.state = StateStreaming
	m.output.WriteString("partial")
	convID := uuid.New()

	model, _ := m.Update(streamDoneMsg{content: "full answer", conversationID: convID})
	result := model.(*Model)

	if result.state != StateInput {
		t.Errorf("state = %v, want StateInput", result.state)
	}
	if result.conversationID != convID {
		t.Error("conversation ID not carried over for the next message")
	}
	if len(result.messages) != 1 || result.messages[0].Text != "full answer" {
		t.Errorf("messages = %+v, want the full answer", result.messages)
	}
	if result.output.Len() != 0 {
		t.Error("streaming buffer not reset")
	}
}

func TestStaleStreamErrorIgnoredAfterCancel(t *testing.T) {
	m := newTestModel()
	m.state = StateInput
	m.events = nil // cancelStream already ran

	model, _ := m.Update(streamErrorMsg{err: context.Canceled})
	result := model.(*Model)
	if len(result.messages) != 0 {
		t.Errorf("messages = %+v, want none for stale error", result.messages)
	}
}

func TestToolDisplayName(t *testing.T) {
	if got := toolDisplayName("search_knowledge"); got == "Working..." {
		t.Error("known tool fell through to the generic status")
	}
	if got := toolDisplayName("mystery_tool"); got != "Working..." {
		t.Errorf("unknown tool status = %q, want generic", got)
	}
}
