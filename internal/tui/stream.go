package tui

import (
	"context"
	"errors"

	tea "charm.land/bubbletea/v2"
	"github.com/google/uuid"

	"github.com/corvus-ai/corvid/internal/conversation"
)

// Stream message types for Bubble Tea.
type streamStartedMsg struct {
	events <-chan conversation.Event
	cancel context.CancelFunc
}

type streamTextMsg struct {
	text string
}

type streamToolMsg struct {
	status string
}

type streamDoneMsg struct {
	content        string
	conversationID uuid.UUID
}

type streamErrorMsg struct {
	err error
}

// startStream creates a command that begins one chat exchange. The
// orchestrator owns the worker goroutine and closes the event channel
// when the exchange ends, so no WaitGroup is needed here.
func (m *Model) startStream(message string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, streamTimeout)

		events, err := m.orch.Chat(ctx, conversation.ChatRequest{
			Tenant:         m.tenant,
			UserID:         m.userID,
			ConversationID: m.conversationID,
			Message:        message,
		})
		if err != nil {
			cancel()
			return streamErrorMsg{err: err}
		}

		return streamStartedMsg{events: events, cancel: cancel}
	}
}

// listenForStream waits for the next chat event and converts it to a
// Bubble Tea message. Events that need no redraw are skipped with a loop
// rather than recursion.
func listenForStream(events <-chan conversation.Event) tea.Cmd {
	return func() tea.Msg {
		if events == nil {
			return nil
		}

		for {
			ev, ok := <-events
			if !ok {
				// Closed without a terminal event: the exchange was
				// canceled and the partial answer persisted.
				return streamErrorMsg{err: context.Canceled}
			}

			switch ev.Type {
			case conversation.EventDelta:
				if ev.Content == "" {
					continue
				}
				return streamTextMsg{text: ev.Content}
			case conversation.EventToolStart:
				return streamToolMsg{status: toolDisplayName(ev.Tool)}
			case conversation.EventToolDone, conversation.EventToolFailed:
				return streamToolMsg{status: ""}
			case conversation.EventDone:
				return streamDoneMsg{content: ev.Content, conversationID: ev.ConversationID}
			case conversation.EventError:
				return streamErrorMsg{err: errors.New(ev.Err)}
			default:
				continue
			}
		}
	}
}

// toolDisplayName maps tool names to status line text.
func toolDisplayName(name string) string {
	switch name {
	case "search_knowledge":
		return "Searching the knowledge base..."
	case "search_products":
		return "Searching products..."
	case "get_product_details":
		return "Looking up product details..."
	case "search_products_by_category":
		return "Browsing the category..."
	case "check_product_availability":
		return "Checking availability..."
	default:
		return "Working..."
	}
}
