package conversation

import "github.com/google/uuid"

// EventType discriminates chat events.
type EventType int

const (
	// EventDelta carries an assistant content fragment.
	EventDelta EventType = iota

	// EventToolStart, EventToolDone and EventToolFailed report tool
	// lifecycle while the assistant is silent.
	EventToolStart
	EventToolDone
	EventToolFailed

	// EventDone closes a successful exchange; Content holds the full
	// assistant answer.
	EventDone

	// EventError closes a failed exchange; Err holds a display-safe
	// message.
	EventError
)

// Event is one increment of a streamed chat exchange. The channel
// returned by Chat is the only transport contract: any frontend that can
// read it (terminal, SSE handler, test) renders the conversation.
type Event struct {
	Type           EventType
	ConversationID uuid.UUID
	Content        string
	Tool           string
	Err            string
}

func (t EventType) String() string {
	switch t {
	case EventDelta:
		return "delta"
	case EventToolStart:
		return "tool_start"
	case EventToolDone:
		return "tool_done"
	case EventToolFailed:
		return "tool_failed"
	case EventDone:
		return "done"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}
