// Package conversation runs retrieval-augmented chat exchanges: it owns
// the turn history, drives the completion stream, dispatches tool calls
// and persists the outcome.
package conversation

import (
	"time"

	"github.com/google/uuid"

	"github.com/corvus-ai/corvid/internal/provider"
)

// Conversation is one chat thread belonging to a tenant.
type Conversation struct {
	ID        uuid.UUID
	Tenant    string
	UserID    string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Turn is one persisted message of a conversation. Ordinal orders turns
// within the conversation and is assigned at append time.
type Turn struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Ordinal        int
	Role           provider.Role
	Content        string

	// ToolCalls is set on assistant turns that requested tools.
	ToolCalls []provider.ToolCall

	// ToolCallID links a tool turn to the call it answers.
	ToolCallID string

	// Partial marks an assistant turn cut off by cancellation or
	// timeout. Partial turns are stored for continuity but must never be
	// mistaken for a complete answer.
	Partial bool

	CreatedAt time.Time
}

// message converts a stored turn back into model context.
func (t Turn) message() provider.Message {
	return provider.Message{
		Role:       t.Role,
		Content:    t.Content,
		ToolCalls:  t.ToolCalls,
		ToolCallID: t.ToolCallID,
	}
}
