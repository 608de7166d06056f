// Package provider defines the interfaces to embedding and completion
// models and an OpenAI-compatible client implementing both.
//
// The orchestrator depends only on the Completer and Embedder interfaces;
// any backend speaking the OpenAI wire protocol (including local servers)
// plugs in through Config.BaseURL.
package provider

import (
	"context"
	"errors"

	"github.com/google/jsonschema-go/jsonschema"
)

// ErrProvider wraps every failure originating at the model backend so
// callers can classify it without inspecting messages.
var ErrProvider = errors.New("provider request failed")

// Role identifies who produced a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Finish reasons reported by the completion backend.
const (
	FinishStop      = "stop"
	FinishLength    = "length"
	FinishToolCalls = "tool_calls"
)

// Message is one turn of model context.
type Message struct {
	Role    Role
	Content string

	// ToolCalls is set on assistant messages that requested tools.
	ToolCalls []ToolCall

	// ToolCallID links a tool-role message to the call it answers.
	ToolCallID string
}

// ToolCall is a completed tool invocation request. Arguments is the raw
// JSON exactly as the model emitted it.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolSchema describes a callable tool to the model.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
}

// Request is a completion request.
type Request struct {
	Messages    []Message
	Tools       []ToolSchema
	Temperature float32
	MaxTokens   int
}

// ToolCallDelta is a fragment of a tool call observed during streaming.
// Index identifies the call; ID and Name arrive on the first fragment and
// Arguments accumulates across fragments in arrival order.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// Delta is one streamed completion increment.
type Delta struct {
	Content      string
	ToolCalls    []ToolCallDelta
	FinishReason string
}

// Usage reports token consumption for a completed request.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is a non-streaming completion result.
type Response struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        Usage
}

// Completer produces model completions. Stream calls fn once per delta in
// arrival order; an fn error aborts the stream and is returned unchanged.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Stream(ctx context.Context, req Request, fn func(Delta) error) error
}

// Embedder turns text into vectors. EmbedBatch returns one vector per
// input, in input order.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
