package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/corvus-ai/corvid/internal/log"
	"github.com/corvus-ai/corvid/internal/provider"
	"github.com/corvus-ai/corvid/internal/tool"
)

const (
	// eventBuffer absorbs bursts of deltas when the consumer renders
	// slower than the model streams.
	eventBuffer = 100

	// DefaultTimeout bounds one whole exchange including tool execution.
	DefaultTimeout = 2 * time.Minute

	// persistGrace is how long best-effort persistence may run after the
	// exchange context died.
	persistGrace = 5 * time.Second
)

const defaultSystemPrompt = `You are a customer support assistant. Answer using the knowledge base and product catalog through the tools available to you. Be concise and accurate; when you do not know something, say so instead of guessing. Never invent product details or prices.`

// TurnStore is the persistence the orchestrator needs. *Store implements
// it; tests supply an in-memory version.
type TurnStore interface {
	Ensure(ctx context.Context, tenant, userID string, id uuid.UUID) (uuid.UUID, error)
	History(ctx context.Context, tenant string, id uuid.UUID) ([]Turn, error)
	Append(ctx context.Context, id uuid.UUID, turns []Turn) error
}

// Config assembles an Orchestrator.
type Config struct {
	Completer provider.Completer
	Tools     *tool.Registry
	Store     TurnStore
	Logger    log.Logger

	// SystemPrompt overrides the default assistant instructions.
	SystemPrompt string

	Temperature float32
	MaxTokens   int

	// TokenBudget caps replayed history; zero selects
	// DefaultTokenBudget.
	TokenBudget int

	// Timeout bounds one exchange; zero selects DefaultTimeout.
	Timeout time.Duration
}

// Orchestrator drives chat exchanges. Safe for concurrent use; each Chat
// call runs independently.
type Orchestrator struct {
	completer    provider.Completer
	tools        *tool.Registry
	store        TurnStore
	logger       log.Logger
	systemPrompt string
	temperature  float32
	maxTokens    int
	budget       int
	timeout      time.Duration
	tracer       trace.Tracer
}

// New validates cfg and creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Completer == nil {
		return nil, errors.New("conversation: Completer is required")
	}
	if cfg.Tools == nil {
		return nil, errors.New("conversation: Tools is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("conversation: Store is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("conversation: Logger is required")
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = DefaultTokenBudget
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Orchestrator{
		completer:    cfg.Completer,
		tools:        cfg.Tools,
		store:        cfg.Store,
		logger:       cfg.Logger,
		systemPrompt: cfg.SystemPrompt,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		budget:       cfg.TokenBudget,
		timeout:      cfg.Timeout,
		tracer:       otel.Tracer("corvid/conversation"),
	}, nil
}

// ChatRequest is one user message addressed to a conversation.
type ChatRequest struct {
	Tenant string
	UserID string

	// ConversationID continues an existing conversation; uuid.Nil starts
	// a new one.
	ConversationID uuid.UUID

	Message string
}

func (r ChatRequest) validate() error {
	if r.Tenant == "" {
		return fmt.Errorf("%w: empty tenant", ErrValidation)
	}
	if strings.TrimSpace(r.Message) == "" {
		return fmt.Errorf("%w: empty message", ErrValidation)
	}
	return nil
}

// Chat runs one streamed exchange. The returned channel delivers deltas,
// tool lifecycle events and exactly one terminal Done or Error event,
// then closes. Canceling ctx stops the stream; whatever assistant output
// already arrived is persisted as a partial turn.
func (o *Orchestrator) Chat(ctx context.Context, req ChatRequest) (<-chan Event, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	convID, err := o.store.Ensure(ctx, req.Tenant, req.UserID, req.ConversationID)
	if err != nil {
		return nil, err
	}

	events := make(chan Event, eventBuffer)
	go o.run(ctx, req, convID, events)
	return events, nil
}

func (o *Orchestrator) run(ctx context.Context, req ChatRequest, convID uuid.UUID, events chan<- Event) {
	defer close(events)

	ctx, span := o.tracer.Start(ctx, "conversation.exchange",
		trace.WithAttributes(
			attribute.String("tenant", req.Tenant),
			attribute.String("conversation_id", convID.String()),
		))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	emit := func(ev Event) {
		ev.ConversationID = convID
		// Fast path keeps the terminal event deliverable even when ctx
		// is already done.
		select {
		case events <- ev:
			return
		default:
		}
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	fail := func(stage string, err error) {
		span.RecordError(err)
		o.logger.Error("chat exchange failed",
			"conversation_id", convID, "tenant", req.Tenant, "stage", stage, "error", err)
		emit(Event{Type: EventError, Err: displayError(err)})
	}

	history, err := o.store.History(ctx, req.Tenant, convID)
	if err != nil {
		fail("history", fmt.Errorf("%w: %v", ErrPersistence, err))
		return
	}

	// The user turn is durable before the model sees it: a later failure
	// never rolls it back.
	if err := o.store.Append(ctx, convID, []Turn{{Role: provider.RoleUser, Content: req.Message}}); err != nil {
		fail("persist user turn", fmt.Errorf("%w: %v", ErrPersistence, err))
		return
	}

	msgs := o.buildMessages(history, req.Message)
	toolCtx := tool.ContextWithEmitter(ctx, toolEmitter{emit: emit})

	content, calls, finish, err := o.streamOnce(ctx, provider.Request{
		Messages:    msgs,
		Tools:       o.tools.Schemas(),
		Temperature: o.temperature,
		MaxTokens:   o.maxTokens,
	}, emit)
	if err != nil {
		o.abort(ctx, convID, content, err, emit, span)
		return
	}

	if finish == provider.FinishToolCalls && len(calls) > 0 {
		assistant := Turn{Role: provider.RoleAssistant, Content: content, ToolCalls: calls}
		if err := o.store.Append(ctx, convID, []Turn{assistant}); err != nil {
			fail("persist tool request", fmt.Errorf("%w: %v", ErrPersistence, err))
			return
		}
		msgs = append(msgs, assistant.message())

		toolTurns := make([]Turn, 0, len(calls))
		for _, call := range calls {
			res := o.tools.Execute(toolCtx, req.Tenant, call.Name, json.RawMessage(call.Arguments))
			raw, marshalErr := json.Marshal(res)
			if marshalErr != nil {
				o.logger.Error("unserializable tool result", "tool", call.Name, "error", marshalErr)
				raw = []byte(`{"ok":false,"error":"unserializable tool result"}`)
			}
			turn := Turn{Role: provider.RoleTool, Content: string(raw), ToolCallID: call.ID}
			toolTurns = append(toolTurns, turn)
			msgs = append(msgs, turn.message())
		}
		if err := o.store.Append(ctx, convID, toolTurns); err != nil {
			fail("persist tool results", fmt.Errorf("%w: %v", ErrPersistence, err))
			return
		}

		// One tool round per exchange: the follow-up completion gets no
		// tool declarations, so the model must answer.
		content, _, finish, err = o.streamOnce(ctx, provider.Request{
			Messages:    truncateHistory(msgs, o.budget),
			Temperature: o.temperature,
			MaxTokens:   o.maxTokens,
		}, emit)
		if err != nil {
			o.abort(ctx, convID, content, err, emit, span)
			return
		}
	}

	if err := o.store.Append(ctx, convID, []Turn{{Role: provider.RoleAssistant, Content: content}}); err != nil {
		fail("persist assistant turn", fmt.Errorf("%w: %v", ErrPersistence, err))
		return
	}
	if finish == provider.FinishLength {
		o.logger.Warn("completion hit token limit", "conversation_id", convID)
	}
	emit(Event{Type: EventDone, Content: content})
}

// Ask runs one exchange without streaming and returns the final answer.
func (o *Orchestrator) Ask(ctx context.Context, req ChatRequest) (string, uuid.UUID, error) {
	if err := req.validate(); err != nil {
		return "", uuid.Nil, err
	}
	convID, err := o.store.Ensure(ctx, req.Tenant, req.UserID, req.ConversationID)
	if err != nil {
		return "", uuid.Nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	history, err := o.store.History(ctx, req.Tenant, convID)
	if err != nil {
		return "", convID, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := o.store.Append(ctx, convID, []Turn{{Role: provider.RoleUser, Content: req.Message}}); err != nil {
		return "", convID, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	msgs := o.buildMessages(history, req.Message)
	resp, err := o.completer.Complete(ctx, provider.Request{
		Messages:    msgs,
		Tools:       o.tools.Schemas(),
		Temperature: o.temperature,
		MaxTokens:   o.maxTokens,
	})
	if err != nil {
		return "", convID, err
	}

	if resp.FinishReason == provider.FinishToolCalls && len(resp.ToolCalls) > 0 {
		assistant := Turn{Role: provider.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls}
		if err := o.store.Append(ctx, convID, []Turn{assistant}); err != nil {
			return "", convID, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		msgs = append(msgs, assistant.message())

		toolTurns := make([]Turn, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			res := o.tools.Execute(ctx, req.Tenant, call.Name, json.RawMessage(call.Arguments))
			raw, marshalErr := json.Marshal(res)
			if marshalErr != nil {
				raw = []byte(`{"ok":false,"error":"unserializable tool result"}`)
			}
			turn := Turn{Role: provider.RoleTool, Content: string(raw), ToolCallID: call.ID}
			toolTurns = append(toolTurns, turn)
			msgs = append(msgs, turn.message())
		}
		if err := o.store.Append(ctx, convID, toolTurns); err != nil {
			return "", convID, fmt.Errorf("%w: %v", ErrPersistence, err)
		}

		resp, err = o.completer.Complete(ctx, provider.Request{
			Messages:    truncateHistory(msgs, o.budget),
			Temperature: o.temperature,
			MaxTokens:   o.maxTokens,
		})
		if err != nil {
			return "", convID, err
		}
	}

	if err := o.store.Append(ctx, convID, []Turn{{Role: provider.RoleAssistant, Content: resp.Content}}); err != nil {
		return "", convID, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return resp.Content, convID, nil
}

// buildMessages assembles model context: system prompt, replayed history,
// then the new user message, truncated to the token budget.
func (o *Orchestrator) buildMessages(history []Turn, userMessage string) []provider.Message {
	msgs := make([]provider.Message, 0, len(history)+2)
	msgs = append(msgs, provider.Message{Role: provider.RoleSystem, Content: o.systemPrompt})
	for _, t := range history {
		msgs = append(msgs, t.message())
	}
	msgs = append(msgs, provider.Message{Role: provider.RoleUser, Content: userMessage})
	return truncateHistory(msgs, o.budget)
}

// toolCallAccum assembles one tool call from streamed fragments.
type toolCallAccum struct {
	id   string
	name string
	args strings.Builder
}

// streamOnce consumes one completion stream, forwarding content deltas to
// emit and assembling tool-call fragments. Fragments for the same call
// are concatenated in arrival order and parsed only after the stream
// finishes; calls are returned in first-seen order.
func (o *Orchestrator) streamOnce(ctx context.Context, req provider.Request, emit func(Event)) (string, []provider.ToolCall, string, error) {
	var content strings.Builder
	accums := make(map[int]*toolCallAccum)
	var order []int
	finish := ""

	err := o.completer.Stream(ctx, req, func(d provider.Delta) error {
		if d.Content != "" {
			content.WriteString(d.Content)
			emit(Event{Type: EventDelta, Content: d.Content})
		}
		for _, f := range d.ToolCalls {
			a, ok := accums[f.Index]
			if !ok {
				a = &toolCallAccum{}
				accums[f.Index] = a
				order = append(order, f.Index)
			}
			if f.ID != "" {
				a.id = f.ID
			}
			if f.Name != "" {
				a.name = f.Name
			}
			a.args.WriteString(f.Arguments)
		}
		if d.FinishReason != "" {
			finish = d.FinishReason
		}
		return ctx.Err()
	})
	if err != nil {
		return content.String(), nil, finish, err
	}

	calls := make([]provider.ToolCall, 0, len(order))
	for _, idx := range order {
		a := accums[idx]
		args := a.args.String()
		if args == "" {
			args = "{}"
		}
		calls = append(calls, provider.ToolCall{ID: a.id, Name: a.name, Arguments: args})
	}
	return content.String(), calls, finish, nil
}

// abort handles cancellation, timeout and provider failure mid-exchange.
// Partial assistant output is persisted tagged as partial so it is never
// mistaken for a complete answer; client cancellation ends quietly while
// every other cause surfaces as an error event.
func (o *Orchestrator) abort(ctx context.Context, convID uuid.UUID, partial string, cause error, emit func(Event), span trace.Span) {
	if partial != "" {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistGrace)
		defer cancel()
		if err := o.store.Append(pctx, convID, []Turn{{Role: provider.RoleAssistant, Content: partial, Partial: true}}); err != nil {
			o.logger.Warn("could not persist partial turn", "conversation_id", convID, "error", err)
		}
	}

	if errors.Is(cause, context.Canceled) {
		o.logger.Info("chat canceled by client", "conversation_id", convID)
		return
	}
	span.RecordError(cause)
	o.logger.Error("chat exchange aborted", "conversation_id", convID, "error", cause)
	emit(Event{Type: EventError, Err: displayError(cause)})
}

// displayError maps internal failures to messages safe to show a user.
func displayError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "the assistant took too long to respond"
	case errors.Is(err, provider.ErrProvider):
		return "the assistant is temporarily unavailable"
	case errors.Is(err, ErrPersistence):
		return "the conversation could not be saved"
	case errors.Is(err, ErrValidation):
		return err.Error()
	default:
		return "something went wrong handling this message"
	}
}

// toolEmitter forwards tool lifecycle callbacks onto the event channel.
type toolEmitter struct {
	emit func(Event)
}

func (e toolEmitter) OnToolStart(name string)    { e.emit(Event{Type: EventToolStart, Tool: name}) }
func (e toolEmitter) OnToolComplete(name string) { e.emit(Event{Type: EventToolDone, Tool: name}) }
func (e toolEmitter) OnToolError(name string)    { e.emit(Event{Type: EventToolFailed, Tool: name}) }
