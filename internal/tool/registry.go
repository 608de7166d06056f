package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/corvus-ai/corvid/internal/log"
	"github.com/corvus-ai/corvid/internal/provider"
)

// Result is what the model receives for every dispatched call. OK is
// false for unknown tools, rejected arguments, handler errors and
// panics; Error then carries a short message the model can react to.
type Result struct {
	OK      bool   `json:"ok"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Registry holds the tool set for one deployment. It is populated during
// startup and read-only afterwards, so dispatch needs no locking.
type Registry struct {
	defs   map[string]*Definition
	order  []string
	logger log.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger log.Logger) *Registry {
	return &Registry{
		defs:   make(map[string]*Definition),
		logger: logger,
	}
}

// Register adds definitions. Names must be unique across the registry.
func (r *Registry) Register(defs ...*Definition) error {
	for _, d := range defs {
		if d.Name == "" {
			return fmt.Errorf("tool: registration with empty name")
		}
		if _, exists := r.defs[d.Name]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicate, d.Name)
		}
		r.defs[d.Name] = d
		r.order = append(r.order, d.Name)
	}
	return nil
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len reports how many tools are registered.
func (r *Registry) Len() int { return len(r.defs) }

// Schemas returns the tool declarations to advertise to the model, in
// registration order.
func (r *Registry) Schemas() []provider.ToolSchema {
	out := make([]provider.ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		d := r.defs[name]
		out = append(out, provider.ToolSchema{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Schema,
		})
	}
	return out
}

// Execute dispatches one tool call. It never panics and never returns an
// error: every failure mode is folded into the Result so a hallucinated
// tool name or bad arguments cannot abort the conversation. Lifecycle
// events go to the Emitter in ctx, if any.
func (r *Registry) Execute(ctx context.Context, tenant, name string, args json.RawMessage) (res Result) {
	emitter := EmitterFromContext(ctx)
	if emitter != nil {
		emitter.OnToolStart(name)
		defer func() {
			if res.OK {
				emitter.OnToolComplete(name)
			} else {
				emitter.OnToolError(name)
			}
		}()
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("tool panicked", "tool", name, "panic", p)
			res = Result{Error: fmt.Sprintf("tool %s failed", name)}
		}
	}()

	def, ok := r.defs[name]
	if !ok {
		r.logger.Warn("unknown tool requested", "tool", name)
		return Result{Error: fmt.Sprintf("unknown tool: %s", name)}
	}

	payload, err := def.handler(ctx, tenant, args)
	if err != nil {
		r.logger.Warn("tool failed", "tool", name, "tenant", tenant, "error", err)
		return Result{Error: err.Error()}
	}
	return Result{OK: true, Payload: payload}
}
