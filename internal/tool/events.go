package tool

import "context"

// Emitter receives tool lifecycle notifications during dispatch. The
// orchestrator installs one so the client can render tool activity while
// the model is otherwise silent.
type Emitter interface {
	OnToolStart(name string)
	OnToolComplete(name string)
	OnToolError(name string)
}

type emitterKey struct{}

// ContextWithEmitter attaches an Emitter to ctx.
func ContextWithEmitter(ctx context.Context, e Emitter) context.Context {
	return context.WithValue(ctx, emitterKey{}, e)
}

// EmitterFromContext returns the Emitter in ctx, or nil. A nil emitter
// degrades dispatch to silent execution, which is what non-streaming
// callers want.
func EmitterFromContext(ctx context.Context) Emitter {
	e, _ := ctx.Value(emitterKey{}).(Emitter)
	return e
}
