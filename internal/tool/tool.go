// Package tool defines the tool registry the conversation orchestrator
// dispatches model tool calls through.
//
// Tools are declared once at startup with typed inputs; the JSON schema
// the model sees is inferred from the input struct, and arguments are
// validated against that same schema before the handler runs. Dispatch
// never propagates a failure: unknown tools, bad arguments, handler
// errors and panics all come back as a Result the model can read.
package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

var (
	// ErrBadArguments reports tool arguments rejected by schema
	// validation or JSON decoding.
	ErrBadArguments = errors.New("tool: invalid arguments")

	// ErrDuplicate reports a second registration under an existing name.
	ErrDuplicate = errors.New("tool: duplicate registration")
)

// Handler executes a tool for one tenant. args is the raw JSON argument
// object from the model.
type Handler func(ctx context.Context, tenant string, args json.RawMessage) (any, error)

// Definition is a registered tool: metadata for the model plus the
// validated handler.
type Definition struct {
	Name        string
	Description string
	Schema      *jsonschema.Schema

	handler Handler
}

// New builds a Definition with a typed input. The input schema is
// inferred from In's struct tags; arguments are schema-validated and then
// decoded into In before fn runs.
func New[In any](name, description string, fn func(ctx context.Context, tenant string, in In) (any, error)) (*Definition, error) {
	schema, err := jsonschema.For[In](nil)
	if err != nil {
		return nil, fmt.Errorf("tool %s: infer schema: %w", name, err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("tool %s: resolve schema: %w", name, err)
	}

	handler := func(ctx context.Context, tenant string, args json.RawMessage) (any, error) {
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		var generic any
		if err := json.Unmarshal(args, &generic); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadArguments, err)
		}
		if err := resolved.Validate(generic); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadArguments, err)
		}
		var in In
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadArguments, err)
		}
		return fn(ctx, tenant, in)
	}

	return &Definition{
		Name:        name,
		Description: description,
		Schema:      schema,
		handler:     handler,
	}, nil
}

// MustNew is New for static tool declarations where a schema error is a
// programming bug.
func MustNew[In any](name, description string, fn func(ctx context.Context, tenant string, in In) (any, error)) *Definition {
	d, err := New(name, description, fn)
	if err != nil {
		panic(err)
	}
	return d
}
