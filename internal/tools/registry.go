// Package tools holds the closed capability table the orchestrator may
// dispatch into. Definitions are advertised verbatim to the model provider;
// dispatch is an exact-match lookup by name.
package tools

import (
	"context"
	"fmt"
)

// Schema field types use the provider's uppercase convention.
const (
	TypeObject  = "OBJECT"
	TypeString  = "STRING"
	TypeInteger = "INTEGER"
)

// Property describes one named parameter.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Schema is the JSON parameter schema of one tool.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// Definition is the immutable advertised surface of a capability.
type Definition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  Schema `json:"parameters"`
}

// Result is the typed outcome of a handler. Exactly one of Text or Err is
// meaningful; handlers never panic to signal failure.
type Result struct {
	Text string
	Err  error
}

// Ok builds a success result.
func Ok(text string) Result { return Result{Text: text} }

// Okf builds a formatted success result.
func Okf(format string, args ...any) Result { return Result{Text: fmt.Sprintf(format, args...)} }

// Fail builds a failure result.
func Fail(err error) Result { return Result{Err: err} }

// Failf builds a formatted failure result.
func Failf(format string, args ...any) Result { return Result{Err: fmt.Errorf(format, args...)} }

// Handler executes a capability with the model-provided arguments.
type Handler func(ctx context.Context, args Args) Result

type entry struct {
	def     Definition
	handler Handler
}

// Registry is the static name -> handler capability table. It is built once
// at startup; duplicate names fail registration immediately.
type Registry struct {
	entries map[string]entry
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register binds a definition to its handler. The name set is closed after
// startup; a duplicate name is a programming error surfaced immediately.
func (r *Registry) Register(def Definition, handler Handler) error {
	if def.Name == "" {
		return fmt.Errorf("tools: definition without a name")
	}
	if handler == nil {
		return fmt.Errorf("tools: nil handler for %q", def.Name)
	}
	if _, exists := r.entries[def.Name]; exists {
		return fmt.Errorf("tools: duplicate tool %q", def.Name)
	}
	r.entries[def.Name] = entry{def: def, handler: handler}
	r.order = append(r.order, def.Name)
	return nil
}

// Declarations returns all advertised definitions in registration order.
// Core and privileged groups are merged into one flat list; authorization is
// enforced at handler level, not at advertisement level.
func (r *Registry) Declarations() []Definition {
	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.entries[name].def)
	}
	return defs
}

// Dispatch runs the named tool. The second return value reports whether the
// name was registered; an unknown name is not an error condition.
func (r *Registry) Dispatch(ctx context.Context, name string, args Args) (Result, bool) {
	e, ok := r.entries[name]
	if !ok {
		return Result{}, false
	}
	return e.handler(ctx, args), true
}
