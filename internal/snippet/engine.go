package snippet

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
)

// Engine evaluates server-logic snippets.
//
// TRUST BOUNDARY. Snippet code is operator-supplied and runs inside the agent
// process. The sandbox below is the primary containment for that code: each
// run gets a fresh goja interpreter with no host bindings beyond an output
// collector, a hard wall-clock interrupt, and a recover around the whole
// evaluation. Nothing a snippet does may abort the host request; every
// failure is converted to an error for the caller to log and discard.
type Engine struct {
	timeout time.Duration
}

const defaultEvalTimeout = 2 * time.Second

// NewEngine creates a sandboxed evaluator with the given per-run timeout.
func NewEngine(timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = defaultEvalTimeout
	}
	return &Engine{timeout: timeout}
}

// Run evaluates code in an isolated scope and returns anything it printed via
// the provided emit(...) function plus the final expression value.
func (e *Engine) Run(ctx context.Context, code string) (output string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("snippet panicked: %v", r)
		}
	}()

	vm := goja.New()
	var buf strings.Builder
	if err := vm.Set("emit", func(call goja.FunctionCall) goja.Value {
		for _, arg := range call.Arguments {
			buf.WriteString(arg.String())
		}
		return goja.Undefined()
	}); err != nil {
		return "", err
	}

	timer := time.AfterFunc(e.timeout, func() {
		vm.Interrupt("execution time limit exceeded")
	})
	defer timer.Stop()
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < e.timeout {
		timer.Reset(time.Until(deadline))
	}

	value, err := vm.RunString(code)
	if err != nil {
		return "", fmt.Errorf("snippet evaluation failed: %w", err)
	}
	if value != nil && !goja.IsUndefined(value) && !goja.IsNull(value) {
		buf.WriteString(value.String())
	}
	return buf.String(), nil
}
