// Package agent holds the command orchestrator: one natural-language prompt
// in, one agent-readable text answer out. The orchestrator owns the audit
// trail around tool execution; tools themselves stay audit-free.
package agent

import (
	"context"
	"fmt"

	"steward.run/internal/audit"
	"steward.run/internal/auth"
	"steward.run/internal/gemini"
	"steward.run/internal/obs"
	"steward.run/internal/tools"
)

const systemInstruction = `You are an Autonomous Utility Agent powered by Gemini. Use "configure_smtp" to set up email. Use "broadcast_newsletter" to email all subscribers. Assume the largest scope for commands.`

// Provider is the model backend the orchestrator consults.
type Provider interface {
	Generate(ctx context.Context, req gemini.Request) (*gemini.Response, error)
}

// Orchestrator routes one prompt through the provider and dispatches at most
// one tool call per command.
type Orchestrator struct {
	provider Provider
	registry *tools.Registry
	trail    audit.Store
}

// New wires the orchestrator. A nil provider is allowed; commands then fail
// with ErrConfigMissing until a credential is configured.
func New(provider Provider, registry *tools.Registry, trail audit.Store) *Orchestrator {
	return &Orchestrator{provider: provider, registry: registry, trail: trail}
}

// Handle runs one command for the operator bound to ctx. Tool failures are
// contained: they come back as text for the operator, not as errors. An error
// return means the command itself could not run.
func (o *Orchestrator) Handle(ctx context.Context, prompt string) (string, error) {
	op, ok := auth.OperatorFromContext(ctx)
	if !ok || !op.IsAdmin() {
		obs.ObserveCommand("unauthorized")
		return "", ErrUnauthorized
	}
	if o.provider == nil {
		obs.ObserveCommand("config_missing")
		return "", ErrConfigMissing
	}

	resp, err := o.provider.Generate(ctx, gemini.Request{
		Prompt:            prompt,
		Declarations:      o.registry.Declarations(),
		SystemInstruction: systemInstruction,
	})
	if err != nil {
		obs.ObserveCommand("provider_error")
		return "", err
	}

	if resp.FunctionCall != nil {
		return o.execute(ctx, op, resp.FunctionCall.Name, resp.FunctionCall.Args), nil
	}
	obs.ObserveCommand("text")
	return resp.Text, nil
}

// execute runs one dispatched tool under an audit record. The record is
// appended PENDING before the tool runs; an unknown tool name leaves it
// PENDING as the trace of the attempt.
func (o *Orchestrator) execute(ctx context.Context, op auth.Operator, name string, args tools.Args) string {
	rec := audit.NewRecord(op.ID, name, args)
	if err := o.trail.Append(ctx, rec); err != nil {
		obs.LogEvent(map[string]any{
			"type":  "agent",
			"event": "audit.append_failed",
			"tool":  name,
			"error": err.Error(),
		})
	}

	result, found := o.registry.Dispatch(ctx, name, args)
	if !found {
		obs.ObserveCommand("tool_unknown")
		obs.ObserveToolExecution(name, "unknown")
		return fmt.Sprintf("Error: Unknown tool %s", name)
	}

	if result.Err != nil {
		rec.Status = audit.StatusFailed
		rec.Details = audit.BoundDetails(result.Err.Error())
		o.update(ctx, rec)
		obs.ObserveCommand("tool_failed")
		obs.ObserveToolExecution(name, "failed")
		return fmt.Sprintf("Error executing %s: %s", name, result.Err.Error())
	}

	rec.Status = audit.StatusSuccess
	rec.Details = audit.BoundDetails("Result: " + result.Text)
	o.update(ctx, rec)
	obs.ObserveCommand("tool_success")
	obs.ObserveToolExecution(name, "success")
	return result.Text
}

func (o *Orchestrator) update(ctx context.Context, rec *audit.Record) {
	if err := o.trail.Update(ctx, rec); err != nil {
		obs.LogEvent(map[string]any{
			"type":  "agent",
			"event": "audit.update_failed",
			"id":    rec.ID,
			"error": err.Error(),
		})
	}
}
