// Package oracle defines the Planner/Executor/Tools oracle interfaces
// treated as opaque external collaborators (ProposeStep/ProposeTool/
// Invoke), plus a concrete LLM-backed implementation built on the
// internal/llm Provider interface.
package oracle

import "context"

// StepDescriptor is one ordered step in a plan.
type StepDescriptor struct {
	Index       int    `json:"index"`
	Description string `json:"description"`
}

// ToolProposal is the oracle's untrusted claim about which tool to call
// and with what arguments. The Graph Runtime never trusts args_hash from
// here — Canonicalizer/RiskGate recompute it.
type ToolProposal struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ToolOutput is the raw result of invoking a tool, before Interpreter
// eviction/accounting.
type ToolOutput struct {
	Status string // "success" or "failed"
	Output string
}

// PlannerOracle proposes an ordered step list for a task-intent message.
type PlannerOracle interface {
	ProposeStep(ctx context.Context, latestMessage string, skillContext []string) ([]StepDescriptor, error)
}

// ExecutorOracle proposes the next tool call for the current step.
type ExecutorOracle interface {
	ProposeTool(ctx context.Context, stepDescription string, history []string) (ToolProposal, error)
}

// ToolSubstrate invokes a named tool with arguments and returns raw
// output → {status, output}").
type ToolSubstrate interface {
	Invoke(ctx context.Context, name string, args map[string]any) (ToolOutput, error)
}
