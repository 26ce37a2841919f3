package graph

import (
	"context"

	"github.com/crozzbite/phylactery/internal/audit"
)

// runSupervisor advances past a done step, fails out a step that has
// exhausted its retries, or bumps the try counter and hands off to
// Executor.
//
// Router sends a stale-approval thread here whenever the latest message
// doesn't match the APROBAR/RECHAZAR wire format ("treated as new info").
// That proposal is abandoned rather than answered,
// so the pending approval and its proposed_tool are cleared here before
// anything else runs — otherwise awaiting_approval would survive with an
// approval_hash bound to a proposal Executor is about to replace, and a
// later replay of the original (unconsumed) token would satisfy
// ApprovalHandler against a proposed_tool that is no longer the one it
// was issued for.
func (rt *Runtime) runSupervisor(ctx context.Context, s *GraphState) (NodeName, error) {
	ctx, span := tracer.Start(ctx, "graph.supervisor")
	defer span.End()

	if s.AwaitingApproval {
		rt.clearApproval(s)
		s.ProposedTool = nil
		rt.audit(ctx, s, auditEntryApproval(audit.KindApprovalDenied, ReasonApprovalAbandoned))
	}

	if s.CurrentStepStatus() == StepDone {
		s.CurrentStep++
		if s.CurrentStep >= len(s.Plan) {
			return NodeFinalizer, nil
		}
		return NodeSupervisor, nil
	}

	if s.Tries[s.CurrentStep] >= rt.cfg.MaxTries {
		s.StepStatus[s.CurrentStep] = StepFailed
		rt.audit(ctx, s, auditEntryStepExhausted(s.CurrentStep))
		return NodeFinalizer, nil
	}

	s.Tries[s.CurrentStep]++
	return NodeExecutor, nil
}
