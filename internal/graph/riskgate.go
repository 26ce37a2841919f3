package graph

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/crozzbite/phylactery/internal/canon"
	phyotel "github.com/crozzbite/phylactery/internal/otel"
	"github.com/crozzbite/phylactery/internal/risk"
)

// runRiskGate is the zero-trust chokepoint: it
// never trusts canonical_args/args_hash from Executor, recomputes both,
// and is the sole place a ProposedTool may be blocked or escalated to
// human approval.
func (rt *Runtime) runRiskGate(ctx context.Context, s *GraphState) (NodeName, error) {
	ctx, span := tracer.Start(ctx, "graph.risk_gate")
	defer span.End()

	rt.hooks.fire(ctx, HookPreRiskGate, &HookData{ThreadID: s.ThreadID, UserID: s.UserID, State: s})

	pt := s.ProposedTool
	if pt == nil {
		return NodeInterpreter, nil
	}

	if err := rt.circuit.Check(s.ThreadID); err != nil {
		s.ProposedTool = nil
		s.StepStatus[s.CurrentStep] = StepFailed
		s.LastToolResult = &ToolResult{Status: "failed", Reason: ReasonCircuitOpen}
		rt.audit(ctx, s, auditEntryCircuitOpen())
		return NodeFinalizer, nil
	}

	canonicalPrime, hashPrime, err := canon.CanonicalizeAndHash(pt.Args)
	if err != nil || canonicalPrime != pt.CanonicalArgs || hashPrime != pt.ArgsHash {
		if err != nil {
			log.Error().Err(err).Str("thread_id", s.ThreadID).Func(phyotel.LogTraceFields(ctx)).Msg("graph: re-canonicalizing proposed args failed")
		}
		s.ProposedTool = nil
		s.LastToolResult = &ToolResult{Status: "failed", Reason: ReasonIntegrityMismatch}
		rt.audit(ctx, s, auditEntryIntegrityFail(pt.Name))
		return NodeInterpreter, nil
	}

	assessment := rt.risk.Evaluate(ctx, pt.Name, canonicalPrime, pt.Args, risk.EvalInput{
		RunningCostEstimate: s.RunningCostEstimate,
	})
	rt.audit(ctx, s, auditEntryRiskEval(pt.Name, string(assessment.Decision), assessment.Reason))
	rt.hooks.fire(ctx, HookPostRiskGate, &HookData{ThreadID: s.ThreadID, UserID: s.UserID, State: s})

	switch assessment.Decision {
	case risk.DecisionBlocked:
		rt.circuit.RecordBlocked(s.ThreadID)
		s.ProposedTool = nil
		s.LastToolResult = &ToolResult{Status: "failed", Reason: assessment.Reason}
		return NodeInterpreter, nil
	case risk.DecisionAuthRequired:
		rt.circuit.RecordAllowed(s.ThreadID)
		s.ApprovalID = randomID(8)
		s.ApprovalHash = hashPrime
		s.ApprovalExpiresAt = rt.nowFn().Unix() + rt.cfg.ApprovalTTLSeconds
		s.AwaitingApproval = true
		return NodeAwaitApproval, nil
	default: // Allow
		rt.circuit.RecordAllowed(s.ThreadID)
		return NodeTools, nil
	}
}
