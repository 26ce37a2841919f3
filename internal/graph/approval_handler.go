package graph

import (
	"context"
	"time"

	"github.com/crozzbite/phylactery/internal/audit"
)

// runApprovalHandler runs the multi-step validation an APROBAR/RECHAZAR
// reply must pass before a proposed tool call executes. The caller
// (Router) has already confirmed the message matches the strict approval
// wire format.
func (rt *Runtime) runApprovalHandler(ctx context.Context, s *GraphState, latestMessage string) (NodeName, error) {
	ctx, span := tracer.Start(ctx, "graph.approval_handler")
	defer span.End()

	match := matchApproval(latestMessage)

	if match.isReject {
		if match.id != s.ApprovalID {
			return NodeSupervisor, nil
		}
		rt.clearApproval(s)
		s.ProposedTool = nil
		s.LastToolResult = &ToolResult{Status: "failed", Reason: ReasonUserRejected}
		rt.audit(ctx, s, auditEntryApproval(audit.KindApprovalDenied, ReasonUserRejected))
		return NodeSupervisor, nil
	}

	if !match.isApproval {
		return NodeSupervisor, nil
	}

	// 1. id must match.
	if match.id != s.ApprovalID {
		rt.clearApproval(s)
		s.ProposedTool = nil
		s.LastToolResult = &ToolResult{Status: "failed", Reason: ReasonApprovalInvalid}
		rt.audit(ctx, s, auditEntryApproval(audit.KindApprovalDenied, ReasonApprovalInvalid))
		return NodeSupervisor, nil
	}

	// 2. must not have expired.
	if rt.nowFn().Unix() > s.ApprovalExpiresAt {
		rt.clearApproval(s)
		s.ProposedTool = nil
		s.LastToolResult = &ToolResult{Status: "failed", Reason: ReasonApprovalExpired}
		rt.audit(ctx, s, auditEntryApproval(audit.KindApprovalDenied, ReasonApprovalExpired))
		return NodeSupervisor, nil
	}

	// 3. reconstruct the binding payload.
	payload := approvalPayload(s)

	// 4. single atomic call covers signature, freshness, and anti-replay.
	maxAge := time.Duration(rt.cfg.ApprovalTTLSeconds) * time.Second
	if !rt.tokens.VerifyAndConsume(match.token, payload, maxAge) {
		// Invariant 1: proposed_tool must be null whenever the
		// next node is not RiskGate/AwaitApproval/ApprovalHandler/Tools —
		// a rejected token cannot leave the proposal live for a Supervisor
		// retry to stumble back into.
		rt.clearApproval(s)
		s.ProposedTool = nil
		s.LastToolResult = &ToolResult{Status: "failed", Reason: ReasonApprovalInvalid}
		rt.audit(ctx, s, auditEntryApproval(audit.KindApprovalDenied, ReasonApprovalInvalid))
		return NodeSupervisor, nil
	}

	// 5. success: clear approval fields, leave proposed_tool intact.
	rt.clearApproval(s)
	rt.audit(ctx, s, auditEntryApproval(audit.KindApprovalGranted, ""))
	return NodeTools, nil
}

func (rt *Runtime) clearApproval(s *GraphState) {
	s.AwaitingApproval = false
	s.ApprovalID = ""
	s.ApprovalHash = ""
	s.ApprovalExpiresAt = 0
}
