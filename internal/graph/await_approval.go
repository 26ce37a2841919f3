package graph

import (
	"context"
	"fmt"
)

// runAwaitApproval emits the HITL challenge message and terminates the
// turn. State is already persisted by the
// runtime's dispatch loop; the next user message resumes through Router.
func (rt *Runtime) runAwaitApproval(ctx context.Context, s *GraphState) (NodeName, error) {
	msg := fmt.Sprintf("Approval required (id=%s). Reply with \"APROBAR %s <token>\" or \"RECHAZAR %s\".", s.ApprovalID, s.ApprovalID, s.ApprovalID)

	if rt.cfg.DevMode {
		// Dev-mode convenience: the token is generated and surfaced
		// server-side purely for local testing.
		payload := approvalPayload(s)
		if token, err := rt.tokens.Sign(payload); err == nil {
			msg += fmt.Sprintf(" [dev token: %s]", token)
		}
	} else {
		// Production channel: the token never originates from the
		// reasoning oracle, and never rides the assistant message
		// either — it is signed here and handed to an
		// operator-configured hook (e.g. a webhook Hook registered at
		// HookAwaitApproval) for out-of-band delivery.
		hookData := &HookData{ThreadID: s.ThreadID, UserID: s.UserID, State: s}
		if token, err := rt.tokens.Sign(approvalPayload(s)); err == nil {
			hookData.ApprovalToken = token
		}
		rt.hooks.fire(ctx, HookAwaitApproval, hookData)
	}

	s.PendingMessages = append(s.PendingMessages, msg)
	return NodeEnd, nil
}

// approvalPayload is the binding string a token must sign against:
// thread_id:user_id:approval_hash.
func approvalPayload(s *GraphState) string {
	return s.ThreadID + ":" + s.UserID + ":" + s.ApprovalHash
}
