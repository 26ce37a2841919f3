package graph

import (
	"context"
	"fmt"
)

// runFinalizer composes an assistant message from accumulated results and
// terminates the turn.
func (rt *Runtime) runFinalizer(ctx context.Context, s *GraphState) (NodeName, error) {
	ctx, span := tracer.Start(ctx, "graph.finalizer")
	defer span.End()

	msg := finalMessage(s)
	s.Messages = append(s.Messages, Message{Role: "assistant", Content: msg})
	s.PendingMessages = append(s.PendingMessages, msg)

	rt.hooks.fire(ctx, HookPostFinalize, &HookData{ThreadID: s.ThreadID, UserID: s.UserID, State: s})
	return NodeEnd, nil
}

func finalMessage(s *GraphState) string {
	if s.Intent == IntentConversation {
		return "Acknowledged."
	}

	if len(s.Plan) == 0 {
		return "I wasn't able to form a plan for that request."
	}

	if s.CurrentStep < len(s.Plan) && s.StepStatus[s.CurrentStep] == StepFailed {
		result := s.LastToolResult
		reason := "unknown error"
		if result != nil && result.Reason != "" {
			reason = result.Reason
		}
		return fmt.Sprintf("Step %d (%s) failed: %s", s.CurrentStep, s.Plan[s.CurrentStep].Description, reason)
	}

	return "Done."
}
