package graph

import (
	"github.com/crozzbite/phylactery/internal/audit"
)

func auditEntryPlannerFailed(err error) audit.Entry {
	return audit.Entry{
		Kind:   audit.KindNodeTransition,
		Reason: ReasonOracleFailure,
		Extra:  map[string]any{"node": "planner", "error": err.Error()},
	}
}

func auditEntryRiskEval(toolName, decision, reason string) audit.Entry {
	kind := audit.KindToolRiskEval
	if reason == "HONEYTOKEN_TRIGGERED" {
		kind = audit.KindHoneypotTrigger
	}
	return audit.Entry{
		Kind:     kind,
		ToolName: toolName,
		Decision: decision,
		Reason:   reason,
	}
}

func auditEntryIntegrityFail(toolName string) audit.Entry {
	return audit.Entry{
		Kind:     audit.KindIntegrityFail,
		ToolName: toolName,
		Decision: "blocked",
		Reason:   ReasonIntegrityMismatch,
	}
}

func auditEntryApproval(kind audit.Kind, reason string) audit.Entry {
	return audit.Entry{Kind: kind, Reason: reason}
}

func auditEntryStepExhausted(stepIdx int) audit.Entry {
	return audit.Entry{
		Kind:   audit.KindNodeTransition,
		Reason: ReasonRetriesExhausted,
		Extra:  map[string]any{"step_idx": stepIdx},
	}
}

func auditEntryCircuitOpen() audit.Entry {
	return audit.Entry{
		Kind:   audit.KindNodeTransition,
		Reason: ReasonCircuitOpen,
	}
}

func auditEntryToolExecuted(toolName, toolCallID, status string) audit.Entry {
	return audit.Entry{
		Kind:       audit.KindToolExecuted,
		ToolName:   toolName,
		ToolCallID: toolCallID,
		Decision:   status,
	}
}
