package graph

import (
	"context"
	"strconv"

	"github.com/crozzbite/phylactery/internal/evict"
)

// runInterpreter evicts oversized output, updates step status, and clears
// proposed_tool (the double-execution prevention invariant) before routing
// back to Supervisor.
func (rt *Runtime) runInterpreter(ctx context.Context, s *GraphState) (NodeName, error) {
	ctx, span := tracer.Start(ctx, "graph.interpreter")
	defer span.End()

	result := s.LastToolResult
	if result == nil {
		result = &ToolResult{Status: "failed"}
		s.LastToolResult = result
	}

	size := len(result.Output)
	result.SizeChars = size

	if size > evict.Threshold {
		pointer, err := rt.evictStore.Save(ctx, s.ThreadID, result.Output)
		if err != nil {
			result.Status = "failed"
			result.Reason = "PathEscape"
		} else {
			summary := result.Output
			if len(summary) > 500 {
				summary = summary[:500]
			}
			result.Summary = summary
			result.Output = evictedPlaceholder(size, pointer)
			result.Evicted = true
			result.Pointer = pointer
			result.RehydrationAllowed = size <= evict.RehydrationLimit
		}
	} else {
		result.Evicted = false
		result.RehydrationAllowed = true
	}

	if result.Status == "success" {
		s.StepStatus[s.CurrentStep] = StepDone
	} else {
		s.StepStatus[s.CurrentStep] = StepFailed
	}

	s.ProposedTool = nil
	return NodeSupervisor, nil
}

func evictedPlaceholder(size int, pointer string) string {
	return "[EVICTED size=" + strconv.Itoa(size) + "] " + pointer
}
