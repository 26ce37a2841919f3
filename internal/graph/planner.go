package graph

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/crozzbite/phylactery/internal/dlp"
	phyotel "github.com/crozzbite/phylactery/internal/otel"
)

// runPlanner calls the Planner oracle with the latest message and seeds
// plan/step_status/tries.
func (rt *Runtime) runPlanner(ctx context.Context, s *GraphState, latestMessage string) (NodeName, error) {
	ctx, span := tracer.Start(ctx, "graph.planner")
	defer span.End()

	steps, err := rt.planner.ProposeStep(ctx, latestMessage, nil)
	if err != nil {
		// OracleFailure: treated as a failed step, not a fatal runtime error.
		log.Error().Err(err).Str("thread_id", s.ThreadID).Func(phyotel.LogTraceFields(ctx)).Msg("graph: planner oracle failed")
		s.LastToolResult = &ToolResult{Status: "failed", Reason: ReasonOracleFailure}
		rt.audit(ctx, s, auditEntryPlannerFailed(err))
		return NodeFinalizer, nil
	}
	if len(steps) == 0 {
		s.LastToolResult = &ToolResult{Status: "failed", Reason: ReasonOracleFailure}
		rt.audit(ctx, s, auditEntryPlannerFailed(fmt.Errorf("empty plan")))
		return NodeFinalizer, nil
	}

	plan := make([]StepDescriptor, len(steps))
	stepStatus := make(map[int]StepStatus, len(steps))
	tries := make(map[int]int, len(steps))
	for i, st := range steps {
		plan[i] = StepDescriptor{Index: i, Description: dlp.SanitizeText(st.Description)}
		stepStatus[i] = StepPending
		tries[i] = 0
	}

	s.Plan = plan
	s.CurrentStep = 0
	s.StepStatus = stepStatus
	s.Tries = tries

	return NodeSupervisor, nil
}
