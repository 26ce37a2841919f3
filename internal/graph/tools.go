package graph

import (
	"context"

	"github.com/rs/zerolog/log"

	phyotel "github.com/crozzbite/phylactery/internal/otel"
)

// runTools invokes the external tool substrate,
// mapping transport/execution errors to status=failed rather than
// propagating them.
func (rt *Runtime) runTools(ctx context.Context, s *GraphState) (NodeName, error) {
	ctx, span := tracer.Start(ctx, "graph.tools")
	defer span.End()

	pt := s.ProposedTool
	if pt == nil {
		return NodeInterpreter, nil
	}

	rt.hooks.fire(ctx, HookPreTool, &HookData{ThreadID: s.ThreadID, UserID: s.UserID, State: s})

	toolCtx := ctx
	var cancel context.CancelFunc
	if rt.cfg.ToolTimeout > 0 {
		toolCtx, cancel = context.WithTimeout(ctx, rt.cfg.ToolTimeout)
		defer cancel()
	}

	out, err := rt.tools.Invoke(toolCtx, pt.Name, pt.Args)
	if err != nil {
		log.Error().Err(err).Str("thread_id", s.ThreadID).Str("tool_name", pt.Name).Func(phyotel.LogTraceFields(ctx)).Msg("graph: tool invocation failed")
		s.LastToolResult = &ToolResult{Status: "failed", Output: err.Error(), Reason: ReasonToolExecutionErr}
	} else if out.Status != "success" {
		s.LastToolResult = &ToolResult{Status: "failed", Output: out.Output, Reason: ReasonToolExecutionErr}
	} else {
		s.LastToolResult = &ToolResult{Status: "success", Output: out.Output}
	}

	rt.audit(ctx, s, auditEntryToolExecuted(pt.Name, pt.ToolCallID, s.LastToolResult.Status))

	rt.hooks.fire(ctx, HookPostTool, &HookData{ThreadID: s.ThreadID, UserID: s.UserID, State: s})
	return NodeInterpreter, nil
}
