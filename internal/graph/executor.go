package graph

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/crozzbite/phylactery/internal/canon"
	"github.com/crozzbite/phylactery/internal/dlp"
	phyotel "github.com/crozzbite/phylactery/internal/otel"
)

// runExecutor calls the reasoning oracle, then computes
// canonical_args/args_hash in the runtime — never trusted from the oracle.
func (rt *Runtime) runExecutor(ctx context.Context, s *GraphState) (NodeName, error) {
	ctx, span := tracer.Start(ctx, "graph.executor")
	defer span.End()

	stepDesc := ""
	if s.CurrentStep < len(s.Plan) {
		stepDesc = s.Plan[s.CurrentStep].Description
	}

	proposal, err := rt.executor.ProposeTool(ctx, stepDesc, transcriptLines(s.Messages))
	if err != nil {
		log.Error().Err(err).Str("thread_id", s.ThreadID).Func(phyotel.LogTraceFields(ctx)).Msg("graph: executor oracle failed")
		s.LastToolResult = &ToolResult{Status: "failed", Output: err.Error(), Reason: ReasonOracleFailure}
		return NodeInterpreter, nil
	}

	// Oracle output is never trusted: strip markup from every
	// string leaf before it reaches the Canonicalizer or Risk Engine.
	sanitizedArgs := dlp.SanitizeArgs(proposal.Args)

	canonicalArgs, argsHash, err := canon.CanonicalizeAndHash(sanitizedArgs)
	if err != nil {
		log.Error().Err(err).Str("thread_id", s.ThreadID).Func(phyotel.LogTraceFields(ctx)).Msg("graph: canonicalizing proposed args failed")
		s.LastToolResult = &ToolResult{Status: "failed", Output: err.Error(), Reason: ReasonIntegrityMismatch}
		return NodeInterpreter, nil
	}

	s.ProposedTool = &ProposedTool{
		Name:          proposal.Name,
		Args:          sanitizedArgs,
		CanonicalArgs: canonicalArgs,
		ArgsHash:      argsHash,
		ToolCallID:    newToolCallID(),
		StepIdx:       s.CurrentStep,
		CreatedAt:     rt.nowFn().Unix(),
	}
	return NodeRiskGate, nil
}

func transcriptLines(messages []Message) []string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}
	return lines
}
