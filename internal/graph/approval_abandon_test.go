package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crozzbite/phylactery/internal/oracle"
	"github.com/crozzbite/phylactery/internal/risk"
)

// TestInvoke_UnrelatedMessageDuringApprovalAbandonsPendingProposal verifies
// that when a pending approval is abandoned (Router's "treated as new
// info" row), the stale approval_id/approval_hash cannot later be
// satisfied by the token that was issued for the superseded proposal.
func TestInvoke_UnrelatedMessageDuringApprovalAbandonsPendingProposal(t *testing.T) {
	planner := &fakePlanner{steps: []oracle.StepDescriptor{{Description: "write then read"}}}
	executor := &fakeExecutor{proposals: []oracle.ToolProposal{
		{Name: "write_file", Args: map[string]any{"path": "a", "content": "hi"}},
		{Name: "read_file", Args: map[string]any{}},
	}}
	tools := &fakeTools{output: "done"}

	rt := testRuntime(t, planner, executor, tools, risk.DefaultConfig())
	rt.cfg.DevMode = true

	res, err := rt.Invoke(context.Background(), "t9", "u1", "please write a file", IntentTask)
	require.NoError(t, err)
	require.True(t, res.AwaitingApproval)

	raw, err := rt.stateStore.Restore(context.Background(), "t9")
	require.NoError(t, err)
	s := loadStateForTest(t, raw)
	staleID := s.ApprovalID

	tok, err := rt.tokens.Sign(approvalPayload(s))
	require.NoError(t, err)

	// Unrelated follow-up, not an APROBAR/RECHAZAR message: Router sends
	// this to Supervisor as new info, abandoning the pending write_file
	// approval. The retried proposal (read_file) needs no approval, so
	// the turn now runs to completion instead of pausing again.
	res2, err := rt.Invoke(context.Background(), "t9", "u1", "actually never mind, what's the weather", IntentTask)
	require.NoError(t, err)
	assert.False(t, res2.AwaitingApproval)

	raw2, err := rt.stateStore.Restore(context.Background(), "t9")
	require.NoError(t, err)
	s2 := loadStateForTest(t, raw2)
	assert.Empty(t, s2.ApprovalID)
	assert.Empty(t, s2.ApprovalHash)
	assert.Nil(t, s2.ProposedTool)

	// The token minted for the abandoned write_file proposal must not
	// still be usable: the approval_id it names is gone, and there is no
	// longer any pending approval for ApprovalHandler to route through.
	res3, err := rt.Invoke(context.Background(), "t9", "u1", "APROBAR "+staleID+" "+tok, IntentTask)
	require.NoError(t, err)
	assert.False(t, res3.AwaitingApproval)
	assert.False(t, rt.tokens.IsUsed(tok), "a token for an abandoned proposal must never be consumed")
}
