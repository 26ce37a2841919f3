package graph

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crozzbite/phylactery/internal/audit"
	"github.com/crozzbite/phylactery/internal/dlp"
	"github.com/crozzbite/phylactery/internal/evict"
	"github.com/crozzbite/phylactery/internal/lock"
	"github.com/crozzbite/phylactery/internal/oracle"
	"github.com/crozzbite/phylactery/internal/risk"
	"github.com/crozzbite/phylactery/internal/state"
	"github.com/crozzbite/phylactery/internal/token"
)

// fakePlanner returns a fixed plan regardless of input, or an error when
// failOn is set (OracleFailure scenario).
type fakePlanner struct {
	steps  []oracle.StepDescriptor
	errOut error
}

func (f *fakePlanner) ProposeStep(ctx context.Context, latestMessage string, skillContext []string) ([]oracle.StepDescriptor, error) {
	if f.errOut != nil {
		return nil, f.errOut
	}
	return f.steps, nil
}

// fakeExecutor serves a queue of proposals, one per call.
type fakeExecutor struct {
	proposals []oracle.ToolProposal
	i         int
	errOut    error
}

func (f *fakeExecutor) ProposeTool(ctx context.Context, stepDescription string, history []string) (oracle.ToolProposal, error) {
	if f.errOut != nil {
		return oracle.ToolProposal{}, f.errOut
	}
	if f.i >= len(f.proposals) {
		return f.proposals[len(f.proposals)-1], nil
	}
	p := f.proposals[f.i]
	f.i++
	return p, nil
}

// fakeTools always succeeds, echoing args["content"] or a fixed string.
type fakeTools struct {
	output string
	status string
}

func (f *fakeTools) Invoke(ctx context.Context, name string, args map[string]any) (oracle.ToolOutput, error) {
	status := f.status
	if status == "" {
		status = "success"
	}
	return oracle.ToolOutput{Status: status, Output: f.output}, nil
}

func testRuntime(t *testing.T, planner oracle.PlannerOracle, executor oracle.ExecutorOracle, tools oracle.ToolSubstrate, riskCfg risk.Config) *Runtime {
	t.Helper()
	dir := t.TempDir()

	secret := randHex(t, 32)
	tokens, err := token.NewManager(secret, "")
	require.NoError(t, err)

	scanner, err := dlp.NewScanner()
	require.NoError(t, err)

	riskEngine, err := risk.NewEngine(context.Background(), riskCfg, scanner)
	require.NoError(t, err)

	auditLog, err := audit.Open(filepath.Join(dir, "audit.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = auditLog.Close() })

	evictStore, err := evict.NewStore(filepath.Join(dir, "evictions"))
	require.NoError(t, err)

	stateStore, err := state.Open(filepath.Join(dir, "state.db"), randHex(t, 32))
	require.NoError(t, err)
	t.Cleanup(func() { _ = stateStore.Close() })

	locks := lock.NewManager(0)

	cfg := DefaultConfig()
	return New(cfg, tokens, riskEngine, auditLog, evictStore, stateStore, locks, planner, executor, tools, nil)
}

func randHex(t *testing.T, n int) string {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return hex.EncodeToString(b)
}

func TestInvoke_ConversationIntentShortcut(t *testing.T) {
	rt := testRuntime(t, &fakePlanner{}, &fakeExecutor{}, &fakeTools{}, risk.DefaultConfig())

	res, err := rt.Invoke(context.Background(), "t1", "u1", "hello there", IntentConversation)
	require.NoError(t, err)
	assert.False(t, res.AwaitingApproval)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, "Acknowledged.", res.Messages[0])
}

func TestInvoke_AllowedToolRunsToCompletion(t *testing.T) {
	planner := &fakePlanner{steps: []oracle.StepDescriptor{{Description: "read a file"}}}
	executor := &fakeExecutor{proposals: []oracle.ToolProposal{{Name: "list_dir", Args: map[string]any{"path": "a"}}}}
	tools := &fakeTools{output: "ok"}

	rt := testRuntime(t, planner, executor, tools, risk.DefaultConfig())

	res, err := rt.Invoke(context.Background(), "t2", "u1", "please list files", IntentTask)
	require.NoError(t, err)
	assert.False(t, res.AwaitingApproval)
	require.NotEmpty(t, res.Messages)
	assert.Equal(t, "Done.", res.Messages[len(res.Messages)-1])
}

func TestInvoke_HITLApprovalFlow(t *testing.T) {
	planner := &fakePlanner{steps: []oracle.StepDescriptor{{Description: "write a file"}}}
	executor := &fakeExecutor{proposals: []oracle.ToolProposal{{Name: "write_file", Args: map[string]any{"path": "a", "content": "hi"}}}}
	tools := &fakeTools{output: "wrote"}

	rt := testRuntime(t, planner, executor, tools, risk.DefaultConfig())
	rt.cfg.DevMode = true

	res, err := rt.Invoke(context.Background(), "t3", "u1", "please write a file", IntentTask)
	require.NoError(t, err)
	assert.True(t, res.AwaitingApproval)
	require.Len(t, res.Messages, 1)
	assert.Contains(t, res.Messages[0], "Approval required")
	assert.Contains(t, res.Messages[0], "dev token:")

	// Extract the approval_id and token to drive the second turn.
	raw, err := rt.stateStore.Restore(context.Background(), "t3")
	require.NoError(t, err)
	s := loadStateForTest(t, raw)
	require.True(t, s.AwaitingApproval)
	approvalID := s.ApprovalID

	tok, err := rt.tokens.Sign(approvalPayload(s))
	require.NoError(t, err)

	res2, err := rt.Invoke(context.Background(), "t3", "u1", "APROBAR "+approvalID+" "+tok, IntentTask)
	require.NoError(t, err)
	assert.False(t, res2.AwaitingApproval)
	assert.Equal(t, "Done.", res2.Messages[len(res2.Messages)-1])
}

func TestInvoke_HoneyfileBlocksRegardlessOfTier(t *testing.T) {
	cfg := risk.DefaultConfig()
	cfg.HoneyFiles = []string{"/etc/shadow-copy"}

	planner := &fakePlanner{steps: []oracle.StepDescriptor{{Description: "read"}}}
	executor := &fakeExecutor{proposals: []oracle.ToolProposal{{Name: "read_file", Args: map[string]any{"path": "/etc/shadow-copy"}}}}
	tools := &fakeTools{output: "never reached"}

	rt := testRuntime(t, planner, executor, tools, cfg)

	res, err := rt.Invoke(context.Background(), "t4", "u1", "read the honeyfile", IntentTask)
	require.NoError(t, err)
	assert.False(t, res.AwaitingApproval)
	require.NotEmpty(t, res.Messages)
	assert.Contains(t, res.Messages[len(res.Messages)-1], "HONEYTOKEN_TRIGGERED")
}

func TestInvoke_RetryExhaustionEscalatesToFinalizer(t *testing.T) {
	planner := &fakePlanner{steps: []oracle.StepDescriptor{{Description: "broken step"}}}
	executor := &fakeExecutor{errOut: assertErr{}}
	tools := &fakeTools{}

	rt := testRuntime(t, planner, executor, tools, risk.DefaultConfig())

	res, err := rt.Invoke(context.Background(), "t5", "u1", "do the broken thing", IntentTask)
	require.NoError(t, err)
	require.NotEmpty(t, res.Messages)
	assert.Contains(t, res.Messages[len(res.Messages)-1], "failed")
}

func TestInvoke_UncanonicalizableArgsTreatedAsIntegrityMismatch(t *testing.T) {
	planner := &fakePlanner{steps: []oracle.StepDescriptor{{Description: "tamper"}}}
	executor := &tamperingExecutor{}
	tools := &fakeTools{output: "should not run"}

	rt := testRuntime(t, planner, executor, tools, risk.DefaultConfig())

	res, err := rt.Invoke(context.Background(), "t6", "u1", "go", IntentTask)
	require.NoError(t, err)
	require.NotEmpty(t, res.Messages)
	assert.Contains(t, res.Messages[len(res.Messages)-1], "IntegrityMismatch")
}

// tamperingExecutor proposes args the Canonicalizer rejects (a func value
// is outside the permitted type set), exercising the same IntegrityError
// path RiskGate falls back to when canonicalization itself fails.
type tamperingExecutor struct{}

func (t *tamperingExecutor) ProposeTool(ctx context.Context, stepDescription string, history []string) (oracle.ToolProposal, error) {
	return oracle.ToolProposal{Name: "read_file", Args: map[string]any{"path": func() {}}}, nil
}

type assertErr struct{}

func (assertErr) Error() string { return "oracle exploded" }

func loadStateForTest(t *testing.T, raw []byte) *GraphState {
	t.Helper()
	var s GraphState
	require.NoError(t, json.Unmarshal(raw, &s))
	return &s
}
