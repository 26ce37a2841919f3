package graph

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
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

// testRuntimeWithAuditPath is testRuntime, but also hands back the path to
// the audit log file so tests can inspect entries directly.
func testRuntimeWithAuditPath(t *testing.T, tools oracle.ToolSubstrate) (*Runtime, string) {
	t.Helper()
	dir := t.TempDir()

	secret := randHex(t, 32)
	tokens, err := token.NewManager(secret, "")
	require.NoError(t, err)

	scanner, err := dlp.NewScanner()
	require.NoError(t, err)

	riskEngine, err := risk.NewEngine(context.Background(), risk.DefaultConfig(), scanner)
	require.NoError(t, err)

	auditPath := filepath.Join(dir, "audit.jsonl")
	auditLog, err := audit.Open(auditPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = auditLog.Close() })

	evictStore, err := evict.NewStore(filepath.Join(dir, "evictions"))
	require.NoError(t, err)

	stateStore, err := state.Open(filepath.Join(dir, "state.db"), randHex(t, 32))
	require.NoError(t, err)
	t.Cleanup(func() { _ = stateStore.Close() })

	locks := lock.NewManager(0)

	planner := &fakePlanner{steps: []oracle.StepDescriptor{{Description: "list files"}}}
	executor := &fakeExecutor{proposals: []oracle.ToolProposal{{Name: "list_dir", Args: map[string]any{"path": "a"}}}}

	cfg := DefaultConfig()
	rt := New(cfg, tokens, riskEngine, auditLog, evictStore, stateStore, locks, planner, executor, tools, nil)
	return rt, auditPath
}

func readAuditEntries(t *testing.T, path string) []audit.Entry {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var entries []audit.Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e audit.Entry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		entries = append(entries, e)
	}
	require.NoError(t, scanner.Err())
	return entries
}

func TestRunTools_EmitsExactlyOneToolExecutedEntryPerCall(t *testing.T) {
	rt, auditPath := testRuntimeWithAuditPath(t, &fakeTools{output: "ok"})

	res, err := rt.Invoke(context.Background(), "t-tools", "u1", "please list files", IntentTask)
	require.NoError(t, err)
	assert.False(t, res.AwaitingApproval)

	entries := readAuditEntries(t, auditPath)

	var executed []audit.Entry
	seen := map[string]int{}
	for _, e := range entries {
		if e.Kind != audit.KindToolExecuted {
			continue
		}
		executed = append(executed, e)
		seen[e.ToolCallID]++
	}

	require.Len(t, executed, 1)
	assert.Equal(t, "list_dir", executed[0].ToolName)
	assert.NotEmpty(t, executed[0].ToolCallID)
	assert.Equal(t, "success", executed[0].Decision)
	for id, count := range seen {
		assert.Equalf(t, 1, count, "tool_call_id %q recorded %d times, want at most 1", id, count)
	}
}

func TestRunTools_FailedInvocationStillAuditedOnce(t *testing.T) {
	rt, auditPath := testRuntimeWithAuditPath(t, &fakeTools{status: "error", output: "boom"})

	_, err := rt.Invoke(context.Background(), "t-tools-fail", "u1", "please list files", IntentTask)
	require.NoError(t, err)

	entries := readAuditEntries(t, auditPath)

	var executed []audit.Entry
	for _, e := range entries {
		if e.Kind == audit.KindToolExecuted {
			executed = append(executed, e)
		}
	}

	require.Len(t, executed, 1)
	assert.Equal(t, "failed", executed[0].Decision)
}
