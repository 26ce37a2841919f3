package graph

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crozzbite/phylactery/internal/evict"
)

func testRuntimeForInterpreter(t *testing.T) *Runtime {
	t.Helper()
	dir := t.TempDir()
	evictStore, err := evict.NewStore(filepath.Join(dir, "evictions"))
	require.NoError(t, err)

	cfg := DefaultConfig()
	return &Runtime{cfg: cfg, evictStore: evictStore}
}

func TestRunInterpreter_EvictsOversizedOutputEvenOnFailure(t *testing.T) {
	rt := testRuntimeForInterpreter(t)

	large := strings.Repeat("x", evict.Threshold+1)
	s := &GraphState{
		ThreadID:       "t1",
		CurrentStep:    0,
		StepStatus:     map[int]StepStatus{0: StepPending},
		LastToolResult: &ToolResult{Status: "failed", Output: large, Reason: ReasonToolExecutionErr},
	}

	_, err := rt.runInterpreter(context.Background(), s)
	require.NoError(t, err)

	result := s.LastToolResult
	assert.Equal(t, evict.Threshold+1, result.SizeChars)
	assert.True(t, result.Evicted)
	assert.NotEmpty(t, result.Pointer)
	assert.True(t, result.RehydrationAllowed)
	assert.Equal(t, StepFailed, s.StepStatus[0])
}

func TestRunInterpreter_SmallFailedOutputNotEvicted(t *testing.T) {
	rt := testRuntimeForInterpreter(t)

	s := &GraphState{
		ThreadID:       "t2",
		CurrentStep:    0,
		StepStatus:     map[int]StepStatus{0: StepPending},
		LastToolResult: &ToolResult{Status: "failed", Output: "short", Reason: ReasonToolExecutionErr},
	}

	_, err := rt.runInterpreter(context.Background(), s)
	require.NoError(t, err)

	result := s.LastToolResult
	assert.Equal(t, len("short"), result.SizeChars)
	assert.False(t, result.Evicted)
	assert.True(t, result.RehydrationAllowed)
	assert.Equal(t, StepFailed, s.StepStatus[0])
}

func TestRunInterpreter_SuccessOversizedOutputEvicted(t *testing.T) {
	rt := testRuntimeForInterpreter(t)

	large := strings.Repeat("y", evict.Threshold+1)
	s := &GraphState{
		ThreadID:       "t3",
		CurrentStep:    0,
		StepStatus:     map[int]StepStatus{0: StepPending},
		LastToolResult: &ToolResult{Status: "success", Output: large},
	}

	_, err := rt.runInterpreter(context.Background(), s)
	require.NoError(t, err)

	result := s.LastToolResult
	assert.True(t, result.Evicted)
	assert.Equal(t, StepDone, s.StepStatus[0])
}
