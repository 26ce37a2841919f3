package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crozzbite/phylactery/internal/agent/tools"
)

type stubTool struct {
	name    string
	out     json.RawMessage
	err     error
	badArgs error
}

func (s *stubTool) Name() string                  { return s.name }
func (s *stubTool) Description() string           { return "stub tool for tests" }
func (s *stubTool) InputSchema() json.RawMessage  { return json.RawMessage(`{}`) }
func (s *stubTool) ValidateArguments(json.RawMessage) error {
	return s.badArgs
}
func (s *stubTool) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.out, nil
}

func TestRegistrySubstrate_InvokeSuccess(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(&stubTool{name: "read_file", out: json.RawMessage(`{"content":"hello"}`)})
	sub := NewRegistrySubstrate(reg)

	out, err := sub.Invoke(context.Background(), "read_file", map[string]any{"path": "/tmp/a.txt"})
	require.NoError(t, err)
	assert.Equal(t, "success", out.Status)
	assert.Equal(t, `{"content":"hello"}`, out.Output)
}

func TestRegistrySubstrate_UnknownToolFails(t *testing.T) {
	reg := tools.NewRegistry()
	sub := NewRegistrySubstrate(reg)

	out, err := sub.Invoke(context.Background(), "nonexistent", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "failed", out.Status)
	assert.Contains(t, out.Output, "not registered")
}

func TestRegistrySubstrate_ExecuteErrorMapsToFailed(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(&stubTool{name: "run_command", err: fmt.Errorf("exit status 1")})
	sub := NewRegistrySubstrate(reg)

	out, err := sub.Invoke(context.Background(), "run_command", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "failed", out.Status)
	assert.Contains(t, out.Output, "exit status 1")
}

func TestRegistrySubstrate_ValidationErrorMapsToFailed(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(&stubTool{name: "write_file", badArgs: fmt.Errorf("missing required field: path")})
	sub := NewRegistrySubstrate(reg)

	out, err := sub.Invoke(context.Background(), "write_file", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "failed", out.Status)
	assert.Contains(t, out.Output, "invalid arguments")
}
