package oracle

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/crozzbite/phylactery/internal/agent/tools"
)

// RegistrySubstrate adapts a tools.ToolRegistry into a ToolSubstrate, the
// opaque Invoke(name, args) → {status, output} oracle the Tools node
// consumes.
type RegistrySubstrate struct {
	registry *tools.ToolRegistry
}

// NewRegistrySubstrate wraps an existing tool registry.
func NewRegistrySubstrate(registry *tools.ToolRegistry) *RegistrySubstrate {
	return &RegistrySubstrate{registry: registry}
}

// Invoke looks up the tool by name, marshals args to its JSON params, and
// executes it. Transport/execution errors are mapped to status=failed
// rather than propagated.
func (s *RegistrySubstrate) Invoke(ctx context.Context, name string, args map[string]any) (ToolOutput, error) {
	tool, ok := s.registry.Get(name)
	if !ok {
		return ToolOutput{Status: "failed", Output: fmt.Sprintf("tool %q not registered", name)}, nil
	}

	params, err := json.Marshal(args)
	if err != nil {
		return ToolOutput{Status: "failed", Output: fmt.Sprintf("marshaling args: %v", err)}, nil
	}

	if validator, ok := tool.(tools.ArgumentValidator); ok {
		if err := validator.ValidateArguments(params); err != nil {
			return ToolOutput{Status: "failed", Output: fmt.Sprintf("invalid arguments: %v", err)}, nil
		}
	}

	result, err := tool.Execute(ctx, params)
	if err != nil {
		return ToolOutput{Status: "failed", Output: err.Error()}, nil
	}
	return ToolOutput{Status: "success", Output: string(result)}, nil
}
