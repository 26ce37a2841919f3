package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/crozzbite/phylactery/internal/llm"
)

// planSchema constrains the oracle's plan JSON, mirroring
// internal/policy/schema.go's gojsonschema.Validate usage — the Planner
// oracle is untrusted, so its output is schema-checked before the runtime
// touches it.
const planSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["steps"],
  "properties": {
    "steps": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["description"],
        "properties": {
          "description": {"type": "string", "minLength": 1}
        }
      }
    }
  }
}`

// toolProposalSchema constrains the oracle's tool-call JSON.
const toolProposalSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["name", "args"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "args": {"type": "object"}
  }
}`

// ErrMalformedOracleOutput is the OracleFailure error kind:
// "Planner or Executor oracle returns malformed output."
var ErrMalformedOracleOutput = fmt.Errorf("oracle: malformed output")

// LLMOracle implements PlannerOracle and ExecutorOracle over an
// internal/llm.Provider, instructing the model to respond with a single
// JSON object and validating that response before trusting it.
type LLMOracle struct {
	provider llm.Provider
	model    string
}

// NewLLMOracle wraps an existing llm.Provider (OpenAI, Anthropic, Bedrock,
// or Ollama — whichever the deployment's model_tier routing resolved to).
func NewLLMOracle(provider llm.Provider, model string) *LLMOracle {
	return &LLMOracle{provider: provider, model: model}
}

// ProposeStep asks the oracle for an ordered plan for a task-intent message.
func (o *LLMOracle) ProposeStep(ctx context.Context, latestMessage string, skillContext []string) ([]StepDescriptor, error) {
	sys := "You are a planning assistant. Respond with ONLY a JSON object of the " +
		"form {\"steps\":[{\"description\":\"...\"}]} describing the ordered steps " +
		"needed to complete the user's task. Do not include any other text."

	req := &llm.Request{
		Model: o.model,
		Messages: []llm.Message{
			{Role: "system", Content: sys + contextSuffix(skillContext)},
			{Role: "user", Content: latestMessage},
		},
		Temperature: 0,
	}

	resp, err := o.provider.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("oracle: planner generate: %w", err)
	}

	raw, err := validateAgainstSchema(planSchema, resp.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOracleOutput, err)
	}

	var parsed struct {
		Steps []struct {
			Description string `json:"description"`
		} `json:"steps"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOracleOutput, err)
	}

	steps := make([]StepDescriptor, len(parsed.Steps))
	for i, s := range parsed.Steps {
		steps[i] = StepDescriptor{Index: i, Description: s.Description}
	}
	return steps, nil
}

// ProposeTool asks the oracle for the next tool call for the current step.
func (o *LLMOracle) ProposeTool(ctx context.Context, stepDescription string, history []string) (ToolProposal, error) {
	sys := "You are an execution assistant. Respond with ONLY a JSON object of " +
		"the form {\"name\":\"tool_name\",\"args\":{...}} proposing exactly one " +
		"tool call to accomplish the current step. Do not include any other text."

	req := &llm.Request{
		Model: o.model,
		Messages: []llm.Message{
			{Role: "system", Content: sys + contextSuffix(history)},
			{Role: "user", Content: stepDescription},
		},
		Temperature: 0,
	}

	resp, err := o.provider.Generate(ctx, req)
	if err != nil {
		return ToolProposal{}, fmt.Errorf("oracle: executor generate: %w", err)
	}

	raw, err := validateAgainstSchema(toolProposalSchema, resp.Content)
	if err != nil {
		return ToolProposal{}, fmt.Errorf("%w: %v", ErrMalformedOracleOutput, err)
	}

	var proposal ToolProposal
	if err := json.Unmarshal(raw, &proposal); err != nil {
		return ToolProposal{}, fmt.Errorf("%w: %v", ErrMalformedOracleOutput, err)
	}
	return proposal, nil
}

func contextSuffix(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return "\n\nContext:\n" + strings.Join(lines, "\n")
}

// validateAgainstSchema extracts the first JSON object in content (models
// sometimes wrap JSON in prose despite instructions) and validates it.
func validateAgainstSchema(schema, content string) ([]byte, error) {
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object found in oracle response")
	}
	raw := []byte(content[start : end+1])

	schemaLoader := gojsonschema.NewStringLoader(schema)
	docLoader := gojsonschema.NewBytesLoader(raw)
	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return nil, fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		var msgs []string
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("schema validation failed: %s", strings.Join(msgs, "; "))
	}
	return raw, nil
}
