package risk

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage/inmem"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/crozzbite/phylactery/internal/dlp"
	phyotel "github.com/crozzbite/phylactery/internal/otel"
)

//go:embed rego/*.rego
var embeddedPolicies embed.FS

var tracer = phyotel.Tracer("github.com/crozzbite/phylactery/internal/risk")

// Engine evaluates (tool_name, canonical_args) into a risk Assessment.
type Engine struct {
	cfg       Config
	dlp       *dlp.Scanner
	toolTierQ rego.PreparedEvalQuery
	costQ     rego.PreparedEvalQuery
	timeQ     rego.PreparedEvalQuery
	nowFn     func() time.Time
}

// NewEngine builds a Risk Engine with its embedded Rego policies prepared.
func NewEngine(ctx context.Context, cfg Config, scanner *dlp.Scanner) (*Engine, error) {
	tiers := make(map[string]any, len(cfg.ToolTiers))
	for name, spec := range cfg.ToolTiers {
		tiers[name] = map[string]any{"level": string(spec.Level), "decision": string(spec.Decision)}
	}

	toolTierQ, err := prepareQuery(ctx, "rego/tool_tier.rego", "data.phylactery.risk.tool_tier.result", map[string]any{})
	if err != nil {
		return nil, err
	}
	costQ, err := prepareQuery(ctx, "rego/cost_ceiling.rego", "data.phylactery.risk.cost_ceiling.deny", map[string]any{})
	if err != nil {
		return nil, err
	}
	timeQ, err := prepareQuery(ctx, "rego/time_restriction.rego", "data.phylactery.risk.time_restriction.deny", map[string]any{})
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:       cfg,
		dlp:       scanner,
		toolTierQ: toolTierQ,
		costQ:     costQ,
		timeQ:     timeQ,
		nowFn:     time.Now,
	}, nil
}

func prepareQuery(ctx context.Context, file, query string, data map[string]any) (rego.PreparedEvalQuery, error) {
	content, err := embeddedPolicies.ReadFile(file)
	if err != nil {
		return rego.PreparedEvalQuery{}, fmt.Errorf("risk: reading embedded policy %s: %w", file, err)
	}
	store := inmem.NewFromObject(data)
	r := rego.New(
		rego.Query(query),
		rego.Module(file, string(content)),
		rego.Store(store),
	)
	pq, err := r.PrepareForEval(ctx)
	if err != nil {
		return rego.PreparedEvalQuery{}, fmt.Errorf("risk: preparing %s: %w", file, err)
	}
	return pq, nil
}

// EvalInput is the data the Graph Runtime supplies alongside the tool
// name and canonical args, needed by the supplemental layers.
type EvalInput struct {
	RunningCostEstimate float64
}

// Evaluate runs the five-step baseline evaluation order, then the three
// supplemental layers (sensitive-file escalation, cost ceiling, time
// restriction). First match wins; the supplemental layers can only
// escalate an Allow, never override an earlier Blocked/AuthRequired
// verdict.
func (e *Engine) Evaluate(ctx context.Context, toolName, canonicalArgs string, args map[string]any, in EvalInput) Assessment {
	ctx, span := tracer.Start(ctx, "risk.evaluate")
	defer span.End()
	span.SetAttributes(attribute.String("risk.tool_name", toolName))

	assessment := e.evaluateCore(ctx, toolName, canonicalArgs, args)

	if assessment.Decision == DecisionAllow {
		if a, escalated := e.evaluateSensitiveFiles(args); escalated {
			assessment = a
		}
	}
	if assessment.Decision == DecisionAllow {
		if a, escalated := e.evaluateCostCeiling(ctx, in.RunningCostEstimate); escalated {
			assessment = a
		}
	}
	if assessment.Decision == DecisionAllow {
		if a, escalated := e.evaluateTimeRestriction(ctx, toolName); escalated {
			assessment = a
		}
	}

	span.SetAttributes(
		attribute.String("risk.level", string(assessment.Level)),
		attribute.String("risk.decision", string(assessment.Decision)),
		attribute.String("risk.reason", assessment.Reason),
	)
	if assessment.Decision == DecisionBlocked {
		span.SetStatus(codes.Error, assessment.Reason)
	}
	return assessment
}

// evaluateCore runs the five baseline checks.
func (e *Engine) evaluateCore(ctx context.Context, toolName, canonicalArgs string, args map[string]any) Assessment {
	// 1. Honeytoken / honeyfile trap.
	if tok, ok := containsAny(canonicalArgs, e.cfg.HoneyTokens); ok {
		_ = tok
		return Assessment{Level: LevelCritical, Decision: DecisionBlocked, Reason: ReasonHoneytokenTriggered}
	}
	path := extractPath(args)
	if path != "" {
		if _, ok := containsAny(path, e.cfg.HoneyFiles); ok {
			return Assessment{Level: LevelCritical, Decision: DecisionBlocked, Reason: ReasonHoneytokenTriggered}
		}
	}

	// 2. DLP egress block — write-capable tools only.
	if isWriteTool(toolName, e.cfg.WriteTools) {
		content := extractContent(args)
		if content != "" && e.dlp != nil {
			if len(e.dlp.ScanSecrets(ctx, content)) > 0 {
				return Assessment{Level: LevelCritical, Decision: DecisionBlocked, Reason: ReasonDLPSecretEgress}
			}
		}
	}

	// 3. Sandbox violation — any tool operating on paths.
	if path != "" && e.cfg.WorkspaceRoot != "" {
		if !isSafePath(e.cfg.WorkspaceRoot, path) {
			return Assessment{Level: LevelCritical, Decision: DecisionBlocked, Reason: ReasonSandboxViolation}
		}
	}

	// 4. Tool tier lookup.
	if spec, ok := e.lookupTier(ctx, toolName); ok {
		return Assessment{Level: spec.Level, Decision: spec.Decision, Reason: ReasonToolTier}
	}

	// 5. Unknown tool.
	return Assessment{Level: LevelMedium, Decision: DecisionAuthRequired, Reason: ReasonUnknownTool}
}

func (e *Engine) lookupTier(ctx context.Context, toolName string) (TierSpec, bool) {
	input := map[string]any{"tool_name": toolName, "tiers": opaTiers(e.cfg.ToolTiers)}
	results, err := e.toolTierQ.Eval(ctx, rego.EvalInput(input))
	if err != nil || len(results) == 0 || len(results[0].Expressions) == 0 {
		return TierSpec{}, false
	}
	m, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return TierSpec{}, false
	}
	level, _ := m["level"].(string)
	decision, _ := m["decision"].(string)
	if level == "" || decision == "" {
		return TierSpec{}, false
	}
	return TierSpec{Level: Level(level), Decision: Decision(decision)}, true
}

func opaTiers(tiers map[string]TierSpec) map[string]any {
	out := make(map[string]any, len(tiers))
	for name, spec := range tiers {
		out[name] = map[string]any{"level": string(spec.Level), "decision": string(spec.Decision)}
	}
	return out
}

// evaluateSensitiveFiles escalates an Allow to AuthRequired when the
// proposed path falls under a configured sensitive-file prefix. Runs after
// the five baseline checks, alongside cost ceiling and time restriction —
// it can only raise an Allow, never override an earlier verdict.
func (e *Engine) evaluateSensitiveFiles(args map[string]any) (Assessment, bool) {
	path := extractPath(args)
	if path == "" {
		return Assessment{}, false
	}
	if _, ok := containsAny(path, e.cfg.SensitiveFiles); !ok {
		return Assessment{}, false
	}
	return Assessment{Level: LevelHigh, Decision: DecisionAuthRequired, Reason: ReasonToolTier}, true
}

func (e *Engine) evaluateCostCeiling(ctx context.Context, runningCost float64) (Assessment, bool) {
	if e.cfg.CostCeilingPerThread <= 0 {
		return Assessment{}, false
	}
	input := map[string]any{"running_cost": runningCost, "ceiling": e.cfg.CostCeilingPerThread}
	reasons, err := evaluateDenySet(ctx, e.costQ, input)
	if err != nil || len(reasons) == 0 {
		return Assessment{}, false
	}
	return Assessment{Level: LevelMedium, Decision: DecisionAuthRequired, Reason: ReasonCostCeiling}, true
}

func (e *Engine) evaluateTimeRestriction(ctx context.Context, toolName string) (Assessment, bool) {
	restricted := false
	for _, t := range e.cfg.BusinessHoursOnlyTools {
		if t == toolName {
			restricted = true
			break
		}
	}
	if !restricted {
		return Assessment{}, false
	}
	loc := time.UTC
	if e.cfg.BusinessHoursTimezone != "" {
		if l, err := time.LoadLocation(e.cfg.BusinessHoursTimezone); err == nil {
			loc = l
		}
	}
	hour := e.nowFn().In(loc).Hour()
	input := map[string]any{
		"tool_business_hours_only": true,
		"hour_of_day":              hour,
		"window_start_hour":        e.cfg.BusinessHoursStartHour,
		"window_end_hour":          e.cfg.BusinessHoursEndHour,
	}
	reasons, err := evaluateDenySet(ctx, e.timeQ, input)
	if err != nil || len(reasons) == 0 {
		return Assessment{}, false
	}
	return Assessment{Level: LevelMedium, Decision: DecisionAuthRequired, Reason: ReasonTimeRestriction}, true
}

func evaluateDenySet(ctx context.Context, pq rego.PreparedEvalQuery, input map[string]any) ([]string, error) {
	results, err := pq.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, err
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return nil, nil
	}
	var reasons []string
	switch v := results[0].Expressions[0].Value.(type) {
	case []interface{}:
		for _, msg := range v {
			if s, ok := msg.(string); ok {
				reasons = append(reasons, s)
			}
		}
	case map[string]interface{}:
		for _, msg := range v {
			if s, ok := msg.(string); ok {
				reasons = append(reasons, s)
			}
		}
	}
	return reasons, nil
}

func isWriteTool(toolName string, writeTools []string) bool {
	for _, t := range writeTools {
		if t == toolName {
			return true
		}
	}
	return false
}
