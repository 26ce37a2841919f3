package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/crozzbite/phylactery/internal/audit"
	"github.com/crozzbite/phylactery/internal/evict"
	"github.com/crozzbite/phylactery/internal/lock"
	"github.com/crozzbite/phylactery/internal/oracle"
	phyotel "github.com/crozzbite/phylactery/internal/otel"
	"github.com/crozzbite/phylactery/internal/risk"
	"github.com/crozzbite/phylactery/internal/state"
	"github.com/crozzbite/phylactery/internal/token"
)

var tracer = phyotel.Tracer("github.com/crozzbite/phylactery/internal/graph")

// Config is the configuration surface for the runtime proper
// (workspace_root/honeyfiles/etc. belong to internal/risk; this is
// what the graph package itself needs).
type Config struct {
	ApprovalTTLSeconds int64
	MaxTries           int
	DevMode            bool
	ToolTimeout        time.Duration
	CircuitThreshold   int
	CircuitWindow      time.Duration
}

// DefaultConfig returns the runtime's baseline settings.
func DefaultConfig() Config {
	return Config{
		ApprovalTTLSeconds: 300,
		MaxTries:           3,
		DevMode:            false,
		ToolTimeout:        30 * time.Second,
		CircuitThreshold:   5,
		CircuitWindow:      60 * time.Second,
	}
}

// Runtime wires together every supporting component (tokens, risk, audit,
// eviction, state, locking, oracles, tool substrate) into the graph state
// machine.
type Runtime struct {
	cfg Config

	tokens     *token.Manager
	risk       *risk.Engine
	auditLog   *audit.Logger
	evictStore *evict.Store
	stateStore *state.Store
	locks      *lock.Manager

	planner  oracle.PlannerOracle
	executor oracle.ExecutorOracle
	tools    oracle.ToolSubstrate

	hooks   *HookRegistry
	circuit *ThreadCircuitBreaker

	nowFn func() time.Time
}

// New builds a Runtime. hooks may be nil (no observers registered).
func New(
	cfg Config,
	tokens *token.Manager,
	riskEngine *risk.Engine,
	auditLog *audit.Logger,
	evictStore *evict.Store,
	stateStore *state.Store,
	locks *lock.Manager,
	planner oracle.PlannerOracle,
	executor oracle.ExecutorOracle,
	tools oracle.ToolSubstrate,
	hooks *HookRegistry,
) *Runtime {
	return &Runtime{
		cfg:        cfg,
		tokens:     tokens,
		risk:       riskEngine,
		auditLog:   auditLog,
		evictStore: evictStore,
		stateStore: stateStore,
		locks:      locks,
		planner:    planner,
		executor:   executor,
		tools:      tools,
		hooks:      hooks,
		circuit:    NewThreadCircuitBreaker(cfg.CircuitThreshold, cfg.CircuitWindow),
		nowFn:      time.Now,
	}
}

// Result is the outbound payload of one Invoke call.
type Result struct {
	Messages         []string
	AwaitingApproval bool
}

// Invoke drives one graph turn to completion or to the next suspension
// point. At most one turn per thread_id runs at a time,
// enforced by the per-thread advisory lock.
func (rt *Runtime) Invoke(ctx context.Context, threadID, userID, message string, intent Intent) (Result, error) {
	ctx, span := tracer.Start(ctx, "graph.invoke")
	defer span.End()
	span.SetAttributes(attribute.String("graph.thread_id", threadID))

	if err := rt.locks.Allow(userID); err != nil {
		return Result{}, fmt.Errorf("graph: %w", err)
	}

	release, err := rt.locks.Acquire(ctx, threadID)
	if err != nil {
		return Result{}, fmt.Errorf("graph: acquiring thread lock: %w", err)
	}
	defer release()

	s, err := rt.loadState(ctx, threadID, userID, intent)
	if err != nil {
		return Result{}, err
	}
	if s.Cancelled {
		return Result{}, ErrCancelled
	}

	s.Messages = append(s.Messages, Message{Role: "user", Content: message})
	s.PendingMessages = nil

	next := NodeRouter
	for next != NodeEnd {
		var nextErr error
		next, nextErr = rt.dispatch(ctx, s, next, message)
		if nextErr != nil {
			log.Error().Err(nextErr).Str("thread_id", threadID).Str("node", string(next)).Msg("graph: node error")
			return Result{}, nextErr
		}
		if err := rt.persist(ctx, s); err != nil {
			return Result{}, err
		}
	}

	return Result{Messages: s.PendingMessages, AwaitingApproval: s.AwaitingApproval}, nil
}

// Cancel marks a thread cancelled. The in-flight turn, if any, finishes
// its current node (the lock serializes this) before the flag takes
// effect on the next Invoke.
func (rt *Runtime) Cancel(ctx context.Context, threadID string) error {
	release, err := rt.locks.Acquire(ctx, threadID)
	if err != nil {
		return fmt.Errorf("graph: acquiring thread lock: %w", err)
	}
	defer release()

	raw, err := rt.stateStore.Restore(ctx, threadID)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return nil
		}
		return err
	}
	var s GraphState
	if err := json.Unmarshal(raw, &s); err != nil {
		return fmt.Errorf("graph: %w", ErrStateCorruption)
	}
	s.Cancelled = true
	return rt.persist(ctx, &s)
}

// GetHistory returns the ordered transcript for a thread.
func (rt *Runtime) GetHistory(ctx context.Context, threadID string) ([]Message, error) {
	raw, err := rt.stateStore.Restore(ctx, threadID)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var s GraphState
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("graph: %w", ErrStateCorruption)
	}
	return s.Messages, nil
}

// GetAuditTrail returns the in-state audit mirror for a thread (operator
// convenience; the Audit Log itself is the authoritative record).
func (rt *Runtime) GetAuditTrail(ctx context.Context, threadID string) ([]AuditEntry, error) {
	raw, err := rt.stateStore.Restore(ctx, threadID)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var s GraphState
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("graph: %w", ErrStateCorruption)
	}
	return s.AuditTrail, nil
}

func (rt *Runtime) loadState(ctx context.Context, threadID, userID string, intent Intent) (*GraphState, error) {
	raw, err := rt.stateStore.Restore(ctx, threadID)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return NewGraphState(threadID, userID, intent), nil
		}
		return nil, fmt.Errorf("graph: restoring state: %w", err)
	}
	var s GraphState
	if err := json.Unmarshal(raw, &s); err != nil {
		// StateCorruption: quarantine by marking cancelled so no further
		// turns are attempted.
		return nil, fmt.Errorf("graph: %w: %v", ErrStateCorruption, err)
	}
	s.Intent = intent
	return &s, nil
}

func (rt *Runtime) persist(ctx context.Context, s *GraphState) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("graph: marshaling state: %w", err)
	}
	if err := rt.stateStore.Snapshot(ctx, s.ThreadID, data); err != nil {
		return fmt.Errorf("graph: %w", err)
	}
	return nil
}

// dispatch runs exactly one node and returns the next one.
func (rt *Runtime) dispatch(ctx context.Context, s *GraphState, node NodeName, latestMessage string) (NodeName, error) {
	switch node {
	case NodeRouter:
		return routeNode(s, latestMessage), nil
	case NodePlanner:
		return rt.runPlanner(ctx, s, latestMessage)
	case NodeSupervisor:
		return rt.runSupervisor(ctx, s)
	case NodeExecutor:
		return rt.runExecutor(ctx, s)
	case NodeRiskGate:
		return rt.runRiskGate(ctx, s)
	case NodeAwaitApproval:
		return rt.runAwaitApproval(ctx, s)
	case NodeApprovalHandler:
		return rt.runApprovalHandler(ctx, s, latestMessage)
	case NodeTools:
		return rt.runTools(ctx, s)
	case NodeInterpreter:
		return rt.runInterpreter(ctx, s)
	case NodeFinalizer:
		return rt.runFinalizer(ctx, s)
	default:
		return NodeEnd, fmt.Errorf("graph: unknown node %q", node)
	}
}

func (rt *Runtime) audit(ctx context.Context, s *GraphState, entry audit.Entry) {
	entry.ThreadID = s.ThreadID
	entry.UserID = s.UserID
	ts := float64(rt.nowFn().Unix())
	if err := rt.auditLog.Log(ts, entry); err != nil {
		log.Error().Err(err).Str("thread_id", s.ThreadID).Msg("graph: audit write failed")
	}
	s.emit(ts, string(entry.Kind), entry.ToolName, entry.Decision, entry.Reason)
}
