package graph

import (
	"context"

	"github.com/rs/zerolog/log"
)

// HookPoint identifies where in the graph turn a hook fires. Hooks are
// pure side-channel observers: they cannot alter routing or state,
// preserving the Router's determinism invariant.
type HookPoint string

const (
	HookPreRiskGate   HookPoint = "pre_risk_gate"
	HookPostRiskGate  HookPoint = "post_risk_gate"
	HookPreTool       HookPoint = "pre_tool"
	HookPostTool      HookPoint = "post_tool"
	HookAwaitApproval HookPoint = "await_approval"
	HookPostFinalize  HookPoint = "post_finalize"
)

// HookData is the read-only context passed to a hook.
type HookData struct {
	ThreadID string
	UserID   string
	Point    HookPoint
	State    *GraphState

	// ApprovalToken is populated only at HookAwaitApproval in non-dev
	// mode: the signed token for the operator-configured out-of-band
	// channel to deliver, since it never rides the assistant message or
	// originates from the reasoning oracle.
	ApprovalToken string
}

// Hook observes one point in the turn. It returns an error only for its
// own logging/metrics purposes; the runtime never aborts on a hook error.
type Hook interface {
	Point() HookPoint
	Execute(ctx context.Context, data *HookData) error
}

// HookRegistry dispatches hooks by point.
type HookRegistry struct {
	hooks map[HookPoint][]Hook
}

// NewHookRegistry creates an empty registry.
func NewHookRegistry() *HookRegistry {
	return &HookRegistry{hooks: make(map[HookPoint][]Hook)}
}

// Register adds a hook at its declared point.
func (r *HookRegistry) Register(h Hook) {
	r.hooks[h.Point()] = append(r.hooks[h.Point()], h)
}

// fire runs every hook registered at point, logging (not propagating) any
// error a hook returns.
func (r *HookRegistry) fire(ctx context.Context, point HookPoint, data *HookData) {
	if r == nil {
		return
	}
	data.Point = point
	for _, h := range r.hooks[point] {
		if err := h.Execute(ctx, data); err != nil {
			log.Warn().Err(err).Str("hook_point", string(point)).Str("thread_id", data.ThreadID).Msg("graph: hook failed")
		}
	}
}
