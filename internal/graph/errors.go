package graph

import "errors"

// Error kinds the runtime can surface. Most are recovered locally into a failed
// ToolResult and never propagate out of the runtime; ErrStateCorruption
// and ErrConfigError are the only conditions that abort a turn outright.
var (
	ErrStateCorruption = errors.New("graph: state failed schema validation on load")
	ErrCancelled       = errors.New("graph: thread is cancelled")
	ErrRateLimited     = errors.New("graph: rate limit exceeded")
)

const (
	ReasonIntegrityMismatch = "IntegrityMismatch"
	ReasonUserRejected      = "UserRejected"
	ReasonApprovalExpired   = "ApprovalExpired"
	ReasonApprovalInvalid   = "ApprovalInvalid"
	ReasonToolExecutionErr  = "ToolExecutionError"
	ReasonOracleFailure     = "OracleFailure"
	ReasonRetriesExhausted  = "RetriesExhausted"
	ReasonCircuitOpen       = "CircuitOpen"
	ReasonApprovalAbandoned = "ApprovalAbandoned"
)
