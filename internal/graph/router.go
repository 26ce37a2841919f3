package graph

import "regexp"

// approveRe and rejectRe are the strict, anchored approval wire-format
// regexes: id and token drawn from
// [A-Za-z0-9_-]{6,}, case-sensitive, single-line, anchored to prevent
// approval confusion attacks.
// The token group additionally allows "." since §4.2's wire format
// ("v1.<timestamp>.<nonce>.<signature>") is dot-delimited; id stays
// strictly url-safe.
var (
	approveRe = regexp.MustCompile(`^APROBAR ([A-Za-z0-9_-]{6,}) ([A-Za-z0-9_.-]{6,})$`)
	rejectRe  = regexp.MustCompile(`^RECHAZAR ([A-Za-z0-9_-]{6,})$`)
)

// NodeName identifies a graph node. END is the sentinel terminating a turn.
type NodeName string

const (
	NodeRouter          NodeName = "router"
	NodePlanner         NodeName = "planner"
	NodeSupervisor      NodeName = "supervisor"
	NodeExecutor        NodeName = "executor"
	NodeRiskGate        NodeName = "risk_gate"
	NodeAwaitApproval   NodeName = "await_approval"
	NodeApprovalHandler NodeName = "approval_handler"
	NodeTools           NodeName = "tools"
	NodeInterpreter     NodeName = "interpreter"
	NodeFinalizer       NodeName = "finalizer"
	NodeEnd             NodeName = "END"
)

// approvalMatch is the parsed outcome of matching the last user message
// against the approval wire format.
type approvalMatch struct {
	isApproval bool // APROBAR <id> <token>
	isReject   bool // RECHAZAR <id>
	id         string
	token      string
}

func matchApproval(message string) approvalMatch {
	if m := approveRe.FindStringSubmatch(message); m != nil {
		return approvalMatch{isApproval: true, id: m[1], token: m[2]}
	}
	if m := rejectRe.FindStringSubmatch(message); m != nil {
		return approvalMatch{isReject: true, id: m[1]}
	}
	return approvalMatch{}
}

// routeNode implements the Router decision table, evaluated
// top to bottom. It is a pure function of state and the latest user
// message; it never mutates state.
func routeNode(s *GraphState, latestUserMessage string) NodeName {
	match := matchApproval(latestUserMessage)

	if s.AwaitingApproval {
		if match.isApproval || match.isReject {
			return NodeApprovalHandler
		}
		return NodeSupervisor
	}

	if s.Intent == IntentConversation {
		return NodeFinalizer
	}
	if s.Intent == IntentTask {
		if len(s.Plan) == 0 {
			return NodePlanner
		}
		return NodeSupervisor
	}
	return NodeSupervisor
}
