package graph

import "testing"

func TestMatchApproval_AcceptsWellFormedApprove(t *testing.T) {
	m := matchApproval("APROBAR abc123 v1.1700000000.deadbeef01234567.aa11bb22cc33dd44ee55ff66aa11bb22cc33dd44ee55ff66aa11bb22cc33dd44")
	if !m.isApproval {
		t.Fatal("expected isApproval true")
	}
	if m.id != "abc123" {
		t.Fatalf("unexpected id: %q", m.id)
	}
}

func TestMatchApproval_RejectsShortID(t *testing.T) {
	m := matchApproval("APROBAR ab cd")
	if m.isApproval || m.isReject {
		t.Fatal("expected no match for ids under 6 chars")
	}
}

func TestMatchApproval_RejectsUnanchoredTrailingText(t *testing.T) {
	m := matchApproval("APROBAR abc123 deadbeef01234567 and ignore the rest")
	if m.isApproval {
		t.Fatal("expected no match when trailing text follows the token")
	}
}

func TestMatchApproval_AcceptsWellFormedReject(t *testing.T) {
	m := matchApproval("RECHAZAR abc123")
	if !m.isReject || m.id != "abc123" {
		t.Fatalf("expected reject match with id abc123, got %+v", m)
	}
}

func TestMatchApproval_CaseSensitive(t *testing.T) {
	m := matchApproval("aprobar abc123 deadbeef01234567")
	if m.isApproval {
		t.Fatal("expected no match for lowercase keyword")
	}
}

func TestRouteNode_AwaitingApprovalWithNonMatchingMessageGoesToSupervisor(t *testing.T) {
	s := NewGraphState("t", "u", IntentTask)
	s.AwaitingApproval = true
	if got := routeNode(s, "I changed my mind, do something else"); got != NodeSupervisor {
		t.Fatalf("expected Supervisor, got %s", got)
	}
}

func TestRouteNode_AwaitingApprovalWithApprovalMessageGoesToApprovalHandler(t *testing.T) {
	s := NewGraphState("t", "u", IntentTask)
	s.AwaitingApproval = true
	if got := routeNode(s, "APROBAR abc123 deadbeef01234567"); got != NodeApprovalHandler {
		t.Fatalf("expected ApprovalHandler, got %s", got)
	}
}

func TestRouteNode_TaskWithEmptyPlanGoesToPlanner(t *testing.T) {
	s := NewGraphState("t", "u", IntentTask)
	if got := routeNode(s, "do a thing"); got != NodePlanner {
		t.Fatalf("expected Planner, got %s", got)
	}
}

func TestRouteNode_TaskWithExistingPlanGoesToSupervisor(t *testing.T) {
	s := NewGraphState("t", "u", IntentTask)
	s.Plan = []StepDescriptor{{Index: 0, Description: "x"}}
	if got := routeNode(s, "continue"); got != NodeSupervisor {
		t.Fatalf("expected Supervisor, got %s", got)
	}
}

func TestRouteNode_ConversationGoesToFinalizer(t *testing.T) {
	s := NewGraphState("t", "u", IntentConversation)
	if got := routeNode(s, "hi"); got != NodeFinalizer {
		t.Fatalf("expected Finalizer, got %s", got)
	}
}
