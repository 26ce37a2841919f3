package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/crozzbite/phylactery/internal/graph"
)

// graphInvokeRequest is the wire shape of POST /v1/threads/{thread_id}/invoke.
type graphInvokeRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
	Intent  string `json:"intent"` // "conversation" or "task", default "task"
}

type graphInvokeResponse struct {
	Messages         []string `json:"messages"`
	AwaitingApproval bool     `json:"awaiting_approval"`
}

func (s *Server) handleGraphInvoke(w http.ResponseWriter, r *http.Request) {
	if s.graphRuntime == nil {
		writeError(w, http.StatusNotImplemented, "graph_disabled", "graph runtime not configured on this server")
		return
	}
	threadID := chi.URLParam(r, "thread_id")
	var req graphInvokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return
	}
	if req.UserID == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id and message are required")
		return
	}
	intent := graph.IntentTask
	if req.Intent == string(graph.IntentConversation) {
		intent = graph.IntentConversation
	}

	res, err := s.graphRuntime.Invoke(r.Context(), threadID, req.UserID, req.Message, intent)
	if err != nil {
		switch {
		case errors.Is(err, graph.ErrRateLimited):
			writeError(w, http.StatusTooManyRequests, "rate_limited", err.Error())
		case errors.Is(err, graph.ErrCancelled):
			writeError(w, http.StatusConflict, "thread_cancelled", err.Error())
		case errors.Is(err, graph.ErrStateCorruption):
			writeError(w, http.StatusConflict, "state_corruption", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "internal", err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, graphInvokeResponse{
		Messages:         res.Messages,
		AwaitingApproval: res.AwaitingApproval,
	})
}

func (s *Server) handleGraphCancel(w http.ResponseWriter, r *http.Request) {
	if s.graphRuntime == nil {
		writeError(w, http.StatusNotImplemented, "graph_disabled", "graph runtime not configured on this server")
		return
	}
	threadID := chi.URLParam(r, "thread_id")
	if err := s.graphRuntime.Cancel(r.Context(), threadID); err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleGraphHistory(w http.ResponseWriter, r *http.Request) {
	if s.graphRuntime == nil {
		writeError(w, http.StatusNotImplemented, "graph_disabled", "graph runtime not configured on this server")
		return
	}
	threadID := chi.URLParam(r, "thread_id")
	msgs, err := s.graphRuntime.GetHistory(r.Context(), threadID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

func (s *Server) handleGraphAudit(w http.ResponseWriter, r *http.Request) {
	if s.graphRuntime == nil {
		writeError(w, http.StatusNotImplemented, "graph_disabled", "graph runtime not configured on this server")
		return
	}
	threadID := chi.URLParam(r, "thread_id")
	entries, err := s.graphRuntime.GetAuditTrail(r.Context(), threadID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"audit_trail": entries})
}
