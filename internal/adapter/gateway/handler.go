package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"

	"agentorg/internal/domain"
)

// chatRequest is the inbound chat turn payload.
type chatRequest struct {
	Message        string `json:"message"`
	Persona        string `json:"persona"`
	ConversationID string `json:"conversation_id,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Message == "" || req.Persona == "" {
		writeError(w, http.StatusBadRequest, "message and persona are required")
		return
	}

	result := s.orch.HandleChat(r.Context(), req.Message, req.Persona, req.ConversationID)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListAgents(w http.ResponseWriter, _ *http.Request) {
	specs := s.orch.Registry().List()
	out := make([]agentView, 0, len(specs))
	for i := range specs {
		out = append(out, newAgentView(&specs[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	spec, err := s.orch.Registry().Get(slug)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("agent %q not found", slug))
		return
	}
	writeJSON(w, http.StatusOK, newAgentView(spec))
}

func (s *Server) handleUpdatePermissions(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")

	var perms domain.Permissions
	if err := json.NewDecoder(r.Body).Decode(&perms); err != nil {
		writeError(w, http.StatusBadRequest, "malformed permissions body")
		return
	}

	spec, err := s.orch.Registry().UpdatePermissions(slug, perms)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("agent %q not found", slug))
		return
	}
	writeJSON(w, http.StatusOK, newAgentView(spec))
}

func (s *Server) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	status := domain.ApprovalStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", status))
		return
	}
	writeJSON(w, http.StatusOK, s.orch.Ledger().ListByStatus(status))
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	req := s.orch.Ledger().Approve(id)
	if req == nil {
		writeError(w, http.StatusNotFound, "approval request not found")
		return
	}

	s.orch.Broadcaster().Emit(req.ConversationID, domain.Event{
		Type:       domain.EventApproved,
		Agent:      req.SourceAgent,
		Target:     req.TargetAgent,
		ApprovalID: req.ID,
		Message:    fmt.Sprintf("Request for %s has been approved", req.DataType),
	})
	writeJSON(w, http.StatusOK, req.Record())
}

func (s *Server) handleDeny(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	req := s.orch.Ledger().Deny(id)
	if req == nil {
		writeError(w, http.StatusNotFound, "approval request not found")
		return
	}

	s.orch.Broadcaster().Emit(req.ConversationID, domain.Event{
		Type:       domain.EventDenied,
		Agent:      req.SourceAgent,
		Target:     req.TargetAgent,
		ApprovalID: req.ID,
		Message:    fmt.Sprintf("Request for %s has been denied", req.DataType),
	})
	writeJSON(w, http.StatusOK, req.Record())
}

func (s *Server) handleFulfill(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	result := s.orch.FulfillApprovedRequest(id)

	status := http.StatusOK
	if result.Status == string(domain.FulfillmentNotFound) {
		status = http.StatusNotFound
	}
	writeJSON(w, status, result)
}

// agentView is the external persona shape: spec fields plus the editable
// permission block, never the system prompt.
type agentView struct {
	Slug        string             `json:"slug"`
	Name        string             `json:"name"`
	Role        string             `json:"role"`
	Description string             `json:"description"`
	Permissions domain.Permissions `json:"permissions"`
}

func newAgentView(spec *domain.PersonaSpec) agentView {
	return agentView{
		Slug:        spec.Slug,
		Name:        spec.Name,
		Role:        spec.Role,
		Description: spec.Description,
		Permissions: spec.Permissions(),
	}
}
