package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/irkan/assistant-admin-panel-backend/internal/store"
)

type toolRequest struct {
	OrganizationID int64           `json:"organization_id"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Kind           string          `json:"kind"`
	Config         json.RawMessage `json:"config"`
	Active         *bool           `json:"active"`
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	orgID := queryInt64(r, "organization_id")
	tools, total, err := s.store.ListTools(r.Context(), orgID, pageFromQuery(r))
	if err != nil {
		s.respondStoreError(w, "list_tools", err)
		return
	}
	respondJSON(w, http.StatusOK, listResponse{Items: tools, Total: total})
}

func (s *Server) handleCreateTool(w http.ResponseWriter, r *http.Request) {
	var req toolRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" || req.OrganizationID == 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "name and organization_id are required")
		return
	}

	t := &store.Tool{
		UUID:           uuid.NewString(),
		OrganizationID: req.OrganizationID,
		Name:           strings.TrimSpace(req.Name),
		Description:    strings.TrimSpace(req.Description),
		Kind:           strings.TrimSpace(req.Kind),
		Active:         true,
	}
	if len(req.Config) > 0 {
		t.ConfigJSON = string(req.Config)
	}
	if req.Active != nil {
		t.Active = *req.Active
	}
	if err := s.store.CreateTool(r.Context(), t); err != nil {
		s.respondStoreError(w, "create_tool", err)
		return
	}
	respondJSON(w, http.StatusCreated, t)
}

func (s *Server) handleGetTool(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "invalid tool id")
		return
	}
	t, err := s.store.ToolByID(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, "get_tool", err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (s *Server) handleUpdateTool(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "invalid tool id")
		return
	}
	t, err := s.store.ToolByID(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, "get_tool", err)
		return
	}

	var req toolRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Name) != "" {
		t.Name = strings.TrimSpace(req.Name)
	}
	if strings.TrimSpace(req.Description) != "" {
		t.Description = strings.TrimSpace(req.Description)
	}
	if strings.TrimSpace(req.Kind) != "" {
		t.Kind = strings.TrimSpace(req.Kind)
	}
	if len(req.Config) > 0 {
		t.ConfigJSON = string(req.Config)
	}
	if req.Active != nil {
		t.Active = *req.Active
	}
	if err := s.store.UpdateTool(r.Context(), t); err != nil {
		s.respondStoreError(w, "update_tool", err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTool(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "invalid tool id")
		return
	}
	if err := s.store.DeleteTool(r.Context(), id); err != nil {
		s.respondStoreError(w, "delete_tool", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
