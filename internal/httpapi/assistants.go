package httpapi

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/irkan/assistant-admin-panel-backend/internal/store"
)

type assistantRequest struct {
	OrganizationID int64                   `json:"organization_id"`
	Name           string                  `json:"name"`
	Status         store.AssistantStatus   `json:"status"`
	Active         *bool                   `json:"active"`
	Details        *store.AssistantDetails `json:"details"`
}

func validAssistantStatus(st store.AssistantStatus) bool {
	return st == store.AssistantDraft || st == store.AssistantPublished
}

func validInteractionMode(m store.InteractionMode) bool {
	return m == "" || m == store.UserSpeaksFirst || m == store.AssistantSpeaksFirst
}

func (s *Server) handleListAssistants(w http.ResponseWriter, r *http.Request) {
	orgID := queryInt64(r, "organization_id")
	assistants, total, err := s.store.ListAssistants(r.Context(), orgID, pageFromQuery(r))
	if err != nil {
		s.respondStoreError(w, "list_assistants", err)
		return
	}
	respondJSON(w, http.StatusOK, listResponse{Items: assistants, Total: total})
}

func (s *Server) handleCreateAssistant(w http.ResponseWriter, r *http.Request) {
	var req assistantRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" || req.OrganizationID == 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "name and organization_id are required")
		return
	}
	if req.Status == "" {
		req.Status = store.AssistantDraft
	}
	if !validAssistantStatus(req.Status) {
		respondError(w, http.StatusBadRequest, "invalid_request", "status must be draft or published")
		return
	}

	a := &store.Assistant{
		UUID:           uuid.NewString(),
		OrganizationID: req.OrganizationID,
		Name:           strings.TrimSpace(req.Name),
		Status:         req.Status,
		Active:         true,
	}
	if req.Active != nil {
		a.Active = *req.Active
	}
	if req.Details != nil {
		if !validInteractionMode(req.Details.InteractionMode) {
			respondError(w, http.StatusBadRequest, "invalid_request", "unknown interaction mode")
			return
		}
		a.Details = *req.Details
	}
	if a.Details.InteractionMode == "" {
		a.Details.InteractionMode = store.UserSpeaksFirst
	}
	if err := s.store.CreateAssistant(r.Context(), a); err != nil {
		s.respondStoreError(w, "create_assistant", err)
		return
	}
	respondJSON(w, http.StatusCreated, a)
}

func (s *Server) handleGetAssistant(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "invalid assistant id")
		return
	}
	a, err := s.store.AssistantByID(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, "get_assistant", err)
		return
	}
	respondJSON(w, http.StatusOK, a)
}

func (s *Server) handleUpdateAssistant(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "invalid assistant id")
		return
	}
	a, err := s.store.AssistantByID(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, "get_assistant", err)
		return
	}

	var req assistantRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Name) != "" {
		a.Name = strings.TrimSpace(req.Name)
	}
	if req.Status != "" {
		if !validAssistantStatus(req.Status) {
			respondError(w, http.StatusBadRequest, "invalid_request", "status must be draft or published")
			return
		}
		a.Status = req.Status
	}
	if req.Active != nil {
		a.Active = *req.Active
	}
	if req.Details != nil {
		if !validInteractionMode(req.Details.InteractionMode) {
			respondError(w, http.StatusBadRequest, "invalid_request", "unknown interaction mode")
			return
		}
		a.Details = *req.Details
	}
	if err := s.store.UpdateAssistant(r.Context(), a); err != nil {
		s.respondStoreError(w, "update_assistant", err)
		return
	}
	respondJSON(w, http.StatusOK, a)
}

func (s *Server) handleDeleteAssistant(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "invalid assistant id")
		return
	}
	if err := s.store.DeleteAssistant(r.Context(), id); err != nil {
		s.respondStoreError(w, "delete_assistant", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
