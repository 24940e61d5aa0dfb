package httpapi

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/irkan/assistant-admin-panel-backend/internal/store"
)

type organizationRequest struct {
	Name      string `json:"name"`
	ShortName string `json:"short_name"`
	ParentID  *int64 `json:"parent_id"`
	Active    *bool  `json:"active"`
}

func (s *Server) handleListOrganizations(w http.ResponseWriter, r *http.Request) {
	orgs, total, err := s.store.ListOrganizations(r.Context(), pageFromQuery(r))
	if err != nil {
		s.respondStoreError(w, "list_organizations", err)
		return
	}
	respondJSON(w, http.StatusOK, listResponse{Items: orgs, Total: total})
}

func (s *Server) handleCreateOrganization(w http.ResponseWriter, r *http.Request) {
	var req organizationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "name is required")
		return
	}

	org := &store.Organization{
		UUID:      uuid.NewString(),
		Name:      strings.TrimSpace(req.Name),
		ShortName: strings.TrimSpace(req.ShortName),
		ParentID:  req.ParentID,
		Active:    true,
	}
	if req.Active != nil {
		org.Active = *req.Active
	}
	if err := s.store.CreateOrganization(r.Context(), org); err != nil {
		s.respondStoreError(w, "create_organization", err)
		return
	}
	respondJSON(w, http.StatusCreated, org)
}

func (s *Server) handleGetOrganization(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "invalid organization id")
		return
	}
	org, err := s.store.OrganizationByID(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, "get_organization", err)
		return
	}
	respondJSON(w, http.StatusOK, org)
}

func (s *Server) handleUpdateOrganization(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "invalid organization id")
		return
	}
	org, err := s.store.OrganizationByID(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, "get_organization", err)
		return
	}

	var req organizationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Name) != "" {
		org.Name = strings.TrimSpace(req.Name)
	}
	if strings.TrimSpace(req.ShortName) != "" {
		org.ShortName = strings.TrimSpace(req.ShortName)
	}
	if req.ParentID != nil {
		org.ParentID = req.ParentID
	}
	if req.Active != nil {
		org.Active = *req.Active
	}
	if err := s.store.UpdateOrganization(r.Context(), org); err != nil {
		s.respondStoreError(w, "update_organization", err)
		return
	}
	respondJSON(w, http.StatusOK, org)
}

func (s *Server) handleDeleteOrganization(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "invalid organization id")
		return
	}
	if err := s.store.DeleteOrganization(r.Context(), id); err != nil {
		s.respondStoreError(w, "delete_organization", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
