package httpapi

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/irkan/assistant-admin-panel-backend/internal/store"
)

type userRequest struct {
	Name            string  `json:"name"`
	Surname         string  `json:"surname"`
	Email           string  `json:"email"`
	Password        string  `json:"password"`
	Active          *bool   `json:"active"`
	OrganizationIDs []int64 `json:"organization_ids"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, total, err := s.store.ListUsers(r.Context(), pageFromQuery(r))
	if err != nil {
		s.respondStoreError(w, "list_users", err)
		return
	}
	respondJSON(w, http.StatusOK, listResponse{Items: users, Total: total})
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || len(req.Password) < 8 {
		respondError(w, http.StatusBadRequest, "invalid_request", "email and a password of at least 8 characters are required")
		return
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	u := &store.User{
		UUID:            uuid.NewString(),
		Name:            strings.TrimSpace(req.Name),
		Surname:         strings.TrimSpace(req.Surname),
		Email:           req.Email,
		PasswordHash:    hash,
		Active:          true,
		OrganizationIDs: req.OrganizationIDs,
	}
	if req.Active != nil {
		u.Active = *req.Active
	}
	if err := s.store.CreateUser(r.Context(), u); err != nil {
		s.respondStoreError(w, "create_user", err)
		return
	}
	if len(req.OrganizationIDs) > 0 {
		if err := s.store.SetUserOrganizations(r.Context(), u.ID, req.OrganizationIDs); err != nil {
			s.respondStoreError(w, "set_user_organizations", err)
			return
		}
	}
	respondJSON(w, http.StatusCreated, u)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "invalid user id")
		return
	}
	u, err := s.store.UserByID(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, "get_user", err)
		return
	}
	respondJSON(w, http.StatusOK, u)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "invalid user id")
		return
	}
	u, err := s.store.UserByID(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, "get_user", err)
		return
	}

	var req userRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Name) != "" {
		u.Name = strings.TrimSpace(req.Name)
	}
	if strings.TrimSpace(req.Surname) != "" {
		u.Surname = strings.TrimSpace(req.Surname)
	}
	if email := strings.ToLower(strings.TrimSpace(req.Email)); email != "" {
		u.Email = email
	}
	if req.Password != "" {
		if len(req.Password) < 8 {
			respondError(w, http.StatusBadRequest, "invalid_request", "password must be at least 8 characters")
			return
		}
		hash, err := s.hasher.Hash(req.Password)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "internal", "internal error")
			return
		}
		u.PasswordHash = hash
	}
	if req.Active != nil {
		u.Active = *req.Active
	}
	if err := s.store.UpdateUser(r.Context(), u); err != nil {
		s.respondStoreError(w, "update_user", err)
		return
	}
	if req.OrganizationIDs != nil {
		if err := s.store.SetUserOrganizations(r.Context(), u.ID, req.OrganizationIDs); err != nil {
			s.respondStoreError(w, "set_user_organizations", err)
			return
		}
		u.OrganizationIDs = req.OrganizationIDs
	}
	respondJSON(w, http.StatusOK, u)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "invalid user id")
		return
	}
	if err := s.store.DeleteUser(r.Context(), id); err != nil {
		s.respondStoreError(w, "delete_user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
