package httpapi

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/irkan/assistant-admin-panel-backend/internal/apikey"
	"github.com/irkan/assistant-admin-panel-backend/internal/store"
)

type apiKeyRequest struct {
	OrganizationID      int64      `json:"organization_id"`
	Name                string     `json:"name"`
	AllowedAssistantIDs []int64    `json:"allowed_assistant_ids"`
	ExpiresAt           *time.Time `json:"expires_at"`
	Active              *bool      `json:"active"`
}

// apiKeyView is the list/update shape: the key itself is only ever shown
// masked, the raw value exists solely in the create response.
type apiKeyView struct {
	store.APIKey
	MaskedKey string `json:"masked_key"`
}

type createdAPIKey struct {
	apiKeyView
	Key string `json:"key"`
}

func maskedView(k store.APIKey) apiKeyView {
	return apiKeyView{APIKey: k, MaskedKey: apikey.Masked(k.KeyPrefix)}
}

func (s *Server) handleListAPIKeys(w http.ResponseWriter, r *http.Request) {
	orgID := queryInt64(r, "organization_id")
	if orgID == 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "organization_id is required")
		return
	}
	keys, err := s.store.ListAPIKeysByOrganization(r.Context(), orgID)
	if err != nil {
		s.respondStoreError(w, "list_api_keys", err)
		return
	}
	views := make([]apiKeyView, 0, len(keys))
	for _, k := range keys {
		views = append(views, maskedView(k))
	}
	respondJSON(w, http.StatusOK, listResponse{Items: views, Total: len(views)})
}

func (s *Server) handleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req apiKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" || req.OrganizationID == 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "name and organization_id are required")
		return
	}

	gen, err := apikey.Generate()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	k := &store.APIKey{
		OrganizationID:      req.OrganizationID,
		Name:                strings.TrimSpace(req.Name),
		KeyHash:             gen.Hash,
		KeyPrefix:           gen.DisplayPrefix,
		AllowedAssistantIDs: req.AllowedAssistantIDs,
		Active:              true,
	}
	if req.ExpiresAt != nil {
		k.ExpiresAt = *req.ExpiresAt
	}
	if req.Active != nil {
		k.Active = *req.Active
	}
	if err := s.store.CreateAPIKey(r.Context(), k); err != nil {
		s.respondStoreError(w, "create_api_key", err)
		return
	}
	s.log.Info("api key issued",
		zap.Int64("organization_id", k.OrganizationID),
		zap.String("key_prefix", k.KeyPrefix))

	// The raw key is returned exactly once and never persisted.
	respondJSON(w, http.StatusCreated, createdAPIKey{apiKeyView: maskedView(*k), Key: gen.Raw})
}

func (s *Server) handleUpdateAPIKey(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "invalid api key id")
		return
	}
	k, err := s.store.APIKeyByID(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, "get_api_key", err)
		return
	}

	var req apiKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Name) != "" {
		k.Name = strings.TrimSpace(req.Name)
	}
	if req.AllowedAssistantIDs != nil {
		k.AllowedAssistantIDs = req.AllowedAssistantIDs
	}
	if req.ExpiresAt != nil {
		k.ExpiresAt = *req.ExpiresAt
	}
	if req.Active != nil {
		k.Active = *req.Active
	}
	if err := s.store.UpdateAPIKey(r.Context(), k); err != nil {
		s.respondStoreError(w, "update_api_key", err)
		return
	}
	respondJSON(w, http.StatusOK, maskedView(*k))
}

func (s *Server) handleDeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "invalid api key id")
		return
	}
	if err := s.store.DeleteAPIKey(r.Context(), id); err != nil {
		s.respondStoreError(w, "delete_api_key", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
