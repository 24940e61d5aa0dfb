package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// apiKeyFromRequest pulls the raw key from the X-API-Key header, falling back
// to the apiKey query parameter for clients that cannot set headers.
func apiKeyFromRequest(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("X-API-Key")); v != "" {
		return v
	}
	return strings.TrimSpace(r.URL.Query().Get("apiKey"))
}

func (s *Server) handlePublicListAssistants(w http.ResponseWriter, r *http.Request) {
	key, err := s.keys.ValidateKey(r.Context(), apiKeyFromRequest(r))
	if err != nil {
		respondError(w, http.StatusUnauthorized, "access_denied", "access denied")
		return
	}
	assistants, err := s.store.ListPublishedAssistants(r.Context(), key.OrganizationID, key.AllowedAssistantIDs)
	if err != nil {
		s.respondStoreError(w, "list_published_assistants", err)
		return
	}
	respondJSON(w, http.StatusOK, listResponse{Items: assistants, Total: len(assistants)})
}

func (s *Server) handlePublicGetAssistant(w http.ResponseWriter, r *http.Request) {
	assistantUUID := chi.URLParam(r, "uuid")
	a, _, err := s.keys.Validate(r.Context(), apiKeyFromRequest(r), assistantUUID)
	if err != nil {
		// Unknown assistant and out-of-scope assistant answer alike.
		respondError(w, http.StatusUnauthorized, "access_denied", "access denied")
		return
	}
	respondJSON(w, http.StatusOK, a)
}
