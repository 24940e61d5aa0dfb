package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/irkan/assistant-admin-panel-backend/internal/store"
)

type voiceRequest struct {
	Slug       string `json:"slug"`
	Name       string `json:"name"`
	Provider   string `json:"provider"`
	Gender     string `json:"gender"`
	Language   string `json:"language"`
	PreviewURL string `json:"preview_url"`
	Featured   *bool  `json:"featured"`
	Active     *bool  `json:"active"`
}

func voiceFilterFromQuery(r *http.Request) store.VoiceFilter {
	q := r.URL.Query()
	f := store.VoiceFilter{
		Provider: strings.TrimSpace(q.Get("provider")),
		Language: strings.TrimSpace(q.Get("language")),
		Gender:   strings.TrimSpace(q.Get("gender")),
	}
	if v := q.Get("featured"); v != "" {
		featured, err := strconv.ParseBool(v)
		if err == nil {
			f.Featured = &featured
		}
	}
	return f
}

func (s *Server) handleListVoices(w http.ResponseWriter, r *http.Request) {
	voices, total, err := s.store.ListVoices(r.Context(), voiceFilterFromQuery(r), pageFromQuery(r))
	if err != nil {
		s.respondStoreError(w, "list_voices", err)
		return
	}
	respondJSON(w, http.StatusOK, listResponse{Items: voices, Total: total})
}

func (s *Server) handleFeaturedVoices(w http.ResponseWriter, r *http.Request) {
	voices, err := s.store.FeaturedVoices(r.Context())
	if err != nil {
		s.respondStoreError(w, "featured_voices", err)
		return
	}
	respondJSON(w, http.StatusOK, listResponse{Items: voices, Total: len(voices)})
}

func (s *Server) handleCreateVoice(w http.ResponseWriter, r *http.Request) {
	var req voiceRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Slug) == "" || strings.TrimSpace(req.Name) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "slug and name are required")
		return
	}

	v := &store.Voice{
		Slug:       strings.TrimSpace(req.Slug),
		Name:       strings.TrimSpace(req.Name),
		Provider:   strings.TrimSpace(req.Provider),
		Gender:     strings.TrimSpace(req.Gender),
		Language:   strings.TrimSpace(req.Language),
		PreviewURL: strings.TrimSpace(req.PreviewURL),
		Active:     true,
	}
	if req.Featured != nil {
		v.Featured = *req.Featured
	}
	if req.Active != nil {
		v.Active = *req.Active
	}
	if err := s.store.CreateVoice(r.Context(), v); err != nil {
		s.respondStoreError(w, "create_voice", err)
		return
	}
	respondJSON(w, http.StatusCreated, v)
}

func (s *Server) handleGetVoice(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "invalid voice id")
		return
	}
	v, err := s.store.VoiceByID(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, "get_voice", err)
		return
	}
	respondJSON(w, http.StatusOK, v)
}

func (s *Server) handleUpdateVoice(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "invalid voice id")
		return
	}
	v, err := s.store.VoiceByID(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, "get_voice", err)
		return
	}

	var req voiceRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Slug) != "" {
		v.Slug = strings.TrimSpace(req.Slug)
	}
	if strings.TrimSpace(req.Name) != "" {
		v.Name = strings.TrimSpace(req.Name)
	}
	if strings.TrimSpace(req.Provider) != "" {
		v.Provider = strings.TrimSpace(req.Provider)
	}
	if strings.TrimSpace(req.Gender) != "" {
		v.Gender = strings.TrimSpace(req.Gender)
	}
	if strings.TrimSpace(req.Language) != "" {
		v.Language = strings.TrimSpace(req.Language)
	}
	if strings.TrimSpace(req.PreviewURL) != "" {
		v.PreviewURL = strings.TrimSpace(req.PreviewURL)
	}
	if req.Featured != nil {
		v.Featured = *req.Featured
	}
	if req.Active != nil {
		v.Active = *req.Active
	}
	if err := s.store.UpdateVoice(r.Context(), v); err != nil {
		s.respondStoreError(w, "update_voice", err)
		return
	}
	respondJSON(w, http.StatusOK, v)
}

func (s *Server) handleDeleteVoice(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "invalid voice id")
		return
	}
	if err := s.store.DeleteVoice(r.Context(), id); err != nil {
		s.respondStoreError(w, "delete_voice", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
