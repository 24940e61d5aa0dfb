package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/irkan/assistant-admin-panel-backend/internal/auth"
	"github.com/irkan/assistant-admin-panel-backend/internal/store"
)

type registerRequest struct {
	Name     string `json:"name"`
	Surname  string `json:"surname"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string      `json:"token"`
	User  *store.User `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
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
		UUID:         uuid.NewString(),
		Name:         strings.TrimSpace(req.Name),
		Surname:      strings.TrimSpace(req.Surname),
		Email:        req.Email,
		PasswordHash: hash,
		Active:       true,
	}
	if err := s.store.CreateUser(r.Context(), u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			respondError(w, http.StatusConflict, "email_taken", "email is already registered")
			return
		}
		s.respondStoreError(w, "create_user", err)
		return
	}

	token, err := s.tokens.Issue(u.UUID, u.Email)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	s.log.Info("user registered", zap.String("user_uuid", u.UUID))
	respondJSON(w, http.StatusCreated, tokenResponse{Token: token, User: u})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	u, err := s.store.UserByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil || !u.Active || !s.hasher.Verify(u.PasswordHash, req.Password) {
		// One answer for unknown email, disabled account and bad password.
		respondError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
		return
	}

	token, err := s.tokens.Issue(u.UUID, u.Email)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	respondJSON(w, http.StatusOK, tokenResponse{Token: token, User: u})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}
	u, err := s.store.UserByEmail(r.Context(), identity.Email)
	if err != nil {
		s.respondStoreError(w, "get_user", err)
		return
	}
	respondJSON(w, http.StatusOK, u)
}
