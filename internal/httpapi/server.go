package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/irkan/assistant-admin-panel-backend/internal/apikey"
	"github.com/irkan/assistant-admin-panel-backend/internal/auth"
	"github.com/irkan/assistant-admin-panel-backend/internal/bridge"
	"github.com/irkan/assistant-admin-panel-backend/internal/config"
	"github.com/irkan/assistant-admin-panel-backend/internal/observability"
	"github.com/irkan/assistant-admin-panel-backend/internal/session"
	"github.com/irkan/assistant-admin-panel-backend/internal/store"
)

type Server struct {
	cfg      config.Config
	store    store.Store
	hasher   *auth.Hasher
	tokens   *auth.TokenManager
	keys     *apikey.Validator
	sessions *session.Manager
	bridge   *bridge.Handler
	metrics  *observability.Metrics
	log      *zap.Logger
}

func New(cfg config.Config, st store.Store, tokens *auth.TokenManager, keys *apikey.Validator, sessions *session.Manager, voiceBridge *bridge.Handler, metrics *observability.Metrics, log *zap.Logger) *Server {
	return &Server{
		cfg:      cfg,
		store:    st,
		hasher:   auth.NewHasher(cfg.BcryptCost),
		tokens:   tokens,
		keys:     keys,
		sessions: sessions,
		bridge:   voiceBridge,
		metrics:  metrics,
		log:      log,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		// Admin surface, JWT protected.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireToken(s.tokens))

			r.Get("/auth/me", s.handleMe)

			r.Route("/organizations", func(r chi.Router) {
				r.Get("/", s.handleListOrganizations)
				r.Post("/", s.handleCreateOrganization)
				r.Get("/{id}", s.handleGetOrganization)
				r.Put("/{id}", s.handleUpdateOrganization)
				r.Delete("/{id}", s.handleDeleteOrganization)
			})

			r.Route("/users", func(r chi.Router) {
				r.Get("/", s.handleListUsers)
				r.Post("/", s.handleCreateUser)
				r.Get("/{id}", s.handleGetUser)
				r.Put("/{id}", s.handleUpdateUser)
				r.Delete("/{id}", s.handleDeleteUser)
			})

			r.Route("/assistants", func(r chi.Router) {
				r.Get("/", s.handleListAssistants)
				r.Post("/", s.handleCreateAssistant)
				r.Get("/{id}", s.handleGetAssistant)
				r.Put("/{id}", s.handleUpdateAssistant)
				r.Delete("/{id}", s.handleDeleteAssistant)
			})

			r.Route("/voices", func(r chi.Router) {
				r.Get("/", s.handleListVoices)
				r.Get("/featured", s.handleFeaturedVoices)
				r.Post("/", s.handleCreateVoice)
				r.Get("/{id}", s.handleGetVoice)
				r.Put("/{id}", s.handleUpdateVoice)
				r.Delete("/{id}", s.handleDeleteVoice)
			})

			r.Route("/tools", func(r chi.Router) {
				r.Get("/", s.handleListTools)
				r.Post("/", s.handleCreateTool)
				r.Get("/{id}", s.handleGetTool)
				r.Put("/{id}", s.handleUpdateTool)
				r.Delete("/{id}", s.handleDeleteTool)
			})

			r.Route("/api-keys", func(r chi.Router) {
				r.Get("/", s.handleListAPIKeys)
				r.Post("/", s.handleCreateAPIKey)
				r.Put("/{id}", s.handleUpdateAPIKey)
				r.Delete("/{id}", s.handleDeleteAPIKey)
			})

			r.Get("/sessions", s.handleListSessions)
		})

		// Public assistant surface, API-key protected.
		r.Route("/v1/assistants", func(r chi.Router) {
			r.Get("/", s.handlePublicListAssistants)
			r.Get("/{uuid}", s.handlePublicGetAssistant)
		})
	})

	r.Get("/voice/ws", s.bridge.ServeHTTP)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbStatus := "ok"
	if err := s.store.Ping(r.Context()); err != nil {
		dbStatus = "unreachable"
	}
	status := http.StatusOK
	if dbStatus != "ok" {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, map[string]any{
		"status":          dbStatus,
		"active_sessions": s.sessions.ActiveCount(),
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"sessions": s.sessions.List()})
}

// listResponse is the common paged list shape.
type listResponse struct {
	Items any `json:"items"`
	Total int `json:"total"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondStoreError maps store sentinels to HTTP statuses.
func (s *Server) respondStoreError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", "record not found")
	case errors.Is(err, store.ErrConflict):
		respondError(w, http.StatusConflict, "conflict", err.Error())
	default:
		s.metrics.StoreErrors.WithLabelValues(op).Inc()
		s.log.Error("store operation failed", zap.String("op", op), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func idParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func pageFromQuery(r *http.Request) store.Page {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	return store.Page{Limit: limit, Offset: offset}
}

func queryInt64(r *http.Request, name string) int64 {
	v, _ := strconv.ParseInt(strings.TrimSpace(r.URL.Query().Get(name)), 10, 64)
	return v
}
