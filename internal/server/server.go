// Package server exposes the backend REST surface consumed by the admin
// dashboard client: auth reconciliation endpoints, per-resource record CRUD,
// saved reports, and usage analytics.
package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"coehub/pkg/domain"
)

// DefaultRole is assigned to users created through provider sync.
const DefaultRole = "researcher"

// Server carries the handler dependencies. Sessions are bearer tokens held in
// memory; restarting the server invalidates them, which the client handles by
// re-running its reconciliation ladder.
type Server struct {
	store   domain.PersistentStore
	logger  *zap.Logger
	metrics *Metrics

	mu       sync.Mutex
	tokens   map[string]string
	newToken func() string
}

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// New constructs a Server over the given store.
func New(store domain.PersistentStore, opts ...Option) *Server {
	s := &Server{
		store:    store,
		logger:   zap.NewNop(),
		tokens:   make(map[string]string),
		newToken: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}
	return s
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.logRequests)
	r.Use(s.countRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/sync-firebase-user", s.handleSyncProviderUser)
	r.Get("/auth/check", s.handleCheckAuth)

	r.Group(func(r chi.Router) {
		r.Use(s.requireUser)

		r.Post("/reports", s.handleSaveReport)
		r.Get("/reports", s.handleListReports)

		r.Get("/analytics/data-usage", s.handleDataUsage)
		r.Get("/analytics/data-usage/table/{table}", s.handleTableUsage)
		r.Get("/analytics/data-usage/user/{userID}", s.handleUserUsage)

		r.Route("/{resource}", func(r chi.Router) {
			r.Use(s.resolveResource)
			r.Get("/", s.handleListRecords)
			r.Post("/", s.handleCreateRecord)
			r.Post("/import", s.handleImportRecords)
			r.Put("/{id}", s.handleUpdateRecord)
			r.Delete("/{id}", s.handleDeleteRecord)
			r.Put("/{id}/attachment", s.handleUpdateAttachment)
		})
	})

	return r
}

type loginRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid login payload")
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		writeError(w, http.StatusBadRequest, "", "email required")
		return
	}
	user, ok := s.store.FindUserByEmail(email)
	if !ok {
		writeError(w, http.StatusNotFound, "user_not_found", "no user for email")
		return
	}
	s.respondSession(w, user)
}

type syncRequest struct {
	Email       string `json:"email"`
	UID         string `json:"uid"`
	DisplayName string `json:"displayName"`
}

func (s *Server) handleSyncProviderUser(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid sync payload")
		return
	}
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.UID) == "" {
		writeError(w, http.StatusBadRequest, "", "email and uid required")
		return
	}

	existing, found := s.store.FindUserByProviderUID(req.UID)
	if !found {
		existing, found = s.store.FindUserByEmail(req.Email)
	}

	var user domain.BackendUser
	err := s.store.RunInTransaction(r.Context(), func(tx domain.Transaction) error {
		if !found {
			created, err := tx.CreateUser(domain.BackendUser{
				Email:       req.Email,
				DisplayName: req.DisplayName,
				Role:        DefaultRole,
				ProviderUID: req.UID,
			})
			if err != nil {
				return err
			}
			user = created
			return nil
		}
		updated, err := tx.UpdateUser(existing.ID, func(u *domain.BackendUser) error {
			u.ProviderUID = req.UID
			if req.DisplayName != "" {
				u.DisplayName = req.DisplayName
			}
			return nil
		})
		if err != nil {
			return err
		}
		user = updated
		return nil
	})
	if err != nil {
		s.logger.Error("sync provider user", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "", "sync failed")
		return
	}
	s.respondSession(w, user)
}

func (s *Server) handleCheckAuth(w http.ResponseWriter, r *http.Request) {
	user, ok := s.userForRequest(r)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authenticated": true, "user": user})
}

// respondSession issues a fresh bearer token bound to the user.
func (s *Server) respondSession(w http.ResponseWriter, user domain.BackendUser) {
	token := s.newToken()
	s.mu.Lock()
	s.tokens[token] = user.ID
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user":          user,
		"token":         token,
	})
}

func (s *Server) userForRequest(r *http.Request) (domain.BackendUser, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return domain.BackendUser{}, false
	}
	s.mu.Lock()
	userID, ok := s.tokens[token]
	s.mu.Unlock()
	if !ok {
		return domain.BackendUser{}, false
	}
	return s.store.FindUser(userID)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	body := map[string]string{"message": message}
	if code != "" {
		body["code"] = code
	}
	writeJSON(w, status, body)
}
