package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"coehub/pkg/domain"
)

type contextKey string

const (
	ctxUser     contextKey = "user"
	ctxResource contextKey = "resource"
)

// requireUser rejects requests without a valid bearer token and stashes the
// resolved user on the context.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.userForRequest(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "", "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxUser, user)))
	})
}

// resolveResource validates the {resource} path segment against the known
// record tables before any handler runs.
func (s *Server) resolveResource(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resource := chi.URLParam(r, "resource")
		if _, ok := domain.EntityTypeForResource(resource); !ok {
			writeError(w, http.StatusNotFound, "", "unknown resource")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxResource, resource)))
	})
}

func requestUser(r *http.Request) domain.BackendUser {
	user, _ := r.Context().Value(ctxUser).(domain.BackendUser)
	return user
}

func requestResource(r *http.Request) string {
	resource, _ := r.Context().Value(ctxResource).(string)
	return resource
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		s.metrics.Requests.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
	})
}
