package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/h4mn/skybridge/logger"
	"github.com/h4mn/skybridge/workspace"
)

type contextKey int

const workspaceContextKey contextKey = iota

// requestLoggerMiddleware mirrors the teacher's jobapi.LoggerMiddleware
// shape: log method, path, and duration after the handler returns.
func requestLoggerMiddleware(l logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			defer func() {
				l.Info("httpapi: %s\t%s\t%s", r.Method, r.URL.Path, time.Since(start))
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// workspaceMiddleware resolves the X-Workspace header to a *workspace.Workspace
// and stores it in the request context. A missing header resolves to core;
// an unknown non-empty value is rejected with 404, per SPEC_FULL.md §9 Open
// Question 3.
func (s *Server) workspaceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Workspace")
		ws, err := s.cfg.Workspaces.Get(id)
		if err != nil {
			writeError(w, http.StatusNotFound, "unknown workspace: %q", id)
			return
		}
		ctx := context.WithValue(r.Context(), workspaceContextKey, ws)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func workspaceFromContext(r *http.Request) *workspace.Workspace {
	ws, _ := r.Context().Value(workspaceContextKey).(*workspace.Workspace)
	return ws
}
