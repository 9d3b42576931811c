package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// handleListJobs reports the queue's point-in-time stats for the resolved
// workspace. Individual job bodies are intentionally not dumped here (they
// live as files under QUEUE_BASE and can contain raw webhook bytes); this is
// an operator dashboard summary, not a job-record export.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromContext(r)
	stats, err := ws.Queue.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "reading queue stats: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListWorktrees(w http.ResponseWriter, _ *http.Request) {
	trees, err := s.cfg.Worktrees.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing worktrees: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"worktrees": trees})
}

// handleDeleteWorktree implements the destructive cleanup path from
// spec.md §4.6/§6.1: the operator-configured password plus explicit
// confirmation that the caller knows the target's trailing short_hash is
// what makes this a forced removal — per §4.6, that override is what lets
// the caller remove a worktree ValidateRemoval would otherwise refuse.
func (s *Server) handleDeleteWorktree(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	password := r.URL.Query().Get("password")
	confirm := r.URL.Query().Get("confirm")

	if s.cfg.DeletePasswd == "" || password != s.cfg.DeletePasswd {
		writeError(w, http.StatusUnauthorized, "invalid or missing password")
		return
	}
	if confirm == "" || !strings.HasSuffix(name, confirm) {
		writeError(w, http.StatusBadRequest, "confirm must match the worktree name's trailing hash")
		return
	}

	if _, err := s.cfg.Worktrees.ValidateRemoval(r.Context(), name); err != nil {
		writeError(w, http.StatusInternalServerError, "validating removal: %v", err)
		return
	}

	if err := s.cfg.Worktrees.Remove(r.Context(), name); err != nil {
		writeError(w, http.StatusInternalServerError, "removing worktree: %v", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
