package httpapi

import (
	"net/http"
	"time"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   Version,
		"timestamp": time.Now().UTC(),
	})
}

// route describes one mounted operation, rendered by GET /discover. Kept as
// a hand-maintained table rather than reflection over the chi tree: the
// router's internal structure isn't a stable public contract, but this list
// is.
type route struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

var discoverRoutes = []route{
	{"POST", "/webhooks/{source}", "Accept a signed webhook delivery and enqueue a job"},
	{"GET", "/health", "Liveness and version check"},
	{"GET", "/discover", "List available operations"},
	{"GET", "/webhooks/jobs", "List jobs across queue states for the resolved workspace"},
	{"GET", "/webhooks/worktrees", "List scratch worktrees for the resolved workspace"},
	{"DELETE", "/webhooks/worktrees/{name}", "Remove a worktree; requires ?password= and a confirmation hash"},
	{"GET", "/kanban/boards", "List kanban boards"},
	{"GET", "/kanban/lists", "List lists on the default board"},
	{"GET", "/kanban/cards", "List kanban cards, optionally filtered"},
	{"POST", "/kanban/cards", "Create a kanban card"},
	{"GET", "/kanban/cards/{id}", "Get one kanban card"},
	{"PATCH", "/kanban/cards/{id}", "Update a kanban card"},
	{"DELETE", "/kanban/cards/{id}", "Delete a kanban card"},
	{"POST", "/kanban/cards/{id}/move", "Move a kanban card to another list"},
	{"GET", "/kanban/cards/{id}/history", "Get a card's append-only history"},
	{"GET", "/observability/events/stream", "Server-sent stream of domain events for the resolved workspace"},
	{"GET", "/metrics", "Prometheus exposition"},
}

func (s *Server) handleDiscover(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"routes": discoverRoutes})
}
