// Package httpapi is the operator-facing HTTP surface: webhook intake,
// kanban CRUD, operator read/cleanup routes, health, discovery, metrics, and
// the server-sent event stream. Routing is go-chi, the same library and
// middleware stack the teacher's jobapi package uses.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/h4mn/skybridge/logger"
	"github.com/h4mn/skybridge/metricsstore"
	"github.com/h4mn/skybridge/webhookintake"
	"github.com/h4mn/skybridge/workspace"
	"github.com/h4mn/skybridge/worktree"
)

// Version is the build version reported by GET /health. Overridden by the
// main package via a linker flag in a real release build; left as a plain
// var so no build-tooling dependency is required to run from source.
var Version = "dev"

// Config bundles every collaborator the HTTP surface calls into.
type Config struct {
	Log          logger.Logger
	Workspaces   *workspace.Registry
	Intake       *webhookintake.Intake
	Worktrees    *worktree.Manager
	Metrics      *metricsstore.Registry
	DeletePasswd string
	CORSOrigins  []string
}

// Server owns the chi router and the net/http.Server wrapping it.
type Server struct {
	cfg    Config
	router chi.Router
	http   *http.Server
}

// New builds the router and wraps it in a *http.Server listening at addr.
func New(addr string, cfg Config) *Server {
	s := &Server{cfg: cfg}
	s.router = s.buildRouter()
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLoggerMiddleware(s.cfg.Log))

	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "X-Workspace"},
			AllowCredentials: true,
		}))
	}

	r.Get("/health", s.handleHealth)
	r.Get("/discover", s.handleDiscover)
	r.Get("/metrics", s.handleMetrics())

	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/{source}", s.handleWebhook)
		r.With(s.workspaceMiddleware).Get("/jobs", s.handleListJobs)
		r.With(s.workspaceMiddleware).Get("/worktrees", s.handleListWorktrees)
		r.With(s.workspaceMiddleware).Delete("/worktrees/{name}", s.handleDeleteWorktree)
	})

	r.Route("/kanban", func(r chi.Router) {
		r.Use(s.workspaceMiddleware)
		r.Get("/boards", s.handleListBoards)
		r.Get("/lists", s.handleListLists)
		r.Get("/cards", s.handleListCards)
		r.Post("/cards", s.handleCreateCard)
		r.Get("/cards/{id}", s.handleGetCard)
		r.Patch("/cards/{id}", s.handleUpdateCard)
		r.Delete("/cards/{id}", s.handleDeleteCard)
		r.Post("/cards/{id}/move", s.handleMoveCard)
		r.Get("/cards/{id}/history", s.handleCardHistory)
	})

	r.With(s.workspaceMiddleware).Get("/observability/events/stream", s.handleEventStream)

	return r
}

// Handler returns the underlying router so tests can drive it directly with
// httptest, the same way jobapi exposes its SocketPath for direct dialing
// instead of forcing every test through a live network listener.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving in a goroutine.
func (s *Server) Start() {
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.cfg.Log.Error("httpapi: serve: %v", err)
		}
	}()
	s.cfg.Log.Notice("httpapi: listening on %s", s.http.Addr)
}

// Shutdown gracefully drains in-flight requests, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
