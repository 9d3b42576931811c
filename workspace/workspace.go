// Package workspace is the root of Skybridge's multi-tenancy boundary:
// every job, queue file, kanban database, and event bus is scoped to
// exactly one Workspace. Registry holds the mapping from workspace id to
// its collaborators, built once at boot.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/h4mn/skybridge/domainevent"
	"github.com/h4mn/skybridge/kanban"
	"github.com/h4mn/skybridge/jobqueue"
	"github.com/h4mn/skybridge/logger"
	"github.com/h4mn/skybridge/metricsstore"
)

// CoreWorkspaceID is the workspace every surface falls back to when a
// caller omits an explicit workspace — but never when one names an unknown
// id, which is always rejected (see Registry.Get).
const CoreWorkspaceID = "core"

// Workspace is one tenancy's collaborators: its own durable queue, event
// bus, kanban board, and log directory. Declared at startup, immutable for
// the life of the process.
type Workspace struct {
	ID      string
	Root    string
	Enabled bool

	Queue   *jobqueue.Queue
	Bus     *domainevent.Bus
	Kanban  *kanban.Store
	LogDir  string
}

// Registry is the map of workspace id to its collaborators, keying every
// intake and orchestration call site.
type Registry struct {
	log        logger.Logger
	workspaces map[string]*Workspace
}

// Dependencies bundles the per-workspace construction parameters shared
// across every workspace discovered under basePath.
type Dependencies struct {
	QueueBasePath           string
	WorkspacesBasePath      string
	LogsBasePath            string
	ProcessingRecoveryGrace time.Duration
	Metrics                 *metricsstore.Registry
}

// NewRegistry discovers workspaces under deps.WorkspacesBasePath (one
// subdirectory per workspace id) and always guarantees a core entry, per
// spec.md §4.11. Each discovered workspace gets its own Queue, Bus, and
// kanban Store.
func NewRegistry(l logger.Logger, deps Dependencies) (*Registry, error) {
	r := &Registry{log: l, workspaces: make(map[string]*Workspace)}

	ids := []string{CoreWorkspaceID}
	if entries, err := os.ReadDir(deps.WorkspacesBasePath); err == nil {
		for _, e := range entries {
			if e.IsDir() && e.Name() != CoreWorkspaceID {
				ids = append(ids, e.Name())
			}
		}
	}

	for _, id := range ids {
		ws, err := r.build(l, id, deps)
		if err != nil {
			return nil, fmt.Errorf("workspace: building %s: %w", id, err)
		}
		r.workspaces[id] = ws
	}

	return r, nil
}

func (r *Registry) build(l logger.Logger, id string, deps Dependencies) (*Workspace, error) {
	root := filepath.Join(deps.WorkspacesBasePath, id)
	logDir := filepath.Join(deps.LogsBasePath, id)
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}
	dataDir := filepath.Join(root, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}

	queue, err := jobqueue.Open(l, filepath.Join(deps.QueueBasePath, id), deps.ProcessingRecoveryGrace, deps.Metrics)
	if err != nil {
		return nil, err
	}

	store, err := kanban.Open(l, filepath.Join(dataDir, "kanban.db"))
	if err != nil {
		return nil, err
	}

	bus := domainevent.NewBus(l)
	kanban.Subscribe(bus, store)

	return &Workspace{
		ID:      id,
		Root:    root,
		Enabled: true,
		Queue:   queue,
		Bus:     bus,
		Kanban:  store,
		LogDir:  logDir,
	}, nil
}

// Get resolves id to its Workspace. An empty id resolves to core. A
// non-empty, unregistered id is rejected with ErrUnknownWorkspace — this is
// the asymmetric resolution the spec's open question settled on: a missing
// header defaults silently, a wrong one does not.
func (r *Registry) Get(id string) (*Workspace, error) {
	if id == "" {
		id = CoreWorkspaceID
	}
	ws, ok := r.workspaces[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWorkspace, id)
	}
	return ws, nil
}

// All returns every registered workspace, for boot-time orchestrator
// fan-out.
func (r *Registry) All() []*Workspace {
	out := make([]*Workspace, 0, len(r.workspaces))
	for _, ws := range r.workspaces {
		out = append(out, ws)
	}
	return out
}

// Close releases every workspace's kanban database handle.
func (r *Registry) Close() error {
	var firstErr error
	for _, ws := range r.workspaces {
		if err := ws.Kanban.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
