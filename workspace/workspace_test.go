package workspace_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/h4mn/skybridge/logger"
	"github.com/h4mn/skybridge/workspace"
	"github.com/stretchr/testify/require"
)

func deps(t *testing.T) workspace.Dependencies {
	t.Helper()
	base := t.TempDir()
	return workspace.Dependencies{
		QueueBasePath:           filepath.Join(base, "queue"),
		WorkspacesBasePath:      filepath.Join(base, "workspaces"),
		LogsBasePath:            filepath.Join(base, "logs"),
		ProcessingRecoveryGrace: time.Minute,
	}
}

func TestNewRegistryAlwaysCreatesCoreWorkspace(t *testing.T) {
	r, err := workspace.NewRegistry(logger.Discard, deps(t))
	require.NoError(t, err)
	defer r.Close()

	ws, err := r.Get("")
	require.NoError(t, err)
	require.Equal(t, workspace.CoreWorkspaceID, ws.ID)
}

func TestNewRegistryDiscoversConfiguredWorkspaces(t *testing.T) {
	d := deps(t)
	require.NoError(t, os.MkdirAll(filepath.Join(d.WorkspacesBasePath, "acme"), 0o755))

	r, err := workspace.NewRegistry(logger.Discard, d)
	require.NoError(t, err)
	defer r.Close()

	ws, err := r.Get("acme")
	require.NoError(t, err)
	require.Equal(t, "acme", ws.ID)

	all := r.All()
	require.Len(t, all, 2)
}

func TestGetResolvesEmptyToCoreButRejectsUnknown(t *testing.T) {
	r, err := workspace.NewRegistry(logger.Discard, deps(t))
	require.NoError(t, err)
	defer r.Close()

	ws, err := r.Get("")
	require.NoError(t, err)
	require.Equal(t, workspace.CoreWorkspaceID, ws.ID)

	_, err = r.Get("does-not-exist")
	require.Error(t, err)
	require.True(t, errors.Is(err, workspace.ErrUnknownWorkspace))
}

func TestEachWorkspaceGetsIsolatedCollaborators(t *testing.T) {
	d := deps(t)
	require.NoError(t, os.MkdirAll(filepath.Join(d.WorkspacesBasePath, "acme"), 0o755))

	r, err := workspace.NewRegistry(logger.Discard, d)
	require.NoError(t, err)
	defer r.Close()

	core, err := r.Get("")
	require.NoError(t, err)
	acme, err := r.Get("acme")
	require.NoError(t, err)

	require.NotSame(t, core.Queue, acme.Queue)
	require.NotSame(t, core.Bus, acme.Bus)
	require.NotSame(t, core.Kanban, acme.Kanban)
}
