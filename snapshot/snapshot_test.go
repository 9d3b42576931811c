package snapshot_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/h4mn/skybridge/logger"
	"github.com/h4mn/skybridge/snapshot"
	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		require.NoError(t, cmd.Run())
	}
	run("init", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644))
	run("add", "-A")
	run("commit", "-m", "initial")
	return dir
}

func TestCaptureCleanRepo(t *testing.T) {
	repo := initRepo(t)
	svc := snapshot.New(logger.Discard, 0)

	snap, err := svc.Capture(context.Background(), repo)
	require.NoError(t, err)
	require.Equal(t, "main", snap.Branch)
	require.NotEmpty(t, snap.HeadCommit)
	require.Zero(t, snap.Staged)
	require.Zero(t, snap.Unstaged)
}

func TestDiffDetectsModifiedFile(t *testing.T) {
	repo := initRepo(t)
	svc := snapshot.New(logger.Discard, 0)

	before, err := svc.Capture(context.Background(), repo)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(repo, "README.md"), []byte("hello\nworld\n"), 0o644))

	after, err := svc.Capture(context.Background(), repo)
	require.NoError(t, err)

	d := snapshot.Diff(before, after)
	require.Contains(t, d.FilesModified, "README.md")
	require.Greater(t, d.LinesAdded, 0)
}

func TestDiffDetectsAddedFile(t *testing.T) {
	repo := initRepo(t)
	svc := snapshot.New(logger.Discard, 0)

	before, err := svc.Capture(context.Background(), repo)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(repo, "new.txt"), []byte("new content\n"), 0o644))

	after, err := svc.Capture(context.Background(), repo)
	require.NoError(t, err)

	d := snapshot.Diff(before, after)
	require.Contains(t, d.FilesAdded, "new.txt")
}
