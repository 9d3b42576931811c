package orchestrator_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/h4mn/skybridge/agentfacade"
	"github.com/h4mn/skybridge/domainevent"
	"github.com/h4mn/skybridge/jobqueue"
	"github.com/h4mn/skybridge/logger"
	"github.com/h4mn/skybridge/orchestrator"
	"github.com/h4mn/skybridge/snapshot"
	"github.com/h4mn/skybridge/workspace"
	"github.com/h4mn/skybridge/worktree"
	"github.com/stretchr/testify/require"
)

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoErrorf(t, err, "git %v: %s", args, out)
}

// initRepoWithOrigin creates a bare "origin" and a working clone, so
// commitAndPush's `git push origin <branch>` has somewhere real to land.
func initRepoWithOrigin(t *testing.T) string {
	t.Helper()
	bare := t.TempDir()
	runGit(t, bare, "init", "--bare", "-b", "main")

	repo := t.TempDir()
	runGit(t, repo, "clone", bare, ".")
	runGit(t, repo, "config", "user.email", "test@example.com")
	runGit(t, repo, "config", "user.name", "test")
	require.NoError(t, os.WriteFile(filepath.Join(repo, "README.md"), []byte("hello"), 0o644))
	runGit(t, repo, "add", "-A")
	runGit(t, repo, "commit", "-m", "initial")
	runGit(t, repo, "push", "origin", "main")
	return repo
}

func testPrompt() *agentfacade.SystemPromptTemplate {
	p := &agentfacade.SystemPromptTemplate{Version: "1"}
	p.Template.Role = "Resolve {issue_number} in {repo_name}."
	return p
}

func testWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	base := t.TempDir()
	r, err := workspace.NewRegistry(logger.Discard, workspace.Dependencies{
		QueueBasePath:           filepath.Join(base, "queue"),
		WorkspacesBasePath:      filepath.Join(base, "workspaces"),
		LogsBasePath:            filepath.Join(base, "logs"),
		ProcessingRecoveryGrace: time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	ws, err := r.Get("")
	require.NoError(t, err)
	return ws
}

func noopSpawnContext(job jobqueue.WebhookJob, worktreePath, branchName string) agentfacade.SpawnContext {
	return agentfacade.SpawnContext{
		WorktreePath: worktreePath,
		BranchName:   branchName,
		RepoName:     "acme/widgets",
	}
}

func subscribeOnce(ws *workspace.Workspace, eventType domainevent.Type) chan domainevent.Event {
	ch := make(chan domainevent.Event, 8)
	ws.Bus.Subscribe(eventType, func(e domainevent.Event) { ch <- e })
	return ch
}

// runOrchestrator starts o.Run in the background and stops it once the
// test finishes, mirroring how cmd/skybridged drives one Orchestrator per
// workspace for the life of the process.
func runOrchestrator(t *testing.T, o *orchestrator.Orchestrator) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go o.Run(ctx)
}

func waitForEvent(t *testing.T, ch chan domainevent.Event) domainevent.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return domainevent.Event{}
	}
}

func TestProcessCompletesJobWhenAgentReportsSuccessWithoutChanges(t *testing.T) {
	repo := initRepoWithOrigin(t)
	ws := testWorkspace(t)

	script := `cat >/dev/null
echo '{"success":true,"changes_made":false,"message":"nothing to do"}'
`
	facade := agentfacade.New(logger.Discard, agentfacade.Config{
		AgentBinary: "/bin/sh",
		AgentArgs:   []string{"-c", script},
		AgentKind:   "claude",
		Prompt:      testPrompt(),
	})

	o := orchestrator.New(logger.Discard, ws, orchestrator.Config{
		Worktree:     worktree.New(logger.Discard, repo, t.TempDir()),
		Snapshot:     snapshot.New(logger.Discard, 10*time.Second),
		Facade:       facade,
		Autonomy:     orchestrator.Development,
		BuildContext: noopSpawnContext,
	})

	completed := subscribeOnce(ws, domainevent.JobCompleted)
	runOrchestrator(t, o)

	_, err := ws.Queue.Enqueue(jobqueue.WebhookJob{
		JobID: "github-issues.opened-abc12345",
		Event: jobqueue.WebhookEvent{
			Source:    "github",
			EventType: "issues.opened",
			Parsed:    []byte(`{"issue":{"number":42}}`),
		},
		Skill: "resolve-issue",
	})
	require.NoError(t, err)

	e := waitForEvent(t, completed)
	require.Equal(t, "github-issues.opened-abc12345", e.AggregateID)
}

func TestProcessCommitsAndPushesWhenAgentChangesFiles(t *testing.T) {
	repo := initRepoWithOrigin(t)
	ws := testWorkspace(t)

	script := `cat >/dev/null
echo "agent was here" >> README.md
echo '{"success":true,"changes_made":true,"message":"docs tweak"}'
`
	facade := agentfacade.New(logger.Discard, agentfacade.Config{
		AgentBinary: "/bin/sh",
		AgentArgs:   []string{"-c", script},
		AgentKind:   "claude",
		Prompt:      testPrompt(),
	})

	o := orchestrator.New(logger.Discard, ws, orchestrator.Config{
		Worktree:     worktree.New(logger.Discard, repo, t.TempDir()),
		Snapshot:     snapshot.New(logger.Discard, 10*time.Second),
		Facade:       facade,
		Autonomy:     orchestrator.Development,
		BuildContext: noopSpawnContext,
	})

	pushed := subscribeOnce(ws, domainevent.JobPushed)
	completed := subscribeOnce(ws, domainevent.JobCompleted)
	runOrchestrator(t, o)

	_, err := ws.Queue.Enqueue(jobqueue.WebhookJob{
		JobID: "github-issues.opened-def67890",
		Event: jobqueue.WebhookEvent{
			Source:    "github",
			EventType: "issues.opened",
			Parsed:    []byte(`{"issue":{"number":7}}`),
		},
		Skill: "resolve-issue",
	})
	require.NoError(t, err)

	waitForEvent(t, pushed)
	waitForEvent(t, completed)
}

func TestProcessFailsJobOnAgentCrash(t *testing.T) {
	repo := initRepoWithOrigin(t)
	ws := testWorkspace(t)

	facade := agentfacade.New(logger.Discard, agentfacade.Config{
		AgentBinary: "/bin/sh",
		AgentArgs:   []string{"-c", "cat >/dev/null; exit 1"},
		AgentKind:   "claude",
		Prompt:      testPrompt(),
	})

	o := orchestrator.New(logger.Discard, ws, orchestrator.Config{
		Worktree:     worktree.New(logger.Discard, repo, t.TempDir()),
		Snapshot:     snapshot.New(logger.Discard, 10*time.Second),
		Facade:       facade,
		Autonomy:     orchestrator.Development,
		BuildContext: noopSpawnContext,
	})

	failed := subscribeOnce(ws, domainevent.JobFailed)
	runOrchestrator(t, o)

	_, err := ws.Queue.Enqueue(jobqueue.WebhookJob{
		JobID: "github-issues.opened-ffffffff",
		Event: jobqueue.WebhookEvent{
			Source:    "github",
			EventType: "issues.opened",
			Parsed:    []byte(`{"issue":{"number":99}}`),
		},
		Skill: "resolve-issue",
	})
	require.NoError(t, err)

	e := waitForEvent(t, failed)
	require.Equal(t, "github-issues.opened-ffffffff", e.AggregateID)
}

func TestProcessReviewAutonomySkipsWorktreeAndCompletesImmediately(t *testing.T) {
	ws := testWorkspace(t)

	o := orchestrator.New(logger.Discard, ws, orchestrator.Config{
		Autonomy: orchestrator.Review,
	})

	completed := subscribeOnce(ws, domainevent.JobCompleted)
	runOrchestrator(t, o)

	_, err := ws.Queue.Enqueue(jobqueue.WebhookJob{
		JobID: "github-issues.opened-review001",
		Event: jobqueue.WebhookEvent{
			Source:    "github",
			EventType: "issues.opened",
			Parsed:    []byte(`{"issue":{"number":5}}`),
		},
		Skill: "review-issue",
	})
	require.NoError(t, err)

	waitForEvent(t, completed)
}
