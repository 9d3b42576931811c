package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/h4mn/skybridge/logger"
	"github.com/h4mn/skybridge/process"
)

// networkTimeout bounds every git push per spec.md §5 ("every network call
// has a default 30s timeout").
const networkTimeout = 30 * time.Second

// commitAndPush stages every change, commits with message, and pushes the
// current branch. Returns the new commit hash.
func commitAndPush(ctx context.Context, l logger.Logger, worktreePath, branch, message string) (string, error) {
	if _, err := runGit(ctx, l, worktreePath, 30*time.Second, "add", "-A"); err != nil {
		return "", fmt.Errorf("%w: git add: %v", ErrPushRejected, err)
	}
	if _, err := runGit(ctx, l, worktreePath, 30*time.Second, "commit", "-m", message); err != nil {
		return "", fmt.Errorf("%w: git commit: %v", ErrPushRejected, err)
	}

	hash, err := runGit(ctx, l, worktreePath, 10*time.Second, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("%w: reading commit hash: %v", ErrPushRejected, err)
	}

	if _, err := runGit(ctx, l, worktreePath, networkTimeout, "push", "origin", branch); err != nil {
		return "", fmt.Errorf("%w: git push: %v", ErrPushRejected, err)
	}

	return strings.TrimSpace(hash), nil
}

func runGit(ctx context.Context, l logger.Logger, dir string, timeout time.Duration, args ...string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	proc := process.New(l, process.Config{
		Path:   "git",
		Args:   args,
		Dir:    dir,
		Stdout: &stdout,
		Stderr: &stderr,
	})

	if err := proc.Run(runCtx); err != nil {
		return stdout.String(), fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
