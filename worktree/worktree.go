// Package worktree manages isolated per-job scratch trees via the git CLI.
// git itself is an external collaborator (per the spec's scope): this
// package shells out to it through the adapted process.Process runner
// rather than wrapping a git library.
package worktree

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/h4mn/skybridge/logger"
	"github.com/h4mn/skybridge/process"
)

// Status is the worktree's lifecycle status as tracked by the orchestrator.
type Status string

const (
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusUnknown    Status = "UNKNOWN"
)

// Worktree is a scratch tree dedicated to one job attempt.
type Worktree struct {
	Name   string
	Path   string
	Branch string
	Status Status
}

// ValidationResult is the outcome of ValidateRemoval.
type ValidationResult struct {
	CanRemove      bool
	Reason         string
	SnapshotStatus string
}

// Manager creates, inspects, and removes worktrees rooted at one canonical
// repository checkout.
type Manager struct {
	log          logger.Logger
	repoPath     string
	worktreeRoot string
	gitTimeout   time.Duration
}

// New returns a Manager operating against the canonical repository at
// repoPath, materializing scratch trees under worktreeRoot.
func New(l logger.Logger, repoPath, worktreeRoot string) *Manager {
	return &Manager{
		log:          l,
		repoPath:     repoPath,
		worktreeRoot: worktreeRoot,
		gitTimeout:   30 * time.Second,
	}
}

func worktreeName(source, eventType, externalID, shortHash string) string {
	return fmt.Sprintf("skybridge-%s-%s-%s-%s", source, eventType, externalID, shortHash)
}

func branchName(source, externalID, shortHash string) string {
	return fmt.Sprintf("webhook/%s/issue/%s/%s", source, externalID, shortHash)
}

// Create materializes a new branch and scratch tree. If the branch already
// exists, Create returns the existing Worktree rather than erroring — this
// is the idempotency guarantee relied on by duplicate webhook deliveries
// and job retries sharing the same short_hash.
func (m *Manager) Create(ctx context.Context, source, eventType, externalID, shortHash string) (*Worktree, error) {
	name := worktreeName(source, eventType, externalID, shortHash)
	branch := branchName(source, externalID, shortHash)
	path := filepath.Join(m.worktreeRoot, name)

	if _, err := os.Stat(path); err == nil {
		return &Worktree{Name: name, Path: path, Branch: branch, Status: StatusProcessing}, nil
	}

	if err := m.runGit(ctx, m.repoPath, "worktree", "add", "-B", branch, path); err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return &Worktree{Name: name, Path: path, Branch: branch, Status: StatusProcessing}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrCreationFailed, err)
	}

	return &Worktree{Name: name, Path: path, Branch: branch, Status: StatusProcessing}, nil
}

// List enumerates every scratch tree currently materialized under
// worktreeRoot, for the operator surface's GET /webhooks/worktrees.
func (m *Manager) List() ([]Worktree, error) {
	entries, err := os.ReadDir(m.worktreeRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("worktree: listing %s: %w", m.worktreeRoot, err)
	}

	var out []Worktree
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		out = append(out, Worktree{
			Name:   e.Name(),
			Path:   filepath.Join(m.worktreeRoot, e.Name()),
			Status: StatusUnknown,
		})
	}
	return out, nil
}

// Status reads the worktree's directory to determine its current status.
func (m *Manager) Status(name string) (*Worktree, error) {
	path := filepath.Join(m.worktreeRoot, name)
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("worktree: %s not found: %w", name, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("worktree: %s is not a directory", name)
	}
	return &Worktree{Name: name, Path: path, Status: StatusUnknown}, nil
}

// ValidateRemoval inspects git status to decide whether a worktree can be
// safely removed: zero staged, zero unstaged changes, and zero unpushed
// commits. Untracked files are allowed and noted in Reason. Unpushed
// commits are git's ahead count against the branch's upstream; a branch
// with no upstream counts as having none.
func (m *Manager) ValidateRemoval(ctx context.Context, name string) (*ValidationResult, error) {
	path := filepath.Join(m.worktreeRoot, name)

	out, err := m.captureGit(ctx, path, "status", "--porcelain=v2", "--branch")
	if err != nil {
		return nil, fmt.Errorf("worktree: validating removal of %s: %w", name, err)
	}

	var staged, unstaged, untracked int
	var ahead int
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(line, "# branch.ab "):
			fmt.Sscanf(line, "# branch.ab +%d", &ahead)
		case strings.HasPrefix(line, "1 ") || strings.HasPrefix(line, "2 "):
			fields := strings.Fields(line)
			if len(fields) >= 2 && len(fields[1]) == 2 {
				if fields[1][0] != '.' {
					staged++
				}
				if fields[1][1] != '.' {
					unstaged++
				}
			}
		case strings.HasPrefix(line, "? "):
			untracked++
		}
	}

	canRemove := staged == 0 && unstaged == 0 && ahead == 0
	reason := fmt.Sprintf("staged=%d unstaged=%d untracked=%d unpushed=%d", staged, unstaged, untracked, ahead)

	return &ValidationResult{
		CanRemove:      canRemove,
		Reason:         reason,
		SnapshotStatus: out,
	}, nil
}

// Remove deletes the worktree directory and its git registration. Callers
// must have already confirmed removal is safe via ValidateRemoval, or be
// performing an explicitly overridden destructive cleanup.
func (m *Manager) Remove(ctx context.Context, name string) error {
	path := filepath.Join(m.worktreeRoot, name)
	if err := m.runGit(ctx, m.repoPath, "worktree", "remove", "--force", path); err != nil {
		return fmt.Errorf("worktree: removing %s: %w", name, err)
	}
	return nil
}

func (m *Manager) runGit(ctx context.Context, dir string, args ...string) error {
	_, err := m.captureGit(ctx, dir, args...)
	return err
}

func (m *Manager) captureGit(ctx context.Context, dir string, args ...string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, m.gitTimeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	proc := process.New(m.log, process.Config{
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
