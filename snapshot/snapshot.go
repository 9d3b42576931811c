// Package snapshot captures and diffs a worktree's git state, serving as
// the sole trusted source of "what did the agent change?" for the
// orchestrator and for the operator surface.
package snapshot

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/h4mn/skybridge/logger"
	"github.com/h4mn/skybridge/process"
)

// FileStat describes one tracked-or-dirty file at capture time.
type FileStat struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
	Hash string `json:"hash"`
}

// Snapshot is the captured state of a worktree at a moment.
type Snapshot struct {
	Branch       string     `json:"branch"`
	HeadCommit   string     `json:"head_commit"`
	Staged       int        `json:"staged"`
	Unstaged     int        `json:"unstaged"`
	Untracked    int        `json:"untracked"`
	Files        []FileStat `json:"files"`
	Diffs        map[string]string `json:"diffs,omitempty"`
	CapturedAt   time.Time  `json:"captured_at"`
}

// SnapshotDiff is the aggregate delta between two snapshots.
type SnapshotDiff struct {
	FilesAdded    []string `json:"files_added"`
	FilesModified []string `json:"files_modified"`
	FilesDeleted  []string `json:"files_deleted"`
	LinesAdded    int      `json:"lines_added"`
	LinesRemoved  int      `json:"lines_removed"`
	PerPathDiffs  map[string]string `json:"per_path_diffs,omitempty"`
}

// Service captures snapshots of worktrees via the git CLI.
type Service struct {
	log     logger.Logger
	timeout time.Duration
}

// New returns a Service that shells out to git with the given per-call
// timeout.
func New(l logger.Logger, timeout time.Duration) *Service {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Service{log: l, timeout: timeout}
}

// Capture records branch, HEAD, dirty-set counts, a file inventory, and a
// unified diff per dirty path.
func (s *Service) Capture(ctx context.Context, worktreePath string) (*Snapshot, error) {
	branch, err := s.git(ctx, worktreePath, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("snapshot: reading branch: %w", err)
	}

	head, err := s.git(ctx, worktreePath, "rev-parse", "HEAD")
	if err != nil {
		head = ""
	}

	statusOut, err := s.git(ctx, worktreePath, "status", "--porcelain=v2")
	if err != nil {
		return nil, fmt.Errorf("snapshot: reading status: %w", err)
	}

	snap := &Snapshot{
		Branch:     strings.TrimSpace(branch),
		HeadCommit: strings.TrimSpace(head),
		Diffs:      make(map[string]string),
		CapturedAt: time.Now(),
	}

	var dirtyPaths []string
	for _, line := range strings.Split(statusOut, "\n") {
		switch {
		case strings.HasPrefix(line, "1 ") || strings.HasPrefix(line, "2 "):
			fields := strings.Fields(line)
			if len(fields) < 2 || len(fields[1]) != 2 {
				continue
			}
			if fields[1][0] != '.' {
				snap.Staged++
			}
			if fields[1][1] != '.' {
				snap.Unstaged++
			}
			path := fields[len(fields)-1]
			dirtyPaths = append(dirtyPaths, path)
		case strings.HasPrefix(line, "? "):
			snap.Untracked++
			dirtyPaths = append(dirtyPaths, strings.TrimPrefix(line, "? "))
		}
	}

	tracked, err := s.git(ctx, worktreePath, "ls-files")
	if err != nil {
		return nil, fmt.Errorf("snapshot: listing tracked files: %w", err)
	}
	dirty := make(map[string]bool, len(dirtyPaths))
	inventory := append([]string{}, dirtyPaths...)
	for _, path := range dirtyPaths {
		dirty[path] = true
	}
	for _, path := range strings.Split(tracked, "\n") {
		if path != "" && !dirty[path] {
			inventory = append(inventory, path)
		}
	}

	for _, path := range inventory {
		full := filepath.Join(worktreePath, path)
		info, err := os.Stat(full)
		if err != nil {
			continue
		}
		hash, err := hashFile(full)
		if err != nil {
			s.log.Warn("snapshot: hashing %s: %v", full, err)
			continue
		}
		snap.Files = append(snap.Files, FileStat{Path: path, Size: info.Size(), Hash: hash})
		if !dirty[path] {
			continue
		}

		diff, err := s.git(ctx, worktreePath, "diff", "--unified=3", "--", path)
		if err == nil && strings.TrimSpace(diff) != "" {
			snap.Diffs[path] = diff
		}
	}

	return snap, nil
}

// Diff computes the aggregate delta between two Capture results.
func Diff(before, after *Snapshot) *SnapshotDiff {
	d := &SnapshotDiff{PerPathDiffs: make(map[string]string)}

	beforeFiles := indexFiles(before)
	afterFiles := indexFiles(after)

	for path, stat := range afterFiles {
		prior, existed := beforeFiles[path]
		switch {
		case !existed:
			d.FilesAdded = append(d.FilesAdded, path)
		case prior.Hash != stat.Hash:
			d.FilesModified = append(d.FilesModified, path)
		}
		if diff, ok := after.Diffs[path]; ok {
			d.PerPathDiffs[path] = diff
			added, removed := countDiffLines(diff)
			d.LinesAdded += added
			d.LinesRemoved += removed
		}
	}
	for path := range beforeFiles {
		if _, ok := afterFiles[path]; !ok {
			d.FilesDeleted = append(d.FilesDeleted, path)
		}
	}

	return d
}

func indexFiles(s *Snapshot) map[string]FileStat {
	out := make(map[string]FileStat, len(s.Files))
	for _, f := range s.Files {
		out[f.Path] = f
	}
	return out
}

func countDiffLines(diff string) (added, removed int) {
	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---"):
			continue
		case strings.HasPrefix(line, "+"):
			added++
		case strings.HasPrefix(line, "-"):
			removed++
		}
	}
	return added, removed
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func (s *Service) git(ctx context.Context, dir string, args ...string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	proc := process.New(s.log, process.Config{
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
