package orchestrator

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/h4mn/skybridge/agentfacade"
	"github.com/h4mn/skybridge/worktree"
)

// ErrShutdown marks a job abandoned mid-flight because the orchestrator was
// asked to stop. Never retryable by definition: the job is recorded as
// failed with type "shutdown" and no retry is scheduled.
var ErrShutdown = errors.New("orchestrator: shutdown requested")

// ErrPushRejected wraps a failure committing or pushing the agent's
// changes. Transient unless the underlying git output names an
// authorization failure (one of authFailureMarkers: "Permission denied",
// "Authentication failed", "403").
var ErrPushRejected = errors.New("orchestrator: push rejected")

// ErrPRCreationFailed wraps a failure in the configured PRCreator hook.
var ErrPRCreationFailed = errors.New("orchestrator: pr creation failed")

var authFailureMarkers = []string{"Permission denied", "Authentication failed", "403"}

// retryable classifies err per spec.md §9 Open Question 1: network errors,
// timeouts, git lock contention, and agent start failures are transient;
// everything else (signature failures never reach here; malformed
// payloads, 4xx, AgentResultInvalid) is terminal.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrShutdown) {
		return false
	}
	if errors.Is(err, agentfacade.ErrAgentResultInvalid) {
		return false
	}
	if errors.Is(err, agentfacade.ErrAgentTimeout) {
		return true
	}
	if agentfacade.Retryable(err) {
		return true
	}
	if worktree.Retryable(err) {
		return true
	}
	if errors.Is(err, ErrPushRejected) || errors.Is(err, ErrPRCreationFailed) {
		msg := err.Error()
		for _, marker := range authFailureMarkers {
			if strings.Contains(msg, marker) {
				return false
			}
		}
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	return false
}
