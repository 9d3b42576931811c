package worktree

import (
	"errors"
	"strings"
)

// ErrCreationFailed is returned when git worktree add fails for a reason
// other than "branch already exists" (which Create treats as idempotent
// success).
var ErrCreationFailed = errors.New("worktree: creation failed")

var transientMarkers = []string{
	"Could not resolve host",
	"Connection refused",
	"index.lock",
	"Resource temporarily unavailable",
}

// Retryable reports whether err reflects a transient git failure (network,
// lock contention) worth retrying, as opposed to a terminal misconfiguration.
func Retryable(err error) bool {
	if !errors.Is(err, ErrCreationFailed) {
		return false
	}
	msg := err.Error()
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
