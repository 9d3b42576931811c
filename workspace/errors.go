package workspace

import "errors"

// ErrUnknownWorkspace is returned when a non-empty X-Workspace header names
// a workspace that was never registered. Surfaced as 404 by httpapi — only
// a missing header falls back to core; a wrong one is rejected outright.
var ErrUnknownWorkspace = errors.New("workspace: unknown workspace")
