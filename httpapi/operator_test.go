package httpapi_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandleListJobsReportsQueueStats(t *testing.T) {
	ts := testServer(t, testWorkspaces(t))

	resp := doRequest(t, ts, http.MethodGet, "/webhooks/jobs", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleListWorktrees(t *testing.T) {
	ts := testServer(t, testWorkspaces(t))

	resp := doRequest(t, ts, http.MethodGet, "/webhooks/worktrees", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
}

func TestHandleDeleteWorktreeRequiresPassword(t *testing.T) {
	ts := testServer(t, testWorkspaces(t))

	resp := doRequest(t, ts, http.MethodDelete, "/webhooks/worktrees/skybridge-github-issues.opened-42-ab12cd34", nil, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandleDeleteWorktreeRequiresMatchingConfirmHash(t *testing.T) {
	ts := testServer(t, testWorkspaces(t))

	resp := doRequest(t, ts, http.MethodDelete, "/webhooks/worktrees/skybridge-github-issues.opened-42-ab12cd34?password=secret&confirm=wrong", nil, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleDeleteWorktreeFailsValidationForMissingWorktree(t *testing.T) {
	ts := testServer(t, testWorkspaces(t))

	resp := doRequest(t, ts, http.MethodDelete, "/webhooks/worktrees/nonexistent?password=secret&confirm=ent", nil, nil)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}
