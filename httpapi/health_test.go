package httpapi_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandleHealth(t *testing.T) {
	ts := testServer(t, testWorkspaces(t))

	resp := doRequest(t, ts, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Equal(t, "ok", got["status"])
}

func TestHandleDiscoverListsRoutes(t *testing.T) {
	ts := testServer(t, testWorkspaces(t))

	resp := doRequest(t, ts, http.MethodGet, "/discover", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.NotEmpty(t, got["routes"])
}

func TestHandleMetricsUnavailableWithoutRegistry(t *testing.T) {
	ts := testServer(t, testWorkspaces(t))

	resp := doRequest(t, ts, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
