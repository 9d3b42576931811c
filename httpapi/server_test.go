package httpapi_test

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/h4mn/skybridge/httpapi"
	"github.com/h4mn/skybridge/logger"
	"github.com/h4mn/skybridge/signature"
	"github.com/h4mn/skybridge/webhookintake"
	"github.com/h4mn/skybridge/workspace"
	"github.com/h4mn/skybridge/worktree"
	"github.com/stretchr/testify/require"
)

// testWorkspaces builds a registry with a core workspace plus an "acme"
// workspace, so tests can exercise X-Workspace resolution.
func testWorkspaces(t *testing.T) *workspace.Registry {
	t.Helper()
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "workspaces", "acme"), 0o755))
	r, err := workspace.NewRegistry(logger.Discard, workspace.Dependencies{
		QueueBasePath:           filepath.Join(base, "queue"),
		WorkspacesBasePath:      filepath.Join(base, "workspaces"),
		LogsBasePath:            filepath.Join(base, "logs"),
		ProcessingRecoveryGrace: time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func testServer(t *testing.T, registry *workspace.Registry) *httptest.Server {
	t.Helper()
	verifier := signature.New(map[string]string{"github": "shhh"})
	intake := webhookintake.New(logger.Discard, verifier, "resolve-issue")
	wt := worktree.New(logger.Discard, t.TempDir(), t.TempDir())

	srv := httpapi.New(":0", httpapi.Config{
		Log:          logger.Discard,
		Workspaces:   registry,
		Intake:       intake,
		Worktrees:    wt,
		DeletePasswd: "secret",
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doRequest(t *testing.T, ts *httptest.Server, method, path string, body []byte, headers map[string]string) *http.Response {
	t.Helper()
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.URL+path, reqBody)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}
