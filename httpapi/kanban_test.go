package httpapi_test

import (
	"encoding/json"
	"net/http"
	"strconv"
	"testing"

	"github.com/h4mn/skybridge/kanban"
	"github.com/stretchr/testify/require"
)

func TestHandleListBoardsAndLists(t *testing.T) {
	ts := testServer(t, testWorkspaces(t))

	resp := doRequest(t, ts, http.MethodGet, "/kanban/boards", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var boards map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&boards))
	require.NotEmpty(t, boards["boards"])

	resp = doRequest(t, ts, http.MethodGet, "/kanban/lists", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var lists map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&lists))
	require.Len(t, lists["lists"], len(kanban.DefaultLists))
}

func TestHandleCreateCardRejectsMissingListID(t *testing.T) {
	ts := testServer(t, testWorkspaces(t))

	body := []byte(`{"title":"no list here"}`)
	resp := doRequest(t, ts, http.MethodPost, "/kanban/cards", body, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var got map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	for _, name := range kanban.DefaultLists {
		require.Contains(t, got["error"], name)
	}
}

func TestHandleCreateGetUpdateMoveDeleteCard(t *testing.T) {
	ts := testServer(t, testWorkspaces(t))

	listsResp := doRequest(t, ts, http.MethodGet, "/kanban/lists", nil, nil)
	var listsBody struct {
		Lists []kanban.List `json:"lists"`
	}
	require.NoError(t, json.NewDecoder(listsResp.Body).Decode(&listsBody))
	issuesID := findListID(t, listsBody.Lists, "Issues")
	brainstormID := findListID(t, listsBody.Lists, "Brainstorm")

	createBody, err := json.Marshal(map[string]any{
		"list_id": issuesID,
		"title":   "fix the thing",
	})
	require.NoError(t, err)
	resp := doRequest(t, ts, http.MethodPost, "/kanban/cards", createBody, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var card kanban.Card
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&card))
	require.Equal(t, "fix the thing", card.Title)

	path := "/kanban/cards/" + strconv.FormatInt(card.ID, 10)
	resp = doRequest(t, ts, http.MethodGet, path, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	updateBody, err := json.Marshal(map[string]any{"title": "fixed the thing"})
	require.NoError(t, err)
	resp = doRequest(t, ts, http.MethodPatch, path, updateBody, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated kanban.Card
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&updated))
	require.Equal(t, "fixed the thing", updated.Title)

	moveBody, err := json.Marshal(map[string]any{"to_list_id": brainstormID})
	require.NoError(t, err)
	resp = doRequest(t, ts, http.MethodPost, path+"/move", moveBody, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var moved kanban.Card
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&moved))
	require.Equal(t, brainstormID, moved.ListID)

	resp = doRequest(t, ts, http.MethodGet, path+"/history", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, ts, http.MethodDelete, path, nil, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doRequest(t, ts, http.MethodGet, path, nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleListCardsFiltersByListID(t *testing.T) {
	ts := testServer(t, testWorkspaces(t))

	resp := doRequest(t, ts, http.MethodGet, "/kanban/cards?list_id=notanumber", nil, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func findListID(t *testing.T, lists []kanban.List, name string) int64 {
	t.Helper()
	for _, l := range lists {
		if l.Name == name {
			return l.ID
		}
	}
	t.Fatalf("list %s not found", name)
	return 0
}
