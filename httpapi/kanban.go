package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/h4mn/skybridge/kanban"
)

func (s *Server) handleListBoards(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromContext(r)
	boards, err := ws.Kanban.ListBoards()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing boards: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"boards": boards})
}

func (s *Server) handleListLists(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromContext(r)
	boards, err := ws.Kanban.ListBoards()
	if err != nil || len(boards) == 0 {
		writeError(w, http.StatusInternalServerError, "resolving default board: %v", err)
		return
	}
	lists, err := ws.Kanban.ListLists(boards[0].ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing lists: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lists": lists})
}

func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromContext(r)

	var filter kanban.CardFilter
	if v := r.URL.Query().Get("list_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid list_id: %v", err)
			return
		}
		filter.ListID = id
	}
	if v := r.URL.Query().Get("being_processed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid being_processed: %v", err)
			return
		}
		filter.BeingProcessed = &b
	}

	cards, err := ws.Kanban.ListCards(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing cards: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cards": cards})
}

func (s *Server) handleGetCard(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromContext(r)
	id, err := cardID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	card, err := ws.Kanban.GetCard(id)
	if err != nil {
		writeKanbanError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// createCardRequest mirrors the allowed-lists error message S6 requires: a
// missing list_id must be rejected enumerating every valid list by name,
// not just "list_id required".
type createCardRequest struct {
	ListID      int64    `json:"list_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	IssueNumber string   `json:"issue_number"`
	Labels      []string `json:"labels"`
}

func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromContext(r)

	var req createCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "decoding request body: %v", err)
		return
	}
	defer r.Body.Close()

	if req.ListID == 0 {
		writeError(w, http.StatusBadRequest, "list_id is required; one of: %v", kanban.DefaultLists)
		return
	}

	card, err := ws.Kanban.CreateCard(req.ListID, req.Title, req.Description, req.IssueNumber, req.Labels)
	if err != nil {
		writeKanbanError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, card)
}

type updateCardRequest struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Labels      []string `json:"labels"`
}

func (s *Server) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromContext(r)
	id, err := cardID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	var req updateCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "decoding request body: %v", err)
		return
	}
	defer r.Body.Close()

	card, err := ws.Kanban.UpdateCard(id, req.Title, req.Description, req.Labels)
	if err != nil {
		writeKanbanError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *Server) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromContext(r)
	id, err := cardID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if err := ws.Kanban.DeleteCard(id); err != nil {
		writeKanbanError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type moveCardRequest struct {
	ToListID int64 `json:"to_list_id"`
}

func (s *Server) handleMoveCard(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromContext(r)
	id, err := cardID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	var req moveCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "decoding request body: %v", err)
		return
	}
	defer r.Body.Close()

	card, err := ws.Kanban.MoveCard(id, req.ToListID)
	if err != nil {
		writeKanbanError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *Server) handleCardHistory(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromContext(r)
	id, err := cardID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	history, err := ws.Kanban.GetCardHistory(id)
	if err != nil {
		writeKanbanError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

func cardID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func writeKanbanError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, kanban.ErrListNotSpecified):
		writeError(w, http.StatusBadRequest, "list_id is required; one of: %v", kanban.DefaultLists)
	case errors.Is(err, kanban.ErrListNotFound):
		writeError(w, http.StatusBadRequest, "list not found")
	case errors.Is(err, kanban.ErrCardNotFound):
		writeError(w, http.StatusNotFound, "card not found")
	default:
		writeError(w, http.StatusInternalServerError, "%v", err)
	}
}
