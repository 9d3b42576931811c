package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/h4mn/skybridge/domainevent"
)

// streamedTypes is every event type the observability stream forwards.
// Listed explicitly rather than wildcarded, since domainevent.Bus has no
// "subscribe to everything" primitive and the closed Type enum makes an
// explicit list cheap to keep current.
var streamedTypes = []domainevent.Type{
	domainevent.IssueReceived,
	domainevent.JobCreated,
	domainevent.JobStarted,
	domainevent.JobProgress,
	domainevent.JobCommitted,
	domainevent.JobPushed,
	domainevent.PRCreated,
	domainevent.JobCompleted,
	domainevent.JobFailed,
	domainevent.JobRetried,
	domainevent.WorktreeRemoved,
	domainevent.WorktreeRetained,
	domainevent.TrelloCardCreated,
	domainevent.TrelloCardUpdated,
	domainevent.TrelloCardMovedToList,
	domainevent.DeployCompleted,
	domainevent.DeployFailed,
}

// handleEventStream implements GET /observability/events/stream: a
// text/event-stream handler that subscribes a throwaway handler for the
// lifetime of the request and writes each event as an SSE data: frame,
// unsubscribing implicitly when the request context is done (domainevent.Bus
// has no explicit Unsubscribe; the handler becomes unreachable once this
// function returns and the channel below stops being drained).
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ws := workspaceFromContext(r)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := make(chan domainevent.Event, 64)
	for _, t := range streamedTypes {
		ws.Bus.Subscribe(t, func(e domainevent.Event) {
			select {
			case events <- e:
			default:
				s.cfg.Log.Warn("httpapi: event stream backpressure, dropping %s", e.EventType)
			}
		})
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-events:
			data, err := json.Marshal(e)
			if err != nil {
				continue
			}
			if _, err := w.Write([]byte("data: ")); err != nil {
				return
			}
			if _, err := w.Write(data); err != nil {
				return
			}
			if _, err := w.Write([]byte("\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
