package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/h4mn/skybridge/webhookintake"
	"github.com/h4mn/skybridge/workspace"
)

const maxWebhookBody = 5 << 20 // 5MB, generous for the largest GitHub issue payloads

// handleWebhook implements POST /webhooks/{source}. It resolves the
// workspace itself (rather than going through workspaceMiddleware): an
// unknown X-Workspace gets a 404 and any other resolution error a 500, both
// before the body is read or the signature is verified.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")

	id := r.Header.Get("X-Workspace")
	ws, err := s.cfg.Workspaces.Get(id)
	if err != nil {
		if errors.Is(err, workspace.ErrUnknownWorkspace) {
			writeError(w, http.StatusNotFound, "unknown workspace: %q", id)
			return
		}
		writeError(w, http.StatusInternalServerError, "resolving workspace: %v", err)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
	defer r.Body.Close()
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading request body: %v", err)
		return
	}
	if len(body) > maxWebhookBody {
		writeError(w, http.StatusBadRequest, "request body exceeds %d bytes", maxWebhookBody)
		return
	}

	outcome, err := s.cfg.Intake.Handle(ws, source, body, r.Header)
	if err != nil {
		s.cfg.Log.Error("httpapi: webhook intake for %s: %v", source, err)
	}

	switch outcome.Status {
	case webhookintake.InvalidSignature:
		writeError(w, http.StatusUnauthorized, "invalid signature")
	case webhookintake.Malformed:
		writeError(w, http.StatusBadRequest, "malformed payload: %v", err)
	case webhookintake.AcceptedIgnored:
		writeJSON(w, http.StatusAccepted, map[string]any{"correlation_id": outcome.CorrelationID})
	default:
		writeJSON(w, http.StatusAccepted, map[string]any{
			"job_id":         outcome.JobID,
			"correlation_id": outcome.CorrelationID,
		})
	}
}
