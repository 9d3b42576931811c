// Package webhookintake implements the end-to-end receive -> verify ->
// normalize -> enqueue procedure from spec.md §4.8. It never touches git,
// never spawns an agent, and never makes network egress — intake is
// strictly non-blocking so the request thread returns immediately.
package webhookintake

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/h4mn/skybridge/domainevent"
	"github.com/h4mn/skybridge/jobqueue"
	"github.com/h4mn/skybridge/logger"
	"github.com/h4mn/skybridge/signature"
	"github.com/h4mn/skybridge/workspace"
)

// Status classifies how a request was resolved, letting httpapi pick the
// right HTTP status code without re-deriving the decision.
type Status int

const (
	Accepted Status = iota
	AcceptedIgnored
	InvalidSignature
	Malformed
)

// Outcome is the result of one Handle call.
type Outcome struct {
	Status        Status
	JobID         string
	CorrelationID string
}

// correlationHeaders lists, per source, the header carrying a
// caller-supplied delivery id. Sources without an entry fall back to a
// generated correlation id.
var correlationHeaders = map[string]string{
	"github": "x-github-delivery",
	"trello": "x-trello-webhook",
}

// signatureHeaders lists, per source, the header carrying the HMAC digest.
var signatureHeaders = map[string]string{
	"github": "x-hub-signature-256",
}

// Intake verifies, normalizes, and enqueues webhook deliveries for every
// configured source.
type Intake struct {
	log          logger.Logger
	verifier     *signature.Verifier
	defaultSkill string
}

// New returns an Intake using verifier for signature checks. defaultSkill
// is applied when a job doesn't specify one (spec.md §3.1: "resolve-issue"
// unless overridden).
func New(l logger.Logger, verifier *signature.Verifier, defaultSkill string) *Intake {
	if defaultSkill == "" {
		defaultSkill = "resolve-issue"
	}
	return &Intake{log: l, verifier: verifier, defaultSkill: defaultSkill}
}

// Handle implements the 7-step procedure: verify the raw body against its
// signature header, decode via the per-source adapter, compute job_id, and
// enqueue. rawBody must be the exact bytes the caller read off the wire —
// signature verification depends on it never having been re-serialized.
func (in *Intake) Handle(ws *workspace.Workspace, source string, rawBody []byte, headers http.Header) (Outcome, error) {
	correlationID := correlationID(source, headers)

	if sigHeader, ok := signatureHeaders[source]; ok {
		result, err := in.verifier.Verify(source, rawBody, headers.Get(sigHeader))
		if result != signature.OK {
			in.log.Warn("webhookintake: %s signature check failed (%s): %v", source, result, err)
			return Outcome{Status: InvalidSignature, CorrelationID: correlationID}, nil
		}
	}

	adapter, ok := adapters[source]
	if !ok {
		in.log.Warn("webhookintake: unsupported source %q", source)
		return Outcome{Status: AcceptedIgnored, CorrelationID: correlationID}, nil
	}

	result, ok := adapter(rawBody)
	if !ok {
		return Outcome{Status: AcceptedIgnored, CorrelationID: correlationID}, nil
	}

	var parsed json.RawMessage
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return Outcome{Status: Malformed, CorrelationID: correlationID}, fmt.Errorf("webhookintake: malformed %s payload: %w", source, err)
	}

	hash := shortHash()
	jobID := fmt.Sprintf("%s-%s-%s", source, result.EventType, hash)

	job := jobqueue.WebhookJob{
		JobID: jobID,
		Event: jobqueue.WebhookEvent{
			EventID:       uuid.NewString(),
			Source:        source,
			EventType:     result.EventType,
			ReceivedAt:    time.Now(),
			RawBytes:      rawBody,
			Parsed:        parsed,
			CorrelationID: correlationID,
		},
		Skill:     in.defaultSkill,
		CreatedAt: time.Now(),
	}

	enqueuedID, err := ws.Queue.Enqueue(job)
	if err != nil {
		return Outcome{}, fmt.Errorf("webhookintake: enqueueing %s: %w", jobID, err)
	}

	ws.Bus.Publish(domainevent.New(domainevent.IssueReceived, "issue", result.ExternalID, correlationID, map[string]any{
		"job_id":       enqueuedID,
		"source":       source,
		"event_type":   result.EventType,
		"issue_number": result.ExternalID,
		"title":        result.Title,
		"description":  result.Description,
		"issue_url":    result.IssueURL,
		"author":       result.Author,
		"labels":       result.Labels,
	}))

	ws.Bus.Publish(domainevent.New(domainevent.JobCreated, "job", enqueuedID, correlationID, map[string]any{
		"job_id":       enqueuedID,
		"source":       source,
		"event_type":   result.EventType,
		"issue_number": result.ExternalID,
		"skill":        in.defaultSkill,
	}))

	return Outcome{Status: Accepted, JobID: enqueuedID, CorrelationID: correlationID}, nil
}

func correlationID(source string, headers http.Header) string {
	if header, ok := correlationHeaders[source]; ok {
		if v := headers.Get(header); v != "" {
			return v
		}
	}
	return uuid.NewString()
}

// shortHash returns the first 8 hex characters of a fresh 128-bit random
// value, per spec.md §3.1's WebhookJob.job_id format.
func shortHash() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand.Read on a real OS never fails; fall back to a v4 UUID's
		// bytes rather than propagating an error through a hot path.
		u := uuid.New()
		return hex.EncodeToString(u[:])[:8]
	}
	return hex.EncodeToString(b[:])[:8]
}
